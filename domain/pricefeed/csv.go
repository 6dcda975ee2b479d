package pricefeed

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
)

const (
	ColumnTimestamp = "Timestamp"
	ColumnFairPrice = "Fair Price"
)

var ErrMissingColumn = errors.New("fair price csv is missing a column")

// accepted timestamp layouts, tried in order
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// ReadCSV parses a header-led CSV with Timestamp and Fair Price columns.
// Timestamps without a zone are read as UTC.
func ReadCSV(r io.Reader) (*Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, "read csv header")
	}
	tsCol, pxCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case ColumnTimestamp:
			tsCol = i
		case ColumnFairPrice:
			pxCol = i
		}
	}
	if tsCol < 0 {
		return nil, errors.Wrapf(ErrMissingColumn, "%q", ColumnTimestamp)
	}
	if pxCol < 0 {
		return nil, errors.Wrapf(ErrMissingColumn, "%q", ColumnFairPrice)
	}

	var obs []Observation
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		ts, err := parseTime(rec[tsCol])
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		px, err := decimal.NewFromString(strings.TrimSpace(rec[pxCol]))
		if err != nil {
			return nil, errors.Wrapf(err, "line %d: fair price", line)
		}
		obs = append(obs, Observation{Time: ts, Price: px})
	}
	return NewSeries(obs)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognised timestamp %q", s)
}
