package journal

import (
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrCorrupt       = errors.New("journal record corrupt")
	ErrNonMonotonic  = errors.New("journal sequence not increasing")
	ErrTruncatedTail = errors.New("journal ends in a partial record")
)

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in sequence order and returns the
// last sequence seen. A missing directory replays nothing. A partial record
// at the end of a segment ends that segment.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	files, err := segmentFiles(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range files {
		lastSeq, err = replaySegment(path, lastSeq, fn)
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}

func replaySegment(path string, lastSeq uint64, fn ReplayHandler) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return lastSeq, err
	}
	defer f.Close()

	for {
		rec, err := readRecord(f)
		if err == io.EOF || errors.Is(err, ErrTruncatedTail) {
			return lastSeq, nil
		}
		if err != nil {
			return lastSeq, errors.Wrapf(err, "%s after seq %d", path, lastSeq)
		}
		if rec.Seq <= lastSeq {
			return lastSeq, errors.Wrapf(ErrNonMonotonic, "%s: seq %d after %d", path, rec.Seq, lastSeq)
		}
		lastSeq = rec.Seq

		if err := fn(rec); err != nil {
			return lastSeq, errors.Wrapf(err, "replay seq %d", rec.Seq)
		}
	}
}

func readRecord(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedTail
		}
		return nil, err
	}

	t := RecordType(header[0])
	seq := binary.BigEndian.Uint64(header[1:9])
	ts := int64(binary.BigEndian.Uint64(header[9:17]))
	l := binary.BigEndian.Uint32(header[17:21])

	body := make([]byte, int(l)+crcSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrTruncatedTail
		}
		return nil, err
	}

	payload := body[:l]
	want := binary.BigEndian.Uint32(body[l:])
	if checksum(append(header, payload...)) != want {
		return nil, errors.Wrapf(ErrCorrupt, "seq %d crc mismatch", seq)
	}

	rec := &Record{Type: t, Seq: seq, Data: payload}
	if ts != 0 {
		rec.Time = time.Unix(0, ts).UTC()
	}
	return rec, nil
}

// scanSegment walks the frame headers of a segment without checking
// payloads. It returns the highest complete sequence, the length of the
// complete prefix and the file size.
func scanSegment(path string) (maxSeq uint64, valid, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, 0, 0, err
	}
	size = st.Size()

	header := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(f, header); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return maxSeq, valid, size, nil
			}
			return maxSeq, valid, size, err
		}
		end := valid + headerSize + int64(binary.BigEndian.Uint32(header[17:21])) + crcSize
		if end > size {
			return maxSeq, valid, size, nil
		}
		if seq := binary.BigEndian.Uint64(header[1:9]); seq > maxSeq {
			maxSeq = seq
		}
		if _, err := f.Seek(end, io.SeekStart); err != nil {
			return maxSeq, valid, size, err
		}
		valid = end
	}
}
