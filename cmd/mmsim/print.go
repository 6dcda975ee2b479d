package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
	"mmsim/domain/pnl"
	"mmsim/service"
)

func printBook(w io.Writer, s orderbook.Snapshot) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(orderbook.Header, "\t")+"\t")
	for _, rec := range s.Records() {
		fmt.Fprintln(tw, strings.Join(rec, "\t")+"\t")
	}
	return tw.Flush()
}

// printReport lists the fills, requotes and rested remainder of one order.
func printReport(w io.Writer, rep matching.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "event\tseq\tside\tprice\tsize\torigin")
	for _, t := range rep.Trades {
		fmt.Fprintf(tw, "fill\t%d\t%s\t%s\t%s\t%s\n", t.Seq, t.Direction, t.Price, t.Size, t.Origin)
	}
	for _, l := range rep.Requotes {
		fmt.Fprintf(tw, "requote\t\t\t%s\t%s\t%s\n", l.Price, l.Size, l.Origin)
	}
	if l := rep.Rested; l != nil {
		fmt.Fprintf(tw, "rested\t\t\t%s\t%s\t%s\n", l.Price, l.Size, l.Origin)
	}
	fmt.Fprintln(tw)
	return tw.Flush()
}

func printRejection(w io.Writer, err error) error {
	_, werr := fmt.Fprintf(w, "rejected: %v\n\n", err)
	return werr
}

func printSummary(w io.Writer, session string, res service.Result) error {
	s := res.Summary
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	fmt.Fprintf(tw, "\nsession\t%s\n", session)
	fmt.Fprintf(tw, "ticks\t%d\n", res.Ticks)
	fmt.Fprintf(tw, "orders\t%d (%d rejected)\n", res.Orders, res.Rejected)
	fmt.Fprintf(tw, "trades\t%d (%d buys, %d sells)\n", s.Trades, s.Buys, s.Sells)
	fmt.Fprintf(tw, "volume\t%s\n", s.Volume)
	fmt.Fprintf(tw, "notional\t%s\n", s.Notional)
	fmt.Fprintf(tw, "inventory\t%s (min %s, max %s)\n", s.FinalInventory, s.MinInventory, s.MaxInventory)
	fmt.Fprintf(tw, "pnl\t%s\n", s.TotalPnL.StringFixed(8))
	if !s.Start.IsZero() {
		fmt.Fprintf(tw, "window\t%s .. %s\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeBookCSV(w io.Writer, s orderbook.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderbook.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(s.Records()); err != nil {
		return err
	}
	return cw.Error()
}

var pointsHeader = []string{"seq", "timestamp", "reference_price", "increment", "cumulative_pnl", "inventory"}

func writePointsCSV(w io.Writer, points []pnl.Point) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(pointsHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write([]string{
			fmt.Sprint(p.Seq),
			p.Time.UTC().Format(time.RFC3339Nano),
			p.ReferencePrice.String(),
			p.Increment.String(),
			p.CumulativePnL.String(),
			p.Inventory.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
