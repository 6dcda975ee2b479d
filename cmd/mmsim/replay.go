package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"mmsim/domain/pnl"
	"mmsim/service"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild a session from its snapshot and journal and print it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Storage.JournalDir == "" && cfg.Storage.SnapshotDir == "" {
			return errors.New("replay needs storage.journal_dir or storage.snapshot_dir")
		}

		a, err := newApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.close()

		res := service.Result{}
		trades := a.session.Ledger().Records()
		if a.feed != nil {
			points, err := pnl.Track(trades, a.feed, cfg.Session.StartingInventory, pnl.Window{})
			if err != nil {
				return errors.Wrap(err, "track pnl")
			}
			res.Points = points
			res.Summary = pnl.Summarize(points, trades)
		} else {
			res.Summary.Trades = len(trades)
		}

		out := cmd.OutOrStdout()
		if err := printBook(out, a.session.Book().Snapshot()); err != nil {
			return err
		}
		return printSummary(out, a.session.ID(), res)
	},
}
