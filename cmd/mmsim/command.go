package main

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mmsim/domain/matching"
	"mmsim/domain/orderbook"
	"mmsim/domain/pricefeed"
	"mmsim/service"
)

const (
	originFlagName   = "origin"
	atFlagName       = "at"
	fallbackFlagName = "fallback"
)

func init() {
	quoteCmd.Flags().String(originFlagName, "client", "level origin, maker or client")
	executeCmd.Flags().String(fallbackFlagName, "", "rest any unfilled size at this price")
	for _, c := range []*cobra.Command{quoteCmd, executeCmd} {
		c.Flags().String(atFlagName, "", "command time (RFC 3339), defaults to the last feed observation")
	}
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(executeCmd)
}

var quoteCmd = &cobra.Command{
	Use:   "quote <bid|ask> <price> <size>",
	Short: "Journal one quote against the recovered session; size 0 removes the level",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		side, err := orderbook.ParseSide(args[0])
		if err != nil {
			return err
		}
		price, err := parseDecimal("price", args[1])
		if err != nil {
			return err
		}
		size, err := parseDecimal("size", args[2])
		if err != nil {
			return err
		}
		originArg, _ := cmd.Flags().GetString(originFlagName)
		origin, err := orderbook.ParseOrigin(originArg)
		if err != nil {
			return err
		}

		a, err := commandApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		at, err := commandTime(cmd, a.feed)
		if err != nil {
			return err
		}

		if err := a.session.Quote(side, price, size, at, origin); err != nil {
			return err
		}
		if lvl, ok := a.session.Book().Get(side, price); ok {
			a.log.Info("level resting",
				zap.Stringer("side", side),
				zap.Stringer("price", lvl.Price),
				zap.Stringer("size", lvl.Size),
				zap.Stringer("origin", lvl.Origin))
		} else {
			a.log.Info("level absent", zap.Stringer("side", side), zap.Stringer("price", price))
		}
		return printBook(cmd.OutOrStdout(), a.session.Book().Snapshot())
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute <buy|sell> <size>",
	Short: "Journal one aggressor order against the recovered session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := orderbook.ParseDirection(args[0])
		if err != nil {
			return err
		}
		size, err := parseDecimal("size", args[1])
		if err != nil {
			return err
		}
		o := matching.Order{Direction: dir, Size: size}
		if v, _ := cmd.Flags().GetString(fallbackFlagName); v != "" {
			px, err := parseDecimal("fallback", v)
			if err != nil {
				return err
			}
			o.FallbackPrice = decimal.NewNullDecimal(px)
		}

		a, err := commandApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		if o.Time, err = commandTime(cmd, a.feed); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		rep, err := a.session.Execute(o)
		switch {
		case err == nil:
		case service.IsRejection(err):
			if err := printRejection(out, err); err != nil {
				return err
			}
		default:
			return err
		}
		if err := printReport(out, rep); err != nil {
			return err
		}
		return printBook(out, a.session.Book().Snapshot())
	},
}

func commandApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.JournalDir == "" {
		return nil, errors.New("a journal is required (storage.journal_dir)")
	}
	return newApp(cfg, false)
}

// commandTime is --at, else the last feed observation, else now.
func commandTime(cmd *cobra.Command, feed *pricefeed.Series) (time.Time, error) {
	if v, _ := cmd.Flags().GetString(atFlagName); v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "--%s", atFlagName)
		}
		return ts.UTC(), nil
	}
	if feed != nil {
		if last, ok := feed.Last(); ok {
			return last.Time, nil
		}
	}
	return time.Now().UTC(), nil
}

func parseDecimal(name, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "%s %q", name, s)
	}
	return v, nil
}
