package main

import (
	"github.com/spf13/cobra"

	"mmsim/config"
)

const (
	configFlagName = "config"
	feedFlagName   = "feed"
)

var rootCmd = &cobra.Command{
	Use:          "mmsim",
	Short:        "Quoting market-maker simulator",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP(configFlagName, "c", "", "path to a TOML config file")
	rootCmd.PersistentFlags().String(feedFlagName, "", "fair price CSV, overrides session.price_feed")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString(configFlagName)
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if feed, _ := cmd.Flags().GetString(feedFlagName); feed != "" {
		cfg.Session.PriceFeed = feed
	}
	return cfg, nil
}
