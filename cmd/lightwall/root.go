package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/app"
)

var (
	cfgFile      string
	logLevel     string
	dashboardURL string

	// loaded is the configuration read before any command runs.
	loaded app.Config
)

var rootCmd = &cobra.Command{
	Use:   "lightwall",
	Short: "Lightwall - a light installation that notices and talks to visitors",
	Long: `Lightwall drives an interactive light installation.

A radar measures how far the nearest visitor is. As they approach the wall
its animations change, and once they are close it greets them and holds a
spoken conversation until they walk away.

Configuration is read from lightwall.yaml in the working directory or in
~/.lightwall, and any key can be overridden with a LIGHTWALL_ environment
variable (for example LIGHTWALL_RADAR_SOURCE=simulated).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./lightwall.yaml or ~/.lightwall/lightwall.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides log_level)")
	rootCmd.PersistentFlags().StringVar(&dashboardURL, "url", "", "dashboard URL for status, say and visits (default http://localhost:<dashboard.port>)")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := app.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	loaded = cfg

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	log.Init(level)
	return nil
}
