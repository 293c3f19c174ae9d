package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/pkg/app"
)

var runFlags struct {
	mock           bool
	personality    string
	radar          string
	distance       int
	noDashboard    bool
	noConversation bool
	noJournal      bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the installation",
	Long: `Run the installation until interrupted.

Examples:
  lightwall run                           # hardware and backends from lightwall.yaml
  lightwall run --mock                    # no hardware, microphone or network
  lightwall run --mock --distance 900     # a visitor standing close to the wall
  lightwall run --personality poetic`,
	Args: cobra.NoArgs,
	RunE: runInstallation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.BoolVar(&runFlags.mock, "mock", false, "use mock hardware, a simulated visitor and scripted backends")
	f.StringVar(&runFlags.personality, "personality", "", "personality name (overrides personality)")
	f.StringVar(&runFlags.radar, "radar", "", "distance source: serial, bridge, simulated, static")
	f.IntVar(&runFlags.distance, "distance", 0, "fixed visitor distance in mm (implies --radar static)")
	f.BoolVar(&runFlags.noDashboard, "no-dashboard", false, "disable the web dashboard")
	f.BoolVar(&runFlags.noConversation, "no-conversation", false, "disable listening and replies")
	f.BoolVar(&runFlags.noJournal, "no-journal", false, "do not record visits")
}

func runInstallation(cmd *cobra.Command, args []string) error {
	cfg := loaded
	if runFlags.mock {
		cfg.UseMocks()
	}
	if runFlags.personality != "" {
		cfg.Personality = runFlags.personality
	}
	if runFlags.radar != "" {
		cfg.Radar.Source = runFlags.radar
	}
	if cmd.Flags().Changed("distance") {
		cfg.Radar.Source = app.RadarStatic
		cfg.Radar.DistanceMM = runFlags.distance
	}
	if runFlags.noDashboard {
		cfg.Dashboard.Enabled = false
	}
	if runFlags.noConversation {
		cfg.Conversation.Enabled = false
	}
	if runFlags.noJournal {
		cfg.Journal.Enabled = false
	}

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if err := a.Init(); err != nil {
		a.Shutdown()
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer a.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		return fmt.Errorf("runtime error: %w", err)
	}
	return nil
}
