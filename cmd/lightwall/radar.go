package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/hw"
	"github.com/teslashibe/go-lightwall/pkg/radar"
)

var radarFlags struct {
	count    int
	interval time.Duration
}

var radarCmd = &cobra.Command{
	Use:   "radar",
	Short: "Print live radar readings",
	Long: `Open the radar board from the hardware map and print each reading with
the engagement state it would produce. Useful for placing the sensor and
tuning the engaged and idle distances.

Examples:
  lightwall radar
  lightwall radar --count 20 --interval 100ms`,
	Args: cobra.NoArgs,
	RunE: watchRadar,
}

func init() {
	rootCmd.AddCommand(radarCmd)

	radarCmd.Flags().IntVar(&radarFlags.count, "count", 0, "stop after this many readings (0 runs until interrupted)")
	radarCmd.Flags().DurationVar(&radarFlags.interval, "interval", radar.DefaultPollInterval, "time between readings")
}

func watchRadar(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := hw.DefaultMap()
	if path := loaded.Hardware.Map; path != "" {
		var err error
		if m, err = hw.LoadMap(path); err != nil {
			return err
		}
	}
	radars := hw.Map(m.OfType(hw.TypeRadar))
	if len(radars) == 0 {
		return fmt.Errorf("no radar board in the hardware map")
	}

	boards, err := hw.Open(ctx, radars, hw.OpenConfig{
		Discover:  loaded.Hardware.Discover,
		BootDelay: loaded.Hardware.BootDelay,
		Logger:    log.Component("hw"),
	})
	if err != nil {
		return err
	}
	defer boards.Close()

	board, ok := boards.Radar()
	if !ok {
		return fmt.Errorf("radar board not found")
	}
	fmt.Printf("📡 Reading %s on %s (Ctrl+C to stop)\n", board.BoardName, board.Port)

	thresholds := loaded.Engagement.Thresholds()
	reader := radar.NewReader(board, radar.WithReaderLogger(log.Component("radar")))
	state := engagement.Idle
	var lastPresence time.Time

	for n := 0; radarFlags.count == 0 || n < radarFlags.count; n++ {
		reader.Poll()
		now := time.Now()
		reading, _ := reader.Latest()
		d, ok := reader.DistanceMM()
		if ok && d <= thresholds.IdleMM {
			lastPresence = now
		}
		state = thresholds.Next(d, ok, state, now, lastPresence)

		if ok {
			fmt.Printf("%s  %5dmm  x=%5d y=%5d angle=%4d speed=%4d  %s\n",
				now.Format("15:04:05.000"), d, reading.XMM, reading.YMM, reading.AngleDeg, reading.SpeedCMS,
				stateColor(state.String()).Sprint(state))
		} else {
			fmt.Printf("%s  %s  %s\n", now.Format("15:04:05.000"),
				color.New(color.FgHiBlack).Sprint("   no target"), stateColor(state.String()).Sprint(state))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(radarFlags.interval):
		}
	}

	failures, ignored := reader.Stats()
	fmt.Printf("\n%d failed reads, %d empty readings ignored\n", failures, ignored)
	return nil
}
