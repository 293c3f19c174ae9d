package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/web"
)

var statusFlags struct {
	watch    bool
	interval time.Duration
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running installation",
	Long: `Show the state of a running installation through its dashboard.

Examples:
  lightwall status
  lightwall status --watch --interval 500ms
  lightwall status --url http://wall.local:8181`,
	Args: cobra.NoArgs,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusFlags.watch, "watch", false, "keep refreshing until interrupted")
	statusCmd.Flags().DurationVar(&statusFlags.interval, "interval", time.Second, "refresh interval with --watch")
}

func showStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for {
		var st web.Status
		if err := getJSON(ctx, "/api/status", &st); err != nil {
			return err
		}
		printStatus(st)

		if !statusFlags.watch {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(statusFlags.interval):
			fmt.Println()
		}
	}
}

func printStatus(st web.Status) {
	bold := color.New(color.Bold)

	fmt.Printf("💡 State:       %s", stateColor(st.State).Sprint(strings.ToUpper(st.State)))
	if !st.Since.IsZero() {
		fmt.Printf(" for %s", time.Since(st.Since).Round(time.Second))
	}
	fmt.Println()

	if st.DistanceMM > 0 {
		fmt.Printf("📏 Distance:    %d mm\n", st.DistanceMM)
	} else {
		fmt.Printf("📏 Distance:    %s\n", color.New(color.FgHiBlack).Sprint("no reading"))
	}
	if len(st.Sequences) > 0 {
		fmt.Printf("🎞️  Sequences:   %s\n", strings.Join(st.Sequences, ", "))
	}
	fmt.Printf("🎤 Listening:   %s   🗣️  Speaking: %s\n", yesNo(st.Listening), yesNo(st.Speaking))
	if st.Personality != "" {
		fmt.Printf("🎭 Personality: %s\n", st.Personality)
	}
	if st.Visit != "" {
		fmt.Printf("📓 Visit:       %s\n", st.Visit)
	}
	if s := st.Session; s != nil {
		fmt.Printf("🧠 Turns:       %d (queued %d, dropped %d)\n", s.Turns, s.Queued, s.Dropped)
	}
	if l := st.Latency; l != nil && l.Completed {
		fmt.Printf("⏱️  Last turn:   %s (transcript %s, reply %s)\n",
			bold.Sprint(l.TotalLatency.Round(time.Millisecond)),
			l.TranscriptLatency.Round(time.Millisecond),
			l.ReplyLatency.Round(time.Millisecond))
	}
	if st.Uptime != "" {
		fmt.Printf("🕐 Uptime:      %s\n", st.Uptime)
	}
}

func stateColor(state string) *color.Color {
	s, _ := engagement.ParseState(state)
	switch s {
	case engagement.Approaching:
		return color.New(color.FgYellow, color.Bold)
	case engagement.Engaged:
		return color.New(color.FgGreen, color.Bold)
	case engagement.Leaving:
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgHiBlack, color.Bold)
	}
}

func yesNo(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("yes")
	}
	return color.New(color.FgHiBlack).Sprint("no")
}
