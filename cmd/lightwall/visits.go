package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/pkg/journal"
)

var visitsFlags struct {
	limit int
	db    string
}

var visitsCmd = &cobra.Command{
	Use:   "visits [visit-id]",
	Short: "List recorded visits or show one conversation",
	Long: `List recent visits, newest first, or show the conversation and state
changes of one visit.

Visits are read from a running installation's dashboard, or straight from
the journal database with --db.

Examples:
  lightwall visits
  lightwall visits --limit 5
  lightwall visits --db ~/.lightwall/journal.db 5f0c2a4e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: showVisits,
}

func init() {
	rootCmd.AddCommand(visitsCmd)

	visitsCmd.Flags().IntVar(&visitsFlags.limit, "limit", journal.DefaultLimit, "number of visits to list")
	visitsCmd.Flags().StringVar(&visitsFlags.db, "db", "", "read the journal database directly instead of the dashboard")
}

// visitDetail is the body of GET /api/visits/:id.
type visitDetail struct {
	Visit       journal.Visit        `json:"visit"`
	Turns       []journal.Turn       `json:"turns"`
	Transitions []journal.Transition `json:"transitions"`
}

func showVisits(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if visitsFlags.db != "" {
		return showVisitsFromDB(ctx, visitsFlags.db, args)
	}

	if len(args) == 1 {
		var d visitDetail
		if err := getJSON(ctx, "/api/visits/"+args[0], &d); err != nil {
			return err
		}
		printVisit(d)
		return nil
	}

	var visits []journal.Visit
	if err := getJSON(ctx, fmt.Sprintf("/api/visits?limit=%d", visitsFlags.limit), &visits); err != nil {
		return err
	}
	printVisits(visits)
	return nil
}

func showVisitsFromDB(ctx context.Context, path string, args []string) error {
	j, err := journal.Open(path)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()

	if len(args) == 1 {
		var d visitDetail
		if d.Visit, err = j.Visit(ctx, args[0]); err != nil {
			return err
		}
		if d.Turns, err = j.Turns(ctx, args[0]); err != nil {
			return err
		}
		if d.Transitions, err = j.Transitions(ctx, args[0]); err != nil {
			return err
		}
		printVisit(d)
		return nil
	}

	visits, err := j.Visits(ctx, visitsFlags.limit)
	if err != nil {
		return err
	}
	printVisits(visits)

	stats, err := j.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\n%d visits, %d transitions, %d turns recorded\n", stats.Visits, stats.Transitions, stats.Turns)
	return nil
}

func printVisits(visits []journal.Visit) {
	if len(visits) == 0 {
		fmt.Println("No visits recorded.")
		return
	}

	now := time.Now()
	fmt.Printf("%-36s %-19s %-9s %-8s %-8s %s\n", "VISIT", "STARTED", "DURATION", "ENGAGED", "CLOSEST", "TURNS")
	fmt.Println(strings.Repeat("-", 92))
	for _, v := range visits {
		duration := v.Duration(now).Round(time.Second).String()
		if v.Open() {
			duration = color.New(color.FgGreen).Sprint("ongoing")
		}
		closest := "-"
		if v.ClosestMM > 0 {
			closest = fmt.Sprintf("%dmm", v.ClosestMM)
		}
		fmt.Printf("%-36s %-19s %-9s %-8s %-8s %d\n",
			v.ID,
			v.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			yesNo(v.Engaged),
			closest,
			v.Turns,
		)
	}
}

func printVisit(d visitDetail) {
	v := d.Visit
	fmt.Printf("📓 Visit %s\n", color.New(color.Bold).Sprint(v.ID))
	fmt.Printf("   started %s, lasted %s", v.StartedAt.Local().Format("2006-01-02 15:04:05"), v.Duration(time.Now()).Round(time.Second))
	if v.ClosestMM > 0 {
		fmt.Printf(", closest %dmm", v.ClosestMM)
	}
	fmt.Println()

	if len(d.Transitions) > 0 {
		fmt.Println()
		for _, tr := range d.Transitions {
			fmt.Printf("   %s  %s → %s (%dmm)\n", tr.At.Local().Format("15:04:05"), tr.From, stateColor(tr.To).Sprint(tr.To), tr.DistanceMM)
		}
	}

	if len(d.Turns) == 0 {
		fmt.Println("\n   No conversation.")
		return
	}
	fmt.Println()
	for _, t := range d.Turns {
		speaker := color.New(color.FgCyan).Sprint("visitor")
		if t.Role != "user" {
			speaker = color.New(color.FgMagenta).Sprint("wall   ")
		}
		fmt.Printf("   %s  %s  %s\n", t.At.Local().Format("15:04:05"), speaker, t.Content)
	}
}
