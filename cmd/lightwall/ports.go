package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/hw"
)

var probePorts bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and the boards behind them",
	Long: `List the serial ports on this machine. With --probe, every candidate
port is asked for its board NAME and matched against the hardware map.

Examples:
  lightwall ports
  lightwall ports --probe`,
	Args: cobra.NoArgs,
	RunE: listPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)

	portsCmd.Flags().BoolVar(&probePorts, "probe", false, "open candidate ports and identify the boards")
}

func listPorts(cmd *cobra.Command, args []string) error {
	ports, err := hw.ListPorts()
	if err != nil {
		return fmt.Errorf("listing ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return nil
	}
	fmt.Println("🔌 Serial ports:")
	for _, p := range ports {
		fmt.Printf("   %s\n", p)
	}

	if !probePorts {
		return nil
	}

	m := hw.DefaultMap()
	if path := loaded.Hardware.Map; path != "" {
		if m, err = hw.LoadMap(path); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("\n🔍 Probing...")
	boards, err := hw.Open(ctx, m, hw.OpenConfig{
		Discover:  true,
		BootDelay: loaded.Hardware.BootDelay,
		Logger:    log.Component("hw"),
	})
	if err != nil {
		return err
	}
	defer boards.Close()

	names := make([]string, 0, len(m))
	for _, e := range m {
		names = append(names, e.BoardName)
	}
	sort.Strings(names)

	fmt.Println()
	for _, name := range names {
		b, ok := boards.Get(name)
		if !ok {
			fmt.Printf("   %s %-12s %s\n", color.New(color.FgRed).Sprint("✗"), name, color.New(color.FgHiBlack).Sprint("not found"))
			continue
		}
		fmt.Printf("   %s %-12s %-8s %s\n", color.New(color.FgGreen).Sprint("✓"), name, b.Type, b.Port)
	}
	return nil
}
