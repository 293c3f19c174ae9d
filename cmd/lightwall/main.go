// Lightwall drives the interactive light wall: it watches the radar for
// visitors, animates the LEDs and motors, and talks with whoever stands
// in front of it.
//
// Usage:
//
//	lightwall run                 # run the installation
//	lightwall run --mock          # run without hardware or backends
//	lightwall status --watch      # follow a running installation
//	lightwall say "hello there"   # speak through the wall
package main

import (
	"os"

	"github.com/fatih/color"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
