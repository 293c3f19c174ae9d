package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-lightwall/pkg/web"
)

var sayTimeout time.Duration

var sayCmd = &cobra.Command{
	Use:   "say <text>",
	Short: "Speak a phrase through a running installation",
	Long: `Speak a phrase through a running installation's voice. The phrase
waits for anything the wall is already saying and appears in the
dashboard's conversation feed.

Example:
  lightwall say "The gallery closes in ten minutes."`,
	Args: cobra.MinimumNArgs(1),
	RunE: say,
}

func init() {
	rootCmd.AddCommand(sayCmd)

	sayCmd.Flags().DurationVar(&sayTimeout, "timeout", 30*time.Second, "how long to wait for the phrase to be spoken")
}

func say(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sayTimeout)
	defer cancel()

	text := strings.Join(args, " ")
	var resp struct {
		Spoken string `json:"spoken"`
	}
	if err := postJSON(ctx, "/api/say", web.SayRequest{Text: text}, &resp); err != nil {
		return err
	}
	fmt.Printf("🗣️  %s\n", resp.Spoken)
	return nil
}
