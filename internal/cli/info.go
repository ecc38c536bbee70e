package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewInfoCommand fetches the metadata preview for a URL.
func NewInfoCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <url>",
		Short: "Show title, channel and duration for a media URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := app.Preview.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "Title:    %s\n", info.Title)
			fmt.Fprintf(out, "Channel:  %s\n", info.ChannelName())
			fmt.Fprintf(out, "Platform: %s\n", info.Platform)
			if info.Duration > 0 {
				d := time.Duration(info.Duration * float64(time.Second)).Round(time.Second)
				fmt.Fprintf(out, "Duration: %s\n", d)
			}
			if info.ViewCount > 0 {
				fmt.Fprintf(out, "Views:    %d\n", info.ViewCount)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw metadata as JSON")
	return cmd
}
