package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/platforms"
)

// NewHistoryCommand manages the download history ledger.
func NewHistoryCommand(app *App) *cobra.Command {
	var (
		all   bool
		local bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var entries []api.HistoryEntry
			if local {
				entries = app.Ledger.All(ctx)
			} else {
				entries = app.Ledger.Reconcile(ctx)
			}
			if !all && len(entries) > 5 {
				entries = entries[:5]
			}

			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no downloads yet")
				return nil
			}

			registry := platforms.DefaultRegistry()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTITLE\tPLATFORM\tQUALITY\tFORMAT\tID")
			for _, e := range entries {
				when := time.UnixMilli(e.Timestamp).Local().Format("2006-01-02 15:04")
				platform := ""
				if p := registry.Detect(e.URL); p != platforms.PlatformUnknown {
					platform = string(p)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", when, truncate(e.Title, 48), platform, e.Quality, e.Format, e.ID)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "show the full ledger instead of the 5 most recent")
	cmd.Flags().BoolVar(&local, "local", false, "show the local cache without contacting the server")

	cmd.AddCommand(newHistoryDeleteCommand(app), newHistoryClearCommand(app))
	return cmd
}

func newHistoryDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Ledger.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "entry deleted")
			return nil
		},
	}
}

func newHistoryClearCommand(app *App) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			if err := app.Ledger.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the clear")
	return cmd
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
