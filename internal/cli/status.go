package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vidgrab/vidgrab/internal/metrics"
	"github.com/vidgrab/vidgrab/internal/platforms"
	"github.com/vidgrab/vidgrab/internal/session"
)

// NewStatusCommand reports backend reachability, the active job and
// client-side counters.
func NewStatusCommand(app *App) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend health and the active download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			report := app.Health.Check(ctx)
			job, active := app.Manager.Job()
			snap := metrics.Default().Collect()
			supported := platforms.DefaultRegistry().SupportedPlatforms()

			if asJSON {
				payload := map[string]any{
					"health":    report,
					"metrics":   snap,
					"platforms": supported,
				}
				if active {
					payload["active_job"] = job
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(payload)
			}

			fmt.Fprintf(out, "overall: %s\n", report.Status)
			names := make([]string, 0, len(report.Components))
			for name := range report.Components {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				c := report.Components[name]
				line := fmt.Sprintf("  %-10s %s", name, c.Status)
				if c.Message != "" {
					line += "  (" + c.Message + ")"
				}
				fmt.Fprintln(out, line)
			}

			labels := make([]string, len(supported))
			for i, p := range supported {
				labels[i] = string(p)
			}
			fmt.Fprintf(out, "platforms: %s\n", strings.Join(labels, ", "))

			fmt.Fprintln(out)
			if active {
				fmt.Fprintf(out, "active download: %s [%s] %.1f%%\n", job.ID, job.Status, job.Percent)
				if job.StatusMessage != "" {
					fmt.Fprintf(out, "  %s\n", job.StatusMessage)
				}
			} else if job.Status == session.StatusIdle {
				fmt.Fprintln(out, "no active download")
			}

			if len(snap.Counters) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "counters (uptime %s):\n", snap.Uptime.Round(time.Second))
				keys := make([]string, 0, len(snap.Counters))
				for k := range snap.Counters {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintf(out, "  %-24s %d\n", strings.ReplaceAll(k, "_", "-"), snap.Counters[k])
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}
