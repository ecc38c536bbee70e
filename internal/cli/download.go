package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/session"
	"github.com/vidgrab/vidgrab/internal/tui"
)

// NewDownloadCommand starts a download and watches it to completion.
func NewDownloadCommand(app *App) *cobra.Command {
	var (
		mediaType string
		quality   string
		format    string
		detach    bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a video or audio track from a supported platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			opts := session.Options{
				MediaType: mediaType,
				Quality:   quality,
				Format:    format,
			}

			updates, unsubscribe := app.Manager.Subscribe()
			defer unsubscribe()

			jobID, err := app.Manager.Submit(ctx, args[0], opts)
			if err != nil {
				return err
			}

			if detach {
				// The start frame is sent asynchronously; exiting before it
				// goes out would leave a persisted job the server never saw.
				if err := app.Manager.WaitStarted(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "download started: %s\n", jobID)
				return nil
			}

			return watch(cmd, app, updates, plain)
		},
	}

	cmd.Flags().StringVarP(&mediaType, "type", "t", "", "media type: video, audio or thumbnail")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "quality label, e.g. 720p")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format, e.g. mp4")
	cmd.Flags().BoolVar(&detach, "detach", false, "start the download and exit without watching")
	cmd.Flags().BoolVar(&plain, "plain", false, "print progress lines instead of the interactive view")
	return cmd
}

// NewResumeCommand reattaches to a download left running by an earlier
// session.
func NewResumeCommand(app *App) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Reattach to an in-flight download",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			updates, unsubscribe := app.Manager.Subscribe()
			defer unsubscribe()

			jobID, err := app.Manager.Reconnect(ctx)
			if err != nil {
				if session.ErrNoActiveJob(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "no download to resume")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resuming download %s\n", jobID)

			return watch(cmd, app, updates, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "print progress lines instead of the interactive view")
	return cmd
}

// NewCancelCommand cancels the active download.
func NewCancelCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel the active download",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, active := app.Manager.Job()
			if !active {
				fmt.Fprintln(cmd.OutOrStdout(), "no active download")
				return nil
			}
			jobID := job.ID
			if len(args) == 1 {
				jobID = args[0]
			}
			if err := app.Manager.Cancel(cmd.Context(), jobID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled download %s\n", jobID)
			return nil
		},
	}
}

// watch follows the job to a terminal state and reports it.
func watch(cmd *cobra.Command, app *App, updates <-chan session.Job, plain bool) error {
	var (
		final session.Job
		err   error
	)
	if plain {
		final = watchPlain(cmd, updates)
	} else {
		final, err = tui.Run(updates, app)
		if err != nil {
			return err
		}
	}

	switch final.Status {
	case session.StatusCompleted, session.StatusIdle:
		return nil
	case session.StatusCancelled:
		fmt.Fprintln(cmd.OutOrStdout(), "download cancelled")
		return nil
	case session.StatusError:
		return apperrors.ServerReported(final.StatusMessage)
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "download still running (%s), resume with 'vidgrab resume'\n", final.Status)
		return nil
	}
}

// watchPlain prints one line per transition until the job settles. Suited to
// logs and pipes where the interactive view would garble the output.
func watchPlain(cmd *cobra.Command, updates <-chan session.Job) session.Job {
	out := cmd.OutOrStdout()
	var last session.Job
	for job := range updates {
		last = job
		line := fmt.Sprintf("%s %.1f%%", job.Status, job.Percent)
		if job.StatusMessage != "" {
			line += " " + job.StatusMessage
		}
		fmt.Fprintln(out, line)
		if job.Status.IsTerminal() || job.Status == session.StatusIdle {
			break
		}
	}
	return last
}
