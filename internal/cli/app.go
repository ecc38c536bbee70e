// Package cli wires the cobra command tree. Commands receive their
// dependencies through constructors so tests can substitute fakes.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/convert"
	"github.com/vidgrab/vidgrab/internal/health"
	"github.com/vidgrab/vidgrab/internal/history"
	"github.com/vidgrab/vidgrab/internal/logger"
	"github.com/vidgrab/vidgrab/internal/preview"
	"github.com/vidgrab/vidgrab/internal/session"
	"github.com/vidgrab/vidgrab/internal/store"
)

// App bundles the services the commands operate on.
type App struct {
	Cfg     *config.Config
	Store   store.Store
	API     *api.Client
	Manager *session.Manager
	Ledger  *history.Ledger
	Preview *preview.Service
	Convert *convert.Service
	Health  *health.Checker
	Log     *logger.Logger
}

// RequestCancel satisfies the tui.Canceller interface.
func (a *App) RequestCancel(jobID string) {
	go a.Manager.Cancel(context.Background(), jobID)
}

// NewRootCommand builds the full command tree.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "vidgrab",
		Short:         "Download and convert videos through the vidgrab backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		NewDownloadCommand(app),
		NewResumeCommand(app),
		NewCancelCommand(app),
		NewHistoryCommand(app),
		NewInfoCommand(app),
		NewConvertCommand(app),
		NewSettingsCommand(app),
		NewStatusCommand(app),
	)
	return root
}

// Execute runs the CLI and returns the exit error, if any.
func Execute(app *App, args []string) error {
	root := NewRootCommand(app)
	root.SetArgs(args)
	return root.Execute()
}
