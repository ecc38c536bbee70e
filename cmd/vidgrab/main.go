package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/cli"
	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/convert"
	"github.com/vidgrab/vidgrab/internal/delivery"
	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/health"
	"github.com/vidgrab/vidgrab/internal/history"
	"github.com/vidgrab/vidgrab/internal/logger"
	"github.com/vidgrab/vidgrab/internal/preview"
	"github.com/vidgrab/vidgrab/internal/session"
	"github.com/vidgrab/vidgrab/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	if level := os.Getenv("VIDGRAB_LOG_LEVEL"); level != "" {
		logger.SetDefault(logger.New(os.Stderr, logger.ParseLevel(level), ""))
	}
	log := logger.Default().WithComponent("main")

	sessionStore, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer sessionStore.Close()

	apiClient := api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)

	sink, err := delivery.OpenSink(cfg)
	if err != nil {
		return fmt.Errorf("failed to open delivery sink: %w", err)
	}
	deliverer := delivery.NewService(apiClient, sink)

	ledger := history.NewLedger(sessionStore, apiClient, nil)
	manager := session.NewManager(cfg, sessionStore, apiClient, deliverer, ledger, nil)

	checker := health.NewChecker(cfg.RequestTimeout)
	checker.Register("backend", func(ctx context.Context) error {
		_, err := apiClient.GetStatus(ctx)
		return err
	})
	checker.Register("store", func(ctx context.Context) error {
		var probe session.Preferences
		err := sessionStore.Get(ctx, store.KeyPreferences, &probe)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	})

	app := &cli.App{
		Cfg:     cfg,
		Store:   sessionStore,
		API:     apiClient,
		Manager: manager,
		Ledger:  ledger,
		Preview: preview.NewService(apiClient, sessionStore),
		Convert: convert.NewService(apiClient, deliverer),
		Health:  checker,
		Log:     log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = apperrors.EnsureSessionID(ctx)

	root := cli.NewRootCommand(app)
	root.SetArgs(os.Args[1:])
	return root.ExecuteContext(ctx)
}
