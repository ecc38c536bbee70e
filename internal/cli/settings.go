package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/vidgrab/vidgrab/internal/errors"
	"github.com/vidgrab/vidgrab/internal/platforms"
	"github.com/vidgrab/vidgrab/internal/session"
)

// NewSettingsCommand shows and updates the persisted preferences.
func NewSettingsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show download preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs := session.LoadPreferences(cmd.Context(), app.Store)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "type:              %s\n", prefs.DefaultType)
			fmt.Fprintf(out, "quality:           %s\n", prefs.DefaultQuality)
			fmt.Fprintf(out, "format:            %s\n", prefs.DefaultFormat)
			fmt.Fprintf(out, "location:          %s\n", prefs.DownloadLocation)
			fmt.Fprintf(out, "auto-fetch-info:   %t\n", prefs.AutoFetchInfo)
			fmt.Fprintf(out, "notifications:     %t\n", prefs.NotificationsEnabled)
			fmt.Fprintf(out, "auto-clear:        %t (%d days)\n", prefs.AutoClearHistory, prefs.AutoClearDays)
			fmt.Fprintf(out, "max-concurrent:    %d\n", prefs.MaxConcurrentDownloads)
			return nil
		},
	}

	cmd.AddCommand(newSettingsSetCommand(app))
	return cmd
}

func newSettingsSetCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Update one preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			prefs := session.LoadPreferences(ctx, app.Store)

			key, value := args[0], args[1]
			switch key {
			case "type":
				if value != "video" && value != "audio" && value != "thumbnail" {
					return apperrors.ValidationError("type must be video, audio or thumbnail")
				}
				prefs.DefaultType = value
			case "quality":
				if !validQuality(value) {
					return apperrors.ValidationError("quality must be a pixel height or one of " +
						strings.Join(platforms.KnownQualities(), ", "))
				}
				prefs.DefaultQuality = value
			case "format":
				prefs.DefaultFormat = value
			case "location":
				prefs.DownloadLocation = value
			case "auto-fetch-info":
				b, err := strconv.ParseBool(value)
				if err != nil {
					return apperrors.ValidationError("auto-fetch-info must be true or false")
				}
				prefs.AutoFetchInfo = b
			case "notifications":
				b, err := strconv.ParseBool(value)
				if err != nil {
					return apperrors.ValidationError("notifications must be true or false")
				}
				prefs.NotificationsEnabled = b
			case "auto-clear":
				b, err := strconv.ParseBool(value)
				if err != nil {
					return apperrors.ValidationError("auto-clear must be true or false")
				}
				prefs.AutoClearHistory = b
			case "auto-clear-days":
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return apperrors.ValidationError("auto-clear-days must be a positive integer")
				}
				prefs.AutoClearDays = n
			case "max-concurrent":
				n, err := strconv.Atoi(value)
				if err != nil || n <= 0 {
					return apperrors.ValidationError("max-concurrent must be a positive integer")
				}
				prefs.MaxConcurrentDownloads = n
			default:
				return apperrors.ValidationError("unknown setting: " + key)
			}

			if err := session.SavePreferences(ctx, app.Store, prefs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, value)
			return nil
		},
	}
}

// validQuality accepts the known labels plus anything with a parseable pixel
// height, e.g. "1440p" or a bare "900".
func validQuality(value string) bool {
	for _, q := range platforms.KnownQualities() {
		if value == q {
			return true
		}
	}
	return strings.ContainsAny(value, "0123456789")
}
