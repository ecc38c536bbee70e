package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vidgrab/vidgrab/internal/convert"
)

// NewConvertCommand runs the upload-and-transcode workflow.
func NewConvertCommand(app *App) *cobra.Command {
	var quality string

	cmd := &cobra.Command{
		Use:   "convert <file> <format>",
		Short: "Convert a local media file to another format",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.Convert.Run(cmd.Context(), convert.Request{
				Path:         args[0],
				OutputFormat: args[1],
				Quality:      quality,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "converted: %s (%d bytes)\n", result.Location, result.Size)
			return nil
		},
	}

	cmd.Flags().StringVarP(&quality, "quality", "q", "", "target quality label, e.g. 720p")

	cmd.AddCommand(newConvertListCommand(app), newConvertRemoveCommand(app))
	return cmd
}

func newConvertListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "uploads",
		Short: "List files uploaded for conversion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			videos, err := app.Convert.Uploads(cmd.Context())
			if err != nil {
				return err
			}
			if len(videos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no uploaded files")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tSIZE")
			for _, v := range videos {
				fmt.Fprintf(w, "%s\t%s\t%d\n", v.ID, v.Filename, v.Size)
			}
			return w.Flush()
		},
	}
}

func newConvertRemoveCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Convert.RemoveUpload(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "upload removed")
			return nil
		},
	}
}
