package main

import (
	"context"

	"github.com/spf13/cobra"
)

func browseCommand() *cobra.Command {
	var library string

	cmd := &cobra.Command{
		Use:   "browse [uri]",
		Short: "Browse the media library",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			uri := ""
			if len(args) == 1 {
				uri = args[0]
			}
			result, err := app.service.Browse(ctx, library, uri)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVar(&library, "library", "", "library node selector")

	return cmd
}
