package main

import (
	"context"

	"github.com/spf13/cobra"
)

func controlsCommand() *cobra.Command {
	var all bool
	var node string

	cmd := &cobra.Command{
		Use:   "controls",
		Short: "List player control candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.ControlsList(ctx, node, all)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include disabled candidates")
	cmd.Flags().StringVar(&node, "node", "", "controls node selector")

	return cmd
}
