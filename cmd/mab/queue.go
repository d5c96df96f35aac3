package main

import (
	"context"

	"github.com/spf13/cobra"
)

func shuffleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shuffle [player] <on|off>",
		Short: "Set queue shuffle",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			arg := args[0]
			if len(args) == 2 {
				selector = args[0]
				arg = args[1]
			}
			switch arg {
			case "on":
				return app.service.SetShuffle(ctx, selector, true)
			case "off":
				return app.service.SetShuffle(ctx, selector, false)
			}
			return cmd.Usage()
		},
	}
	return cmd
}

func clearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [player]",
		Short: "Clear the play queue",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.ClearQueue(ctx, selectorArg(args))
		},
	}
}
