package main

import (
	"context"

	"github.com/spf13/cobra"
)

func playCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "play [player]",
		Short: "Start playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Play(ctx, selectorArg(args))
		},
	}
}

func pauseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pause [player]",
		Short: "Pause playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Pause(ctx, selectorArg(args))
		},
	}
}

func toggleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [player]",
		Short: "Toggle playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Toggle(ctx, selectorArg(args))
		},
	}
}

func stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [player]",
		Short: "Stop playback",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Stop(ctx, selectorArg(args))
		},
	}
}

func nextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "next [player]",
		Short: "Next track",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Next(ctx, selectorArg(args))
		},
	}
}

func prevCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prev [player]",
		Short: "Previous track",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			return app.service.Previous(ctx, selectorArg(args))
		},
	}
}

func powerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "power [player] <on|off>",
		Short: "Power a player on or off",
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
				return app.service.Power(ctx, selector, true)
			case "off":
				return app.service.Power(ctx, selector, false)
			}
			return cmd.Usage()
		},
	}
	return cmd
}

func selectorArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}
