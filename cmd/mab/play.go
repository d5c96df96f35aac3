package main

import (
	"context"

	"github.com/spf13/cobra"
)

func playMediaCommand() *cobra.Command {
	var mediaType string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "play-media [player] <media-id>",
		Short: "Play a media item",
		Long: `Play a media item on a player. The media id may be an encoded
media URI (mass://...), a provider/item pair, a library playlist or
radio name, or a raw URI.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			mediaID := args[0]
			if len(args) == 2 {
				selector = args[0]
				mediaID = args[1]
			}
			return app.service.PlayMedia(ctx, selector, mediaID, mediaType, enqueue)
		},
	}

	cmd.Flags().StringVar(&mediaType, "type", "", "media type hint (playlist|album|artist|track|radio)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "add to queue instead of replacing playback")

	return cmd
}

func playURICommand() *cobra.Command {
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "play-uri [player] <uri>",
		Short: "Play a raw URI",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			uri := args[0]
			if len(args) == 2 {
				selector = args[0]
				uri = args[1]
			}
			return app.service.PlayURI(ctx, selector, uri, enqueue)
		},
	}

	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "add to queue instead of replacing playback")

	return cmd
}

func alertCommand() *cobra.Command {
	var announce bool
	var volume int

	cmd := &cobra.Command{
		Use:   "alert [player] <url>",
		Short: "Play an alert sound",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			selector := ""
			url := args[0]
			if len(args) == 2 {
				selector = args[0]
				url = args[1]
			}
			return app.service.PlayAlert(ctx, selector, url, announce, volume)
		},
	}

	cmd.Flags().BoolVar(&announce, "announce", false, "duck playback and announce")
	cmd.Flags().IntVar(&volume, "volume", 0, "alert volume (0 keeps current)")

	return cmd
}
