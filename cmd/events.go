/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quillpress/apiserver/config"
	"github.com/quillpress/apiserver/internal/logging"
	"github.com/quillpress/apiserver/internal/mq"
	"github.com/quillpress/apiserver/internal/services"
)

// eventsCmd groups domain event tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail [channel...]",
	Short: "Subscribe to event channels and log every event",
	Long: `Subscribes to the given channels (default: users, posts, categories)
and logs every event until interrupted. Usage:

	quillpress events tail posts
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		channels := args
		if len(channels) == 0 {
			channels = services.Channels
		}

		group, ctx := errgroup.WithContext(ctx)
		for _, channel := range channels {
			group.Go(func() error {
				return queue.Subscribe(ctx, channel, func(ctx context.Context, msg mq.Message) error {
					var event services.Event
					if err := json.Unmarshal(msg.Data, &event); err != nil {
						logger.Warn().Err(err).Str("channel", channel).Str("id", msg.ID).Msg("undecodable event")
						return nil
					}
					logger.Info().
						Str("channel", channel).
						Str("id", event.ID).
						Str("type", event.Type).
						Time("occurred_at", event.OccurredAt).
						RawJSON("data", event.Data).
						Msg("event")
					return nil
				})
			})
		}

		logger.Info().Strs("channels", channels).Msg("tailing events")
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
