/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/chatify/apiserver/config"
	"github.com/chatify/apiserver/internal/moderation"
	"github.com/chatify/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd tails moderation events from the configured queue.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Log moderation events published by the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		slog.Info("Listening for moderation events", "topic", cfg.MQ.Topic)
		err = queue.Subscribe(ctx, cfg.MQ.Topic, func(_ context.Context, msg mq.Message) error {
			var event moderation.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				slog.Warn("Skipping malformed event", "id", msg.ID, "error", err)
				return nil
			}
			slog.Info("Post moderated",
				"post_id", event.PostID,
				"author_id", event.AuthorID,
				"outcome", event.Outcome,
				"flag", event.IsFlagged.String(),
				"moderation_error", event.ModerationError,
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("subscribe: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
