/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillpress/apiserver/config"
	"github.com/quillpress/apiserver/internal/db"
	"github.com/quillpress/apiserver/internal/logging"
)

// migrateCmd represents the migrate command.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Prepare the document store",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create the unique and TTL indexes the API relies on",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.Log)

		client, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer func() {
			_ = client.Disconnect(context.Background())
		}()

		if err := db.EnsureIndexes(cmd.Context(), db.Database(client, cfg)); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		logger.Info().Str("database", cfg.Mongo.Database).Msg("indexes ensured")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
}
