package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/config"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store/mongo"
)

// migrateCmd ensures the Mongo collections carry their indices (unique keys,
// TTLs). There is no schema to version the way a relational migrator would —
// Mongo collections are created implicitly — so this is idempotent and safe
// to run on every deploy.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Ensure MongoDB indices (unique keys, TTL expiry) are in place",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx := context.Background()
			mongoStore, err := mongo.Connect(ctx, cfg.Database.URI, cfg.Database.Name)
			if err != nil {
				return fmt.Errorf("connect to mongodb: %w", err)
			}
			defer mongoStore.Close(context.Background())

			if err := mongoStore.EnsureIndices(ctx); err != nil {
				return fmt.Errorf("ensure indices: %w", err)
			}
			slog.Info("indices ensured")
			return nil
		},
	}
}
