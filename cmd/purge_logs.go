package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/config"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/janitor"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store/mongo"
)

func purgeLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-logs",
		Short: "Delete every row from the Logs collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJanitorOp(func(ctx context.Context, j *janitor.Janitor) (int64, error) {
				return j.PurgeLogs(ctx)
			})
		},
	}
}

func emergencyPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "emergency-purge",
		Short: "Wipe ephemeral/derived collections, preserving config and correspondence state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJanitorOp(func(ctx context.Context, j *janitor.Janitor) (int64, error) {
				return j.EmergencyPurge(ctx)
			})
		},
	}
}

func runJanitorOp(op func(context.Context, *janitor.Janitor) (int64, error)) error {
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

	j := janitor.New(mongoStore)
	n, err := op(ctx, j)
	if err != nil {
		slog.Error("janitor operation failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("done: %d rows affected\n", n)
	return nil
}
