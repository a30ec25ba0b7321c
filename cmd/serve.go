package cmd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/config"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/engine"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/httpapi"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/logging"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store/mongo"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the replication engine (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logging.Setup(verbose)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceOut := io.Discard
	if verbose {
		traceOut = os.Stdout
	}
	shutdownTracing, err := tracing.Setup(ctx, "goclaw-mirror", traceOut)
	if err != nil {
		slog.Warn("tracing setup failed, continuing without spans", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	mongoStore, err := mongo.Connect(ctx, cfg.Database.URI, cfg.Database.Name)
	if err != nil {
		slog.Error("failed to connect to mongodb", "error", err)
		os.Exit(1)
	}
	defer mongoStore.Close(context.Background())

	if err := mongoStore.EnsureIndices(ctx); err != nil {
		slog.Warn("ensure indices failed", "error", err)
	}

	eng, err := engine.New(ctx, cfg, mongoStore.Stores())
	if err != nil {
		slog.Error("failed to build replication engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(ctx); err != nil {
		slog.Error("failed to start replication engine", "error", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: httpapi.New(eng).Handler(),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("goclaw-mirror started", "version", Version, "pairs", len(cfg.Pairs), "addr", cfg.HTTP.Addr)

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("status server shutdown failed", "error", err)
	}

	eng.Stop(context.Background())
	cancel()
}
