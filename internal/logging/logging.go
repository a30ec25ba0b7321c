// Package logging sets up structured logging the way the teacher's
// cmd/gateway.go does: a single slog.TextHandler installed as the default
// logger, level gated by a verbose flag.
package logging

import (
	"log/slog"
	"os"
)

// Setup installs a text-handler slog.Logger as the process default.
func Setup(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))
}
