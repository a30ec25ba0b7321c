// Package janitor wires the Data Janitor (spec §6 "maintenance scripts"):
// the on-demand purge-logs and emergency-purge operations the CLI exposes.
// Routine expiry itself is the store's TTL indices' job (internal/store/mongo
// .EnsureIndices); this package only covers the operator-triggered bulk
// purges.
package janitor

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
)

// Janitor exposes purge operations over a store.Maintenance backend.
type Janitor struct {
	Maintenance store.Maintenance
}

// New constructs a Janitor.
func New(maintenance store.Maintenance) *Janitor {
	return &Janitor{Maintenance: maintenance}
}

// PurgeLogs removes every row from the Logs collection. Exit non-zero on
// error is the caller's (cmd/purge_logs.go) responsibility (spec §6).
func (j *Janitor) PurgeLogs(ctx context.Context) (int64, error) {
	n, err := j.Maintenance.PurgeLogs(ctx)
	if err != nil {
		slog.Error("purge logs failed", "error", err)
		return n, err
	}
	slog.Info("purged logs", "count", n)
	return n, nil
}

// EmergencyPurge removes ephemeral/derived collections while preserving
// configuration and correspondence state (spec §6).
func (j *Janitor) EmergencyPurge(ctx context.Context) (int64, error) {
	n, err := j.Maintenance.EmergencyPurge(ctx)
	if err != nil {
		slog.Error("emergency purge failed", "error", err)
		return n, err
	}
	slog.Warn("emergency purge completed", "count", n)
	return n, nil
}
