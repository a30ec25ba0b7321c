// Package recovery implements the Auto-Recovery State Machine (spec §4.4):
// retrying a correspondence the pipeline could not resolve, with backoff,
// before giving up and logging a failure for a human to act on.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/correspondence"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

// Resyncer is the subset of topology.Sync the state machine drives: a
// forced full sync (attempt1/attempt3) and the backfill that follows a
// successful recovery. A narrow interface here keeps recovery decoupled
// from topology's own concerns (monitor loop, adaptive interval, ...).
type Resyncer interface {
	FullSync(ctx context.Context) error
	Backfill(ctx context.Context, sourceChannelID, mirrorChannelID string)
}

const (
	maxAttempts         = 3
	recentlyRecoveredFor = 5 * time.Minute
	attempt3ExtraDelay  = 2 * time.Second
	backfillLimit       = 50
)

var backoffs = []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}

type key struct {
	sourceChannelID string
	mirrorServerID  string
}

// Machine is the (sourceChannelId, mirrorServerId)-keyed recovery state
// machine. One instance serves every replication domain it is wired into;
// callers distinguish domains via the mirrorServerID component of the key.
type Machine struct {
	Corr     *correspondence.Manager
	Observe  transport.Observe
	Resync   Resyncer
	Channels store.ChannelStore
	Logs     store.LogStore

	SourceServerID string

	mu        sync.Mutex
	inFlight  map[key]struct{}
	recovered map[key]time.Time

	now func() time.Time
}

// New constructs a Machine for one source server. Resync, Observe, Corr,
// Channels and Logs must be set by the caller before TriggerRecovery is
// used; they are public fields so the engine can wire them after
// construction (spec §9 "Ambient per-server state" — no package globals).
func New(sourceServerID string) *Machine {
	return &Machine{
		SourceServerID: sourceServerID,
		inFlight:       make(map[key]struct{}),
		recovered:      make(map[key]time.Time),
		now:            time.Now,
	}
}

// TriggerRecovery satisfies pipeline.Recovery. It is a no-op if a recovery
// for this key is already in flight, or completed successfully within the
// last 5 minutes (spec §4.4 "recently recovered" dedupe set).
func (m *Machine) TriggerRecovery(ctx context.Context, sourceChannelID, mirrorServerID string) {
	k := key{sourceChannelID: sourceChannelID, mirrorServerID: mirrorServerID}

	m.mu.Lock()
	if _, busy := m.inFlight[k]; busy {
		m.mu.Unlock()
		return
	}
	if at, ok := m.recovered[k]; ok && m.now().Sub(at) < recentlyRecoveredFor {
		m.mu.Unlock()
		return
	}
	m.inFlight[k] = struct{}{}
	m.mu.Unlock()

	go m.run(ctx, k)
}

func (m *Machine) run(ctx context.Context, k key) {
	defer func() {
		m.mu.Lock()
		delete(m.inFlight, k)
		m.mu.Unlock()
	}()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoffs[attempt-1]):
		}

		mirrorChannelID, ok, err := m.attempt(ctx, k, attempt)
		if err != nil {
			slog.Warn("recovery attempt errored", "source_channel_id", k.sourceChannelID, "mirror_server_id", k.mirrorServerID, "attempt", attempt, "error", err)
			continue
		}
		if ok {
			m.succeed(ctx, k, mirrorChannelID)
			return
		}
		if m.isBlacklisted(ctx, k) {
			// attempt2 already wrote the blacklist + failure log.
			return
		}
	}

	m.fail(ctx, k, fmt.Errorf("exhausted %d recovery attempts", maxAttempts))
}

// attempt runs one numbered recovery step and reports whether it resolved
// the key to a live mirror channel.
func (m *Machine) attempt(ctx context.Context, k key, attempt int) (mirrorChannelID string, ok bool, err error) {
	switch attempt {
	case 1:
		return m.resyncAndResolve(ctx, k)
	case 2:
		return m.createManually(ctx, k)
	case 3:
		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(attempt3ExtraDelay):
		}
		return m.resyncAndResolve(ctx, k)
	default:
		return "", false, fmt.Errorf("unknown recovery attempt %d", attempt)
	}
}

// resyncAndResolve implements attempt1/attempt3: force a full topology
// sync, then re-resolve and verify the mapping actually points at a live
// mirror channel rather than trusting a stale/pending one.
func (m *Machine) resyncAndResolve(ctx context.Context, k key) (string, bool, error) {
	if m.Resync != nil {
		if err := m.Resync.FullSync(ctx); err != nil {
			return "", false, fmt.Errorf("forced full sync: %w", err)
		}
	}
	mirrorChannelID, ok, err := m.Corr.ResolveChannelForMirrorServer(ctx, k.sourceChannelID, k.mirrorServerID)
	if err != nil {
		return "", false, err
	}
	return mirrorChannelID, ok, nil
}

// createManually implements attempt2: test whether the source channel is
// still accessible before creating the mirror channel by hand. A 403
// blacklists the key instead of retrying further (spec §4.4 attempt2).
func (m *Machine) createManually(ctx context.Context, k key) (string, bool, error) {
	accessible, status, err := m.Observe.TestChannelAccess(ctx, k.sourceChannelID)
	if err != nil {
		return "", false, fmt.Errorf("test channel access: %w", err)
	}
	if !accessible {
		if status == 403 {
			m.blacklist(ctx, k)
			return "", false, nil
		}
		return "", false, fmt.Errorf("source channel inaccessible, status %d", status)
	}

	info, err := m.Observe.FetchThreadByID(ctx, k.sourceChannelID)
	if err != nil {
		return "", false, fmt.Errorf("fetch source channel info: %w", err)
	}
	if info == nil {
		return "", false, fmt.Errorf("source channel %s no longer exists", k.sourceChannelID)
	}

	mirrorChannelID, err := m.Corr.AutoCreateChannel(ctx, *info, m.SourceServerID, k.mirrorServerID)
	if err != nil {
		return "", false, fmt.Errorf("create mirror channel manually: %w", err)
	}
	return mirrorChannelID, mirrorChannelID != "", nil
}

func (m *Machine) isBlacklisted(ctx context.Context, k key) bool {
	if m.Channels == nil {
		return false
	}
	mapping, err := m.Channels.Find(ctx, k.sourceChannelID, m.SourceServerID)
	if err != nil || mapping == nil {
		return false
	}
	return mapping.Blacklisted
}

func (m *Machine) blacklist(ctx context.Context, k key) {
	until := m.now().Add(24 * time.Hour)
	if m.Channels != nil {
		if err := m.Channels.MarkBlacklisted(ctx, k.sourceChannelID, m.SourceServerID, until); err != nil {
			slog.Error("mark channel blacklisted failed", "source_channel_id", k.sourceChannelID, "error", err)
		}
	}
	m.fail(ctx, k, fmt.Errorf("source channel inaccessible (403), blacklisted until %s", until.Format(time.RFC3339)))
}

// succeed records the recovery, dedupes further triggers for 5 minutes,
// and enqueues the backfill side-effect (spec §4.4 "Success side-effect").
func (m *Machine) succeed(ctx context.Context, k key, mirrorChannelID string) {
	m.mu.Lock()
	m.recovered[k] = m.now()
	m.mu.Unlock()

	slog.Info("recovery succeeded", "source_channel_id", k.sourceChannelID, "mirror_server_id", k.mirrorServerID, "mirror_channel_id", mirrorChannelID)

	if m.Resync != nil {
		go m.Resync.Backfill(ctx, k.sourceChannelID, mirrorChannelID)
	}
	if m.Logs != nil {
		_ = m.Logs.Write(ctx, store.LogEntry{
			Kind:      store.LogKindAdmin,
			ServerID:  k.mirrorServerID,
			ChannelID: mirrorChannelID,
			Message:   "auto-recovery succeeded",
			Detail:    fmt.Sprintf("source channel %s recovered after retry", k.sourceChannelID),
			Timestamp: m.now(),
		})
	}
}

// fail writes the failure log. No further automatic retry happens until a
// human triggers one (spec §4.4 "Failure side-effect").
func (m *Machine) fail(ctx context.Context, k key, cause error) {
	slog.Error("recovery failed", "source_channel_id", k.sourceChannelID, "mirror_server_id", k.mirrorServerID, "error", cause)
	if m.Logs == nil {
		return
	}
	_ = m.Logs.Write(ctx, store.LogEntry{
		Kind:      store.LogKindError,
		ServerID:  k.mirrorServerID,
		Message:   "auto-recovery failed",
		Detail:    cause.Error(),
		Timestamp: m.now(),
	})
}
