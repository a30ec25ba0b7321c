// Package topology implements the three cooperating loops and one
// event-driven path of spec §4.3: periodic full sync, channel monitor,
// auto-configure-on-first-message, and deferred channel creation support.
package topology

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

const (
	syncIntervalErrors   = 5 * time.Minute
	syncIntervalDefault  = 30 * time.Minute
	syncIntervalQuiet    = 60 * time.Minute
	quietAfter           = 2 * time.Hour
	monitorInterval      = 10 * time.Minute
	maxSilentRetries     = 10
	hardChannelCeiling   = 500
	warnChannelThreshold = 450
	blacklistHour        = 3
	blacklistMinute      = 30
)

// Replayer re-submits an out-of-band fetched message through the
// replication pipeline; implemented by internal/pipeline.Pipeline.
type Replayer interface {
	ReplayMessage(ctx context.Context, msg transport.Message) error
}

// Sync drives the periodic full sync and channel monitor loops for one
// (sourceServerID, mirrorServerID) replication domain.
type Sync struct {
	SourceServerID string
	MirrorServerID string

	Corr     *correspondence.Manager
	Observe  transport.Observe
	Control  transport.Control
	Channels store.ChannelStore
	Logs     store.LogStore
	Replayer Replayer

	IgnoredChannels map[string]struct{}

	mu            sync.Mutex
	lastErrorAt   time.Time
	silentRetries map[string]int
	warnedCeiling bool

	cancel context.CancelFunc
}

// New constructs a Sync for one replication domain.
func New(sourceServerID, mirrorServerID string) *Sync {
	return &Sync{
		SourceServerID:  sourceServerID,
		MirrorServerID:  mirrorServerID,
		IgnoredChannels: make(map[string]struct{}),
		silentRetries:   make(map[string]int),
	}
}

// Start launches the full-sync and channel-monitor loops.
func (s *Sync) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.fullSyncLoop(ctx)
	go s.monitorLoop(ctx)
}

// Stop ends both loops.
func (s *Sync) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sync) noteError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErrorAt = time.Now()
}

// markCeilingWarned reports whether the channel-ceiling warning still
// needs to fire this session, and flips the guard so it never fires again
// (spec §7/§8: logged exactly once per session).
func (s *Sync) markCeilingWarned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.warnedCeiling {
		return false
	}
	s.warnedCeiling = true
	return true
}

// NextSyncInterval exposes the adaptive interval for the status endpoint.
func (s *Sync) NextSyncInterval() time.Duration { return s.nextSyncInterval() }

// nextSyncInterval implements the adaptive interval from spec §4.3: 5 min
// when recent errors exist, 60 min after 2h error-free, 30 min otherwise.
func (s *Sync) nextSyncInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErrorAt.IsZero() {
		return syncIntervalDefault
	}
	since := time.Since(s.lastErrorAt)
	switch {
	case since < syncIntervalErrors:
		return syncIntervalErrors
	case since >= quietAfter:
		return syncIntervalQuiet
	default:
		return syncIntervalDefault
	}
}

func (s *Sync) fullSyncLoop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := s.FullSync(ctx); err != nil {
				s.noteError()
				slog.Error("topology full sync failed", "source_server_id", s.SourceServerID, "error", err)
			}
			timer.Reset(s.nextSyncInterval())
		}
	}
}

// FullSync fetches the source's channel and role lists and repairs every
// mapping (spec §4.3 "Periodic full sync"). Categories not referenced by any
// channel-to-be-created are never created on their own.
func (s *Sync) FullSync(ctx context.Context) error {
	channels, err := s.Observe.FetchGuildChannels(ctx, s.SourceServerID)
	if err != nil {
		return fmt.Errorf("fetch source channels: %w", err)
	}
	roles, err := s.Observe.FetchGuildRoles(ctx, s.SourceServerID)
	if err != nil {
		return fmt.Errorf("fetch source roles: %w", err)
	}

	byID := make(map[string]transport.ChannelInfo, len(channels))
	for _, c := range channels {
		byID[c.ID] = c
		s.Corr.RememberChannelName(c.ID, c.Name)
	}

	for _, r := range roles {
		if r.Name == "@everyone" {
			continue
		}
		s.Corr.RememberRoleName(r.ID, r.Name)
		if _, ok, err := s.Corr.ResolveRoleForMirrorServer(ctx, r.ID, s.MirrorServerID); err == nil && !ok {
			if _, err := s.Corr.AutoCreateRole(ctx, r, s.SourceServerID, s.MirrorServerID); err != nil {
				slog.Warn("sync auto-create role failed", "source_role_id", r.ID, "error", err)
			}
		}
	}

	for _, c := range channels {
		kind := store.ChannelKind(c.Kind)
		if !kind.IsReplicationTarget() {
			continue
		}
		if _, blocked := s.IgnoredChannels[c.Name]; blocked {
			continue
		}
		if err := s.repairOrCreate(ctx, c, byID); err != nil {
			slog.Warn("sync repair/create channel failed", "source_channel_id", c.ID, "error", err)
		}
	}
	return nil
}

func (s *Sync) repairOrCreate(ctx context.Context, c transport.ChannelInfo, byID map[string]transport.ChannelInfo) error {
	existing, err := s.Channels.Find(ctx, c.ID, s.SourceServerID)
	if err != nil {
		return fmt.Errorf("find mapping: %w", err)
	}

	switch {
	case existing == nil:
		_, err := s.Corr.AutoCreateChannel(ctx, c, s.SourceServerID, s.MirrorServerID)
		return err
	case !existing.HasLiveMirror():
		_, err := s.Corr.AutoCreateChannel(ctx, c, s.SourceServerID, s.MirrorServerID)
		return err
	case existing.Name != c.Name:
		if err := s.Control.EditChannelName(ctx, existing.MirrorChannelID, c.Name); err != nil {
			return fmt.Errorf("rename mirror channel: %w", err)
		}
		existing.Name = c.Name
		return s.Corr.RegisterChannelMapping(ctx, *existing)
	default:
		return nil
	}
}

func (s *Sync) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scanOnce(ctx); err != nil {
				slog.Error("channel monitor scan failed", "source_server_id", s.SourceServerID, "error", err)
			}
		}
	}
}

// scanOnce implements the channel monitor pass (spec §4.3 "Channel
// monitor"): access-test every candidate, auto-blacklist the inaccessible,
// skip the ignored, create the rest up to the 500-channel ceiling.
func (s *Sync) scanOnce(ctx context.Context) error {
	channels, err := s.Observe.FetchGuildChannels(ctx, s.SourceServerID)
	if err != nil {
		return fmt.Errorf("fetch source channels: %w", err)
	}

	active, err := s.Channels.CountActive(ctx, s.MirrorServerID)
	if err != nil {
		return fmt.Errorf("count active mirror channels: %w", err)
	}
	if active >= warnChannelThreshold && s.markCeilingWarned() {
		slog.Warn("mirror channel count approaching ceiling", "active", active, "ceiling", hardChannelCeiling)
	}

	for _, c := range channels {
		kind := store.ChannelKind(c.Kind)
		if !kind.IsReplicationTarget() {
			continue
		}
		if _, ignored := s.IgnoredChannels[c.Name]; ignored {
			continue
		}
		if active >= hardChannelCeiling {
			slog.Warn("mirror channel ceiling reached, skipping creation", "source_channel_id", c.ID)
			continue
		}

		existing, err := s.Channels.Find(ctx, c.ID, s.SourceServerID)
		if err != nil {
			continue
		}
		if existing != nil && existing.HasLiveMirror() {
			continue
		}

		ok, statusCode, err := s.Observe.TestChannelAccess(ctx, c.ID)
		if err != nil {
			s.recordSilentFailure(c.ID)
			continue
		}
		if !ok {
			if statusCode == 403 || statusCode == 404 {
				if err := s.Channels.MarkBlacklisted(ctx, c.ID, s.SourceServerID, nextBlacklistExpiry(time.Now())); err != nil {
					slog.Warn("mark channel blacklisted failed", "source_channel_id", c.ID, "error", err)
				}
			}
			continue
		}

		if _, err := s.Corr.AutoCreateChannel(ctx, c, s.SourceServerID, s.MirrorServerID); err != nil {
			slog.Warn("monitor auto-create channel failed", "source_channel_id", c.ID, "error", err)
			continue
		}
		active++
	}
	return nil
}

// recordSilentFailure caps repeated log noise for a channel that keeps
// failing the access test: after maxSilentRetries, further failures are not
// logged again this session (spec §4.3 "exponential silent retry cap").
func (s *Sync) recordSilentFailure(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.silentRetries[channelID]
	if n < maxSilentRetries {
		slog.Debug("channel access test failed", "source_channel_id", channelID, "attempt", n+1)
	}
	s.silentRetries[channelID] = n + 1
}

// nextBlacklistExpiry returns the next 03:30 local time strictly after now.
func nextBlacklistExpiry(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), blacklistHour, blacklistMinute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// AutoConfigureChannel implements spec §4.3's "Auto-configure on first
// message" path, satisfying internal/pipeline.ChannelResolver. It looks up
// the source channel's parent, creates the forum/thread structure as
// appropriate, registers the mapping, and starts a backfill of up to the
// last 50 messages in its own goroutine; it returns without waiting for the
// backfill.
func (s *Sync) AutoConfigureChannel(ctx context.Context, sourceChannelID, sourceServerID, mirrorServerID string) (string, error) {
	channel, err := s.Observe.FetchThreadByID(ctx, sourceChannelID)
	if err != nil {
		return "", fmt.Errorf("fetch source channel %s: %w", sourceChannelID, err)
	}
	if channel == nil {
		return "", fmt.Errorf("source channel %s not found", sourceChannelID)
	}

	kind := store.ChannelKind(channel.Kind)
	var mirrorID string

	switch kind {
	case store.ChannelKindThreadPublic, store.ChannelKindThreadPrivate, store.ChannelKindThreadNews:
		if channel.ParentID == "" {
			return "", fmt.Errorf("thread %s has no parent", sourceChannelID)
		}
		parent, err := s.Observe.FetchThreadByID(ctx, channel.ParentID)
		if err != nil {
			return "", fmt.Errorf("fetch thread parent: %w", err)
		}
		parentKind := store.ChannelKind(parent.Kind)
		parentMirrorID, err := s.Corr.AutoCreateChannel(ctx, *parent, sourceServerID, mirrorServerID)
		if err != nil {
			return "", err
		}
		if parentKind == store.ChannelKindForum {
			threadID, _, err := s.Control.CreateForumPost(ctx, parentMirrorID, channel.Name, "")
			if err != nil {
				return "", fmt.Errorf("create forum post: %w", err)
			}
			mirrorID = threadID
		} else {
			threadID, err := s.Control.CreateThread(ctx, parentMirrorID, "", channel.Name)
			if err != nil {
				return "", fmt.Errorf("create thread: %w", err)
			}
			mirrorID = threadID
		}
	default:
		created, err := s.Corr.AutoCreateChannel(ctx, *channel, sourceServerID, mirrorServerID)
		if err != nil {
			return "", err
		}
		mirrorID = created
	}

	if err := s.Corr.RegisterChannelMapping(ctx, store.ChannelMapping{
		SourceChannelID: sourceChannelID,
		SourceServerID:  sourceServerID,
		Name:            channel.Name,
		MirrorChannelID: mirrorID,
		MirrorServerID:  mirrorServerID,
		Kind:            kind,
		ParentSourceID:  channel.ParentID,
		Scraped:         true,
	}); err != nil {
		return "", err
	}

	go s.backfill(context.Background(), sourceChannelID, mirrorID)
	return mirrorID, nil
}

// Backfill exposes the backfill job for callers outside this package
// (internal/recovery's success side-effect).
func (s *Sync) Backfill(ctx context.Context, sourceChannelID, mirrorChannelID string) {
	s.backfill(ctx, sourceChannelID, mirrorChannelID)
}

// backfill replays up to the last 50 source messages through the Replayer
// (spec §4.3 step d, §4.4 success side-effect). Both callers run it in its
// own goroutine, so the live stream does not wait for it. Errors are
// logged and swallowed: a partial backfill is acceptable, blocking the live
// stream on it is not.
func (s *Sync) backfill(ctx context.Context, sourceChannelID, mirrorChannelID string) {
	const backfillLimit = 50
	msgs, err := s.Observe.FetchChannelMessages(ctx, sourceChannelID, backfillLimit, "", "")
	if err != nil {
		slog.Warn("backfill fetch failed", "source_channel_id", sourceChannelID, "error", err)
		return
	}
	slog.Info("backfilling messages", "source_channel_id", sourceChannelID, "mirror_channel_id", mirrorChannelID, "count", len(msgs))

	if s.Replayer == nil {
		return
	}
	for _, m := range msgs {
		if err := s.Replayer.ReplayMessage(ctx, m); err != nil {
			slog.Debug("replay backfilled message failed", "source_message_id", m.ID, "error", err)
		}
	}
}
