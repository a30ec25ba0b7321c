// Package correspondence implements the Correspondence Manager (spec §4.1):
// the bidirectional map of source identifiers to mirror identifiers, backed
// by a bounded LRU cache in front of the store, with on-demand mirror object
// creation. The LRU choice is grounded on the hashicorp/golang-lru/v2 module
// already present in the example pack's dependency surface
// (r3e-network-service_layer/go.mod).
package correspondence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/security"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

const cacheSize = 4096

type cacheKey struct {
	sourceID       string
	mirrorServerID string
}

// Manager translates source identifiers into mirror identifiers and creates
// mirror objects on demand. Its MentionResolver method returns the adapter
// that satisfies internal/mention.Resolver.
type Manager struct {
	channels store.ChannelStore
	roles    store.RoleStore
	control  transport.Control

	channelCache *lru.Cache[cacheKey, string]
	roleCache    *lru.Cache[cacheKey, string]

	// names caches display names for mention rewriting of unresolved
	// references; populated lazily from the store, never authoritative.
	mu        sync.RWMutex
	userNames map[string]string
	roleNames map[string]string
	chanNames map[string]string

	// createLocks serializes topology mutations per mirror server so
	// "create category then channel" is atomic with respect to itself
	// (spec §5).
	createLocks sync.Map // mirrorServerID -> *sync.Mutex
}

// New constructs a Manager with its bounded LRU caches.
func New(channels store.ChannelStore, roles store.RoleStore, control transport.Control) (*Manager, error) {
	channelCache, err := lru.New[cacheKey, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create channel cache: %w", err)
	}
	roleCache, err := lru.New[cacheKey, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create role cache: %w", err)
	}
	return &Manager{
		channels:     channels,
		roles:        roles,
		control:      control,
		channelCache: channelCache,
		roleCache:    roleCache,
		userNames:    make(map[string]string),
		roleNames:    make(map[string]string),
		chanNames:    make(map[string]string),
	}, nil
}

func (m *Manager) lockFor(mirrorServerID string) *sync.Mutex {
	l, _ := m.createLocks.LoadOrStore(mirrorServerID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// mentionResolver adapts a Manager, scoped to one (sourceServerID,
// mirrorServerID) pair, to the synchronous mention.Resolver shape the
// pipeline's content rewriting step needs. Store errors are logged and
// treated as an unresolved mapping so normalization never blocks on them.
type mentionResolver struct {
	ctx            context.Context
	mirrorServerID string
	m              *Manager
}

// MentionResolver returns a mention.Resolver bound to one replication
// domain, for use by the pipeline's per-event content rewriting step.
func (m *Manager) MentionResolver(ctx context.Context, mirrorServerID string) mentionResolver {
	return mentionResolver{ctx: ctx, mirrorServerID: mirrorServerID, m: m}
}

func (r mentionResolver) ResolveChannel(sourceChannelID string) (string, bool) {
	mirrorID, ok, err := r.m.ResolveChannelForMirrorServer(r.ctx, sourceChannelID, r.mirrorServerID)
	if err != nil {
		slog.Warn("mention resolver channel lookup failed", "source_channel_id", sourceChannelID, "error", err)
		return "", false
	}
	return mirrorID, ok
}

func (r mentionResolver) ResolveRole(sourceRoleID string) (string, bool) {
	mirrorID, ok, err := r.m.ResolveRoleForMirrorServer(r.ctx, sourceRoleID, r.mirrorServerID)
	if err != nil {
		slog.Warn("mention resolver role lookup failed", "source_role_id", sourceRoleID, "error", err)
		return "", false
	}
	return mirrorID, ok
}

func (r mentionResolver) UserDisplayName(id string) string { return r.m.UserDisplayName(id) }
func (r mentionResolver) RoleName(id string) string        { return r.m.RoleName(id) }
func (r mentionResolver) ChannelName(id string) string      { return r.m.ChannelName(id) }

func (m *Manager) UserDisplayName(sourceUserID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userNames[sourceUserID]
}

func (m *Manager) RoleName(sourceRoleID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roleNames[sourceRoleID]
}

func (m *Manager) ChannelName(sourceChannelID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chanNames[sourceChannelID]
}

// RememberUser records a display name for mention rewriting of
// still-unmapped users.
func (m *Manager) RememberUser(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userNames[id] = name
}

// RememberRoleName and RememberChannelName do the same for roles/channels
// discovered during a topology sync pass, before a mapping exists.
func (m *Manager) RememberRoleName(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleNames[id] = name
}

func (m *Manager) RememberChannelName(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chanNames[id] = name
}

// ResolveChannelForMirrorServer is the full synchronous resolve discipline
// from spec §4.1: cache, then store, on miss. It does not trigger creation;
// callers needing creation call AutoCreateChannel explicitly.
func (m *Manager) ResolveChannelForMirrorServer(ctx context.Context, sourceChannelID, mirrorServerID string) (string, bool, error) {
	key := cacheKey{sourceID: sourceChannelID, mirrorServerID: mirrorServerID}
	if v, ok := m.channelCache.Get(key); ok {
		return v, true, nil
	}

	mapping, err := m.channels.Find(ctx, sourceChannelID, mirrorServerID)
	if err != nil {
		return "", false, fmt.Errorf("find channel mapping: %w", err)
	}
	if mapping == nil || !mapping.HasLiveMirror() {
		return "", false, nil
	}
	m.channelCache.Add(key, mapping.MirrorChannelID)
	return mapping.MirrorChannelID, true, nil
}

// ResolveRoleForMirrorServer mirrors ResolveChannelForMirrorServer for roles.
func (m *Manager) ResolveRoleForMirrorServer(ctx context.Context, sourceRoleID, mirrorServerID string) (string, bool, error) {
	key := cacheKey{sourceID: sourceRoleID, mirrorServerID: mirrorServerID}
	if v, ok := m.roleCache.Get(key); ok {
		return v, true, nil
	}

	mapping, err := m.roles.Find(ctx, sourceRoleID, mirrorServerID)
	if err != nil {
		return "", false, fmt.Errorf("find role mapping: %w", err)
	}
	if mapping == nil || mapping.MirrorRoleID == "" {
		return "", false, nil
	}
	m.roleCache.Add(key, mapping.MirrorRoleID)
	return mapping.MirrorRoleID, true, nil
}

// RegisterChannelMapping is an idempotent upsert keyed by
// (sourceChannelId, sourceServerId); invalidates/refreshes the cache entry.
func (m *Manager) RegisterChannelMapping(ctx context.Context, mapping store.ChannelMapping) error {
	if err := m.channels.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("register channel mapping %s: %w", mapping.SourceChannelID, err)
	}
	if mapping.HasLiveMirror() {
		key := cacheKey{sourceID: mapping.SourceChannelID, mirrorServerID: mapping.MirrorServerID}
		m.channelCache.Add(key, mapping.MirrorChannelID)
	}
	m.RememberChannelName(mapping.SourceChannelID, mapping.Name)
	return nil
}

// RegisterRoleMapping mirrors RegisterChannelMapping for roles. @everyone is
// never mapped (spec §3 "Role mapping"); callers must filter it out before
// calling this.
func (m *Manager) RegisterRoleMapping(ctx context.Context, mapping store.RoleMapping) error {
	if err := m.roles.Upsert(ctx, mapping); err != nil {
		return fmt.Errorf("register role mapping %s: %w", mapping.SourceRoleID, err)
	}
	if mapping.MirrorRoleID != "" {
		key := cacheKey{sourceID: mapping.SourceRoleID, mirrorServerID: mapping.MirrorServerID}
		m.roleCache.Add(key, mapping.MirrorRoleID)
	}
	m.RememberRoleName(mapping.SourceRoleID, mapping.Name)
	return nil
}

// AutoCreateChannel creates the mirror object respecting category parenting:
// when the parent category mapping is itself absent, it is created first
// (recursive, one level), per spec §4.1.
func (m *Manager) AutoCreateChannel(ctx context.Context, source transport.ChannelInfo, sourceServerID, mirrorServerID string) (string, error) {
	lock := m.lockFor(mirrorServerID)
	lock.Lock()
	defer lock.Unlock()

	if mirrorID, ok, err := m.ResolveChannelForMirrorServer(ctx, source.ID, mirrorServerID); err != nil {
		return "", err
	} else if ok {
		return mirrorID, nil
	}

	parentMirrorID := ""
	if source.ParentID != "" {
		parentID, ok, err := m.ResolveChannelForMirrorServer(ctx, source.ParentID, mirrorServerID)
		if err != nil {
			return "", err
		}
		if !ok {
			created, err := m.control.CreateCategory(ctx, mirrorServerID, source.Name+"-parent")
			if err != nil {
				return "", fmt.Errorf("create parent category: %w", err)
			}
			if err := m.RegisterChannelMapping(ctx, store.ChannelMapping{
				SourceChannelID: source.ParentID,
				SourceServerID:  sourceServerID,
				Name:            source.Name + "-parent",
				MirrorChannelID: created,
				MirrorServerID:  mirrorServerID,
				Kind:            store.ChannelKindCategory,
				Scraped:         false,
			}); err != nil {
				return "", err
			}
			parentMirrorID = created
		} else {
			parentMirrorID = parentID
		}
	}

	kind, topic, err := m.newsChannelFallback(ctx, source, mirrorServerID)
	if err != nil {
		return "", err
	}

	mirrorID, err := m.control.CreateChannel(ctx, mirrorServerID, transport.ChannelInfo{
		Name:     source.Name,
		Kind:     kind,
		ParentID: parentMirrorID,
		Topic:    topic,
	})
	if err != nil {
		return "", fmt.Errorf("create mirror channel for %s: %w", source.ID, err)
	}

	if err := m.RegisterChannelMapping(ctx, store.ChannelMapping{
		SourceChannelID: source.ID,
		SourceServerID:  sourceServerID,
		Name:            source.Name,
		MirrorChannelID: mirrorID,
		MirrorServerID:  mirrorServerID,
		Kind:            store.ChannelKind(source.Kind),
		ParentSourceID:  source.ParentID,
		Scraped:         true,
	}); err != nil {
		return "", err
	}

	slog.Info("auto-created mirror channel", "source_channel_id", source.ID, "mirror_channel_id", mirrorID)
	return mirrorID, nil
}

// newsChannelFallback implements spec §9 #1: a GUILD_NEWS source channel
// can only be created as a news channel on a mirror guild with Discord's
// Community feature enabled. Elsewhere it falls back to a plain text
// channel with its topic prefixed "[news] ", never a hard error.
func (m *Manager) newsChannelFallback(ctx context.Context, source transport.ChannelInfo, mirrorServerID string) (kind int, topic string, err error) {
	if store.ChannelKind(source.Kind) != store.ChannelKindNews {
		return source.Kind, source.Topic, nil
	}
	community, err := m.control.IsCommunityServer(ctx, mirrorServerID)
	if err != nil {
		return 0, "", fmt.Errorf("check mirror community feature: %w", err)
	}
	if community {
		return source.Kind, source.Topic, nil
	}
	return int(store.ChannelKindText), "[news] " + source.Topic, nil
}

// AutoCreateRole creates a mirror role from a source role, applying the
// security permission filter before creation (spec §4.5).
func (m *Manager) AutoCreateRole(ctx context.Context, source transport.RoleInfo, sourceServerID, mirrorServerID string) (string, error) {
	if mirrorID, ok, err := m.ResolveRoleForMirrorServer(ctx, source.ID, mirrorServerID); err != nil {
		return "", err
	} else if ok {
		return mirrorID, nil
	}

	filtered := security.FilterPermissions(source.Permissions)
	mirrorID, err := m.control.CreateRole(ctx, mirrorServerID, source.Name, filtered)
	if err != nil {
		return "", fmt.Errorf("create mirror role for %s: %w", source.ID, err)
	}

	if err := m.RegisterRoleMapping(ctx, store.RoleMapping{
		SourceRoleID:   source.ID,
		SourceServerID: sourceServerID,
		MirrorRoleID:   mirrorID,
		MirrorServerID: mirrorServerID,
		Name:           source.Name,
		Synced:         true,
	}); err != nil {
		return "", err
	}
	return mirrorID, nil
}

// InvalidateChannel drops a cached mapping, e.g. after a manual deletion is
// observed (spec §4.1 "invalidated on create/fix/delete").
func (m *Manager) InvalidateChannel(sourceChannelID, mirrorServerID string) {
	m.channelCache.Remove(cacheKey{sourceID: sourceChannelID, mirrorServerID: mirrorServerID})
}

func (m *Manager) InvalidateRole(sourceRoleID, mirrorServerID string) {
	m.roleCache.Remove(cacheKey{sourceID: sourceRoleID, mirrorServerID: mirrorServerID})
}
