package store

import (
	"context"
	"time"
)

// ChannelStore owns channel mapping rows (spec §3 "Ownership": Correspondence
// Manager owns channel/role mappings and processed-message records).
type ChannelStore interface {
	Find(ctx context.Context, sourceChannelID, sourceServerID string) (*ChannelMapping, error)
	FindByMirrorID(ctx context.Context, mirrorChannelID string) (*ChannelMapping, error)
	ListByServer(ctx context.Context, sourceServerID string, scrapedOnly bool) ([]ChannelMapping, error)
	Upsert(ctx context.Context, m ChannelMapping) error
	MarkBlacklisted(ctx context.Context, sourceChannelID, sourceServerID string, until time.Time) error
	IncrementFailedAttempts(ctx context.Context, sourceChannelID, sourceServerID string) (int, error)
	MarkManuallyDeleted(ctx context.Context, sourceChannelID, sourceServerID string) error
	TouchActivity(ctx context.Context, sourceChannelID, sourceServerID string, at time.Time) error
	CountActive(ctx context.Context, mirrorServerID string) (int, error)
}

// RoleStore owns role mapping rows.
type RoleStore interface {
	Find(ctx context.Context, sourceRoleID, sourceServerID string) (*RoleMapping, error)
	ListByServer(ctx context.Context, sourceServerID string) ([]RoleMapping, error)
	Upsert(ctx context.Context, m RoleMapping) error
}

// MessageStore owns processed-message records, the system of record for
// idempotent delivery (spec §3 "Message mapping").
type MessageStore interface {
	FindBySourceID(ctx context.Context, sourceMessageID string) (*ProcessedMessage, error)
	Insert(ctx context.Context, m ProcessedMessage) error
	UpdateAfterEdit(ctx context.Context, sourceMessageID, renderedContent string, awaitingEmbed bool) error
}

// MemberStore owns membership census records.
type MemberStore interface {
	BulkUpsertSeen(ctx context.Context, sourceServerID string, userIDs []string, at time.Time) error
	Get(ctx context.Context, sourceServerID, userID string) (*MemberDetail, error)
	RecordCount(ctx context.Context, c MemberCount) error
}

// LogStore owns operator-facing log entries.
type LogStore interface {
	Write(ctx context.Context, e LogEntry) error
	PurgeAll(ctx context.Context) (int64, error)
}

// MentionBlacklistStore owns the per-channel mention-notification opt-out.
type MentionBlacklistStore interface {
	IsBlacklisted(ctx context.Context, sourceServerID, channelName string) (bool, error)
	Add(ctx context.Context, b MentionBlacklist) error
}

// RoleMentionStore records replicated role-mention notifications.
type RoleMentionStore interface {
	Record(ctx context.Context, m RoleMention) error
}

// ServerConfigStore reads per-mirror-server configuration.
type ServerConfigStore interface {
	Get(ctx context.Context, mirrorServerID string) (*ServerConfig, error)
}

// ProxAuthCacheStore caches short-lived authorization probes.
type ProxAuthCacheStore interface {
	Get(ctx context.Context, key string) (*ProxAuthCacheEntry, error)
	Set(ctx context.Context, e ProxAuthCacheEntry) error
}

// Maintenance is implemented by the store backend to support the purge-logs
// and emergency-purge CLI scripts (spec §6). ServerConfig/Channel/Role/
// MentionBlacklist are deliberately excluded from EmergencyPurge — only
// ephemeral/derived collections are purgeable.
type Maintenance interface {
	PurgeLogs(ctx context.Context) (int64, error)
	EmergencyPurge(ctx context.Context) (int64, error)
}

// Stores is the top-level container for every storage backend the engine
// depends on, handed explicitly to each component rather than resolved from
// a package-level singleton (spec §9 "Ambient per-server state").
type Stores struct {
	Channels          ChannelStore
	Roles             RoleStore
	Messages          MessageStore
	Members           MemberStore
	Logs              LogStore
	MentionBlacklists MentionBlacklistStore
	RoleMentions      RoleMentionStore
	ServerConfig      ServerConfigStore
	ProxAuthCache     ProxAuthCacheStore
	Maintenance       Maintenance
}
