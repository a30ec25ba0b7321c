// Package store defines the persistence contracts the replication engine
// relies on and the document shapes it reads and writes. Concrete backends
// live in subpackages (see store/mongo).
package store

import "time"

// ChannelKind mirrors the upstream provider's numeric channel-type codes.
type ChannelKind int

const (
	ChannelKindText          ChannelKind = 0
	ChannelKindVoice         ChannelKind = 2
	ChannelKindCategory      ChannelKind = 4
	ChannelKindNews          ChannelKind = 5
	ChannelKindThreadNews    ChannelKind = 10
	ChannelKindThreadPublic  ChannelKind = 11
	ChannelKindThreadPrivate ChannelKind = 12
	ChannelKindStage         ChannelKind = 13
	ChannelKindForum         ChannelKind = 15
)

// IsReplicationTarget reports whether messages in a channel of this kind are
// ever mirrored. Voice and category channels never are.
func (k ChannelKind) IsReplicationTarget() bool {
	return k != ChannelKindVoice && k != ChannelKindCategory
}

// ChannelMapping is a correspondence row between a source channel and its
// mirror-side counterpart. See spec §3 "Channel mapping".
type ChannelMapping struct {
	SourceChannelID  string      `bson:"sourceChannelId"`
	SourceServerID   string      `bson:"sourceServerId"`
	Name             string      `bson:"name"`
	MirrorChannelID  string      `bson:"mirrorChannelId,omitempty"` // "" or "pending" when absent
	MirrorServerID   string      `bson:"mirrorServerId"`
	Kind             ChannelKind `bson:"kind"`
	ParentSourceID   string      `bson:"parentSourceId,omitempty"`
	Scraped          bool        `bson:"scraped"`
	Blacklisted      bool        `bson:"blacklisted"`
	BlacklistedUntil time.Time   `bson:"blacklistedUntil,omitempty"`
	FailedAttempts   int         `bson:"failedAttempts"`
	ManuallyDeleted  bool        `bson:"manuallyDeleted"`
	LastActivity     time.Time   `bson:"lastActivity,omitempty"`
}

// PendingMirrorID is the sentinel written while a mirror channel has been
// scheduled for creation but does not exist yet.
const PendingMirrorID = "pending"

// HasLiveMirror reports whether MirrorChannelID points at a real mirror object.
func (c ChannelMapping) HasLiveMirror() bool {
	return c.MirrorChannelID != "" && c.MirrorChannelID != PendingMirrorID
}

// RoleMapping is a correspondence row between a source role and its mirror role.
type RoleMapping struct {
	SourceRoleID   string `bson:"sourceRoleId"`
	SourceServerID string `bson:"sourceServerId"`
	MirrorRoleID   string `bson:"mirrorRoleId,omitempty"`
	MirrorServerID string `bson:"mirrorServerId"`
	Name           string `bson:"name"`
	Synced         bool   `bson:"synced"`
}

// ProcessedMessage is the durable record of one source message that has been
// committed to the mirror exactly once.
type ProcessedMessage struct {
	SourceMessageID             string    `bson:"discordId"`
	SourceChannelID             string    `bson:"sourceChannelId"`
	MirrorMessageID             string    `bson:"mirrorMessageId"`
	MirrorChannelID             string    `bson:"mirrorChannelId"`
	MirrorServerID              string    `bson:"mirrorServerId"`
	ImpersonationEndpointID     string    `bson:"impersonationEndpointId"`
	ImpersonationEndpointSecret string    `bson:"impersonationEndpointSecret"`
	AwaitingEmbed               bool      `bson:"awaitingEmbed"`
	RenderedContent             string    `bson:"renderedContent"`
	ProcessedAt                 time.Time `bson:"processedAt"`
}

// MemberDetail tracks presence of one user across source servers for danger
// scoring. See spec §3 "Member detail".
type MemberDetail struct {
	SourceServerID string             `bson:"sourceServerId"`
	UserID         string             `bson:"userId"`
	DangerLevel    int                `bson:"dangerLevel"`
	History        []MemberSighting   `bson:"history"`
	IsDangerous    bool               `bson:"isDangerous"`
	LastSeen       time.Time          `bson:"lastSeen"`
}

// MemberSighting is one bounded entry in a MemberDetail's history.
type MemberSighting struct {
	ServerID string    `bson:"serverId"`
	SeenAt   time.Time `bson:"seenAt"`
}

// MaxMemberHistory bounds MemberDetail.History per spec §3.
const MaxMemberHistory = 100

// LogKind tags the union of log entry kinds the engine writes.
type LogKind string

const (
	LogKindNewRoom    LogKind = "newroom"
	LogKindError      LogKind = "error"
	LogKindRoles      LogKind = "roles"
	LogKindAdmin      LogKind = "admin"
	LogKindAutoStart  LogKind = "auto-start"
	LogKindMembers    LogKind = "members"
)

// LogEntry is one operator-facing diagnostic record.
type LogEntry struct {
	Kind      LogKind   `bson:"kind"`
	ServerID  string    `bson:"serverId,omitempty"`
	ChannelID string    `bson:"channelId,omitempty"`
	Message   string    `bson:"message"`
	Detail    string    `bson:"detail,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
}

// MentionBlacklist disables outbound mention notifications from one channel.
type MentionBlacklist struct {
	SourceServerID string `bson:"sourceGuildId"`
	ChannelName    string `bson:"channelName"`
}

// RoleMention records an outbound mention notification, retained for 30 days
// (spec §6) so operators can audit notification volume.
type RoleMention struct {
	SourceServerID string    `bson:"sourceGuildId"`
	RoleID         string    `bson:"roleId"`
	ChannelID      string    `bson:"channelId"`
	Timestamp      time.Time `bson:"timestamp"`
}

// MemberCount is a point-in-time census snapshot for a source server.
type MemberCount struct {
	SourceServerID string    `bson:"sourceServerId"`
	Count          int       `bson:"count"`
	Timestamp      time.Time `bson:"timestamp"`
}

// ServerConfig holds the per-mirror-server configuration that would
// otherwise live only in the slash-command layer (out of scope, but the
// engine still reads it).
type ServerConfig struct {
	MirrorServerID  string   `bson:"mirrorServerId"`
	SourceServerID  string   `bson:"sourceServerId"`
	ErrorLogChannel string   `bson:"errorLogChannel,omitempty"`
	NewRoomChannel  string   `bson:"newRoomChannel,omitempty"`
	AdminLogChannel string   `bson:"adminLogChannel,omitempty"`
	IgnoredChannels []string `bson:"ignoredChannels,omitempty"`
}

// ProxAuthCacheEntry caches a short-lived authorization decision (e.g. result
// of testChannelAccess) to avoid re-probing the source on every pass.
type ProxAuthCacheEntry struct {
	Key       string    `bson:"key"`
	Allowed   bool      `bson:"allowed"`
	CheckedAt time.Time `bson:"checkedAt"`
}
