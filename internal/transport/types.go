// Package transport defines the abstract upstream-provider contracts the
// engine depends on (spec §6 "Upstream transports"). Concrete
// implementations live in the control, observe, and webhook subpackages,
// each wrapping a github.com/bwmarrin/discordgo session the way the
// teacher's internal/channels/discord.Channel wraps its bot session.
package transport

import (
	"context"
	"time"
)

// ChannelInfo is the provider-agnostic shape of a source/mirror channel.
type ChannelInfo struct {
	ID       string
	Name     string
	Kind     int // matches store.ChannelKind's numeric codes
	ParentID string
	Topic    string
}

// RoleInfo is the provider-agnostic shape of a source/mirror role.
type RoleInfo struct {
	ID          string
	Name        string
	Permissions int64
}

// Message is the provider-agnostic shape of one chat message, normalized
// enough for the pipeline to consume regardless of transport.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string
	AuthorID  string
	Username  string
	AvatarURL string
	IsBot     bool
	Content   string
	Embeds    []Embed
	Files     []Attachment
	Mentions  MentionSet
	ThreadID  string // set when the message started/belongs to a thread
	Timestamp time.Time
}

// MentionSet captures the raw mention references found in a message, before
// rewriting (internal/mention does the rewriting).
type MentionSet struct {
	UserIDs    []string
	RoleIDs    []string
	ChannelIDs []string
	Everyone   bool
}

// Embed mirrors the subset of embed fields the engine replicates.
type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []EmbedField
	Author      string
	Footer      string
	ImageURL    string
	ThumbURL    string
}

// EmbedField is one name/value pair within an Embed.
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Attachment is a file to download-and-forward or link out, per spec §4.2
// step 6.
type Attachment struct {
	URL      string
	Filename string
	Size     int64
}

// EventKind tags the union of source-side events the pipeline consumes
// (spec §4.2, §9 "Tagged variants").
type EventKind string

const (
	EventMessageCreated  EventKind = "messageCreated"
	EventMessageUpdated  EventKind = "messageUpdated"
	EventReactionAdded   EventKind = "reactionAdded"
	EventThreadCreated   EventKind = "threadCreated"
	EventChannelCreated  EventKind = "channelCreated"
)

// Event is the single shape delivered to Pipeline.OnSourceEvent.
type Event struct {
	Kind    EventKind
	Message Message   // populated for message* events
	Emoji   string    // populated for reactionAdded
	Channel ChannelInfo // populated for channelCreated/threadCreated
}

// Control is the bot-like transport: creates/edits objects on the mirror
// server (spec §6 "Control client").
type Control interface {
	CreateChannel(ctx context.Context, mirrorServerID string, ch ChannelInfo) (string, error)
	CreateCategory(ctx context.Context, mirrorServerID string, name string) (string, error)
	CreateForumPost(ctx context.Context, forumChannelID, title, content string) (threadID, messageID string, err error)
	CreateThread(ctx context.Context, parentChannelID, messageID, name string) (string, error)
	CreateRole(ctx context.Context, mirrorServerID string, name string, permissions int64) (string, error)
	EditRolePermissions(ctx context.Context, mirrorServerID, roleID string, permissions int64) error
	EditChannelName(ctx context.Context, channelID, name string) error
	CreateWebhook(ctx context.Context, channelID, name string) (id, token string, err error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	ChannelCount(ctx context.Context, mirrorServerID string) (int, error)
	// IsCommunityServer reports whether the mirror guild has Discord's
	// Community feature enabled, which gates whether a GUILD_NEWS channel
	// can be created there (spec §9 "news channels on community-less
	// mirrors").
	IsCommunityServer(ctx context.Context, mirrorServerID string) (bool, error)
	// SendMessage posts a plain-bot message (not impersonated) to a mirror
	// channel; used for operator-facing log/alert channels (spec §6
	// "error log channel", "newroom log channel", "admin log").
	SendMessage(ctx context.Context, channelID, content string) (messageID string, err error)
}

// Observe is the user-token transport: read-only access to a server the
// engine does not administer (spec §6 "Observation client").
type Observe interface {
	Events(ctx context.Context) (<-chan Event, error)
	FetchGuildChannels(ctx context.Context, sourceServerID string) ([]ChannelInfo, error)
	FetchGuildRoles(ctx context.Context, sourceServerID string) ([]RoleInfo, error)
	FetchGuildMemberCount(ctx context.Context, sourceServerID string) (int, error)
	FetchGuildMembers(ctx context.Context, sourceServerID string, limit int, after string) ([]string, error)
	// SearchGuildMembers finds members whose username/nickname has the given
	// prefix; used by the brute-force alphabetic detector method.
	SearchGuildMembers(ctx context.Context, sourceServerID, query string, limit int) ([]string, error)
	FetchThreadByID(ctx context.Context, channelID string) (*ChannelInfo, error)
	FetchChannelMessages(ctx context.Context, channelID string, limit int, before, after string) ([]Message, error)
	// TestChannelAccess probes read access with one GET; ok=false with
	// statusCode in {403,404} signals the channel should be blacklisted.
	TestChannelAccess(ctx context.Context, channelID string) (ok bool, statusCode int, err error)
}

// Endpoint is a per-mirror-channel impersonation handle (spec GLOSSARY).
type Endpoint interface {
	ID() string
	Secret() string
	Send(ctx context.Context, payload OutboundPayload) (messageID string, err error)
	Edit(ctx context.Context, messageID string, payload OutboundPayload) error
}

// OutboundPayload is what gets POSTed through an impersonation endpoint
// (spec §6 "Impersonation endpoint").
type OutboundPayload struct {
	Content         string
	Embeds          []Embed
	Files           []Attachment
	Username        string
	AvatarURL       string
	AllowedRoleIDs  []string // only role mentions are ever permitted
	ThreadID        string
}
