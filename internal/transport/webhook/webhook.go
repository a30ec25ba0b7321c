// Package webhook wraps a discordgo webhook handle as the per-mirror-channel
// impersonation endpoint (spec GLOSSARY "Impersonation endpoint").
package webhook

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

// Endpoint implements transport.Endpoint over discordgo's webhook execute/edit
// calls.
type Endpoint struct {
	session *discordgo.Session
	id      string
	token   string
}

// New wraps an existing webhook (id, token) pair.
func New(session *discordgo.Session, id, token string) *Endpoint {
	return &Endpoint{session: session, id: id, token: token}
}

func (e *Endpoint) ID() string     { return e.id }
func (e *Endpoint) Secret() string { return e.token }

// Send posts the payload's content and embeds through the webhook.
// payload.Files is not attached to the request, so no file is uploaded.
func (e *Endpoint) Send(ctx context.Context, payload transport.OutboundPayload) (string, error) {
	params := &discordgo.WebhookParams{
		Content:         payload.Content,
		Username:        payload.Username,
		AvatarURL:       payload.AvatarURL,
		Embeds:          toDiscordEmbeds(payload.Embeds),
		AllowedMentions: allowedMentions(payload.AllowedRoleIDs),
	}
	if payload.ThreadID != "" {
		msg, err := e.session.WebhookThreadExecute(e.id, e.token, true, payload.ThreadID, params, discordgo.WithContext(ctx))
		if err != nil {
			return "", fmt.Errorf("execute threaded webhook: %w", err)
		}
		return msg.ID, nil
	}
	msg, err := e.session.WebhookExecute(e.id, e.token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("execute webhook: %w", err)
	}
	return msg.ID, nil
}

func (e *Endpoint) Edit(ctx context.Context, messageID string, payload transport.OutboundPayload) error {
	content := payload.Content
	edit := &discordgo.WebhookEdit{
		Content:         &content,
		Embeds:          embedsPtr(toDiscordEmbeds(payload.Embeds)),
		AllowedMentions: allowedMentions(payload.AllowedRoleIDs),
	}
	_, err := e.session.WebhookMessageEdit(e.id, e.token, messageID, edit, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit webhook message %s: %w", messageID, err)
	}
	return nil
}

func embedsPtr(e []*discordgo.MessageEmbed) *[]*discordgo.MessageEmbed { return &e }

func allowedMentions(roleIDs []string) *discordgo.MessageAllowedMentions {
	// Role mentions may be live; users and @everyone originating from
	// rewritten source content never are (spec §8 testable property).
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles},
		Roles: roleIDs,
	}
}

func toDiscordEmbeds(embeds []transport.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		de := &discordgo.MessageEmbed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
		}
		if e.Author != "" {
			de.Author = &discordgo.MessageEmbedAuthor{Name: e.Author}
		}
		if e.Footer != "" {
			de.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if e.ImageURL != "" {
			de.Image = &discordgo.MessageEmbedImage{URL: e.ImageURL}
		}
		if e.ThumbURL != "" {
			de.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.ThumbURL}
		}
		for _, f := range e.Fields {
			de.Fields = append(de.Fields, &discordgo.MessageEmbedField{
				Name: f.Name, Value: f.Value, Inline: f.Inline,
			})
		}
		out = append(out, de)
	}
	return out
}

// Manager caches impersonation endpoints per mirror channel, creating them
// under a per-mirror-server mutex to avoid duplicate webhooks on concurrent
// first use (spec §5 "impersonation-endpoint handle").
type Manager struct {
	session *discordgo.Session
	create  func(ctx context.Context, channelID, name string) (id, token string, err error)

	mu    chan struct{} // 1-buffered mutex per mirror server, keyed lazily
	locks map[string]chan struct{}
	cache map[string]*Endpoint
}

// NewManager creates an endpoint manager. create is typically
// transport.Control.CreateWebhook.
func NewManager(session *discordgo.Session, create func(ctx context.Context, channelID, name string) (string, string, error)) *Manager {
	return &Manager{
		session: session,
		create:  create,
		locks:   make(map[string]chan struct{}),
		cache:   make(map[string]*Endpoint),
	}
}

// Get returns the cached endpoint for channelID, creating and caching one
// under the per-mirror-server lock if absent.
func (m *Manager) Get(ctx context.Context, mirrorServerID, channelID string) (transport.Endpoint, error) {
	if ep, ok := m.cache[channelID]; ok {
		return ep, nil
	}

	lock := m.lockFor(mirrorServerID)
	lock <- struct{}{}
	defer func() { <-lock }()

	if ep, ok := m.cache[channelID]; ok {
		return ep, nil
	}

	id, token, err := m.create(ctx, channelID, "mirror")
	if err != nil {
		return nil, fmt.Errorf("create impersonation endpoint for %s: %w", channelID, err)
	}
	ep := New(m.session, id, token)
	m.cache[channelID] = ep
	return ep, nil
}

func (m *Manager) lockFor(mirrorServerID string) chan struct{} {
	if l, ok := m.locks[mirrorServerID]; ok {
		return l
	}
	l := make(chan struct{}, 1)
	m.locks[mirrorServerID] = l
	return l
}
