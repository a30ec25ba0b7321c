// Package control wraps a bot-token discordgo session for every mirror-side
// mutation the engine performs, following the same session lifecycle the
// teacher's internal/channels/discord.Channel used for its bot connection.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

// Client implements transport.Control over a discordgo bot session.
type Client struct {
	session *discordgo.Session
}

// New opens a bot-token discordgo session.
func New(token string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create control session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open control session: %w", err)
	}
	return &Client{session: session}, nil
}

// Close closes the underlying gateway connection.
func (c *Client) Close() error {
	return c.session.Close()
}

// Session returns the underlying bot session so other mirror-side
// transports (internal/transport/webhook.Manager) can share the one
// gateway connection rather than opening a second.
func (c *Client) Session() *discordgo.Session {
	return c.session
}

func (c *Client) CreateChannel(ctx context.Context, mirrorServerID string, ch transport.ChannelInfo) (string, error) {
	data := discordgo.GuildChannelCreateData{
		Name:     ch.Name,
		Type:     discordgo.ChannelType(ch.Kind),
		ParentID: ch.ParentID,
		Topic:    ch.Topic,
	}
	created, err := c.session.GuildChannelCreateComplex(mirrorServerID, data, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create mirror channel %q: %w", ch.Name, err)
	}
	return created.ID, nil
}

// IsCommunityServer reports whether the mirror guild carries Discord's
// "COMMUNITY" feature flag, which is required before a GUILD_NEWS channel
// can be created in it.
func (c *Client) IsCommunityServer(ctx context.Context, mirrorServerID string) (bool, error) {
	guild, err := c.session.Guild(mirrorServerID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("fetch mirror guild %s: %w", mirrorServerID, err)
	}
	for _, feature := range guild.Features {
		if feature == communityGuildFeature {
			return true, nil
		}
	}
	return false, nil
}

// communityGuildFeature is the raw Discord guild feature flag string;
// spelled out rather than relying on a discordgo constant since the flag
// list is a plain []string on discordgo.Guild.
const communityGuildFeature = "COMMUNITY"

func (c *Client) CreateCategory(ctx context.Context, mirrorServerID string, name string) (string, error) {
	return c.CreateChannel(ctx, mirrorServerID, transport.ChannelInfo{Name: name, Kind: 4})
}

// CreateForumPost creates a new post (thread) under a forum channel. The
// forum channel must already exist with defaultAutoArchiveDuration and an
// empty availableTags set (spec §6 "Control client").
func (c *Client) CreateForumPost(ctx context.Context, forumChannelID, title, content string) (string, string, error) {
	th, err := c.session.ForumThreadStartComplex(forumChannelID, &discordgo.ThreadStart{
		Name:                title,
		AutoArchiveDuration: 1440,
		Type:                discordgo.ChannelTypeGuildPublicThread,
	}, &discordgo.MessageSend{Content: content}, discordgo.WithContext(ctx))
	if err != nil {
		return "", "", fmt.Errorf("create forum post %q: %w", title, err)
	}
	msgID := ""
	if th.LastMessageID != "" {
		msgID = th.LastMessageID
	}
	return th.ID, msgID, nil
}

func (c *Client) CreateThread(ctx context.Context, parentChannelID, messageID, name string) (string, error) {
	th, err := c.session.MessageThreadStartComplex(parentChannelID, messageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: 1440,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create thread %q: %w", name, err)
	}
	return th.ID, nil
}

func (c *Client) CreateRole(ctx context.Context, mirrorServerID string, name string, permissions int64) (string, error) {
	role, err := c.session.GuildRoleCreate(mirrorServerID, &discordgo.RoleParams{
		Name:        name,
		Permissions: &permissions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create mirror role %q: %w", name, err)
	}
	return role.ID, nil
}

func (c *Client) EditRolePermissions(ctx context.Context, mirrorServerID, roleID string, permissions int64) error {
	_, err := c.session.GuildRoleEdit(mirrorServerID, roleID, &discordgo.RoleParams{
		Permissions: &permissions,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit mirror role %s permissions: %w", roleID, err)
	}
	return nil
}

func (c *Client) EditChannelName(ctx context.Context, channelID, name string) error {
	_, err := c.session.ChannelEditComplex(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("edit mirror channel %s name: %w", channelID, err)
	}
	return nil
}

func (c *Client) CreateWebhook(ctx context.Context, channelID, name string) (string, string, error) {
	wh, err := c.session.WebhookCreate(channelID, name, "", discordgo.WithContext(ctx))
	if err != nil {
		return "", "", fmt.Errorf("create webhook for channel %s: %w", channelID, err)
	}
	return wh.ID, wh.Token, nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	if err := c.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("add reaction %q to %s: %w", emoji, messageID, err)
	}
	return nil
}

func (c *Client) ChannelCount(ctx context.Context, mirrorServerID string) (int, error) {
	channels, err := c.session.GuildChannels(mirrorServerID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("list mirror channels: %w", err)
	}
	count := 0
	for _, ch := range channels {
		switch ch.Type {
		case discordgo.ChannelTypeGuildCategory,
			discordgo.ChannelTypeGuildPublicThread,
			discordgo.ChannelTypeGuildPrivateThread,
			discordgo.ChannelTypeGuildNewsThread:
			continue
		default:
			count++
		}
	}
	return count, nil
}

// SendMessage posts a plain bot message to a mirror channel, used for the
// error/newroom/admin log channels (spec §6).
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send bot message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// EnsureSystemRoles creates or augments the mirror's two system roles (admin,
// members) at boot with exactly the required bits (spec §4.5). The members
// role is augmented non-destructively; the admin role is set exactly.
func (c *Client) EnsureSystemRoles(ctx context.Context, mirrorServerID string, adminBits, memberBits int64) error {
	roles, err := c.session.GuildRoles(mirrorServerID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("list mirror roles: %w", err)
	}

	var admin, members *discordgo.Role
	for _, r := range roles {
		switch r.Name {
		case "admin":
			admin = r
		case "members":
			members = r
		}
	}

	if admin == nil {
		if _, err := c.CreateRole(ctx, mirrorServerID, "admin", adminBits); err != nil {
			return err
		}
	} else if admin.Permissions != adminBits {
		if err := c.EditRolePermissions(ctx, mirrorServerID, admin.ID, adminBits); err != nil {
			return err
		}
	}

	if members == nil {
		if _, err := c.CreateRole(ctx, mirrorServerID, "members", memberBits); err != nil {
			return err
		}
	} else {
		augmented := members.Permissions | memberBits
		if augmented != members.Permissions {
			if err := c.EditRolePermissions(ctx, mirrorServerID, members.ID, augmented); err != nil {
				return err
			}
		}
	}

	slog.Debug("system roles ensured", "server_id", mirrorServerID)
	return nil
}
