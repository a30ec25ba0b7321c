// Package observe wraps a user-token discordgo session as the read-only
// transport.Observe implementation. It opens the gateway connection the same
// way the teacher's internal/channels/discord.Channel opens its bot session,
// but authenticates with a user token and never writes to the source server.
package observe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

// Session implements transport.Observe over a self-bot discordgo session.
type Session struct {
	session *discordgo.Session
	events  chan transport.Event
}

// New opens a user-token gateway connection. The token must be a raw user
// token, not prefixed with "Bot " (spec §6 "Observation client").
func New(userToken string) (*Session, error) {
	session, err := discordgo.New(userToken)
	if err != nil {
		return nil, fmt.Errorf("create observe session: %w", err)
	}
	// A self-bot has no intents to declare; the gateway sends every event
	// visible to the underlying user account.
	s := &Session{
		session: session,
		events:  make(chan transport.Event, 256),
	}
	session.AddHandler(s.onMessageCreate)
	session.AddHandler(s.onMessageUpdate)
	session.AddHandler(s.onMessageReactionAdd)
	session.AddHandler(s.onThreadCreate)
	session.AddHandler(s.onChannelCreate)

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("open observe session: %w", err)
	}
	return s, nil
}

// Close closes the gateway connection.
func (s *Session) Close() error {
	close(s.events)
	return s.session.Close()
}

// Events returns the channel of normalized source-side events. The channel
// is closed when Close is called; cancelling ctx does not close it.
func (s *Session) Events(ctx context.Context) (<-chan transport.Event, error) {
	go func() {
		<-ctx.Done()
	}()
	return s.events, nil
}

func (s *Session) emit(e transport.Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("observe event buffer full, dropping event", "kind", e.Kind)
	}
}

func (s *Session) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	s.emit(transport.Event{Kind: transport.EventMessageCreated, Message: toMessage(m.Message)})
}

func (s *Session) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Author == nil {
		return
	}
	s.emit(transport.Event{Kind: transport.EventMessageUpdated, Message: toMessage(m.Message)})
}

func (s *Session) onMessageReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	s.emit(transport.Event{
		Kind: transport.EventReactionAdded,
		Message: transport.Message{
			ID:        r.MessageID,
			ChannelID: r.ChannelID,
			GuildID:   r.GuildID,
		},
		Emoji: r.Emoji.APIName(),
	})
}

func (s *Session) onThreadCreate(_ *discordgo.Session, t *discordgo.ThreadCreate) {
	s.emit(transport.Event{
		Kind:    transport.EventThreadCreated,
		Channel: toChannelInfo(t.Channel),
	})
}

func (s *Session) onChannelCreate(_ *discordgo.Session, c *discordgo.ChannelCreate) {
	s.emit(transport.Event{
		Kind:    transport.EventChannelCreated,
		Channel: toChannelInfo(c.Channel),
	})
}

func toMessage(m *discordgo.Message) transport.Message {
	out := transport.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.Username = m.Author.Username
		out.AvatarURL = m.Author.AvatarURL("256")
		out.IsBot = m.Author.Bot
	}
	mentions := transport.MentionSet{Everyone: m.MentionEveryone}
	for _, u := range m.Mentions {
		mentions.UserIDs = append(mentions.UserIDs, u.ID)
	}
	mentions.RoleIDs = append(mentions.RoleIDs, m.MentionRoles...)
	out.Mentions = mentions

	for _, e := range m.Embeds {
		out.Embeds = append(out.Embeds, toEmbed(e))
	}
	for _, a := range m.Attachments {
		out.Files = append(out.Files, transport.Attachment{URL: a.URL, Filename: a.Filename, Size: a.Size})
	}
	return out
}

func toEmbed(e *discordgo.MessageEmbed) transport.Embed {
	out := transport.Embed{Title: e.Title, Description: e.Description, URL: e.URL, Color: e.Color}
	if e.Author != nil {
		out.Author = e.Author.Name
	}
	if e.Footer != nil {
		out.Footer = e.Footer.Text
	}
	if e.Image != nil {
		out.ImageURL = e.Image.URL
	}
	if e.Thumbnail != nil {
		out.ThumbURL = e.Thumbnail.URL
	}
	for _, f := range e.Fields {
		out.Fields = append(out.Fields, transport.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return out
}

func toChannelInfo(c *discordgo.Channel) transport.ChannelInfo {
	if c == nil {
		return transport.ChannelInfo{}
	}
	return transport.ChannelInfo{
		ID:       c.ID,
		Name:     c.Name,
		Kind:     int(c.Type),
		ParentID: c.ParentID,
		Topic:    c.Topic,
	}
}

func (s *Session) FetchGuildChannels(ctx context.Context, sourceServerID string) ([]transport.ChannelInfo, error) {
	channels, err := s.session.GuildChannels(sourceServerID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild channels for %s: %w", sourceServerID, err)
	}
	out := make([]transport.ChannelInfo, 0, len(channels))
	for _, c := range channels {
		out = append(out, toChannelInfo(c))
	}
	return out, nil
}

func (s *Session) FetchGuildRoles(ctx context.Context, sourceServerID string) ([]transport.RoleInfo, error) {
	roles, err := s.session.GuildRoles(sourceServerID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild roles for %s: %w", sourceServerID, err)
	}
	out := make([]transport.RoleInfo, 0, len(roles))
	for _, r := range roles {
		out = append(out, transport.RoleInfo{ID: r.ID, Name: r.Name, Permissions: r.Permissions})
	}
	return out, nil
}

func (s *Session) FetchGuildMemberCount(ctx context.Context, sourceServerID string) (int, error) {
	guild, err := s.session.Guild(sourceServerID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("fetch guild %s: %w", sourceServerID, err)
	}
	if guild.ApproximateMemberCount > 0 {
		return guild.ApproximateMemberCount, nil
	}
	return guild.MemberCount, nil
}

// FetchGuildMembers is the bulk-gateway member-list retrieval method in the
// member tracker's composition (spec §4.9 method 3). It paginates by
// snowflake "after" cursor, 1000 at a time, matching discordgo's
// GuildMembers semantics.
func (s *Session) FetchGuildMembers(ctx context.Context, sourceServerID string, limit int, after string) ([]string, error) {
	members, err := s.session.GuildMembers(sourceServerID, after, limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch guild members for %s: %w", sourceServerID, err)
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			out = append(out, m.User.ID)
		}
	}
	return out, nil
}

// SearchGuildMembers finds members by username/nickname prefix, used by the
// alphabetic brute-force detector pass.
func (s *Session) SearchGuildMembers(ctx context.Context, sourceServerID, query string, limit int) ([]string, error) {
	members, err := s.session.GuildMembersSearch(sourceServerID, query, limit, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("search guild members for %s query %q: %w", sourceServerID, query, err)
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		if m.User != nil {
			out = append(out, m.User.ID)
		}
	}
	return out, nil
}

func (s *Session) FetchThreadByID(ctx context.Context, channelID string) (*transport.ChannelInfo, error) {
	ch, err := s.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", channelID, err)
	}
	info := toChannelInfo(ch)
	return &info, nil
}

func (s *Session) FetchChannelMessages(ctx context.Context, channelID string, limit int, before, after string) ([]transport.Message, error) {
	msgs, err := s.session.ChannelMessages(channelID, limit, before, after, "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", channelID, err)
	}
	out := make([]transport.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

// TestChannelAccess probes read access with a single lightweight GET, per
// spec §4.3's Channel Monitor scan. A 403/404 response signals the channel
// should be blacklisted until the next scheduled recheck.
func (s *Session) TestChannelAccess(ctx context.Context, channelID string) (bool, int, error) {
	_, err := s.session.ChannelMessages(channelID, 1, "", "", "", discordgo.WithContext(ctx))
	if err == nil {
		return true, http.StatusOK, nil
	}
	if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil {
		status := restErr.Response.StatusCode
		if status == http.StatusForbidden || status == http.StatusNotFound {
			return false, status, nil
		}
		return false, status, fmt.Errorf("test access to %s: %w", channelID, err)
	}
	return false, 0, fmt.Errorf("test access to %s: %w", channelID, err)
}
