// Package mention implements the pure normalization rules the Replication
// Pipeline applies to outbound content: mention rewriting, URL rewriting, and
// size clamping (spec §4.2 steps 4-5, §9 "Pure normalization"). Every
// function here is deterministic and side-effect free so it can be
// property-tested without a live session.
package mention

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

const (
	// MaxContentLength is the hard clamp applied to outbound message content
	// (spec §4.2 step 4).
	MaxContentLength = 2000
	// MaxEmbedTotalLength is the combined length ceiling across one embed's
	// fields (spec §4.2 step 5).
	MaxEmbedTotalLength = 6000
	// MaxEmbedsPerMessage bounds how many embeds one message replicates.
	MaxEmbedsPerMessage = 10

	ellipsis = "…"
)

// Resolver looks up mirror-side identifiers for mention rewriting. It is
// satisfied by the Correspondence Manager; kept minimal here so this package
// never imports correspondence.
type Resolver interface {
	ResolveChannel(sourceChannelID string) (mirrorChannelID string, ok bool)
	ResolveRole(sourceRoleID string) (mirrorRoleID string, ok bool)
	UserDisplayName(sourceUserID string) string
	RoleName(sourceRoleID string) string
	ChannelName(sourceChannelID string) string
}

var (
	userMentionRe    = regexp.MustCompile(`<@!?(\d{17,20})>`)
	roleMentionRe    = regexp.MustCompile(`<@&(\d{17,20})>`)
	channelMentionRe = regexp.MustCompile(`<#(\d{17,20})>`)
)

// RewriteResult is the normalized content plus any channel mentions that
// could not be resolved and must be created in the background (spec §4.3
// "Deferred channel creation from mentions").
type RewriteResult struct {
	Content           string
	DeferredChannels  []string
}

// RewriteContent rewrites user, role, and channel mentions in content
// according to spec §4.2 step 4:
//   - user mentions become a bolded plain display name, never a live ping.
//   - role mentions become a live mirror role mention when mapped, otherwise
//     a bolded plain name.
//   - channel mentions become a live mirror channel reference when mapped,
//     otherwise a bolded plain name, and are returned in DeferredChannels so
//     the caller can schedule mirror-channel creation.
func RewriteContent(content string, resolver Resolver) RewriteResult {
	var deferred []string

	out := userMentionRe.ReplaceAllStringFunc(content, func(match string) string {
		id := userMentionRe.FindStringSubmatch(match)[1]
		name := resolver.UserDisplayName(id)
		if name == "" {
			name = "unknown-user"
		}
		return fmt.Sprintf("**@%s**", name)
	})

	out = roleMentionRe.ReplaceAllStringFunc(out, func(match string) string {
		id := roleMentionRe.FindStringSubmatch(match)[1]
		if mirrorID, ok := resolver.ResolveRole(id); ok {
			return fmt.Sprintf("<@&%s>", mirrorID)
		}
		name := resolver.RoleName(id)
		if name == "" {
			name = "unknown-role"
		}
		return fmt.Sprintf("**@%s**", name)
	})

	out = channelMentionRe.ReplaceAllStringFunc(out, func(match string) string {
		id := channelMentionRe.FindStringSubmatch(match)[1]
		if mirrorID, ok := resolver.ResolveChannel(id); ok {
			return fmt.Sprintf("<#%s>", mirrorID)
		}
		deferred = append(deferred, id)
		name := resolver.ChannelName(id)
		if name == "" {
			name = "unknown-channel"
		}
		return fmt.Sprintf("**#%s**", name)
	})

	return RewriteResult{Content: out, DeferredChannels: deferred}
}

// RewriteEveryone wraps every @everyone/@here in content in bold markup; the
// text is kept, not removed. The mirror never replicates a live mass mention
// because the impersonation endpoint allows role mentions only (spec §8
// testable property).
func RewriteEveryone(content string) string {
	content = strings.ReplaceAll(content, "@everyone", "**@everyone**")
	content = strings.ReplaceAll(content, "@here", "**@here**")
	return content
}

// ClampContent truncates s to MaxContentLength runes, appending an ellipsis
// marker when truncation occurred (spec §4.2 step 4).
func ClampContent(s string) string {
	return clamp(s, MaxContentLength)
}

func clamp(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return string(r[:max])
	}
	return string(r[:max-len([]rune(ellipsis))]) + ellipsis
}

// ClampEmbeds drops embeds beyond MaxEmbedsPerMessage and rejects any
// remaining embed whose combined title/description/author/footer/field
// length exceeds MaxEmbedTotalLength outright (spec §4.2 step 5, §8: a
// 6001-char embed is dropped for that embed, not truncated into it — the
// rest of the message still sends).
func ClampEmbeds(embeds []transport.Embed) []transport.Embed {
	if len(embeds) > MaxEmbedsPerMessage {
		embeds = embeds[:MaxEmbedsPerMessage]
	}
	out := make([]transport.Embed, 0, len(embeds))
	for _, e := range embeds {
		if !isValidEmbed(e) {
			continue
		}
		if embedTotalLength(e) > MaxEmbedTotalLength {
			continue
		}
		out = append(out, e)
	}
	return out
}

func isValidEmbed(e transport.Embed) bool {
	return e.Title != "" || e.Description != "" || len(e.Fields) > 0 || e.ImageURL != ""
}

func embedTotalLength(e transport.Embed) int {
	total := len([]rune(e.Title)) + len([]rune(e.Description)) + len([]rune(e.Author)) + len([]rune(e.Footer))
	for _, f := range e.Fields {
		total += len([]rune(f.Name)) + len([]rune(f.Value))
	}
	return total
}

// RewriteSourceURLs rewrites URLs pointing at the source server's own
// messages/channels to their mirror equivalent when the target is known
// (spec §4.2 step 4 last clause). URLs under
// "https://discord.com/channels/<sourceServerID>/" are rewritten to the same
// shape under mirrorServerID; resolver maps the embedded channel id.
func RewriteSourceURLs(content, sourceServerID, mirrorServerID string, resolver Resolver) string {
	prefix := fmt.Sprintf("https://discord.com/channels/%s/", sourceServerID)
	if !strings.Contains(content, prefix) {
		return content
	}
	urlRe := regexp.MustCompile(regexp.QuoteMeta(prefix) + `(\d{17,20})(/(\d{17,20}))?`)
	return urlRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := urlRe.FindStringSubmatch(match)
		channelID := parts[1]
		mirrorChannelID, ok := resolver.ResolveChannel(channelID)
		if !ok {
			return match
		}
		rewritten := fmt.Sprintf("https://discord.com/channels/%s/%s", mirrorServerID, mirrorChannelID)
		if parts[3] != "" {
			rewritten += "/" + parts[3]
		}
		return rewritten
	})
}
