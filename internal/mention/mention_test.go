package mention

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

type fakeResolver struct {
	channels map[string]string
	roles    map[string]string
	names    map[string]string
}

func (f fakeResolver) ResolveChannel(id string) (string, bool) { v, ok := f.channels[id]; return v, ok }
func (f fakeResolver) ResolveRole(id string) (string, bool)    { v, ok := f.roles[id]; return v, ok }
func (f fakeResolver) UserDisplayName(id string) string        { return f.names[id] }
func (f fakeResolver) RoleName(id string) string                { return f.names[id] }
func (f fakeResolver) ChannelName(id string) string             { return f.names[id] }

func TestRewriteContent_UserMentionNeverPings(t *testing.T) {
	r := fakeResolver{names: map[string]string{"123456789012345678": "alice"}}
	out := RewriteContent("hello <@123456789012345678>", r)
	assert.Equal(t, "hello **@alice**", out.Content)
	assert.NotContains(t, out.Content, "<@123456789012345678>")
}

func TestRewriteContent_MappedRoleStaysLive(t *testing.T) {
	r := fakeResolver{roles: map[string]string{"111111111111111111": "222222222222222222"}}
	out := RewriteContent("ping <@&111111111111111111>", r)
	assert.Equal(t, "ping <@&222222222222222222>", out.Content)
}

func TestRewriteContent_UnmappedChannelDeferredAndBolded(t *testing.T) {
	r := fakeResolver{names: map[string]string{"333333333333333333": "general"}}
	out := RewriteContent("see <#333333333333333333>", r)
	assert.Equal(t, "see **#general**", out.Content)
	require.Len(t, out.DeferredChannels, 1)
	assert.Equal(t, "333333333333333333", out.DeferredChannels[0])
}

func TestRewriteEveryone_NeverLive(t *testing.T) {
	assert.Equal(t, "**@everyone** gm", RewriteEveryone("@everyone gm"))
}

func TestClampContent_AppendsEllipsisOnlyWhenTruncated(t *testing.T) {
	short := "short message"
	assert.Equal(t, short, ClampContent(short))

	long := strings.Repeat("a", MaxContentLength+50)
	clamped := ClampContent(long)
	assert.Len(t, []rune(clamped), MaxContentLength)
	assert.True(t, strings.HasSuffix(clamped, ellipsis))
}

func TestClampEmbeds_DropsBeyondMaxCount(t *testing.T) {
	embeds := make([]transport.Embed, MaxEmbedsPerMessage+5)
	for i := range embeds {
		embeds[i] = transport.Embed{Title: "t"}
	}
	out := ClampEmbeds(embeds)
	assert.Len(t, out, MaxEmbedsPerMessage)
}

func TestClampEmbeds_DropsInvalidEmbeds(t *testing.T) {
	out := ClampEmbeds([]transport.Embed{{}, {Title: "valid"}})
	require.Len(t, out, 1)
	assert.Equal(t, "valid", out[0].Title)
}

func TestClampEmbeds_DropsEmbedOverTotalLengthBudget(t *testing.T) {
	embeds := []transport.Embed{{
		Title:       strings.Repeat("a", 4000),
		Description: strings.Repeat("b", 4000),
	}}
	out := ClampEmbeds(embeds)
	assert.Empty(t, out, "an embed whose total exceeds MaxEmbedTotalLength must be dropped, not truncated")
}

func TestClampEmbeds_KeepsEmbedAtExactBudget(t *testing.T) {
	embeds := []transport.Embed{{Description: strings.Repeat("a", MaxEmbedTotalLength)}}
	out := ClampEmbeds(embeds)
	require.Len(t, out, 1)
}

func TestClampEmbeds_DropsOnlyTheOversizedEmbed(t *testing.T) {
	embeds := []transport.Embed{
		{Title: "fits"},
		{Description: strings.Repeat("a", MaxEmbedTotalLength+1)},
	}
	out := ClampEmbeds(embeds)
	require.Len(t, out, 1)
	assert.Equal(t, "fits", out[0].Title)
}

func TestRewriteSourceURLs_RewritesKnownChannel(t *testing.T) {
	r := fakeResolver{channels: map[string]string{"444444444444444444": "555555555555555555"}}
	content := "check https://discord.com/channels/999999999999999999/444444444444444444/666666666666666666"
	out := RewriteSourceURLs(content, "999999999999999999", "888888888888888888", r)
	assert.Equal(t, "check https://discord.com/channels/888888888888888888/555555555555555555/666666666666666666", out)
}

func TestRewriteSourceURLs_LeavesUnknownChannelUntouched(t *testing.T) {
	r := fakeResolver{}
	content := "check https://discord.com/channels/999999999999999999/444444444444444444"
	out := RewriteSourceURLs(content, "999999999999999999", "888888888888888888", r)
	assert.Equal(t, content, out)
}
