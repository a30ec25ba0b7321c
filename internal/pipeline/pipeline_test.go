package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/correspondence"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/ratelimit"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

type fakeChannelStore struct {
	mu   sync.Mutex
	rows map[string]store.ChannelMapping
}

func newFakeChannelStore() *fakeChannelStore { return &fakeChannelStore{rows: make(map[string]store.ChannelMapping)} }
func (f *fakeChannelStore) key(a, b string) string { return a + "|" + b }
func (f *fakeChannelStore) Find(_ context.Context, sourceChannelID, sourceServerID string) (*store.ChannelMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.rows[f.key(sourceChannelID, sourceServerID)]; ok {
		return &m, nil
	}
	return nil, nil
}
func (f *fakeChannelStore) FindByMirrorID(context.Context, string) (*store.ChannelMapping, error) { return nil, nil }
func (f *fakeChannelStore) ListByServer(context.Context, string, bool) ([]store.ChannelMapping, error) {
	return nil, nil
}
func (f *fakeChannelStore) Upsert(_ context.Context, m store.ChannelMapping) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[f.key(m.SourceChannelID, m.SourceServerID)] = m
	return nil
}
func (f *fakeChannelStore) MarkBlacklisted(context.Context, string, string, time.Time) error { return nil }
func (f *fakeChannelStore) IncrementFailedAttempts(context.Context, string, string) (int, error) {
	return 0, nil
}
func (f *fakeChannelStore) MarkManuallyDeleted(context.Context, string, string) error { return nil }
func (f *fakeChannelStore) TouchActivity(context.Context, string, string, time.Time) error { return nil }
func (f *fakeChannelStore) CountActive(context.Context, string) (int, error) { return 0, nil }

type fakeRoleStore struct{}

func (fakeRoleStore) Find(context.Context, string, string) (*store.RoleMapping, error) { return nil, nil }
func (fakeRoleStore) ListByServer(context.Context, string) ([]store.RoleMapping, error)  { return nil, nil }
func (fakeRoleStore) Upsert(context.Context, store.RoleMapping) error                    { return nil }

type fakeControl struct{}

func (fakeControl) CreateChannel(context.Context, string, transport.ChannelInfo) (string, error) {
	return "mirror-chan", nil
}
func (fakeControl) CreateCategory(context.Context, string, string) (string, error)   { return "mirror-cat", nil }
func (fakeControl) CreateForumPost(context.Context, string, string, string) (string, string, error) {
	return "", "", nil
}
func (fakeControl) CreateThread(context.Context, string, string, string) (string, error) { return "", nil }
func (fakeControl) CreateRole(context.Context, string, string, int64) (string, error)    { return "", nil }
func (fakeControl) EditRolePermissions(context.Context, string, string, int64) error      { return nil }
func (fakeControl) EditChannelName(context.Context, string, string) error                 { return nil }
func (fakeControl) CreateWebhook(context.Context, string, string) (string, string, error) {
	return "wh", "tok", nil
}
func (fakeControl) AddReaction(context.Context, string, string, string) error { return nil }
func (fakeControl) ChannelCount(context.Context, string) (int, error)         { return 0, nil }
func (fakeControl) SendMessage(context.Context, string, string) (string, error) { return "log-msg-1", nil }
func (fakeControl) IsCommunityServer(context.Context, string) (bool, error)   { return true, nil }

type fakeEndpoint struct {
	mu    sync.Mutex
	sent  []transport.OutboundPayload
	edits []transport.OutboundPayload
}

func (f *fakeEndpoint) ID() string     { return "endpoint-1" }
func (f *fakeEndpoint) Secret() string { return "secret-1" }
func (f *fakeEndpoint) Send(_ context.Context, payload transport.OutboundPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return "mirror-msg-1", nil
}
func (f *fakeEndpoint) Edit(_ context.Context, _ string, payload transport.OutboundPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, payload)
	return nil
}

type fakeEndpointProvider struct{ endpoint *fakeEndpoint }

func (f fakeEndpointProvider) Get(context.Context, string, string) (transport.Endpoint, error) {
	return f.endpoint, nil
}

type fakeMessageStore struct {
	mu   sync.Mutex
	rows map[string]store.ProcessedMessage
}

func newFakeMessageStore() *fakeMessageStore { return &fakeMessageStore{rows: make(map[string]store.ProcessedMessage)} }
func (f *fakeMessageStore) FindBySourceID(_ context.Context, id string) (*store.ProcessedMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.rows[id]; ok {
		return &m, nil
	}
	return nil, nil
}
func (f *fakeMessageStore) Insert(_ context.Context, m store.ProcessedMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[m.SourceMessageID] = m
	return nil
}
func (f *fakeMessageStore) UpdateAfterEdit(_ context.Context, sourceMessageID, renderedContent string, awaitingEmbed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.rows[sourceMessageID]
	m.RenderedContent = renderedContent
	m.AwaitingEmbed = awaitingEmbed
	f.rows[sourceMessageID] = m
	return nil
}

type fakeTopology struct{ corr *correspondence.Manager }

func (f fakeTopology) AutoConfigureChannel(ctx context.Context, sourceChannelID, sourceServerID, mirrorServerID string) (string, error) {
	mirrorID := "mirror-deferred-chan"
	if err := f.corr.RegisterChannelMapping(ctx, store.ChannelMapping{
		SourceChannelID: sourceChannelID,
		SourceServerID:  sourceServerID,
		MirrorChannelID: mirrorID,
		MirrorServerID:  mirrorServerID,
		Kind:            store.ChannelKindText,
		Scraped:         true,
	}); err != nil {
		return "", err
	}
	return mirrorID, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *fakeEndpoint, *fakeMessageStore) {
	t.Helper()
	corr, err := correspondence.New(newFakeChannelStore(), fakeRoleStore{}, fakeControl{})
	require.NoError(t, err)

	require.NoError(t, corr.RegisterChannelMapping(context.Background(), store.ChannelMapping{
		SourceChannelID: "src-chan-1",
		SourceServerID:  "source-server",
		MirrorChannelID: "mirror-chan-1",
		MirrorServerID:  "mirror-1",
		Kind:            store.ChannelKindText,
		Scraped:         true,
	}))

	endpoint := &fakeEndpoint{}
	messages := newFakeMessageStore()

	p := New("source-server", "mirror-1")
	p.Corr = corr
	p.Control = fakeControl{}
	p.Endpoints = fakeEndpointProvider{endpoint: endpoint}
	p.Messages = messages
	p.Limiter = ratelimit.New()
	p.RetryQ = ratelimit.NewRetryQueue()
	t.Cleanup(func() {
		p.Close()
		p.Limiter.Stop()
		p.RetryQ.Stop()
	})
	return p, endpoint, messages
}

func TestOnSourceEvent_MessageWithEmbedSubmitsImmediately(t *testing.T) {
	p, endpoint, messages := newTestPipeline(t)

	evt := transport.Event{
		Kind: transport.EventMessageCreated,
		Message: transport.Message{
			ID:        "msg-1",
			ChannelID: "src-chan-1",
			AuthorID:  "author-1",
			Content:   "hello world",
			Embeds:    []transport.Embed{{Title: "t"}},
			Timestamp: time.Now(),
		},
	}
	require.NoError(t, p.OnSourceEvent(context.Background(), evt))

	require.Eventually(t, func() bool {
		_, err := messages.FindBySourceID(context.Background(), "msg-1")
		m, _ := messages.FindBySourceID(context.Background(), "msg-1")
		return err == nil && m != nil
	}, time.Second, 10*time.Millisecond)

	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	require.Len(t, endpoint.sent, 1)
	assert.Equal(t, "hello world", endpoint.sent[0].Content)
}

func TestOnSourceEvent_PlainMessageBuffersBeforeSubmit(t *testing.T) {
	p, endpoint, _ := newTestPipeline(t)

	evt := transport.Event{
		Kind: transport.EventMessageCreated,
		Message: transport.Message{
			ID:        "msg-2",
			ChannelID: "src-chan-1",
			AuthorID:  "author-1",
			Content:   "plain text",
			Timestamp: time.Now(),
		},
	}
	require.NoError(t, p.OnSourceEvent(context.Background(), evt))

	time.Sleep(500 * time.Millisecond)
	endpoint.mu.Lock()
	assert.Empty(t, endpoint.sent, "plain message must still be buffered before the 3s window elapses")
	endpoint.mu.Unlock()
}

func TestOnSourceEvent_NoiseFilterDropsMessage(t *testing.T) {
	p, endpoint, _ := newTestPipeline(t)
	p.NoiseFilterAuthorIDs["spam-bot"] = struct{}{}

	evt := transport.Event{
		Kind: transport.EventMessageCreated,
		Message: transport.Message{
			ID:        "msg-3",
			ChannelID: "src-chan-1",
			AuthorID:  "spam-bot",
			Content:   "buy now",
			Embeds:    []transport.Embed{{Title: "t"}},
		},
	}
	require.NoError(t, p.OnSourceEvent(context.Background(), evt))

	time.Sleep(200 * time.Millisecond)
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	assert.Empty(t, endpoint.sent)
}

func TestOnSourceEvent_UnresolvedChannelWithoutTopologyIsDropped(t *testing.T) {
	p, endpoint, _ := newTestPipeline(t)

	evt := transport.Event{
		Kind: transport.EventMessageCreated,
		Message: transport.Message{
			ID:        "msg-4",
			ChannelID: "unknown-channel",
			AuthorID:  "author-1",
			Content:   "hi",
			Embeds:    []transport.Embed{{Title: "t"}},
		},
	}
	require.NoError(t, p.OnSourceEvent(context.Background(), evt))

	time.Sleep(200 * time.Millisecond)
	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	assert.Empty(t, endpoint.sent)
}

func TestDeferredChannelMention_EditsPlaceholderOnceMappingResolves(t *testing.T) {
	p, endpoint, _ := newTestPipeline(t)
	p.Topology = fakeTopology{corr: p.Corr}

	evt := transport.Event{
		Kind: transport.EventMessageCreated,
		Message: transport.Message{
			ID:        "msg-5",
			ChannelID: "src-chan-1",
			AuthorID:  "author-1",
			Content:   "check <#222222222222222222>",
			Embeds:    []transport.Embed{{Title: "t"}},
		},
	}
	require.NoError(t, p.OnSourceEvent(context.Background(), evt))

	require.Eventually(t, func() bool {
		endpoint.mu.Lock()
		defer endpoint.mu.Unlock()
		return len(endpoint.edits) == 1
	}, 3*time.Second, 20*time.Millisecond, "placeholder must be edited in place once the deferred channel mapping resolves")

	endpoint.mu.Lock()
	defer endpoint.mu.Unlock()
	assert.Contains(t, endpoint.edits[0].Content, "<#mirror-deferred-chan>")
	assert.Len(t, endpoint.edits[0].Embeds, 1, "embeds must survive the deferred placeholder edit")
}

func TestSplitAttachments_GroupsWithinCaps(t *testing.T) {
	files := []transport.Attachment{
		{Filename: "a", Size: 1 * 1024 * 1024},
		{Filename: "b", Size: 1 * 1024 * 1024},
		{Filename: "c", Size: 1 * 1024 * 1024},
		{Filename: "d", Size: 1 * 1024 * 1024},
	}
	first, rest := splitAttachments(files)
	assert.LessOrEqual(t, len(first), maxFilesPerGroup)
	for _, g := range rest {
		assert.LessOrEqual(t, len(g), maxFilesPerGroup)
	}
}

func TestSplitAttachments_OversizedFileLeftOutOfGroups(t *testing.T) {
	files := []transport.Attachment{{Filename: "huge", Size: maxGroupBytes + 1}}
	first, rest := splitAttachments(files)
	assert.Empty(t, first)
	assert.Empty(t, rest)
}
