package correspondence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

type fakeChannelStore struct {
	rows map[string]store.ChannelMapping // key: sourceChannelID|sourceServerID
}

func newFakeChannelStore() *fakeChannelStore {
	return &fakeChannelStore{rows: make(map[string]store.ChannelMapping)}
}

func (f *fakeChannelStore) key(sourceChannelID, sourceServerID string) string {
	return sourceChannelID + "|" + sourceServerID
}

func (f *fakeChannelStore) Find(_ context.Context, sourceChannelID, sourceServerID string) (*store.ChannelMapping, error) {
	if m, ok := f.rows[f.key(sourceChannelID, sourceServerID)]; ok {
		return &m, nil
	}
	return nil, nil
}
func (f *fakeChannelStore) FindByMirrorID(_ context.Context, mirrorChannelID string) (*store.ChannelMapping, error) {
	for _, m := range f.rows {
		if m.MirrorChannelID == mirrorChannelID {
			return &m, nil
		}
	}
	return nil, nil
}
func (f *fakeChannelStore) ListByServer(_ context.Context, sourceServerID string, scrapedOnly bool) ([]store.ChannelMapping, error) {
	var out []store.ChannelMapping
	for _, m := range f.rows {
		if m.SourceServerID == sourceServerID && (!scrapedOnly || m.Scraped) {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeChannelStore) Upsert(_ context.Context, m store.ChannelMapping) error {
	f.rows[f.key(m.SourceChannelID, m.SourceServerID)] = m
	return nil
}
func (f *fakeChannelStore) MarkBlacklisted(_ context.Context, sourceChannelID, sourceServerID string, until time.Time) error {
	k := f.key(sourceChannelID, sourceServerID)
	m := f.rows[k]
	m.Blacklisted = true
	m.BlacklistedUntil = until
	f.rows[k] = m
	return nil
}
func (f *fakeChannelStore) IncrementFailedAttempts(_ context.Context, sourceChannelID, sourceServerID string) (int, error) {
	k := f.key(sourceChannelID, sourceServerID)
	m := f.rows[k]
	m.FailedAttempts++
	f.rows[k] = m
	return m.FailedAttempts, nil
}
func (f *fakeChannelStore) MarkManuallyDeleted(_ context.Context, sourceChannelID, sourceServerID string) error {
	k := f.key(sourceChannelID, sourceServerID)
	m := f.rows[k]
	m.ManuallyDeleted = true
	f.rows[k] = m
	return nil
}
func (f *fakeChannelStore) TouchActivity(_ context.Context, sourceChannelID, sourceServerID string, at time.Time) error {
	k := f.key(sourceChannelID, sourceServerID)
	m := f.rows[k]
	m.LastActivity = at
	f.rows[k] = m
	return nil
}
func (f *fakeChannelStore) CountActive(_ context.Context, mirrorServerID string) (int, error) {
	count := 0
	for _, m := range f.rows {
		if m.MirrorServerID == mirrorServerID && m.Scraped {
			count++
		}
	}
	return count, nil
}

type fakeRoleStore struct {
	rows map[string]store.RoleMapping
}

func newFakeRoleStore() *fakeRoleStore { return &fakeRoleStore{rows: make(map[string]store.RoleMapping)} }

func (f *fakeRoleStore) key(sourceRoleID, sourceServerID string) string {
	return sourceRoleID + "|" + sourceServerID
}
func (f *fakeRoleStore) Find(_ context.Context, sourceRoleID, sourceServerID string) (*store.RoleMapping, error) {
	if m, ok := f.rows[f.key(sourceRoleID, sourceServerID)]; ok {
		return &m, nil
	}
	return nil, nil
}
func (f *fakeRoleStore) ListByServer(_ context.Context, sourceServerID string) ([]store.RoleMapping, error) {
	var out []store.RoleMapping
	for _, m := range f.rows {
		if m.SourceServerID == sourceServerID {
			out = append(out, m)
		}
	}
	return out, nil
}
func (f *fakeRoleStore) Upsert(_ context.Context, m store.RoleMapping) error {
	f.rows[f.key(m.SourceRoleID, m.SourceServerID)] = m
	return nil
}

type fakeControl struct {
	createdChannels int
	createdCategory int
	createdRoles    int
	nextID          int
	community       bool
	lastChannel     transport.ChannelInfo
}

func (f *fakeControl) nextIDString() string {
	f.nextID++
	return "created-" + string(rune('a'+f.nextID))
}

func (f *fakeControl) CreateChannel(_ context.Context, _ string, ch transport.ChannelInfo) (string, error) {
	f.createdChannels++
	f.lastChannel = ch
	return f.nextIDString(), nil
}
func (f *fakeControl) CreateCategory(_ context.Context, _ string, _ string) (string, error) {
	f.createdCategory++
	return f.nextIDString(), nil
}
func (f *fakeControl) CreateForumPost(_ context.Context, _, _, _ string) (string, string, error) {
	return "", "", nil
}
func (f *fakeControl) CreateThread(_ context.Context, _, _, _ string) (string, error) { return "", nil }
func (f *fakeControl) CreateRole(_ context.Context, _ string, _ string, _ int64) (string, error) {
	f.createdRoles++
	return f.nextIDString(), nil
}
func (f *fakeControl) EditRolePermissions(_ context.Context, _, _ string, _ int64) error { return nil }
func (f *fakeControl) EditChannelName(_ context.Context, _, _ string) error              { return nil }
func (f *fakeControl) CreateWebhook(_ context.Context, _, _ string) (string, string, error) {
	return "wh", "tok", nil
}
func (f *fakeControl) AddReaction(_ context.Context, _, _, _ string) error  { return nil }
func (f *fakeControl) ChannelCount(_ context.Context, _ string) (int, error) { return 0, nil }
func (f *fakeControl) SendMessage(_ context.Context, _, _ string) (string, error) { return "log-msg-1", nil }
func (f *fakeControl) IsCommunityServer(_ context.Context, _ string) (bool, error) { return f.community, nil }

func TestResolveChannelForMirrorServer_MissReturnsNotOK(t *testing.T) {
	m, err := New(newFakeChannelStore(), newFakeRoleStore(), &fakeControl{})
	require.NoError(t, err)

	_, ok, err := m.ResolveChannelForMirrorServer(context.Background(), "src-1", "mirror-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegisterChannelMapping_PopulatesCacheAndStore(t *testing.T) {
	cs := newFakeChannelStore()
	m, err := New(cs, newFakeRoleStore(), &fakeControl{})
	require.NoError(t, err)

	require.NoError(t, m.RegisterChannelMapping(context.Background(), store.ChannelMapping{
		SourceChannelID: "src-1",
		SourceServerID:  "source-server",
		Name:            "general",
		MirrorChannelID: "mirror-chan-1",
		MirrorServerID:  "mirror-1",
		Kind:            store.ChannelKindText,
		Scraped:         true,
	}))

	mirrorID, ok, err := m.ResolveChannelForMirrorServer(context.Background(), "src-1", "mirror-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mirror-chan-1", mirrorID)

	stored, err := cs.Find(context.Background(), "src-1", "source-server")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "mirror-chan-1", stored.MirrorChannelID)
}

func TestAutoCreateChannel_CreatesParentCategoryFirst(t *testing.T) {
	ctrl := &fakeControl{}
	m, err := New(newFakeChannelStore(), newFakeRoleStore(), ctrl)
	require.NoError(t, err)

	mirrorID, err := m.AutoCreateChannel(context.Background(), transport.ChannelInfo{
		ID:       "src-channel",
		Name:     "announcements",
		Kind:     0,
		ParentID: "src-category",
	}, "source-server", "mirror-1")

	require.NoError(t, err)
	assert.NotEmpty(t, mirrorID)
	assert.Equal(t, 1, ctrl.createdCategory)
	assert.Equal(t, 1, ctrl.createdChannels)

	parentMirrorID, ok, err := m.ResolveChannelForMirrorServer(context.Background(), "src-category", "mirror-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, parentMirrorID)
}

func TestAutoCreateChannel_IdempotentOnSecondCall(t *testing.T) {
	ctrl := &fakeControl{}
	m, err := New(newFakeChannelStore(), newFakeRoleStore(), ctrl)
	require.NoError(t, err)

	info := transport.ChannelInfo{ID: "src-channel", Name: "general", Kind: 0}
	first, err := m.AutoCreateChannel(context.Background(), info, "source-server", "mirror-1")
	require.NoError(t, err)

	second, err := m.AutoCreateChannel(context.Background(), info, "source-server", "mirror-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, ctrl.createdChannels, "second call must not create a duplicate channel")
}

func TestAutoCreateChannel_NewsFallsBackToTextOnCommunityLessMirror(t *testing.T) {
	ctrl := &fakeControl{community: false}
	m, err := New(newFakeChannelStore(), newFakeRoleStore(), ctrl)
	require.NoError(t, err)

	_, err = m.AutoCreateChannel(context.Background(), transport.ChannelInfo{
		ID:    "src-news",
		Name:  "announcements",
		Kind:  int(store.ChannelKindNews),
		Topic: "official updates",
	}, "source-server", "mirror-1")

	require.NoError(t, err)
	assert.Equal(t, int(store.ChannelKindText), ctrl.lastChannel.Kind)
	assert.Equal(t, "[news] official updates", ctrl.lastChannel.Topic)
}

func TestAutoCreateChannel_NewsKeptOnCommunityMirror(t *testing.T) {
	ctrl := &fakeControl{community: true}
	m, err := New(newFakeChannelStore(), newFakeRoleStore(), ctrl)
	require.NoError(t, err)

	_, err = m.AutoCreateChannel(context.Background(), transport.ChannelInfo{
		ID:    "src-news",
		Name:  "announcements",
		Kind:  int(store.ChannelKindNews),
		Topic: "official updates",
	}, "source-server", "mirror-1")

	require.NoError(t, err)
	assert.Equal(t, int(store.ChannelKindNews), ctrl.lastChannel.Kind)
	assert.Equal(t, "official updates", ctrl.lastChannel.Topic)
}

func TestMentionResolver_FallsBackToStoreOnCacheMiss(t *testing.T) {
	cs := newFakeChannelStore()
	require.NoError(t, cs.Upsert(context.Background(), store.ChannelMapping{
		SourceChannelID: "src-1",
		SourceServerID:  "source-server",
		MirrorChannelID: "mirror-chan-1",
		MirrorServerID:  "mirror-1",
		Kind:            store.ChannelKindText,
	}))
	m, err := New(cs, newFakeRoleStore(), &fakeControl{})
	require.NoError(t, err)

	resolver := m.MentionResolver(context.Background(), "mirror-1")
	mirrorID, ok := resolver.ResolveChannel("src-1")
	assert.True(t, ok)
	assert.Equal(t, "mirror-chan-1", mirrorID)
}
