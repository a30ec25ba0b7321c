package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/correspondence"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

type fakeChannelStore struct {
	mu   sync.Mutex
	rows map[string]store.ChannelMapping
}

func newFakeChannelStore() *fakeChannelStore { return &fakeChannelStore{rows: make(map[string]store.ChannelMapping)} }
func (f *fakeChannelStore) key(a, b string) string { return a + "|" + b }
func (f *fakeChannelStore) Find(_ context.Context, a, b string) (*store.ChannelMapping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.rows[f.key(a, b)]; ok {
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
func (f *fakeChannelStore) MarkBlacklisted(_ context.Context, a, b string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := f.key(a, b)
	m := f.rows[k]
	m.Blacklisted = true
	m.BlacklistedUntil = until
	f.rows[k] = m
	return nil
}
func (f *fakeChannelStore) IncrementFailedAttempts(context.Context, string, string) (int, error) { return 0, nil }
func (f *fakeChannelStore) MarkManuallyDeleted(context.Context, string, string) error             { return nil }
func (f *fakeChannelStore) TouchActivity(context.Context, string, string, time.Time) error        { return nil }
func (f *fakeChannelStore) CountActive(context.Context, string) (int, error)                      { return 0, nil }

type fakeRoleStore struct{}

func (fakeRoleStore) Find(context.Context, string, string) (*store.RoleMapping, error) { return nil, nil }
func (fakeRoleStore) ListByServer(context.Context, string) ([]store.RoleMapping, error)  { return nil, nil }
func (fakeRoleStore) Upsert(context.Context, store.RoleMapping) error                    { return nil }

type fakeControl struct{}

func (fakeControl) CreateChannel(context.Context, string, transport.ChannelInfo) (string, error) {
	return "mirror-created", nil
}
func (fakeControl) CreateCategory(context.Context, string, string) (string, error) { return "mirror-cat", nil }
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

type fakeLogStore struct {
	mu      sync.Mutex
	entries []store.LogEntry
}

func (f *fakeLogStore) Write(_ context.Context, e store.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}
func (f *fakeLogStore) PurgeAll(context.Context) (int64, error) { return 0, nil }

type fakeObserve struct {
	accessOK     bool
	accessStatus int
	channelInfo  *transport.ChannelInfo
}

func (f fakeObserve) Events(context.Context) (<-chan transport.Event, error) { return nil, nil }
func (f fakeObserve) FetchGuildChannels(context.Context, string) ([]transport.ChannelInfo, error) {
	return nil, nil
}
func (f fakeObserve) FetchGuildRoles(context.Context, string) ([]transport.RoleInfo, error) { return nil, nil }
func (f fakeObserve) FetchGuildMemberCount(context.Context, string) (int, error)            { return 0, nil }
func (f fakeObserve) FetchGuildMembers(context.Context, string, int, string) ([]string, error) {
	return nil, nil
}
func (f fakeObserve) SearchGuildMembers(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}
func (f fakeObserve) FetchThreadByID(context.Context, string) (*transport.ChannelInfo, error) {
	return f.channelInfo, nil
}
func (f fakeObserve) FetchChannelMessages(context.Context, string, int, string, string) ([]transport.Message, error) {
	return nil, nil
}
func (f fakeObserve) TestChannelAccess(context.Context, string) (bool, int, error) {
	return f.accessOK, f.accessStatus, nil
}

type fakeResync struct {
	mu           sync.Mutex
	fullSyncs    int
	backfillHits int
	fullSyncErr  error
}

func (f *fakeResync) FullSync(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fullSyncs++
	return f.fullSyncErr
}
func (f *fakeResync) Backfill(context.Context, string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backfillHits++
}

func TestTriggerRecovery_Attempt1ResolvesAfterForcedSync(t *testing.T) {
	cs := newFakeChannelStore()
	control := fakeControl{}
	corr, err := correspondence.New(cs, fakeRoleStore{}, control)
	require.NoError(t, err)

	require.NoError(t, corr.RegisterChannelMapping(context.Background(), store.ChannelMapping{
		SourceChannelID: "src-1",
		SourceServerID:  "source-server",
		MirrorChannelID: "mirror-1",
		MirrorServerID:  "mirror-server",
		Kind:            store.ChannelKindText,
		Scraped:         true,
	}))

	resync := &fakeResync{}
	m := New("source-server")
	m.Corr = corr
	m.Resync = resync
	m.Channels = cs
	m.Logs = &fakeLogStore{}

	m.TriggerRecovery(context.Background(), "src-1", "mirror-server")

	require.Eventually(t, func() bool {
		resync.mu.Lock()
		defer resync.mu.Unlock()
		return resync.fullSyncs >= 1 && resync.backfillHits >= 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestTriggerRecovery_Attempt2BlacklistsOn403(t *testing.T) {
	cs := newFakeChannelStore()
	control := fakeControl{}
	corr, err := correspondence.New(cs, fakeRoleStore{}, control)
	require.NoError(t, err)

	resync := &fakeResync{}
	logs := &fakeLogStore{}
	m := New("source-server")
	m.Corr = corr
	m.Resync = resync
	m.Channels = cs
	m.Logs = logs
	m.Observe = fakeObserve{accessOK: false, accessStatus: 403}

	m.TriggerRecovery(context.Background(), "src-locked", "mirror-server")

	require.Eventually(t, func() bool {
		mapping, _ := cs.Find(context.Background(), "src-locked", "source-server")
		return mapping != nil && mapping.Blacklisted
	}, 5*time.Second, 20*time.Millisecond)

	logs.mu.Lock()
	defer logs.mu.Unlock()
	assert.NotEmpty(t, logs.entries)
}

func TestTriggerRecovery_DedupesConcurrentTriggersForSameKey(t *testing.T) {
	cs := newFakeChannelStore()
	corr, err := correspondence.New(cs, fakeRoleStore{}, fakeControl{})
	require.NoError(t, err)

	resync := &fakeResync{}
	m := New("source-server")
	m.Corr = corr
	m.Resync = resync
	m.Channels = cs
	m.Logs = &fakeLogStore{}
	m.Observe = fakeObserve{accessOK: false, accessStatus: 404}

	m.TriggerRecovery(context.Background(), "src-x", "mirror-server")
	m.TriggerRecovery(context.Background(), "src-x", "mirror-server")

	time.Sleep(200 * time.Millisecond)
	m.mu.Lock()
	_, busy := m.inFlight[key{sourceChannelID: "src-x", mirrorServerID: "mirror-server"}]
	m.mu.Unlock()
	assert.True(t, busy, "second trigger for the same key must not start a parallel run")
}

func TestTriggerRecovery_SkipsWhenRecentlyRecovered(t *testing.T) {
	cs := newFakeChannelStore()
	corr, err := correspondence.New(cs, fakeRoleStore{}, fakeControl{})
	require.NoError(t, err)

	resync := &fakeResync{}
	m := New("source-server")
	m.Corr = corr
	m.Resync = resync
	m.Channels = cs
	m.Logs = &fakeLogStore{}
	m.recovered[key{sourceChannelID: "src-done", mirrorServerID: "mirror-server"}] = time.Now()

	m.TriggerRecovery(context.Background(), "src-done", "mirror-server")

	time.Sleep(100 * time.Millisecond)
	resync.mu.Lock()
	defer resync.mu.Unlock()
	assert.Zero(t, resync.fullSyncs, "a recently recovered key must not trigger another run")
}
