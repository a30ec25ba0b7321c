package members

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

type fakeObserve struct {
	lazyPages   [][]string
	bulk        []string
	searchHits  map[string][]string
}

func (f fakeObserve) Events(context.Context) (<-chan transport.Event, error) { return nil, nil }
func (f fakeObserve) FetchGuildChannels(context.Context, string) ([]transport.ChannelInfo, error) {
	return nil, nil
}
func (f fakeObserve) FetchGuildRoles(context.Context, string) ([]transport.RoleInfo, error) { return nil, nil }
func (f fakeObserve) FetchGuildMemberCount(context.Context, string) (int, error)            { return 0, nil }

func (f fakeObserve) FetchGuildMembers(_ context.Context, _ string, limit int, after string) ([]string, error) {
	idx := 0
	if after != "" {
		for i, page := range f.lazyPages {
			for _, id := range page {
				if id == after {
					idx = i + 1
				}
			}
		}
	}
	if idx >= len(f.lazyPages) {
		return nil, nil
	}
	return f.lazyPages[idx], nil
}

func (f fakeObserve) SearchGuildMembers(_ context.Context, _ string, query string, _ int) ([]string, error) {
	return f.searchHits[query], nil
}
func (f fakeObserve) FetchThreadByID(context.Context, string) (*transport.ChannelInfo, error) { return nil, nil }
func (f fakeObserve) FetchChannelMessages(context.Context, string, int, string, string) ([]transport.Message, error) {
	return nil, nil
}
func (f fakeObserve) TestChannelAccess(context.Context, string) (bool, int, error) { return true, 200, nil }

type fakeMemberStore struct {
	mu     sync.Mutex
	seen   map[string]struct{}
	counts []store.MemberCount
}

func newFakeMemberStore() *fakeMemberStore {
	return &fakeMemberStore{seen: make(map[string]struct{})}
}
func (f *fakeMemberStore) BulkUpsertSeen(_ context.Context, _ string, userIDs []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range userIDs {
		f.seen[id] = struct{}{}
	}
	return nil
}
func (f *fakeMemberStore) Get(context.Context, string, string) (*store.MemberDetail, error) { return nil, nil }
func (f *fakeMemberStore) RecordCount(_ context.Context, c store.MemberCount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = append(f.counts, c)
	return nil
}

func TestDetectAll_AccumulatesUniqueAcrossMethods(t *testing.T) {
	observe := fakeObserve{
		lazyPages: [][]string{{"u1", "u2"}},
		bulk:      nil,
		searchHits: map[string][]string{
			"a": {"u2", "u3"}, // u2 overlaps with the lazy-list page
		},
	}
	memberStore := newFakeMemberStore()
	tracker := New(observe, memberStore)
	tracker.now = func() time.Time { return time.Unix(0, 0) }

	yields, err := tracker.DetectAll(context.Background(), "server-1")
	require.NoError(t, err)
	require.Len(t, yields, 4)

	memberStore.mu.Lock()
	defer memberStore.mu.Unlock()
	assert.Contains(t, memberStore.seen, "u1")
	assert.Contains(t, memberStore.seen, "u2")
	assert.Contains(t, memberStore.seen, "u3")
	require.Len(t, memberStore.counts, 1)
	assert.Equal(t, len(memberStore.seen), memberStore.counts[0].Count)
}

func TestDetectAll_DedupesOverlapBetweenMethods(t *testing.T) {
	observe := fakeObserve{
		lazyPages:  [][]string{{"dup-1"}},
		searchHits: map[string][]string{"a": {"dup-1"}},
	}
	memberStore := newFakeMemberStore()
	tracker := New(observe, memberStore)

	yields, err := tracker.DetectAll(context.Background(), "server-1")
	require.NoError(t, err)

	var bruteForceYield MethodYield
	for _, y := range yields {
		if y.Method == "brute-force" {
			bruteForceYield = y
		}
	}
	assert.Zero(t, bruteForceYield.NewlyAdded, "a member already seen via lazy-list must not count as newly added")
}

func TestDangerLevel_ScalesWithConcurrentPresence(t *testing.T) {
	assert.Equal(t, 0, DangerLevel(0))
	assert.Equal(t, 0, DangerLevel(1))
	assert.Equal(t, 1, DangerLevel(2))
	assert.Equal(t, 2, DangerLevel(3))
	assert.Equal(t, 3, DangerLevel(4))
	assert.Equal(t, 3, DangerLevel(10))
}

func TestFromBruteForce_CoversAtLeastHalfTheAlphabet(t *testing.T) {
	hits := make(map[string][]string)
	for _, c := range alphabet {
		hits[string(c)] = []string{"member-" + string(c)}
	}
	observe := fakeObserve{searchHits: hits}
	tracker := New(observe, newFakeMemberStore())

	out, err := tracker.fromBruteForce(context.Background(), "server-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(out), len(alphabet)/2)
}
