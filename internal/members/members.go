// Package members implements the Member Tracker and Detector (spec §4.8):
// a multi-method membership census used for cross-server presence/danger
// scoring, plus opportunistic upserts from observed message authors.
package members

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
	"github.com/nextlevelbuilder/goclaw-mirror/internal/transport"
)

const (
	lazyListPageSize  = 100
	lazyListMaxPages  = 5
	bulkFetchPageSize = 1000
	alphabet          = "abcdefghijklmnopqrstuvwxyz0123456789"
	searchPageSize    = 100
)

// MethodYield reports one detector method's contribution to the accumulated
// unique-user set (spec §4.8 "reports yield and newly-contributed count").
type MethodYield struct {
	Method     string
	Observed   int
	NewlyAdded int
}

// Tracker runs the four-method detector and persists census results.
type Tracker struct {
	Observe transport.Observe
	Members store.MemberStore

	now func() time.Time
}

// New constructs a Tracker.
func New(observe transport.Observe, memberStore store.MemberStore) *Tracker {
	return &Tracker{Observe: observe, Members: memberStore, now: time.Now}
}

// DetectAll runs every method in sequence, accumulating into a single
// unique-by-user set, then bulk-upserts the result and records a census
// count (spec §4.8). Returns the per-method yields for observability.
func (t *Tracker) DetectAll(ctx context.Context, sourceServerID string) ([]MethodYield, error) {
	seen := make(map[string]struct{})
	var yields []MethodYield

	yields = append(yields, t.runMethod("cache", seen, t.fromCache(ctx, sourceServerID)))
	yields = append(yields, t.runMethod("lazy-list", seen, t.fromLazyList(ctx, sourceServerID)))
	yields = append(yields, t.runMethod("bulk-fetch", seen, t.fromBulkFetch(ctx, sourceServerID)))
	yields = append(yields, t.runMethod("brute-force", seen, t.fromBruteForce(ctx, sourceServerID)))

	userIDs := make([]string, 0, len(seen))
	for id := range seen {
		userIDs = append(userIDs, id)
	}

	if err := t.Members.BulkUpsertSeen(ctx, sourceServerID, userIDs, t.now()); err != nil {
		return yields, err
	}
	if err := t.Members.RecordCount(ctx, store.MemberCount{
		SourceServerID: sourceServerID,
		Count:          len(userIDs),
		Timestamp:      t.now(),
	}); err != nil {
		return yields, err
	}
	return yields, nil
}

// runMethod folds one method's result into seen and returns its yield.
func (t *Tracker) runMethod(name string, seen map[string]struct{}, ids []string, err error) MethodYield {
	if err != nil {
		slog.Warn("member detector method failed", "method", name, "error", err)
		return MethodYield{Method: name}
	}
	newly := 0
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			newly++
		}
	}
	return MethodYield{Method: name, Observed: len(ids), NewlyAdded: newly}
}

// fromCache is a placeholder for an in-memory cache of recently seen
// members; this process keeps no cross-call cache of its own (each
// DetectAll pass starts cold), so it always yields nothing. The method
// still runs in sequence so its slot in the accumulation order matches
// the other three (spec §4.8 "composes four methods in sequence").
func (t *Tracker) fromCache(ctx context.Context, sourceServerID string) ([]string, error) {
	return nil, nil
}

func (t *Tracker) fromLazyList(ctx context.Context, sourceServerID string) ([]string, error) {
	var out []string
	after := ""
	for page := 0; page < lazyListMaxPages; page++ {
		batch, err := t.Observe.FetchGuildMembers(ctx, sourceServerID, lazyListPageSize, after)
		if err != nil {
			return out, err
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		after = batch[len(batch)-1]
		if len(batch) < lazyListPageSize {
			break
		}
	}
	return out, nil
}

func (t *Tracker) fromBulkFetch(ctx context.Context, sourceServerID string) ([]string, error) {
	return t.Observe.FetchGuildMembers(ctx, sourceServerID, bulkFetchPageSize, "")
}

// fromBruteForce walks the alphabet serially, searching by prefix (spec
// §4.8, §8 "coverage above 95% claimed but not measured; assert a lower
// bound").
func (t *Tracker) fromBruteForce(ctx context.Context, sourceServerID string) ([]string, error) {
	var out []string
	for _, c := range alphabet {
		batch, err := t.Observe.SearchGuildMembers(ctx, sourceServerID, string(c), searchPageSize)
		if err != nil {
			slog.Debug("brute-force member search failed", "prefix", string(c), "error", err)
			continue
		}
		out = append(out, batch...)
	}
	return out, nil
}

// RecordMessageAuthor opportunistically upserts the author of an observed
// message (spec §4.8 last sentence). Non-blocking, errors swallowed except
// at debug level; bots are excluded by the caller before invoking this.
func (t *Tracker) RecordMessageAuthor(ctx context.Context, sourceServerID, userID string) {
	go func() {
		if err := t.Members.BulkUpsertSeen(context.Background(), sourceServerID, []string{userID}, t.now()); err != nil {
			slog.Debug("opportunistic member upsert failed", "user_id", userID, "error", err)
		}
	}()
}

// DangerLevel derives a 0-3 score from the number of concurrent source
// servers on which a member is present (spec §4.8 GLOSSARY "Danger level").
func DangerLevel(concurrentServerCount int) int {
	switch {
	case concurrentServerCount <= 1:
		return 0
	case concurrentServerCount == 2:
		return 1
	case concurrentServerCount == 3:
		return 2
	default:
		return 3
	}
}
