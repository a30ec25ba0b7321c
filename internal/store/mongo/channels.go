package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
)

type channelStore struct {
	coll *mongo.Collection
}

func (s *channelStore) Find(ctx context.Context, sourceChannelID, sourceServerID string) (*store.ChannelMapping, error) {
	var m store.ChannelMapping
	err := s.coll.FindOne(ctx, bsonM{"sourceChannelId": sourceChannelID, "serverId": sourceServerID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find channel mapping: %w", err)
	}
	return &m, nil
}

func (s *channelStore) FindByMirrorID(ctx context.Context, mirrorChannelID string) (*store.ChannelMapping, error) {
	var m store.ChannelMapping
	err := s.coll.FindOne(ctx, bsonM{"discordId": mirrorChannelID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find channel mapping by mirror id: %w", err)
	}
	return &m, nil
}

func (s *channelStore) ListByServer(ctx context.Context, sourceServerID string, scrapedOnly bool) ([]store.ChannelMapping, error) {
	filter := bsonM{"serverId": sourceServerID, "manuallyDeleted": false}
	if scrapedOnly {
		filter["scraped"] = true
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list channel mappings: %w", err)
	}
	defer cur.Close(ctx)

	var out []store.ChannelMapping
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode channel mappings: %w", err)
	}
	return out, nil
}

// Upsert is keyed by (sourceChannelId, serverId); a mirror-side id conflict
// is resolved by rewriting the existing document rather than failing
// (spec §4.1 registerChannelMapping).
func (s *channelStore) Upsert(ctx context.Context, m store.ChannelMapping) error {
	update := bsonM{
		"$set": bsonM{
			"name":             m.Name,
			"mirrorChannelId":  m.MirrorChannelID,
			"discordId":        m.MirrorChannelID,
			"mirrorServerId":   m.MirrorServerID,
			"kind":             m.Kind,
			"parentSourceId":   m.ParentSourceID,
			"scraped":          m.Scraped,
			"blacklisted":      m.Blacklisted,
			"blacklistedUntil": m.BlacklistedUntil,
			"failedAttempts":   m.FailedAttempts,
			"manuallyDeleted":  m.ManuallyDeleted,
		},
		"$setOnInsert": bsonM{
			"sourceChannelId": m.SourceChannelID,
			"serverId":        m.SourceServerID,
		},
	}
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"sourceChannelId": m.SourceChannelID, "serverId": m.SourceServerID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert channel mapping: %w", err)
	}
	return nil
}

func (s *channelStore) MarkBlacklisted(ctx context.Context, sourceChannelID, sourceServerID string, until time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"sourceChannelId": sourceChannelID, "serverId": sourceServerID},
		bsonM{"$set": bsonM{"blacklisted": true, "blacklistedUntil": until}},
	)
	if err != nil {
		return fmt.Errorf("mark channel blacklisted: %w", err)
	}
	return nil
}

func (s *channelStore) IncrementFailedAttempts(ctx context.Context, sourceChannelID, sourceServerID string) (int, error) {
	var doc struct {
		FailedAttempts int `bson:"failedAttempts"`
	}
	after := options.After
	err := s.coll.FindOneAndUpdate(ctx,
		bsonM{"sourceChannelId": sourceChannelID, "serverId": sourceServerID},
		bsonM{"$inc": bsonM{"failedAttempts": 1}},
		&options.FindOneAndUpdateOptions{ReturnDocument: &after},
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("increment failed attempts: %w", err)
	}
	return doc.FailedAttempts, nil
}

func (s *channelStore) MarkManuallyDeleted(ctx context.Context, sourceChannelID, sourceServerID string) error {
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"sourceChannelId": sourceChannelID, "serverId": sourceServerID},
		bsonM{"$set": bsonM{"manuallyDeleted": true}},
	)
	if err != nil {
		return fmt.Errorf("mark channel manually deleted: %w", err)
	}
	return nil
}

func (s *channelStore) TouchActivity(ctx context.Context, sourceChannelID, sourceServerID string, at time.Time) error {
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"sourceChannelId": sourceChannelID, "serverId": sourceServerID},
		bsonM{"$set": bsonM{"lastActivity": at}},
	)
	if err != nil {
		return fmt.Errorf("touch channel activity: %w", err)
	}
	return nil
}

func (s *channelStore) CountActive(ctx context.Context, mirrorServerID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bsonM{
		"mirrorServerId":  mirrorServerID,
		"manuallyDeleted": false,
		"kind":            bsonM{"$nin": []store.ChannelKind{store.ChannelKindCategory, store.ChannelKindThreadPublic, store.ChannelKindThreadPrivate, store.ChannelKindThreadNews}},
	})
	if err != nil {
		return 0, fmt.Errorf("count active channels: %w", err)
	}
	return int(n), nil
}
