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

type logStore struct{ coll *mongo.Collection }

func (s *logStore) Write(ctx context.Context, e store.LogEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, e)
	if err != nil {
		return fmt.Errorf("write log entry: %w", err)
	}
	return nil
}

func (s *logStore) PurgeAll(ctx context.Context) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bsonM{})
	if err != nil {
		return 0, fmt.Errorf("purge logs: %w", err)
	}
	return res.DeletedCount, nil
}

type mentionBlacklistStore struct{ coll *mongo.Collection }

func (s *mentionBlacklistStore) IsBlacklisted(ctx context.Context, sourceServerID, channelName string) (bool, error) {
	n, err := s.coll.CountDocuments(ctx, bsonM{"sourceGuildId": sourceServerID, "channelName": channelName})
	if err != nil {
		return false, fmt.Errorf("check mention blacklist: %w", err)
	}
	return n > 0, nil
}

func (s *mentionBlacklistStore) Add(ctx context.Context, b store.MentionBlacklist) error {
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"sourceGuildId": b.SourceServerID, "channelName": b.ChannelName},
		bsonM{"$setOnInsert": b},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("add mention blacklist: %w", err)
	}
	return nil
}

type roleMentionStore struct{ coll *mongo.Collection }

func (s *roleMentionStore) Record(ctx context.Context, m store.RoleMention) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, m)
	if err != nil {
		return fmt.Errorf("record role mention: %w", err)
	}
	return nil
}

type serverConfigStore struct{ coll *mongo.Collection }

func (s *serverConfigStore) Get(ctx context.Context, mirrorServerID string) (*store.ServerConfig, error) {
	var c store.ServerConfig
	err := s.coll.FindOne(ctx, bsonM{"mirrorServerId": mirrorServerID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get server config: %w", err)
	}
	return &c, nil
}

type proxAuthCacheStore struct{ coll *mongo.Collection }

func (s *proxAuthCacheStore) Get(ctx context.Context, key string) (*store.ProxAuthCacheEntry, error) {
	var e store.ProxAuthCacheEntry
	err := s.coll.FindOne(ctx, bsonM{"key": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get prox auth cache: %w", err)
	}
	return &e, nil
}

func (s *proxAuthCacheStore) Set(ctx context.Context, e store.ProxAuthCacheEntry) error {
	if e.CheckedAt.IsZero() {
		e.CheckedAt = time.Now()
	}
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"key": e.Key},
		bsonM{"$set": e},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set prox auth cache: %w", err)
	}
	return nil
}
