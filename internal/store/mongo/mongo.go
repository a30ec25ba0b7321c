// Package mongo backs store.Stores with go.mongodb.org/mongo-driver,
// matching the collections and indices named in spec §6.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
)

// Store is the Mongo-backed implementation of store.Stores' member
// collections, grouped under one *mongo.Database connection.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	channels          *mongo.Collection
	roles             *mongo.Collection
	processedMessages *mongo.Collection
	memberDetails     *mongo.Collection
	memberCounts      *mongo.Collection
	logs              *mongo.Collection
	roleMentions      *mongo.Collection
	mentionBlacklists *mongo.Collection
	serverConfig      *mongo.Collection
	proxAuthCache     *mongo.Collection
}

// Connect dials MONGODB_URI and returns a Store wired to the named database.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	return &Store{
		client:            client,
		db:                db,
		channels:          db.Collection("Channels"),
		roles:             db.Collection("Roles"),
		processedMessages: db.Collection("ProcessedMessages"),
		memberDetails:     db.Collection("MemberDetails"),
		memberCounts:      db.Collection("MemberCounts"),
		logs:              db.Collection("Logs"),
		roleMentions:      db.Collection("RoleMentions"),
		mentionBlacklists: db.Collection("MentionBlacklists"),
		serverConfig:      db.Collection("ServerConfig"),
		proxAuthCache:     db.Collection("ProxAuthCache"),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Stores adapts the concrete collections to the store.Stores container.
func (s *Store) Stores() *store.Stores {
	return &store.Stores{
		Channels:          &channelStore{coll: s.channels},
		Roles:             &roleStore{coll: s.roles},
		Messages:          &messageStore{coll: s.processedMessages},
		Members:           &memberStore{details: s.memberDetails, counts: s.memberCounts},
		Logs:              &logStore{coll: s.logs},
		MentionBlacklists: &mentionBlacklistStore{coll: s.mentionBlacklists},
		RoleMentions:      &roleMentionStore{coll: s.roleMentions},
		ServerConfig:      &serverConfigStore{coll: s.serverConfig},
		ProxAuthCache:     &proxAuthCacheStore{coll: s.proxAuthCache},
		Maintenance:       s,
	}
}

// EnsureIndices creates every index named in spec §6. Safe to call
// repeatedly — CreateOne/CreateMany are idempotent for identical definitions.
func (s *Store) EnsureIndices(ctx context.Context) error {
	type job struct {
		coll  *mongo.Collection
		model []mongo.IndexModel
	}

	jobs := []job{
		{s.channels, []mongo.IndexModel{
			unique(keys("sourceChannelId", 1, "serverId", 1)),
			uniqueSparse("discordId"),
			plain(keys("serverId", 1, "scraped", 1)),
		}},
		{s.roles, []mongo.IndexModel{
			unique(keys("sourceRoleId", 1, "serverId", 1)),
		}},
		{s.processedMessages, []mongo.IndexModel{
			unique(keys("discordId", 1)),
			ttl("processedAt", 15*24*time.Hour),
		}},
		{s.memberDetails, []mongo.IndexModel{
			unique(keys("guildId", 1, "userId", 1)),
			ttl("lastSeen", 90*24*time.Hour),
		}},
		{s.logs, []mongo.IndexModel{
			ttl("timestamp", 15*24*time.Hour),
		}},
		{s.roleMentions, []mongo.IndexModel{
			ttl("timestamp", 30*24*time.Hour),
		}},
		{s.mentionBlacklists, []mongo.IndexModel{
			unique(keys("sourceGuildId", 1, "channelName", 1)),
		}},
	}

	for _, j := range jobs {
		if len(j.model) == 0 {
			continue
		}
		if _, err := j.coll.Indexes().CreateMany(ctx, j.model); err != nil {
			return fmt.Errorf("create indices on %s: %w", j.coll.Name(), err)
		}
	}
	return nil
}

// PurgeLogs removes every row from Logs (the purge-logs CLI script).
func (s *Store) PurgeLogs(ctx context.Context) (int64, error) {
	res, err := s.logs.DeleteMany(ctx, bsonM{})
	if err != nil {
		return 0, fmt.Errorf("purge logs: %w", err)
	}
	return res.DeletedCount, nil
}

// EmergencyPurge removes all rows from ProcessedMessages, Logs, MemberDetail,
// MemberCount, RoleMention while preserving ServerConfig/Channel/Role/
// Category/MentionBlacklist (spec §6 CLI surface).
func (s *Store) EmergencyPurge(ctx context.Context) (int64, error) {
	colls := []*mongo.Collection{s.processedMessages, s.logs, s.memberDetails, s.memberCounts, s.roleMentions}
	var total int64
	for _, c := range colls {
		res, err := c.DeleteMany(ctx, bsonM{})
		if err != nil {
			return total, fmt.Errorf("emergency purge %s: %w", c.Name(), err)
		}
		total += res.DeletedCount
	}
	return total, nil
}
