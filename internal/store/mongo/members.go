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

type memberStore struct {
	details *mongo.Collection
	counts  *mongo.Collection
}

// BulkUpsertSeen records a batch of (sourceServerId, userId) sightings using
// bulk upsert semantics (upsert=true, ordered=false) per spec §4.8.
func (s *memberStore) BulkUpsertSeen(ctx context.Context, sourceServerID string, userIDs []string, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(userIDs))
	for _, uid := range userIDs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bsonM{"guildId": sourceServerID, "userId": uid}).
			SetUpdate(bsonM{
				"$set":         bsonM{"lastSeen": at},
				"$setOnInsert": bsonM{"dangerLevel": 0, "isDangerous": false, "history": []store.MemberSighting{}},
			}).
			SetUpsert(true))
	}

	_, err := s.details.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk upsert member sightings: %w", err)
	}
	return nil
}

func (s *memberStore) Get(ctx context.Context, sourceServerID, userID string) (*store.MemberDetail, error) {
	var m store.MemberDetail
	err := s.details.FindOne(ctx, bsonM{"guildId": sourceServerID, "userId": userID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find member detail: %w", err)
	}
	return &m, nil
}

func (s *memberStore) RecordCount(ctx context.Context, c store.MemberCount) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	_, err := s.counts.InsertOne(ctx, c)
	if err != nil {
		return fmt.Errorf("record member count: %w", err)
	}
	return nil
}
