package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
)

type messageStore struct {
	coll *mongo.Collection
}

func (s *messageStore) FindBySourceID(ctx context.Context, sourceMessageID string) (*store.ProcessedMessage, error) {
	var m store.ProcessedMessage
	err := s.coll.FindOne(ctx, bsonM{"discordId": sourceMessageID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find processed message: %w", err)
	}
	return &m, nil
}

// Insert enforces the unique index on discordId (spec §5 "no two tasks may
// produce a record for the same sourceMessageId"); a duplicate-key error is
// swallowed because it means another task already committed this message.
func (s *messageStore) Insert(ctx context.Context, m store.ProcessedMessage) error {
	if m.ProcessedAt.IsZero() {
		m.ProcessedAt = time.Now()
	}
	_, err := s.coll.InsertOne(ctx, m)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert processed message: %w", err)
	}
	return nil
}

func (s *messageStore) UpdateAfterEdit(ctx context.Context, sourceMessageID, renderedContent string, awaitingEmbed bool) error {
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"discordId": sourceMessageID},
		bsonM{"$set": bsonM{"renderedContent": renderedContent, "awaitingEmbed": awaitingEmbed}},
	)
	if err != nil {
		return fmt.Errorf("update processed message after edit: %w", err)
	}
	return nil
}
