package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/nextlevelbuilder/goclaw-mirror/internal/store"
)

type roleStore struct {
	coll *mongo.Collection
}

func (s *roleStore) Find(ctx context.Context, sourceRoleID, sourceServerID string) (*store.RoleMapping, error) {
	var m store.RoleMapping
	err := s.coll.FindOne(ctx, bsonM{"sourceRoleId": sourceRoleID, "serverId": sourceServerID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find role mapping: %w", err)
	}
	return &m, nil
}

func (s *roleStore) ListByServer(ctx context.Context, sourceServerID string) ([]store.RoleMapping, error) {
	cur, err := s.coll.Find(ctx, bsonM{"serverId": sourceServerID})
	if err != nil {
		return nil, fmt.Errorf("list role mappings: %w", err)
	}
	defer cur.Close(ctx)

	var out []store.RoleMapping
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode role mappings: %w", err)
	}
	return out, nil
}

func (s *roleStore) Upsert(ctx context.Context, m store.RoleMapping) error {
	update := bsonM{
		"$set": bsonM{
			"name":           m.Name,
			"mirrorRoleId":   m.MirrorRoleID,
			"mirrorServerId": m.MirrorServerID,
			"synced":         m.Synced,
		},
		"$setOnInsert": bsonM{
			"sourceRoleId": m.SourceRoleID,
			"serverId":     m.SourceServerID,
		},
	}
	_, err := s.coll.UpdateOne(ctx,
		bsonM{"sourceRoleId": m.SourceRoleID, "serverId": m.SourceServerID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert role mapping: %w", err)
	}
	return nil
}
