package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	recordserrors "clubsync/internal/records/errors"
	"clubsync/pkg/config"
	"clubsync/pkg/model"
)

const LocksCollectionName = "Import_locks"

// ImportLockRepository provides advisory locks keyed by source. Uniqueness of
// the _id makes acquisition atomic; a TTL index on expires_at reaps locks
// orphaned by crashed imports.
type ImportLockRepository interface {
	Acquire(ctx context.Context, source, runID string, ttl time.Duration) (*model.ImportLock, error)
	Release(ctx context.Context, source string) error
}

type mongoImportLockRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoImportLockRepository(cfg *config.Config) ImportLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoImportLockRepository{
		cfg:        cfg,
		collection: db.Collection(LocksCollectionName),
	}
}

func (r *mongoImportLockRepository) Acquire(ctx context.Context, source, runID string, ttl time.Duration) (*model.ImportLock, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := &model.ImportLock{
		ID:        "import:" + source,
		RunID:     runID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err == nil {
		return lock, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}

	// A lock document exists. Steal it only if expired (TTL reaper runs with
	// up to a minute of lag).
	filter := bson.M{
		"_id":        lock.ID,
		"expires_at": bson.M{"$lt": now},
	}
	update := bson.M{
		"$set": bson.M{
			"run_id":     runID,
			"expires_at": lock.ExpiresAt,
			"created_at": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, recordserrors.ErrLockHeld
	}

	return lock, nil
}

func (r *mongoImportLockRepository) Release(ctx context.Context, source string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": "import:" + source})
	return err
}
