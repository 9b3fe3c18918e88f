package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	recordserrors "clubsync/internal/records/errors"
	"clubsync/pkg/config"
	"clubsync/pkg/model"
)

const RunsCollectionName = "Import_runs"

type ImportRunRepository interface {
	Create(ctx context.Context, run *model.ImportRun) error
	Finalize(ctx context.Context, id string, summary model.ImportRunSummary, cancelled bool) error
	FindByID(ctx context.Context, id string) (*model.ImportRun, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.ImportRun, error)
	Count(ctx context.Context) (int64, error)
}

type mongoImportRunRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoImportRunRepository(cfg *config.Config) ImportRunRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoImportRunRepository{
		cfg:        cfg,
		collection: db.Collection(RunsCollectionName),
	}
}

func (r *mongoImportRunRepository) Create(ctx context.Context, run *model.ImportRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	run.StartedAt = time.Now().UTC().Truncate(time.Millisecond)
	if _, err := r.collection.InsertOne(ctx, run); err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}
	return nil
}

func (r *mongoImportRunRepository) Finalize(ctx context.Context, id string, summary model.ImportRunSummary, cancelled bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"summary":     summary,
			"cancelled":   cancelled,
			"finished_at": now,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to finalize import run: %w", err)
	}
	if result.MatchedCount == 0 {
		return recordserrors.ErrRunNotFound
	}

	return nil
}

func (r *mongoImportRunRepository) FindByID(ctx context.Context, id string) (*model.ImportRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var run model.ImportRun
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&run)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recordserrors.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to find import run: %w", err)
	}

	return &run, nil
}

func (r *mongoImportRunRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.ImportRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "started_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find import runs: %w", err)
	}
	defer cursor.Close(ctx)

	var runs []*model.ImportRun
	if err = cursor.All(ctx, &runs); err != nil {
		return nil, fmt.Errorf("failed to decode import runs: %w", err)
	}

	return runs, nil
}

func (r *mongoImportRunRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count import runs: %w", err)
	}
	return count, nil
}
