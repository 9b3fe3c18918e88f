package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	aliaserrors "clubsync/internal/alias/errors"
	"clubsync/pkg/config"
	"clubsync/pkg/model"
)

const CollectionName = "Alias_links"

type AliasRepository interface {
	// Upsert stores the link, overwriting any existing link for the same
	// alternate email. One alternate email maps to one canonical email.
	Upsert(ctx context.Context, link *model.AliasLink) error

	FindByAlternate(ctx context.Context, alternateEmail string) (*model.AliasLink, error)
	FindByCanonical(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error)
	FindAll(ctx context.Context, limit int, offset int64) ([]*model.AliasLink, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, alternateEmail string) error
}

type mongoAliasRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoAliasRepository(cfg *config.Config) AliasRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAliasRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoAliasRepository) Upsert(ctx context.Context, link *model.AliasLink) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)

	filter := bson.M{"alternate_email": link.AlternateEmail}
	update := bson.M{
		"$set": bson.M{
			"canonical_email": link.CanonicalEmail,
			"linked_by":       link.LinkedBy,
			"updated_at":      now,
		},
		"$setOnInsert": bson.M{
			"alternate_email": link.AlternateEmail,
			"created_at":      now,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert alias link: %w", err)
	}

	return nil
}

func (r *mongoAliasRepository) FindByAlternate(ctx context.Context, alternateEmail string) (*model.AliasLink, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var link model.AliasLink
	err := r.collection.FindOne(ctx, bson.M{"alternate_email": alternateEmail}).Decode(&link)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, aliaserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find alias link: %w", err)
	}

	return &link, nil
}

func (r *mongoAliasRepository) FindByCanonical(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"canonical_email": canonicalEmail})
	if err != nil {
		return nil, fmt.Errorf("failed to find alias links by canonical email: %w", err)
	}
	defer cursor.Close(ctx)

	var links []*model.AliasLink
	if err = cursor.All(ctx, &links); err != nil {
		return nil, fmt.Errorf("failed to decode alias links: %w", err)
	}

	return links, nil
}

func (r *mongoAliasRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.AliasLink, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "alternate_email", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find alias links: %w", err)
	}
	defer cursor.Close(ctx)

	var links []*model.AliasLink
	if err = cursor.All(ctx, &links); err != nil {
		return nil, fmt.Errorf("failed to decode alias links: %w", err)
	}

	return links, nil
}

func (r *mongoAliasRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count alias links: %w", err)
	}
	return count, nil
}

func (r *mongoAliasRepository) Delete(ctx context.Context, alternateEmail string) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"alternate_email": alternateEmail})
	if err != nil {
		return fmt.Errorf("failed to delete alias link: %w", err)
	}
	if result.DeletedCount == 0 {
		return aliaserrors.ErrNotFound
	}

	return nil
}
