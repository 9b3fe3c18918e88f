package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	slotserrors "clubsync/internal/slots/errors"
	"clubsync/pkg/config"
	mongotx "clubsync/pkg/db/mongo"
	"clubsync/pkg/model"
)

const CollectionName = "Occupant_assignments"

type AssignmentRepository interface {
	// Create inserts an assignment. The unique (booking_id, occupant_key)
	// index turns a repeat attach into ErrDuplicateOccupant.
	Create(ctx context.Context, assignment *model.OccupantAssignment) error

	Delete(ctx context.Context, bookingID, occupantKey string) error
	FindByBooking(ctx context.Context, bookingID string) ([]*model.OccupantAssignment, error)
	CountByBooking(ctx context.Context, bookingID string) (int64, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoAssignmentRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoAssignmentRepository(cfg *config.Config) AssignmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAssignmentRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoAssignmentRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoAssignmentRepository) Create(ctx context.Context, assignment *model.OccupantAssignment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	assignment.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)

	result, err := r.collection.InsertOne(ctx, assignment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return slotserrors.ErrDuplicateOccupant
		}
		return fmt.Errorf("failed to create occupant assignment: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		assignment.ID = oid.Hex()
	}
	return nil
}

func (r *mongoAssignmentRepository) Delete(ctx context.Context, bookingID, occupantKey string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"booking_id": bookingID, "occupant_key": occupantKey}
	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete occupant assignment: %w", err)
	}
	if result.DeletedCount == 0 {
		return slotserrors.ErrAssignmentNotFound
	}

	return nil
}

func (r *mongoAssignmentRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.OccupantAssignment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find occupant assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var assignments []*model.OccupantAssignment
	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, fmt.Errorf("failed to decode occupant assignments: %w", err)
	}

	return assignments, nil
}

func (r *mongoAssignmentRepository) CountByBooking(ctx context.Context, bookingID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return 0, fmt.Errorf("failed to count occupant assignments: %w", err)
	}
	return count, nil
}

func (r *mongoAssignmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
