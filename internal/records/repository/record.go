package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	recordserrors "clubsync/internal/records/errors"
	"clubsync/pkg/config"
	mongotx "clubsync/pkg/db/mongo"
	"clubsync/pkg/model"
)

const (
	CollectionName            = "External_records"
	AssignmentsCollectionName = "Occupant_assignments"
)

type mongoRecordRepository struct {
	cfg        *config.Config
	db         *mongo.Database
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

type RecordRepository interface {
	// Upsert inserts the record keyed by (source, external_id) or refreshes
	// the payload fields of the existing one. Resolution fields are never
	// touched here. Returns the prior state, nil when freshly inserted.
	Upsert(ctx context.Context, record *model.ExternalBookingRecord) (*model.ExternalBookingRecord, error)

	FindByID(ctx context.Context, id string) (*model.ExternalBookingRecord, error)
	FindByKey(ctx context.Context, source, externalID string) (*model.ExternalBookingRecord, error)
	FindByBookingID(ctx context.Context, bookingID string) ([]*model.ExternalBookingRecord, error)

	FindUnresolved(ctx context.Context, search string, limit int, offset int64) ([]*model.ExternalBookingRecord, error)
	CountUnresolved(ctx context.Context, search string) (int64, error)
	FindUnresolvedByEmailKey(ctx context.Context, emailKey string, excludeIDs []string) ([]*model.ExternalBookingRecord, error)
	FindNeedsPlayers(ctx context.Context, search string, limit int, offset int64) ([]*model.NeedsPlayersRecord, int64, error)
	FindStaleUnresolved(ctx context.Context, source, currentRunID string, before time.Time) ([]*model.ExternalBookingRecord, error)

	// MarkResolved stamps the resolution plus the outcome it was reached by,
	// so re-ingesting the record reports the same outcome.
	MarkResolved(ctx context.Context, id, memberEmail, bookingID, resolvedBy, outcome string) error
	MarkUnresolved(ctx context.Context, id, failureReason string) error
	MarkSuperseded(ctx context.Context, id string) error
	SetDeclaredCount(ctx context.Context, id string, count int) error

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

func NewMongoRecordRepository(cfg *config.Config) RecordRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRecordRepository{
		cfg:        cfg,
		db:         db,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics.
func (r *mongoRecordRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

func (r *mongoRecordRepository) Upsert(ctx context.Context, record *model.ExternalBookingRecord) (*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)

	filter := bson.M{
		"source":      record.Source,
		"external_id": record.ExternalID,
	}

	update := bson.M{
		"$set": bson.M{
			"occupant_name":    record.OccupantName,
			"raw_email":        record.RawEmail,
			"email_key":        record.EmailKey,
			"resource_id":      record.ResourceID,
			"date":             record.Date,
			"start_time":       record.StartTime,
			"end_time":         record.EndTime,
			"declared_count":   record.DeclaredCount,
			"notes":            record.Notes,
			"import_run_id":    record.ImportRunID,
			"webhook_event_id": record.WebhookEventID,
			"updated_at":       now,
		},
		"$setOnInsert": bson.M{
			"source":      record.Source,
			"external_id": record.ExternalID,
			"status":      model.StatusUnresolved,
			"created_at":  now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var previous model.ExternalBookingRecord
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&previous)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Freshly inserted. Fetch the assigned _id.
			inserted, findErr := r.FindByKey(ctx, record.Source, record.ExternalID)
			if findErr != nil {
				return nil, findErr
			}
			*record = *inserted
			return nil, nil
		}
		return nil, fmt.Errorf("failed to upsert external record: %w", err)
	}

	record.ID = previous.ID
	record.Status = previous.Status
	record.ResolvedEmail = previous.ResolvedEmail
	record.FailureReason = previous.FailureReason
	record.ResolutionOutcome = previous.ResolutionOutcome
	record.BookingID = previous.BookingID
	record.ResolvedBy = previous.ResolvedBy
	record.ResolvedAt = previous.ResolvedAt
	record.CreatedAt = previous.CreatedAt
	return &previous, nil
}

func (r *mongoRecordRepository) FindByID(ctx context.Context, id string) (*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", recordserrors.ErrInvalidID, id)
	}

	var record model.ExternalBookingRecord
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recordserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find external record: %w", err)
	}

	return &record, nil
}

func (r *mongoRecordRepository) FindByKey(ctx context.Context, source, externalID string) (*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"source": source, "external_id": externalID}

	var record model.ExternalBookingRecord
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recordserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find external record by key: %w", err)
	}

	return &record, nil
}

func (r *mongoRecordRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"booking_id": bookingID})
	if err != nil {
		return nil, fmt.Errorf("failed to find external records by booking: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.ExternalBookingRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode external records: %w", err)
	}

	return records, nil
}

func (r *mongoRecordRepository) buildUnresolvedFilter(search string) bson.M {
	filter := bson.M{"status": model.StatusUnresolved}

	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		filter["$or"] = []bson.M{
			{"occupant_name": pattern},
			{"raw_email": pattern},
		}
	}

	return filter
}

func (r *mongoRecordRepository) FindUnresolved(ctx context.Context, search string, limit int, offset int64) ([]*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, r.buildUnresolvedFilter(search), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find unresolved records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.ExternalBookingRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode unresolved records: %w", err)
	}

	return records, nil
}

func (r *mongoRecordRepository) CountUnresolved(ctx context.Context, search string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, r.buildUnresolvedFilter(search))
	if err != nil {
		return 0, fmt.Errorf("failed to count unresolved records: %w", err)
	}
	return count, nil
}

func (r *mongoRecordRepository) FindUnresolvedByEmailKey(ctx context.Context, emailKey string, excludeIDs []string) ([]*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"status":    model.StatusUnresolved,
		"email_key": emailKey,
	}

	if len(excludeIDs) > 0 {
		objectIDs := make([]primitive.ObjectID, 0, len(excludeIDs))
		for _, id := range excludeIDs {
			if oid, err := primitive.ObjectIDFromHex(id); err == nil {
				objectIDs = append(objectIDs, oid)
			}
		}
		filter["_id"] = bson.M{"$nin": objectIDs}
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find unresolved records by email: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.ExternalBookingRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode unresolved records: %w", err)
	}

	return records, nil
}

// FindNeedsPlayers returns resolved records whose bookings have fewer
// occupant assignments attached than the record declared. Occupancy is
// derived at query time, never stored.
func (r *mongoRecordRepository) FindNeedsPlayers(ctx context.Context, search string, limit int, offset int64) ([]*model.NeedsPlayersRecord, int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	match := bson.M{
		"status":         model.StatusResolved,
		"booking_id":     bson.M{"$nin": bson.A{nil, ""}},
		"declared_count": bson.M{"$gt": 0},
	}
	if search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		match["$or"] = []bson.M{
			{"occupant_name": pattern},
			{"raw_email": pattern},
		}
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$lookup", Value: bson.M{
			"from":         AssignmentsCollectionName,
			"localField":   "booking_id",
			"foreignField": "booking_id",
			"as":           "assignments",
		}}},
		{{Key: "$addFields", Value: bson.M{
			"filled": bson.M{"$size": "$assignments"},
		}}},
		{{Key: "$match", Value: bson.M{
			"$expr": bson.M{"$lt": bson.A{"$filled", "$declared_count"}},
		}}},
		{{Key: "$project", Value: bson.M{"assignments": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}}}},
		{{Key: "$facet", Value: bson.M{
			"data": bson.A{
				bson.M{"$skip": offset},
				bson.M{"$limit": limit},
			},
			"total": bson.A{
				bson.M{"$count": "count"},
			},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to aggregate needs-players records: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		Data  []*model.NeedsPlayersRecord `bson:"data"`
		Total []struct {
			Count int64 `bson:"count"`
		} `bson:"total"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("failed to decode needs-players records: %w", err)
	}

	if len(results) == 0 {
		return nil, 0, nil
	}

	var total int64
	if len(results[0].Total) > 0 {
		total = results[0].Total[0].Count
	}

	return results[0].Data, total, nil
}

func (r *mongoRecordRepository) FindStaleUnresolved(ctx context.Context, source, currentRunID string, before time.Time) ([]*model.ExternalBookingRecord, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"source":        source,
		"status":        model.StatusUnresolved,
		"import_run_id": bson.M{"$ne": currentRunID},
		"date":          bson.M{"$lt": before},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find stale unresolved records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*model.ExternalBookingRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode stale unresolved records: %w", err)
	}

	return records, nil
}

func (r *mongoRecordRepository) MarkResolved(ctx context.Context, id, memberEmail, bookingID, resolvedBy, outcome string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", recordserrors.ErrInvalidID, id)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$set": bson.M{
			"status":             model.StatusResolved,
			"resolved_email":     memberEmail,
			"booking_id":         bookingID,
			"resolved_by":        resolvedBy,
			"resolution_outcome": outcome,
			"resolved_at":        now,
			"updated_at":         now,
		},
		"$unset": bson.M{"failure_reason": ""},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark record resolved: %w", err)
	}
	if result.MatchedCount == 0 {
		return recordserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRecordRepository) MarkUnresolved(ctx context.Context, id, failureReason string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", recordserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"status":         model.StatusUnresolved,
			"failure_reason": failureReason,
			"updated_at":     time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark record unresolved: %w", err)
	}
	if result.MatchedCount == 0 {
		return recordserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRecordRepository) MarkSuperseded(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", recordserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"status":     model.StatusSuperseded,
			"updated_at": time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark record superseded: %w", err)
	}
	if result.MatchedCount == 0 {
		return recordserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRecordRepository) SetDeclaredCount(ctx context.Context, id string, count int) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", recordserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"declared_count": count,
			"updated_at":     time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to set declared count: %w", err)
	}
	if result.MatchedCount == 0 {
		return recordserrors.ErrNotFound
	}

	return nil
}

func (r *mongoRecordRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
