package service

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"clubsync/internal/importer"
	"clubsync/internal/notify"
	reconcileservice "clubsync/internal/reconcile/service"
	recordserrors "clubsync/internal/records/errors"
	recordsrepo "clubsync/internal/records/repository"
	"clubsync/pkg/config"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/model"
	"clubsync/pkg/sanitizer"
)

type ImportService interface {
	// RunImport parses and ingests one CSV export synchronously. Only one
	// import per source runs at a time.
	RunImport(ctx context.Context, source, filename, importedBy string, file io.Reader) (*model.ImportRun, error)

	GetRun(ctx context.Context, id string) (*model.ImportRun, error)
	ListRuns(ctx context.Context, limit int, offset int64) ([]*model.ImportRun, int64, error)
}

type importService struct {
	engine     reconcileservice.ReconcileService
	recordRepo recordsrepo.RecordRepository
	runRepo    recordsrepo.ImportRunRepository
	lockRepo   recordsrepo.ImportLockRepository
	publisher  notify.Publisher
	cfg        *config.Config
}

func NewImportService(
	engine reconcileservice.ReconcileService,
	recordRepo recordsrepo.RecordRepository,
	runRepo recordsrepo.ImportRunRepository,
	lockRepo recordsrepo.ImportLockRepository,
	publisher notify.Publisher,
	cfg *config.Config,
) ImportService {
	return &importService{
		engine:     engine,
		recordRepo: recordRepo,
		runRepo:    runRepo,
		lockRepo:   lockRepo,
		publisher:  publisher,
		cfg:        cfg,
	}
}

func (s *importService) RunImport(ctx context.Context, source, filename, importedBy string, file io.Reader) (*model.ImportRun, error) {
	if source == "" {
		source = model.SourceTrackman
	}

	rows, rowErrs, err := importer.ParseCSV(file)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	runID := uuid.New().String()

	if _, err := s.lockRepo.Acquire(ctx, source, runID, s.cfg.ImportLockTTL); err != nil {
		if errors.Is(err, recordserrors.ErrLockHeld) {
			return nil, apperrors.Conflict("An import for this source is already running")
		}
		return nil, apperrors.Internal("Failed to acquire import lock", err)
	}
	defer func() {
		if releaseErr := s.lockRepo.Release(context.WithoutCancel(ctx), source); releaseErr != nil {
			s.cfg.Log.Error("Failed to release import lock", "source", source, "error", releaseErr)
		}
	}()

	run := &model.ImportRun{
		ID:         runID,
		Source:     source,
		Filename:   filename,
		ImportedBy: importedBy,
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return nil, apperrors.Internal("Failed to create import run", err)
	}

	s.cfg.Log.Info("Import started",
		"run_id", runID,
		"source", source,
		"filename", filename,
		"rows", len(rows),
		"malformed_rows", len(rowErrs),
	)
	for _, rowErr := range rowErrs {
		s.cfg.Log.Warn("Skipping malformed row", "run_id", runID, "line", rowErr.Line, "reason", rowErr.Reason)
	}

	summary, cancelled := s.processRows(ctx, runID, rows)
	summary.Total = len(rows) + len(rowErrs)
	summary.Skipped += len(rowErrs)

	if !cancelled {
		summary.RemovedFromUnmatched = s.cleanupStale(ctx, source, runID)
	}

	if err := s.runRepo.Finalize(ctx, runID, summary, cancelled); err != nil {
		return nil, apperrors.Internal("Failed to finalize import run", err)
	}

	run, err = s.runRepo.FindByID(ctx, runID)
	if err != nil {
		return nil, apperrors.Internal("Failed to reload import run", err)
	}

	s.cfg.Log.Info("Import finished",
		"run_id", runID,
		"cancelled", cancelled,
		"matched", summary.Matched,
		"linked", summary.Linked,
		"unmatched", summary.Unmatched,
		"skipped", summary.Skipped,
		"removed_from_unmatched", summary.RemovedFromUnmatched,
		"cancelled_bookings", summary.CancelledBookings,
	)
	s.publisher.ImportCompleted(ctx, run)
	return run, nil
}

// processRows fans rows out over a fixed worker pool. Rows are sharded by
// email key so that every row sharing an email stays on one worker, in file
// order; resolving one of them can then cascade to the rest without racing a
// concurrent insert of a sibling.
func (s *importService) processRows(ctx context.Context, runID string, rows []importer.Row) (model.ImportRunSummary, bool) {
	workers := s.cfg.ImportWorkers
	if workers < 1 {
		workers = 1
	}

	shards := make([][]importer.Row, workers)
	for _, row := range rows {
		idx := shardIndex(shardKey(row), workers)
		shards[idx] = append(shards[idx], row)
	}

	var (
		mu        sync.Mutex
		summary   model.ImportRunSummary
		cancelled bool
		wg        sync.WaitGroup
	)

	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		wg.Add(1)
		go func(shard []importer.Row) {
			defer wg.Done()
			for _, row := range shard {
				if ctx.Err() != nil {
					mu.Lock()
					cancelled = true
					mu.Unlock()
					return
				}

				delta := s.processRow(ctx, runID, row)

				mu.Lock()
				summary.Matched += delta.Matched
				summary.Linked += delta.Linked
				summary.Unmatched += delta.Unmatched
				summary.Skipped += delta.Skipped
				summary.CancelledBookings += delta.CancelledBookings
				mu.Unlock()
			}
		}(shard)
	}
	wg.Wait()

	return summary, cancelled
}

func (s *importService) processRow(ctx context.Context, runID string, row importer.Row) model.ImportRunSummary {
	var delta model.ImportRunSummary

	if row.Cancelled {
		_, err := s.engine.Cancel(ctx, row.Record.Source, row.Record.ExternalID)
		switch {
		case err == nil:
			delta.CancelledBookings++
		case apperrors.AsAppError(err).Code == apperrors.CodeNotFound:
			// Cancelled before we ever saw it; nothing to undo.
			delta.Skipped++
		default:
			s.cfg.Log.Error("Failed to cancel record from import row",
				"run_id", runID,
				"line", row.Line,
				"external_id", row.Record.ExternalID,
				"error", err,
			)
			delta.Skipped++
		}
		return delta
	}

	row.Record.ImportRunID = runID
	result, err := s.engine.Ingest(ctx, row.Record)
	if err != nil {
		s.cfg.Log.Error("Failed to ingest import row",
			"run_id", runID,
			"line", row.Line,
			"external_id", row.Record.ExternalID,
			"error", err,
		)
		delta.Skipped++
		return delta
	}

	switch result.Outcome {
	case reconcileservice.OutcomeMatched:
		delta.Matched++
	case reconcileservice.OutcomeLinked:
		delta.Linked++
	case reconcileservice.OutcomeUnmatched:
		delta.Unmatched++
	default:
		delta.Skipped++
	}
	return delta
}

// cleanupStale supersedes unresolved records the feed stopped exporting: a
// row that vanished from a full export was deleted upstream. Only past dates
// are eligible; a future booking missing from one file may simply be outside
// the export window.
func (s *importService) cleanupStale(ctx context.Context, source, runID string) int {
	stale, err := s.recordRepo.FindStaleUnresolved(ctx, source, runID, time.Now().UTC())
	if err != nil {
		s.cfg.Log.Error("Failed to find stale unresolved records", "run_id", runID, "error", err)
		return 0
	}

	removed := 0
	for _, record := range stale {
		if _, err := s.engine.Cancel(ctx, record.Source, record.ExternalID); err != nil {
			s.cfg.Log.Warn("Failed to supersede stale record",
				"run_id", runID,
				"record_key", record.Key(),
				"error", err,
			)
			continue
		}
		removed++
	}
	return removed
}

func (s *importService) GetRun(ctx context.Context, id string) (*model.ImportRun, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, recordserrors.ErrRunNotFound) {
			return nil, apperrors.NotFoundWithID("Import run", id)
		}
		return nil, apperrors.Internal("Failed to load import run", err)
	}
	return run, nil
}

func (s *importService) ListRuns(ctx context.Context, limit int, offset int64) ([]*model.ImportRun, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	runs, err := s.runRepo.FindAll(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list import runs", err)
	}
	count, err := s.runRepo.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to count import runs", err)
	}
	return runs, count, nil
}

func shardKey(row importer.Row) string {
	if key := sanitizer.NormalizeEmail(row.Record.RawEmail); key != "" {
		return key
	}
	return row.Record.ExternalID
}

func shardIndex(key string, workers int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(workers))
}
