package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	aliasservice "clubsync/internal/alias/service"
	"clubsync/internal/notify"
	recordserrors "clubsync/internal/records/errors"
	recordsrepo "clubsync/internal/records/repository"
	"clubsync/pkg/config"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/keylock"
	"clubsync/pkg/model"
	"clubsync/pkg/sanitizer"
)

// Outcomes of one ingested record.
const (
	OutcomeMatched   = "matched"
	OutcomeLinked    = "linked"
	OutcomeUnmatched = "unmatched"
	OutcomeSkipped   = "skipped"
)

// IngestResult reports what happened to a single external record.
type IngestResult struct {
	Record  *model.ExternalBookingRecord `json:"record"`
	Outcome string                       `json:"outcome"`
	Created bool                         `json:"created"`
}

type ManualResolveRequest struct {
	MemberEmail   string `json:"member_email" validate:"required,email"`
	RememberAlias bool   `json:"remember_alias"`
	ResolvedBy    string `json:"resolved_by"`
	// ExcludeIDs lists record ids the caller already handled; the cascade
	// skips them in addition to the record being resolved.
	ExcludeIDs []string `json:"exclude_ids"`
}

// AutoResolveRequest triggers a cascade for an email the staff already mapped
// to a member, without resolving a new primary record first.
type AutoResolveRequest struct {
	OriginalEmail     string `json:"original_email" validate:"required,email"`
	MemberEmail       string `json:"member_email" validate:"required,email"`
	ExcludeExternalID string `json:"exclude_external_id"`
	ResolvedBy        string `json:"resolved_by"`
}

type ManualResolveResult struct {
	Record *model.ExternalBookingRecord `json:"record"`
	// Cascaded counts sibling unresolved records sharing the same raw email
	// that were resolved to the same member along the way.
	Cascaded int `json:"cascaded"`
}

// BookingAPI is the slice of the booking subsystem the engine writes through.
type BookingAPI interface {
	LookupBooking(ctx context.Context, resourceID string, date time.Time, startTime string) (string, error)
	AttachOwner(ctx context.Context, bookingID, memberEmail string) error
	DetachOwner(ctx context.Context, bookingID string) error
	SetTrackmanID(ctx context.Context, bookingID string, externalID *string) error
}

// MemberLookup verifies that a staff-chosen member actually exists.
type MemberLookup interface {
	GetMemberDetails(ctx context.Context, email string) (*model.MemberDetails, error)
}

// CandidateFinder produces scored directory candidates for a raw identity.
type CandidateFinder interface {
	FindMatches(ctx context.Context, rawName, rawEmail string) ([]model.MatchCandidate, string, error)
}

type ReconcileService interface {
	// Ingest stores one external record and attempts automatic resolution.
	// Records already resolved or superseded keep their resolution; only the
	// payload fields refresh.
	Ingest(ctx context.Context, record *model.ExternalBookingRecord) (*IngestResult, error)

	// Cancel supersedes a record and releases its booking linkage. Idempotent.
	Cancel(ctx context.Context, source, externalID string) (*model.ExternalBookingRecord, error)

	ResolveManually(ctx context.Context, recordID string, req *ManualResolveRequest) (*ManualResolveResult, error)
	AutoResolveSameEmail(ctx context.Context, req *AutoResolveRequest) (int, error)
	FuzzyMatches(ctx context.Context, recordID string) (*model.ExternalBookingRecord, []model.MatchCandidate, error)

	ListUnmatched(ctx context.Context, search string, limit int, offset int64) ([]*model.ExternalBookingRecord, int64, error)
	ListNeedsPlayers(ctx context.Context, search string, limit int, offset int64) ([]*model.NeedsPlayersRecord, int64, error)
}

type reconcileService struct {
	repo      recordsrepo.RecordRepository
	aliases   aliasservice.AliasService
	matcher   CandidateFinder
	bookings  BookingAPI
	directory MemberLookup
	publisher notify.Publisher
	locks     *keylock.KeyedMutex
	cfg       *config.Config
}

func NewReconcileService(
	repo recordsrepo.RecordRepository,
	aliases aliasservice.AliasService,
	matcher CandidateFinder,
	bookings BookingAPI,
	directory MemberLookup,
	publisher notify.Publisher,
	cfg *config.Config,
) ReconcileService {
	return &reconcileService{
		repo:      repo,
		aliases:   aliases,
		matcher:   matcher,
		bookings:  bookings,
		directory: directory,
		publisher: publisher,
		locks:     keylock.New(),
		cfg:       cfg,
	}
}

func (s *reconcileService) Ingest(ctx context.Context, record *model.ExternalBookingRecord) (*IngestResult, error) {
	if record.ExternalID == "" {
		return nil, apperrors.InvalidInput("external_id is required")
	}
	if record.Source == "" {
		record.Source = model.SourceTrackman
	}
	record.OccupantName = sanitizer.TrimAndNormalize(record.OccupantName)
	record.EmailKey = sanitizer.NormalizeEmail(record.RawEmail)

	// Lock order is email before record, everywhere, so ingest and cascade
	// resolution cannot deadlock against each other.
	if record.EmailKey != "" {
		s.locks.Lock(emailLockKey(record.EmailKey))
		defer s.locks.Unlock(emailLockKey(record.EmailKey))
	}
	s.locks.Lock(recordLockKey(record.Key()))
	defer s.locks.Unlock(recordLockKey(record.Key()))

	previous, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, apperrors.Internal("Failed to store external record", err)
	}

	result := &IngestResult{Record: record, Created: previous == nil}

	// A record that already left the review queue never re-enters it from a
	// re-import: resolution survives, only payload fields refresh. A resolved
	// record reports the outcome stored when it was first resolved so that
	// replaying the same file tallies identically to the first pass.
	if previous != nil && previous.Status != model.StatusUnresolved {
		if previous.Status == model.StatusResolved {
			result.Outcome = previous.ResolutionOutcome
			if result.Outcome == "" {
				result.Outcome = OutcomeMatched
			}
		} else {
			result.Outcome = OutcomeSkipped
		}
		return result, nil
	}

	outcome, err := s.tryAutoResolve(ctx, record)
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome
	return result, nil
}

// tryAutoResolve walks the resolution ladder: alias ledger first, then the
// directory matcher. Anything short of a single high-confidence candidate
// parks the record for staff review.
func (s *reconcileService) tryAutoResolve(ctx context.Context, record *model.ExternalBookingRecord) (string, error) {
	canonical, err := s.aliases.Resolve(ctx, record.RawEmail)
	if err != nil {
		return "", apperrors.Internal("Failed to consult alias ledger", err)
	}
	if canonical != "" {
		return s.resolveOrPark(ctx, record, canonical, OutcomeLinked)
	}

	candidates, failure, err := s.matcher.FindMatches(ctx, record.OccupantName, record.RawEmail)
	if err != nil {
		return "", err
	}
	if failure != "" {
		return s.park(ctx, record, failure)
	}

	highConfidence := 0
	for _, candidate := range candidates {
		if candidate.Score >= s.cfg.MatchHighScore {
			highConfidence++
		}
	}
	if highConfidence == 1 {
		return s.resolveOrPark(ctx, record, candidates[0].MemberEmail, OutcomeMatched)
	}

	// Zero or several high-confidence candidates: staff must pick.
	return s.park(ctx, record, model.FailureAmbiguous)
}

func (s *reconcileService) resolveOrPark(ctx context.Context, record *model.ExternalBookingRecord, memberEmail, outcome string) (string, error) {
	if err := s.resolve(ctx, record, memberEmail, "system", outcome); err != nil {
		s.cfg.Log.Warn("Automatic resolution blocked by booking subsystem",
			"record_key", record.Key(),
			"member_email", memberEmail,
			"error", err,
		)
		return s.park(ctx, record, model.FailureBookingUnavailable)
	}
	s.publisher.RecordResolved(ctx, record)
	return outcome, nil
}

func (s *reconcileService) park(ctx context.Context, record *model.ExternalBookingRecord, reason string) (string, error) {
	if err := s.repo.MarkUnresolved(ctx, record.ID, reason); err != nil {
		return "", apperrors.Internal("Failed to mark record unresolved", err)
	}
	record.Status = model.StatusUnresolved
	record.FailureReason = reason
	return OutcomeUnmatched, nil
}

// resolve links the record to a member and, when the slot maps onto one of
// the club's own bookings, attaches the member as its owner. A failed booking
// lookup degrades to resolving without a booking link; a failed owner attach
// is a hard error since it would leave the two systems disagreeing.
func (s *reconcileService) resolve(ctx context.Context, record *model.ExternalBookingRecord, memberEmail, resolvedBy, outcome string) error {
	memberEmail = sanitizer.NormalizeEmail(memberEmail)

	bookingID := record.BookingID
	if bookingID == "" {
		id, err := s.bookings.LookupBooking(ctx, record.ResourceID, record.Date, record.StartTime)
		if err != nil {
			s.cfg.Log.Warn("Booking lookup failed, resolving without booking link",
				"record_key", record.Key(),
				"resource_id", record.ResourceID,
				"error", err,
			)
		} else {
			bookingID = id
		}
	}

	if bookingID != "" {
		if err := s.bookings.AttachOwner(ctx, bookingID, memberEmail); err != nil {
			return err
		}
		if err := s.bookings.SetTrackmanID(ctx, bookingID, &record.ExternalID); err != nil {
			s.cfg.Log.Warn("Failed to tag booking with external id",
				"booking_id", bookingID,
				"record_key", record.Key(),
				"error", err,
			)
		}
	}

	if err := s.repo.MarkResolved(ctx, record.ID, memberEmail, bookingID, resolvedBy, outcome); err != nil {
		return apperrors.Internal("Failed to mark record resolved", err)
	}

	now := time.Now().UTC()
	record.Status = model.StatusResolved
	record.ResolvedEmail = memberEmail
	record.BookingID = bookingID
	record.ResolvedBy = resolvedBy
	record.ResolvedAt = &now
	record.ResolutionOutcome = outcome
	record.FailureReason = ""

	s.cfg.Log.Info("Record resolved",
		"record_key", record.Key(),
		"member_email", memberEmail,
		"booking_id", bookingID,
		"resolved_by", resolvedBy,
	)
	return nil
}

func (s *reconcileService) ResolveManually(ctx context.Context, recordID string, req *ManualResolveRequest) (*ManualResolveResult, error) {
	memberEmail := sanitizer.NormalizeEmail(req.MemberEmail)
	if memberEmail == "" {
		return nil, apperrors.InvalidInput("member_email is required")
	}

	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if record.EmailKey != "" {
		s.locks.Lock(emailLockKey(record.EmailKey))
		defer s.locks.Unlock(emailLockKey(record.EmailKey))
	}
	s.locks.Lock(recordLockKey(record.Key()))
	defer s.locks.Unlock(recordLockKey(record.Key()))

	// Re-read under the lock; a concurrent ingest or cascade may have beaten
	// us to this record.
	record, err = s.findRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case model.StatusSuperseded:
		return nil, apperrors.Conflict("Record was superseded by a cancellation")
	case model.StatusResolved:
		if record.ResolvedEmail == memberEmail {
			// Replaying the same correction is a no-op, not an error.
			return &ManualResolveResult{Record: record}, nil
		}
		return nil, apperrors.Conflict(
			fmt.Sprintf("Record is already resolved to %s", record.ResolvedEmail),
		)
	}

	if _, err := s.directory.GetMemberDetails(ctx, memberEmail); err != nil {
		return nil, err
	}

	if err := s.resolve(ctx, record, memberEmail, req.ResolvedBy, OutcomeMatched); err != nil {
		return nil, err
	}
	s.publisher.RecordResolved(ctx, record)

	if req.RememberAlias && record.EmailKey != "" && record.EmailKey != memberEmail {
		if _, err := s.aliases.Link(ctx, record.RawEmail, memberEmail, req.ResolvedBy); err != nil {
			s.cfg.Log.Error("Failed to remember alias link",
				"alternate_email", record.EmailKey,
				"canonical_email", memberEmail,
				"error", err,
			)
		}
	}

	excludeIDs := append([]string{record.ID}, req.ExcludeIDs...)
	cascaded := s.cascadeResolve(ctx, record.EmailKey, memberEmail, req.ResolvedBy, excludeIDs)

	return &ManualResolveResult{Record: record, Cascaded: cascaded}, nil
}

// cascadeResolve resolves every other unresolved record carrying the same
// email key to the same member. Callers hold the email lock.
func (s *reconcileService) cascadeResolve(ctx context.Context, emailKey, memberEmail, resolvedBy string, excludeIDs []string) int {
	if emailKey == "" {
		return 0
	}

	siblings, err := s.repo.FindUnresolvedByEmailKey(ctx, emailKey, excludeIDs)
	if err != nil {
		s.cfg.Log.Error("Failed to load sibling records for cascade",
			"email_key", emailKey,
			"error", err,
		)
		return 0
	}

	resolved := 0
	for _, sibling := range siblings {
		s.locks.Lock(recordLockKey(sibling.Key()))
		current, err := s.repo.FindByID(ctx, sibling.ID)
		if err == nil && current.Status != model.StatusUnresolved {
			// A concurrent cancellation or resolution got to this sibling
			// between the query and this lock; its state is final.
			s.locks.Unlock(recordLockKey(sibling.Key()))
			continue
		}
		if err == nil {
			err = s.resolve(ctx, current, memberEmail, resolvedBy, OutcomeMatched)
		}
		s.locks.Unlock(recordLockKey(sibling.Key()))
		if err != nil {
			s.cfg.Log.Warn("Cascade resolution skipped a record",
				"record_key", sibling.Key(),
				"error", err,
			)
			continue
		}
		s.publisher.RecordResolved(ctx, current)
		resolved++
	}
	return resolved
}

// AutoResolveSameEmail resolves every unresolved record carrying the given
// raw email to the member the staff already picked, without requiring a fresh
// primary resolution. The caller may exclude an external id it just handled
// through another path.
func (s *reconcileService) AutoResolveSameEmail(ctx context.Context, req *AutoResolveRequest) (int, error) {
	emailKey := sanitizer.NormalizeEmail(req.OriginalEmail)
	memberEmail := sanitizer.NormalizeEmail(req.MemberEmail)
	if emailKey == "" || memberEmail == "" {
		return 0, apperrors.InvalidInput("original_email and member_email are required")
	}

	if _, err := s.directory.GetMemberDetails(ctx, memberEmail); err != nil {
		return 0, err
	}

	s.locks.Lock(emailLockKey(emailKey))
	defer s.locks.Unlock(emailLockKey(emailKey))

	var excludeIDs []string
	if req.ExcludeExternalID != "" {
		excluded, err := s.repo.FindByKey(ctx, model.SourceTrackman, req.ExcludeExternalID)
		switch {
		case err == nil:
			excludeIDs = append(excludeIDs, excluded.ID)
		case errors.Is(err, recordserrors.ErrNotFound):
			// Nothing to exclude.
		default:
			return 0, apperrors.Internal("Failed to load excluded record", err)
		}
	}

	resolvedBy := req.ResolvedBy
	if resolvedBy == "" {
		resolvedBy = "system"
	}

	return s.cascadeResolve(ctx, emailKey, memberEmail, resolvedBy, excludeIDs), nil
}

func (s *reconcileService) FuzzyMatches(ctx context.Context, recordID string) (*model.ExternalBookingRecord, []model.MatchCandidate, error) {
	record, err := s.findRecord(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}
	if record.Status != model.StatusUnresolved {
		return nil, nil, apperrors.Conflict("Only unresolved records have match candidates")
	}

	candidates, failure, err := s.matcher.FindMatches(ctx, record.OccupantName, record.RawEmail)
	if err != nil {
		return nil, nil, err
	}
	// Staff asked interactively, so an outage is an error here, unlike during
	// bulk ingestion.
	if failure == model.FailureDirectoryUnavailable {
		return nil, nil, apperrors.Unavailable("member directory")
	}

	return record, candidates, nil
}

func (s *reconcileService) Cancel(ctx context.Context, source, externalID string) (*model.ExternalBookingRecord, error) {
	if source == "" {
		source = model.SourceTrackman
	}
	if externalID == "" {
		return nil, apperrors.InvalidInput("external_id is required")
	}

	record, err := s.repo.FindByKey(ctx, source, externalID)
	if err != nil {
		if errors.Is(err, recordserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("External record", source+":"+externalID)
		}
		return nil, apperrors.Internal("Failed to load external record", err)
	}

	s.locks.Lock(recordLockKey(record.Key()))
	defer s.locks.Unlock(recordLockKey(record.Key()))

	if record.Status == model.StatusSuperseded {
		return record, nil
	}

	if record.BookingID != "" {
		if err := s.bookings.DetachOwner(ctx, record.BookingID); err != nil {
			// The booking being gone already is the outcome we wanted.
			if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
				return nil, err
			}
		}
		if err := s.bookings.SetTrackmanID(ctx, record.BookingID, nil); err != nil {
			s.cfg.Log.Warn("Failed to clear external id from booking",
				"booking_id", record.BookingID,
				"record_key", record.Key(),
				"error", err,
			)
		}
	}

	if err := s.repo.MarkSuperseded(ctx, record.ID); err != nil {
		return nil, apperrors.Internal("Failed to supersede record", err)
	}
	record.Status = model.StatusSuperseded

	s.cfg.Log.Info("Record superseded",
		"record_key", record.Key(),
		"booking_id", record.BookingID,
	)
	s.publisher.RecordSuperseded(ctx, record)
	return record, nil
}

func (s *reconcileService) ListUnmatched(ctx context.Context, search string, limit int, offset int64) ([]*model.ExternalBookingRecord, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	records, err := s.repo.FindUnresolved(ctx, search, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list unresolved records", err)
	}
	count, err := s.repo.CountUnresolved(ctx, search)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to count unresolved records", err)
	}
	return records, count, nil
}

func (s *reconcileService) ListNeedsPlayers(ctx context.Context, search string, limit int, offset int64) ([]*model.NeedsPlayersRecord, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	records, count, err := s.repo.FindNeedsPlayers(ctx, search, limit, offset)
	if err != nil {
		return nil, 0, apperrors.Internal("Failed to list bookings needing players", err)
	}
	return records, count, nil
}

func (s *reconcileService) findRecord(ctx context.Context, recordID string) (*model.ExternalBookingRecord, error) {
	record, err := s.repo.FindByID(ctx, recordID)
	if err != nil {
		switch {
		case errors.Is(err, recordserrors.ErrInvalidID):
			return nil, apperrors.InvalidInput("Invalid record id")
		case errors.Is(err, recordserrors.ErrNotFound):
			return nil, apperrors.NotFoundWithID("External record", recordID)
		default:
			return nil, apperrors.Internal("Failed to load external record", err)
		}
	}
	return record, nil
}

func emailLockKey(emailKey string) string {
	return "email:" + emailKey
}

func recordLockKey(recordKey string) string {
	return "record:" + recordKey
}
