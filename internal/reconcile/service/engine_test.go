package service

import (
	"context"
	"testing"
	"time"

	recordserrors "clubsync/internal/records/errors"
	"clubsync/pkg/config"
	mongotx "clubsync/pkg/db/mongo"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

type mockRecordRepository struct {
	records map[string]*model.ExternalBookingRecord
	nextID  int

	markResolvedErr   error
	markUnresolvedErr error

	// onFindUnresolvedByEmailKey runs before the query returns, letting a
	// test interleave a concurrent state change with a cascade.
	onFindUnresolvedByEmailKey func()
}

func newMockRecordRepository() *mockRecordRepository {
	return &mockRecordRepository{records: make(map[string]*model.ExternalBookingRecord)}
}

func (m *mockRecordRepository) Upsert(ctx context.Context, record *model.ExternalBookingRecord) (*model.ExternalBookingRecord, error) {
	for _, existing := range m.records {
		if existing.Source == record.Source && existing.ExternalID == record.ExternalID {
			previous := *existing

			existing.OccupantName = record.OccupantName
			existing.RawEmail = record.RawEmail
			existing.EmailKey = record.EmailKey
			existing.ResourceID = record.ResourceID
			existing.Date = record.Date
			existing.StartTime = record.StartTime
			existing.EndTime = record.EndTime
			existing.DeclaredCount = record.DeclaredCount
			existing.ImportRunID = record.ImportRunID

			*record = *existing
			return &previous, nil
		}
	}

	m.nextID++
	record.ID = string(rune('a' + m.nextID - 1))
	record.Status = model.StatusUnresolved
	stored := *record
	m.records[record.ID] = &stored
	return nil, nil
}

func (m *mockRecordRepository) FindByID(ctx context.Context, id string) (*model.ExternalBookingRecord, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, recordserrors.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *mockRecordRepository) FindByKey(ctx context.Context, source, externalID string) (*model.ExternalBookingRecord, error) {
	for _, record := range m.records {
		if record.Source == source && record.ExternalID == externalID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, recordserrors.ErrNotFound
}

func (m *mockRecordRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) FindUnresolved(ctx context.Context, search string, limit int, offset int64) ([]*model.ExternalBookingRecord, error) {
	var out []*model.ExternalBookingRecord
	for _, record := range m.records {
		if record.Status == model.StatusUnresolved {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockRecordRepository) CountUnresolved(ctx context.Context, search string) (int64, error) {
	records, _ := m.FindUnresolved(ctx, search, 0, 0)
	return int64(len(records)), nil
}

func (m *mockRecordRepository) FindUnresolvedByEmailKey(ctx context.Context, emailKey string, excludeIDs []string) ([]*model.ExternalBookingRecord, error) {
	if m.onFindUnresolvedByEmailKey != nil {
		defer m.onFindUnresolvedByEmailKey()
	}

	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	var out []*model.ExternalBookingRecord
	for _, record := range m.records {
		if record.Status == model.StatusUnresolved && record.EmailKey == emailKey && !excluded[record.ID] {
			copied := *record
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockRecordRepository) FindNeedsPlayers(ctx context.Context, search string, limit int, offset int64) ([]*model.NeedsPlayersRecord, int64, error) {
	return nil, 0, nil
}

func (m *mockRecordRepository) FindStaleUnresolved(ctx context.Context, source, currentRunID string, before time.Time) ([]*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) MarkResolved(ctx context.Context, id, memberEmail, bookingID, resolvedBy, outcome string) error {
	if m.markResolvedErr != nil {
		return m.markResolvedErr
	}
	record, ok := m.records[id]
	if !ok {
		return recordserrors.ErrNotFound
	}
	record.Status = model.StatusResolved
	record.ResolvedEmail = memberEmail
	record.BookingID = bookingID
	record.ResolvedBy = resolvedBy
	record.ResolutionOutcome = outcome
	record.FailureReason = ""
	return nil
}

func (m *mockRecordRepository) MarkUnresolved(ctx context.Context, id, failureReason string) error {
	if m.markUnresolvedErr != nil {
		return m.markUnresolvedErr
	}
	record, ok := m.records[id]
	if !ok {
		return recordserrors.ErrNotFound
	}
	record.Status = model.StatusUnresolved
	record.FailureReason = failureReason
	return nil
}

func (m *mockRecordRepository) MarkSuperseded(ctx context.Context, id string) error {
	record, ok := m.records[id]
	if !ok {
		return recordserrors.ErrNotFound
	}
	record.Status = model.StatusSuperseded
	return nil
}

func (m *mockRecordRepository) SetDeclaredCount(ctx context.Context, id string, count int) error {
	return nil
}

func (m *mockRecordRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return nil
}

type mockAliasService struct {
	links        map[string]string
	capturedLink *model.AliasLink
}

func newMockAliasService() *mockAliasService {
	return &mockAliasService{links: make(map[string]string)}
}

func (m *mockAliasService) Resolve(ctx context.Context, alternateEmail string) (string, error) {
	return m.links[normalizeTestEmail(alternateEmail)], nil
}

func (m *mockAliasService) Link(ctx context.Context, alternateEmail, canonicalEmail, linkedBy string) (*model.AliasLink, error) {
	link := &model.AliasLink{
		AlternateEmail: normalizeTestEmail(alternateEmail),
		CanonicalEmail: normalizeTestEmail(canonicalEmail),
		LinkedBy:       linkedBy,
	}
	m.links[link.AlternateEmail] = link.CanonicalEmail
	m.capturedLink = link
	return link, nil
}

func (m *mockAliasService) Unlink(ctx context.Context, alternateEmail string) error {
	delete(m.links, normalizeTestEmail(alternateEmail))
	return nil
}

func (m *mockAliasService) List(ctx context.Context, limit int, offset int64) ([]*model.AliasLink, int64, error) {
	return nil, 0, nil
}

func (m *mockAliasService) ListByCanonical(ctx context.Context, canonicalEmail string) ([]*model.AliasLink, error) {
	return nil, nil
}

type mockMatcher struct {
	candidates []model.MatchCandidate
	failure    string
}

func (m *mockMatcher) FindMatches(ctx context.Context, rawName, rawEmail string) ([]model.MatchCandidate, string, error) {
	return m.candidates, m.failure, nil
}

type mockBookingAPI struct {
	bookingID string
	lookupErr error
	attachErr error

	attachedTo   string
	attachedWith string
	detachedFrom string
	taggedWith   map[string]*string
}

func newMockBookingAPI(bookingID string) *mockBookingAPI {
	return &mockBookingAPI{
		bookingID:  bookingID,
		taggedWith: make(map[string]*string),
	}
}

func (m *mockBookingAPI) LookupBooking(ctx context.Context, resourceID string, date time.Time, startTime string) (string, error) {
	if m.lookupErr != nil {
		return "", m.lookupErr
	}
	return m.bookingID, nil
}

func (m *mockBookingAPI) AttachOwner(ctx context.Context, bookingID, memberEmail string) error {
	if m.attachErr != nil {
		return m.attachErr
	}
	m.attachedTo = bookingID
	m.attachedWith = memberEmail
	return nil
}

func (m *mockBookingAPI) DetachOwner(ctx context.Context, bookingID string) error {
	m.detachedFrom = bookingID
	return nil
}

func (m *mockBookingAPI) SetTrackmanID(ctx context.Context, bookingID string, externalID *string) error {
	m.taggedWith[bookingID] = externalID
	return nil
}

type mockMemberLookup struct {
	err error
}

func (m *mockMemberLookup) GetMemberDetails(ctx context.Context, email string) (*model.MemberDetails, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &model.MemberDetails{Tier: "full"}, nil
}

type mockPublisher struct {
	resolved   []string
	superseded []string
}

func (m *mockPublisher) RecordResolved(ctx context.Context, record *model.ExternalBookingRecord) {
	m.resolved = append(m.resolved, record.Key())
}

func (m *mockPublisher) RecordSuperseded(ctx context.Context, record *model.ExternalBookingRecord) {
	m.superseded = append(m.superseded, record.Key())
}

func (m *mockPublisher) ImportCompleted(ctx context.Context, run *model.ImportRun) {}

func normalizeTestEmail(email string) string {
	out := make([]byte, 0, len(email))
	for i := 0; i < len(email); i++ {
		c := email[i]
		if c == ' ' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

type engineFixture struct {
	repo      *mockRecordRepository
	aliases   *mockAliasService
	matcher   *mockMatcher
	bookings  *mockBookingAPI
	directory *mockMemberLookup
	publisher *mockPublisher
	service   ReconcileService
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		repo:      newMockRecordRepository(),
		aliases:   newMockAliasService(),
		matcher:   &mockMatcher{},
		bookings:  newMockBookingAPI("booking-1"),
		directory: &mockMemberLookup{},
		publisher: &mockPublisher{},
	}
	cfg := &config.Config{
		MatchMinScore:      50,
		MatchHighScore:     80,
		MatchMaxCandidates: 10,
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
	f.service = NewReconcileService(f.repo, f.aliases, f.matcher, f.bookings, f.directory, f.publisher, cfg)
	return f
}

func testRecord(externalID, name, email string) *model.ExternalBookingRecord {
	return &model.ExternalBookingRecord{
		ExternalID:   externalID,
		OccupantName: name,
		RawEmail:     email,
		ResourceID:   "bay-3",
		Date:         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		StartTime:    "18:00",
	}
}

func TestIngest_AliasHitResolvesAndLinksBooking(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"

	result, err := f.service.Ingest(context.Background(), testRecord("tm-1", "John Smith", "JSmith@Gmail.com"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if result.Outcome != OutcomeLinked {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeLinked)
	}
	if !result.Created {
		t.Error("expected a freshly created record")
	}
	if result.Record.ResolvedEmail != "j.smith@club.test" {
		t.Errorf("resolved email = %q, want canonical", result.Record.ResolvedEmail)
	}
	if f.bookings.attachedTo != "booking-1" || f.bookings.attachedWith != "j.smith@club.test" {
		t.Errorf("owner attach = (%q, %q), want booking-1 owned by canonical email",
			f.bookings.attachedTo, f.bookings.attachedWith)
	}
	if len(f.publisher.resolved) != 1 {
		t.Errorf("resolved events = %d, want 1", len(f.publisher.resolved))
	}
}

func TestIngest_SingleHighCandidateAutoResolves(t *testing.T) {
	f := newEngineFixture()
	f.matcher.candidates = []model.MatchCandidate{
		{MemberEmail: "j.smith@club.test", DisplayName: "John Smith", Score: 91},
		{MemberEmail: "j.smythe@club.test", DisplayName: "Jon Smythe", Score: 62},
	}

	result, err := f.service.Ingest(context.Background(), testRecord("tm-1", "John Smith", ""))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if result.Outcome != OutcomeMatched {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeMatched)
	}
	if result.Record.ResolvedEmail != "j.smith@club.test" {
		t.Errorf("resolved email = %q, want top candidate", result.Record.ResolvedEmail)
	}
}

func TestIngest_MultipleHighCandidatesStayAmbiguous(t *testing.T) {
	f := newEngineFixture()
	f.matcher.candidates = []model.MatchCandidate{
		{MemberEmail: "a.chen@club.test", Score: 85},
		{MemberEmail: "b.chen@club.test", Score: 85},
	}

	result, err := f.service.Ingest(context.Background(), testRecord("tm-1", "A Chen", ""))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if result.Outcome != OutcomeUnmatched {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeUnmatched)
	}
	if result.Record.FailureReason != model.FailureAmbiguous {
		t.Errorf("failure reason = %q, want %q", result.Record.FailureReason, model.FailureAmbiguous)
	}
}

func TestIngest_DirectoryOutageParksRecord(t *testing.T) {
	f := newEngineFixture()
	f.matcher.failure = model.FailureDirectoryUnavailable

	result, err := f.service.Ingest(context.Background(), testRecord("tm-1", "John Smith", "j@x.test"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if result.Outcome != OutcomeUnmatched {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeUnmatched)
	}
	if result.Record.FailureReason != model.FailureDirectoryUnavailable {
		t.Errorf("failure reason = %q, want %q", result.Record.FailureReason, model.FailureDirectoryUnavailable)
	}
}

func TestIngest_OwnerAttachFailureParksRecord(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"
	f.bookings.attachErr = apperrors.Unavailable("booking service")

	result, err := f.service.Ingest(context.Background(), testRecord("tm-1", "John Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if result.Outcome != OutcomeUnmatched {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeUnmatched)
	}
	if result.Record.FailureReason != model.FailureBookingUnavailable {
		t.Errorf("failure reason = %q, want %q", result.Record.FailureReason, model.FailureBookingUnavailable)
	}
}

func TestIngest_ReimportNeverReopensResolvedRecord(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"
	ctx := context.Background()

	first, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("first Ingest returned error: %v", err)
	}
	if first.Outcome != OutcomeLinked {
		t.Fatalf("first outcome = %q, want %q", first.Outcome, OutcomeLinked)
	}

	// Drop the alias so a fresh resolution attempt would fail: the replay must
	// not even try.
	delete(f.aliases.links, "jsmith@gmail.com")

	replay := testRecord("tm-1", "John Smith UPDATED", "jsmith@gmail.com")
	replay.Notes = "second pass"
	second, err := f.service.Ingest(ctx, replay)
	if err != nil {
		t.Fatalf("second Ingest returned error: %v", err)
	}
	if second.Outcome != OutcomeLinked {
		t.Errorf("replay outcome = %q, want stored %q", second.Outcome, OutcomeLinked)
	}
	if second.Created {
		t.Error("replay must not create a new record")
	}
	if second.Record.Status != model.StatusResolved {
		t.Errorf("status after replay = %q, want %q", second.Record.Status, model.StatusResolved)
	}
	if second.Record.ResolvedEmail != "j.smith@club.test" {
		t.Errorf("resolution lost on replay: resolved email = %q", second.Record.ResolvedEmail)
	}
	if second.Record.OccupantName != "John Smith UPDATED" {
		t.Errorf("payload not refreshed on replay: name = %q", second.Record.OccupantName)
	}
}

func TestIngest_ReplayReportsSameOutcomeAsFirstPass(t *testing.T) {
	f := newEngineFixture()
	f.matcher.candidates = []model.MatchCandidate{
		{MemberEmail: "j.smith@club.test", DisplayName: "John Smith", Score: 91},
	}
	ctx := context.Background()

	first, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", ""))
	if err != nil {
		t.Fatalf("first Ingest returned error: %v", err)
	}
	if first.Outcome != OutcomeMatched {
		t.Fatalf("first outcome = %q, want %q", first.Outcome, OutcomeMatched)
	}

	second, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", ""))
	if err != nil {
		t.Fatalf("second Ingest returned error: %v", err)
	}
	if second.Outcome != OutcomeMatched {
		t.Errorf("replay outcome = %q, want %q so run summaries line up", second.Outcome, OutcomeMatched)
	}
}

func TestIngest_SupersededIsTerminal(t *testing.T) {
	f := newEngineFixture()
	f.matcher.failure = model.FailureNoMatch
	ctx := context.Background()

	if _, err := f.service.Ingest(ctx, testRecord("tm-1", "Ghost", "")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, err := f.service.Cancel(ctx, model.SourceTrackman, "tm-1"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	result, err := f.service.Ingest(ctx, testRecord("tm-1", "Ghost", ""))
	if err != nil {
		t.Fatalf("re-Ingest returned error: %v", err)
	}
	if result.Outcome != OutcomeSkipped {
		t.Errorf("outcome = %q, want %q", result.Outcome, OutcomeSkipped)
	}
	if result.Record.Status != model.StatusSuperseded {
		t.Errorf("status = %q, want %q", result.Record.Status, model.StatusSuperseded)
	}
}

func TestResolveManually_CascadesToSiblings(t *testing.T) {
	f := newEngineFixture()
	f.matcher.failure = model.FailureNoMatch
	ctx := context.Background()

	first, err := f.service.Ingest(ctx, testRecord("tm-1", "J Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest tm-1 returned error: %v", err)
	}
	if _, err := f.service.Ingest(ctx, testRecord("tm-2", "J Smith", "JSMITH@gmail.com")); err != nil {
		t.Fatalf("Ingest tm-2 returned error: %v", err)
	}
	if _, err := f.service.Ingest(ctx, testRecord("tm-3", "Someone Else", "other@x.test")); err != nil {
		t.Fatalf("Ingest tm-3 returned error: %v", err)
	}

	result, err := f.service.ResolveManually(ctx, first.Record.ID, &ManualResolveRequest{
		MemberEmail:   "j.smith@club.test",
		RememberAlias: true,
		ResolvedBy:    "staff-7",
	})
	if err != nil {
		t.Fatalf("ResolveManually returned error: %v", err)
	}
	if result.Cascaded != 1 {
		t.Errorf("cascaded = %d, want 1 (same email key, different casing)", result.Cascaded)
	}
	if result.Record.ResolvedBy != "staff-7" {
		t.Errorf("resolved by = %q, want staff-7", result.Record.ResolvedBy)
	}

	sibling, err := f.repo.FindByKey(ctx, model.SourceTrackman, "tm-2")
	if err != nil {
		t.Fatalf("FindByKey tm-2 returned error: %v", err)
	}
	if sibling.Status != model.StatusResolved || sibling.ResolvedEmail != "j.smith@club.test" {
		t.Errorf("sibling = (%q, %q), want resolved to j.smith@club.test", sibling.Status, sibling.ResolvedEmail)
	}

	unrelated, err := f.repo.FindByKey(ctx, model.SourceTrackman, "tm-3")
	if err != nil {
		t.Fatalf("FindByKey tm-3 returned error: %v", err)
	}
	if unrelated.Status != model.StatusUnresolved {
		t.Errorf("unrelated record status = %q, want untouched", unrelated.Status)
	}

	if f.aliases.capturedLink == nil {
		t.Fatal("expected an alias link to be remembered")
	}
	if f.aliases.capturedLink.AlternateEmail != "jsmith@gmail.com" ||
		f.aliases.capturedLink.CanonicalEmail != "j.smith@club.test" {
		t.Errorf("alias link = %+v, want jsmith@gmail.com -> j.smith@club.test", f.aliases.capturedLink)
	}
}

func TestResolveManually_CascadeSkipsSiblingSupersededInFlight(t *testing.T) {
	f := newEngineFixture()
	f.matcher.failure = model.FailureNoMatch
	ctx := context.Background()

	first, err := f.service.Ingest(ctx, testRecord("tm-1", "J Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest tm-1 returned error: %v", err)
	}
	sibling, err := f.service.Ingest(ctx, testRecord("tm-2", "J Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest tm-2 returned error: %v", err)
	}

	// Supersede the sibling after the cascade has queried for it but before
	// it takes the record lock, as a concurrent cancellation would.
	f.repo.onFindUnresolvedByEmailKey = func() {
		f.repo.records[sibling.Record.ID].Status = model.StatusSuperseded
	}

	result, err := f.service.ResolveManually(ctx, first.Record.ID, &ManualResolveRequest{
		MemberEmail: "j.smith@club.test",
		ResolvedBy:  "staff-7",
	})
	if err != nil {
		t.Fatalf("ResolveManually returned error: %v", err)
	}
	if result.Cascaded != 0 {
		t.Errorf("cascaded = %d, want 0 when the sibling was cancelled in flight", result.Cascaded)
	}

	got, err := f.repo.FindByKey(ctx, model.SourceTrackman, "tm-2")
	if err != nil {
		t.Fatalf("FindByKey tm-2 returned error: %v", err)
	}
	if got.Status != model.StatusSuperseded {
		t.Errorf("sibling status = %q, want %q to stay terminal", got.Status, model.StatusSuperseded)
	}
	if got.ResolvedEmail != "" {
		t.Errorf("sibling resolved email = %q, want empty", got.ResolvedEmail)
	}
}

func TestResolveManually_ConflictOnDifferentEmail(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"
	ctx := context.Background()

	result, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	_, err = f.service.ResolveManually(ctx, result.Record.ID, &ManualResolveRequest{
		MemberEmail: "someone.else@club.test",
	})
	if err == nil {
		t.Fatal("expected conflict when re-resolving to a different member")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeConflict)
	}
}

func TestResolveManually_SameEmailIsIdempotent(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"
	ctx := context.Background()

	result, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	replay, err := f.service.ResolveManually(ctx, result.Record.ID, &ManualResolveRequest{
		MemberEmail: "J.Smith@Club.Test",
	})
	if err != nil {
		t.Fatalf("ResolveManually replay returned error: %v", err)
	}
	if replay.Cascaded != 0 {
		t.Errorf("cascaded = %d, want 0 on a no-op replay", replay.Cascaded)
	}
}

func TestResolveManually_UnknownMemberRejected(t *testing.T) {
	f := newEngineFixture()
	f.matcher.failure = model.FailureNoMatch
	f.directory.err = apperrors.NotFoundWithID("Member", "ghost@club.test")
	ctx := context.Background()

	result, err := f.service.Ingest(ctx, testRecord("tm-1", "Ghost", ""))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	_, err = f.service.ResolveManually(ctx, result.Record.ID, &ManualResolveRequest{
		MemberEmail: "ghost@club.test",
	})
	if err == nil {
		t.Fatal("expected not found for an unknown member")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeNotFound {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeNotFound)
	}
}

func TestCancel_ReleasesBookingAndSupersedes(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"
	ctx := context.Background()

	if _, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", "jsmith@gmail.com")); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	record, err := f.service.Cancel(ctx, model.SourceTrackman, "tm-1")
	if err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if record.Status != model.StatusSuperseded {
		t.Errorf("status = %q, want %q", record.Status, model.StatusSuperseded)
	}
	if f.bookings.detachedFrom != "booking-1" {
		t.Errorf("detached from = %q, want booking-1", f.bookings.detachedFrom)
	}
	if tag, ok := f.bookings.taggedWith["booking-1"]; !ok || tag != nil {
		t.Error("expected the external id tag to be cleared on the booking")
	}
	if len(f.publisher.superseded) != 1 {
		t.Errorf("superseded events = %d, want 1", len(f.publisher.superseded))
	}

	// Replaying the cancellation is a no-op.
	if _, err := f.service.Cancel(ctx, model.SourceTrackman, "tm-1"); err != nil {
		t.Fatalf("Cancel replay returned error: %v", err)
	}
}

func TestAutoResolveSameEmail_ResolvesRecordsSharingTheEmail(t *testing.T) {
	f := newEngineFixture()
	f.matcher.failure = model.FailureNoMatch
	ctx := context.Background()

	if _, err := f.service.Ingest(ctx, testRecord("tm-1", "J Smith", "jsmith@gmail.com")); err != nil {
		t.Fatalf("Ingest tm-1 returned error: %v", err)
	}
	if _, err := f.service.Ingest(ctx, testRecord("tm-2", "Jon Smith", "JSmith@gmail.com")); err != nil {
		t.Fatalf("Ingest tm-2 returned error: %v", err)
	}
	if _, err := f.service.Ingest(ctx, testRecord("tm-3", "Unknown", "nobody@x.test")); err != nil {
		t.Fatalf("Ingest tm-3 returned error: %v", err)
	}

	resolved, err := f.service.AutoResolveSameEmail(ctx, &AutoResolveRequest{
		OriginalEmail:     "jsmith@gmail.com",
		MemberEmail:       "j.smith@club.test",
		ExcludeExternalID: "tm-2",
		ResolvedBy:        "staff-1",
	})
	if err != nil {
		t.Fatalf("AutoResolveSameEmail returned error: %v", err)
	}
	if resolved != 1 {
		t.Errorf("resolved = %d, want 1", resolved)
	}

	record, err := f.repo.FindByKey(ctx, model.SourceTrackman, "tm-1")
	if err != nil {
		t.Fatalf("FindByKey returned error: %v", err)
	}
	if record.Status != model.StatusResolved || record.ResolvedEmail != "j.smith@club.test" {
		t.Errorf("record = (%q, %q), want resolved to j.smith@club.test", record.Status, record.ResolvedEmail)
	}

	// The excluded external id and the unrelated email stay parked.
	for _, externalID := range []string{"tm-2", "tm-3"} {
		untouched, err := f.repo.FindByKey(ctx, model.SourceTrackman, externalID)
		if err != nil {
			t.Fatalf("FindByKey %s returned error: %v", externalID, err)
		}
		if untouched.Status != model.StatusUnresolved {
			t.Errorf("%s status = %q, want %q", externalID, untouched.Status, model.StatusUnresolved)
		}
	}
}

func TestAutoResolveSameEmail_UnknownMemberNotFound(t *testing.T) {
	f := newEngineFixture()
	f.directory.err = apperrors.NotFoundWithID("Member", "ghost@club.test")
	ctx := context.Background()

	_, err := f.service.AutoResolveSameEmail(ctx, &AutoResolveRequest{
		OriginalEmail: "jsmith@gmail.com",
		MemberEmail:   "ghost@club.test",
	})
	if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestFuzzyMatches_ResolvedRecordConflicts(t *testing.T) {
	f := newEngineFixture()
	f.aliases.links["jsmith@gmail.com"] = "j.smith@club.test"
	ctx := context.Background()

	result, err := f.service.Ingest(ctx, testRecord("tm-1", "John Smith", "jsmith@gmail.com"))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	_, _, err = f.service.FuzzyMatches(ctx, result.Record.ID)
	if err == nil {
		t.Fatal("expected conflict for a resolved record")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeConflict)
	}
}
