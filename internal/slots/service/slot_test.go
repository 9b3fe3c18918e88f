package service

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	slotserrors "clubsync/internal/slots/errors"
	"clubsync/pkg/config"
	mongotx "clubsync/pkg/db/mongo"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/logger"
	"clubsync/pkg/model"
)

type mockAssignmentRepository struct {
	assignments map[string][]*model.OccupantAssignment
}

func newMockAssignmentRepository() *mockAssignmentRepository {
	return &mockAssignmentRepository{
		assignments: make(map[string][]*model.OccupantAssignment),
	}
}

func (m *mockAssignmentRepository) Create(ctx context.Context, assignment *model.OccupantAssignment) error {
	for _, existing := range m.assignments[assignment.BookingID] {
		if existing.OccupantKey == assignment.OccupantKey {
			return slotserrors.ErrDuplicateOccupant
		}
	}
	m.assignments[assignment.BookingID] = append(m.assignments[assignment.BookingID], assignment)
	return nil
}

func (m *mockAssignmentRepository) Delete(ctx context.Context, bookingID, occupantKey string) error {
	list := m.assignments[bookingID]
	for i, existing := range list {
		if existing.OccupantKey == occupantKey {
			m.assignments[bookingID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return slotserrors.ErrAssignmentNotFound
}

func (m *mockAssignmentRepository) FindByBooking(ctx context.Context, bookingID string) ([]*model.OccupantAssignment, error) {
	return m.assignments[bookingID], nil
}

func (m *mockAssignmentRepository) CountByBooking(ctx context.Context, bookingID string) (int64, error) {
	return int64(len(m.assignments[bookingID])), nil
}

func (m *mockAssignmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

type mockRecordRepository struct {
	recordsByBooking map[string][]*model.ExternalBookingRecord
	declaredCounts   map[string]int
}

func newMockRecordRepository() *mockRecordRepository {
	return &mockRecordRepository{
		recordsByBooking: make(map[string][]*model.ExternalBookingRecord),
		declaredCounts:   make(map[string]int),
	}
}

func (m *mockRecordRepository) Upsert(ctx context.Context, record *model.ExternalBookingRecord) (*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) FindByID(ctx context.Context, id string) (*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) FindByKey(ctx context.Context, source, externalID string) (*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) FindByBookingID(ctx context.Context, bookingID string) ([]*model.ExternalBookingRecord, error) {
	return m.recordsByBooking[bookingID], nil
}

func (m *mockRecordRepository) FindUnresolved(ctx context.Context, search string, limit int, offset int64) ([]*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) CountUnresolved(ctx context.Context, search string) (int64, error) {
	return 0, nil
}

func (m *mockRecordRepository) FindUnresolvedByEmailKey(ctx context.Context, emailKey string, excludeIDs []string) ([]*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) FindNeedsPlayers(ctx context.Context, search string, limit int, offset int64) ([]*model.NeedsPlayersRecord, int64, error) {
	return nil, 0, nil
}

func (m *mockRecordRepository) FindStaleUnresolved(ctx context.Context, source, currentRunID string, before time.Time) ([]*model.ExternalBookingRecord, error) {
	return nil, nil
}

func (m *mockRecordRepository) MarkResolved(ctx context.Context, id, memberEmail, bookingID, resolvedBy, outcome string) error {
	return nil
}

func (m *mockRecordRepository) MarkUnresolved(ctx context.Context, id, failureReason string) error {
	return nil
}

func (m *mockRecordRepository) MarkSuperseded(ctx context.Context, id string) error {
	return nil
}

func (m *mockRecordRepository) SetDeclaredCount(ctx context.Context, id string, count int) error {
	m.declaredCounts[id] = count
	return nil
}

func (m *mockRecordRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return fn(mongo.NewSessionContext(ctx, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.JSON,
			Service: "test",
		}),
	}
}

func serviceWithDeclared(bookingID string, declared int) (SlotService, *mockAssignmentRepository, *mockRecordRepository) {
	assignRepo := newMockAssignmentRepository()
	recordRepo := newMockRecordRepository()
	recordRepo.recordsByBooking[bookingID] = []*model.ExternalBookingRecord{
		{ID: "rec-1", BookingID: bookingID, DeclaredCount: declared},
	}
	return NewSlotService(assignRepo, recordRepo, testConfig()), assignRepo, recordRepo
}

func TestAttach_MemberFillsSlot(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 4)

	assignment, info, err := svc.Attach(context.Background(), "bk-1", &AttachRequest{
		MemberEmail: "J.Smith@Club.Test",
		AddedBy:     "staff-1",
	})
	if err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	if assignment.OccupantKey != "j.smith@club.test" {
		t.Errorf("occupant key = %q, want normalized email", assignment.OccupantKey)
	}
	if info.FilledSlots != 1 || info.TotalSlots != 4 {
		t.Errorf("slot info = %d/%d, want 1/4", info.FilledSlots, info.TotalSlots)
	}
}

func TestAttach_DuplicateMemberConflicts(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 4)
	ctx := context.Background()

	if _, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{MemberEmail: "a@club.test"}); err != nil {
		t.Fatalf("first Attach returned error: %v", err)
	}

	_, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{MemberEmail: "A@Club.Test"})
	if err == nil {
		t.Fatal("expected conflict for duplicate occupant")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeConflict)
	}
}

func TestAttach_FullBookingConflictsWithState(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 2)
	ctx := context.Background()

	for _, email := range []string{"a@club.test", "b@club.test"} {
		if _, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{MemberEmail: email}); err != nil {
			t.Fatalf("Attach(%s) returned error: %v", email, err)
		}
	}

	_, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{MemberEmail: "c@club.test"})
	if err == nil {
		t.Fatal("expected conflict for full booking")
	}
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Fatalf("code = %q, want %q", appErr.Code, apperrors.CodeConflict)
	}
	if appErr.Details["filled_slots"] == nil || appErr.Details["total_slots"] == nil {
		t.Error("conflict should carry current slot state in details")
	}
}

func TestAttach_GuestsGetDistinctKeys(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 4)
	ctx := context.Background()

	first, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{GuestName: "Walk In"})
	if err != nil {
		t.Fatalf("first guest Attach returned error: %v", err)
	}
	second, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{GuestName: "Walk In"})
	if err != nil {
		t.Fatalf("second guest Attach returned error: %v", err)
	}
	if first.OccupantKey == second.OccupantKey {
		t.Error("two guests with the same name must get distinct occupant keys")
	}
}

func TestAttach_RejectsMemberAndGuestTogether(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 4)

	_, _, err := svc.Attach(context.Background(), "bk-1", &AttachRequest{
		MemberEmail: "a@club.test",
		GuestName:   "Also A Guest",
	})
	if err == nil {
		t.Fatal("expected invalid input error")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeInvalidInput {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeInvalidInput)
	}
}

func TestAttach_NoDeclaredCountSkipsCapacityCheck(t *testing.T) {
	assignRepo := newMockAssignmentRepository()
	recordRepo := newMockRecordRepository()
	svc := NewSlotService(assignRepo, recordRepo, testConfig())
	ctx := context.Background()

	for _, email := range []string{"a@club.test", "b@club.test", "c@club.test"} {
		if _, _, err := svc.Attach(ctx, "bk-unknown", &AttachRequest{MemberEmail: email}); err != nil {
			t.Fatalf("Attach(%s) returned error: %v", email, err)
		}
	}
}

func TestDetach_MissingAssignmentNotFound(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 4)

	err := svc.Detach(context.Background(), "bk-1", "missing@club.test")
	if err == nil {
		t.Fatal("expected not found error")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeNotFound {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeNotFound)
	}
}

func TestSetDeclaredCount_RejectsBelowFilled(t *testing.T) {
	svc, _, _ := serviceWithDeclared("bk-1", 4)
	ctx := context.Background()

	for _, email := range []string{"a@club.test", "b@club.test", "c@club.test"} {
		if _, _, err := svc.Attach(ctx, "bk-1", &AttachRequest{MemberEmail: email}); err != nil {
			t.Fatalf("Attach(%s) returned error: %v", email, err)
		}
	}

	err := svc.SetDeclaredCount(ctx, "bk-1", 2)
	if err == nil {
		t.Fatal("expected conflict when shrinking below filled count")
	}
	if appErr := apperrors.AsAppError(err); appErr.Code != apperrors.CodeConflict {
		t.Errorf("code = %q, want %q", appErr.Code, apperrors.CodeConflict)
	}
}

func TestSetDeclaredCount_UpdatesRecords(t *testing.T) {
	svc, _, recordRepo := serviceWithDeclared("bk-1", 2)

	if err := svc.SetDeclaredCount(context.Background(), "bk-1", 4); err != nil {
		t.Fatalf("SetDeclaredCount returned error: %v", err)
	}
	if recordRepo.declaredCounts["rec-1"] != 4 {
		t.Errorf("declared count = %d, want 4", recordRepo.declaredCounts["rec-1"])
	}
}
