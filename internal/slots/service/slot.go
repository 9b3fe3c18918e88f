package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	recordsrepo "clubsync/internal/records/repository"
	slotserrors "clubsync/internal/slots/errors"
	"clubsync/internal/slots/repository"
	"clubsync/pkg/config"
	apperrors "clubsync/pkg/errors"
	"clubsync/pkg/keylock"
	"clubsync/pkg/model"
	"clubsync/pkg/sanitizer"
)

// AttachRequest describes one occupant to add to a booking. Exactly one of
// MemberEmail or GuestName must be set.
type AttachRequest struct {
	MemberEmail string `json:"member_email" validate:"omitempty,email"`
	GuestName   string `json:"guest_name" validate:"omitempty,min=2,max=100"`
	GuestPhone  string `json:"guest_phone" validate:"omitempty"`
	AddedBy     string `json:"added_by"`
}

type SlotService interface {
	Attach(ctx context.Context, bookingID string, req *AttachRequest) (*model.OccupantAssignment, *model.SlotInfo, error)
	Detach(ctx context.Context, bookingID, occupantKey string) error
	Info(ctx context.Context, bookingID string) (*model.SlotInfo, []*model.OccupantAssignment, error)
	SetDeclaredCount(ctx context.Context, bookingID string, count int) error
}

type slotService struct {
	repo       repository.AssignmentRepository
	recordRepo recordsrepo.RecordRepository
	locks      *keylock.KeyedMutex
	cfg        *config.Config
}

func NewSlotService(
	repo repository.AssignmentRepository,
	recordRepo recordsrepo.RecordRepository,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:       repo,
		recordRepo: recordRepo,
		locks:      keylock.New(),
		cfg:        cfg,
	}
}

func (s *slotService) Attach(ctx context.Context, bookingID string, req *AttachRequest) (*model.OccupantAssignment, *model.SlotInfo, error) {
	if bookingID == "" {
		return nil, nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	assignment, err := s.buildAssignment(bookingID, req)
	if err != nil {
		return nil, nil, err
	}

	// Per-booking lock so concurrent attaches against the same booking see a
	// consistent filled count.
	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	total, err := s.declaredTotal(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	var info *model.SlotInfo
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		filled, countErr := s.repo.CountByBooking(sessCtx, bookingID)
		if countErr != nil {
			return apperrors.Internal("Failed to count occupant assignments", countErr)
		}

		if total > 0 && int(filled) >= total {
			return apperrors.Conflict(
				fmt.Sprintf("Booking %s is full (%d of %d slots filled)", bookingID, filled, total),
			).WithDetails(map[string]interface{}{
				"booking_id":   bookingID,
				"filled_slots": filled,
				"total_slots":  total,
			})
		}

		if createErr := s.repo.Create(sessCtx, assignment); createErr != nil {
			if errors.Is(createErr, slotserrors.ErrDuplicateOccupant) {
				return apperrors.Conflict(
					fmt.Sprintf("Occupant %s is already attached to booking %s", assignment.OccupantKey, bookingID),
				)
			}
			return apperrors.Internal("Failed to attach occupant", createErr)
		}

		info = &model.SlotInfo{
			BookingID:   bookingID,
			FilledSlots: int(filled) + 1,
			TotalSlots:  total,
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.cfg.Log.Info("Occupant attached",
		"booking_id", bookingID,
		"occupant_key", assignment.OccupantKey,
		"is_guest", assignment.IsGuest(),
		"filled_slots", info.FilledSlots,
		"total_slots", info.TotalSlots,
	)
	return assignment, info, nil
}

func (s *slotService) buildAssignment(bookingID string, req *AttachRequest) (*model.OccupantAssignment, error) {
	memberEmail := sanitizer.NormalizeEmail(req.MemberEmail)
	guestName := sanitizer.TrimAndNormalize(req.GuestName)

	if memberEmail == "" && guestName == "" {
		return nil, apperrors.InvalidInput("Either member_email or guest_name is required")
	}
	if memberEmail != "" && guestName != "" {
		return nil, apperrors.InvalidInput("Provide member_email or guest_name, not both")
	}

	assignment := &model.OccupantAssignment{
		BookingID: bookingID,
		AddedBy:   req.AddedBy,
	}

	if memberEmail != "" {
		assignment.MemberEmail = memberEmail
		assignment.OccupantKey = memberEmail
		return assignment, nil
	}

	assignment.GuestName = guestName
	assignment.OccupantKey = "guest:" + uuid.New().String()

	if req.GuestPhone != "" {
		phone := sanitizer.NormalizePhone(req.GuestPhone)
		if phone == "" {
			return nil, apperrors.InvalidInput("guest_phone is not a valid phone number")
		}
		assignment.GuestPhone = phone
	}

	return assignment, nil
}

// declaredTotal is the booking's declared occupant count, taken from the
// external record linked to it. Zero means no record declared a count and
// capacity is not enforced.
func (s *slotService) declaredTotal(ctx context.Context, bookingID string) (int, error) {
	records, err := s.recordRepo.FindByBookingID(ctx, bookingID)
	if err != nil {
		return 0, apperrors.Internal("Failed to look up booking records", err)
	}

	total := 0
	for _, record := range records {
		if record.DeclaredCount > total {
			total = record.DeclaredCount
		}
	}
	return total, nil
}

func (s *slotService) Detach(ctx context.Context, bookingID, occupantKey string) error {
	if bookingID == "" || occupantKey == "" {
		return apperrors.InvalidInput("Booking ID and occupant key are required")
	}

	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	if err := s.repo.Delete(ctx, bookingID, occupantKey); err != nil {
		if errors.Is(err, slotserrors.ErrAssignmentNotFound) {
			return apperrors.NotFoundWithID("Occupant assignment", occupantKey)
		}
		return apperrors.Internal("Failed to detach occupant", err)
	}

	s.cfg.Log.Info("Occupant detached",
		"booking_id", bookingID,
		"occupant_key", occupantKey,
	)
	return nil
}

func (s *slotService) Info(ctx context.Context, bookingID string) (*model.SlotInfo, []*model.OccupantAssignment, error) {
	if bookingID == "" {
		return nil, nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	assignments, err := s.repo.FindByBooking(ctx, bookingID)
	if err != nil {
		return nil, nil, apperrors.Internal("Failed to list occupant assignments", err)
	}

	total, err := s.declaredTotal(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}

	info := &model.SlotInfo{
		BookingID:   bookingID,
		FilledSlots: len(assignments),
		TotalSlots:  total,
	}
	return info, assignments, nil
}

// SetDeclaredCount changes how many occupants the booking expects. The count
// can never drop below the slots already filled.
func (s *slotService) SetDeclaredCount(ctx context.Context, bookingID string, count int) error {
	if bookingID == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}
	if count < 1 || count > 20 {
		return apperrors.InvalidInput("declared_count must be between 1 and 20")
	}

	s.locks.Lock(bookingID)
	defer s.locks.Unlock(bookingID)

	records, err := s.recordRepo.FindByBookingID(ctx, bookingID)
	if err != nil {
		return apperrors.Internal("Failed to look up booking records", err)
	}
	if len(records) == 0 {
		return apperrors.NotFoundWithID("Booking record", bookingID)
	}

	filled, err := s.repo.CountByBooking(ctx, bookingID)
	if err != nil {
		return apperrors.Internal("Failed to count occupant assignments", err)
	}
	if int64(count) < filled {
		return apperrors.Conflict(
			fmt.Sprintf("declared_count %d is below the %d slots already filled", count, filled),
		)
	}

	for _, record := range records {
		if err := s.recordRepo.SetDeclaredCount(ctx, record.ID, count); err != nil {
			return apperrors.Internal("Failed to update declared count", err)
		}
	}

	s.cfg.Log.Info("Declared count updated",
		"booking_id", bookingID,
		"declared_count", count,
	)
	return nil
}
