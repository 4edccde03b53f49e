package bookings

import (
	"context"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"

	"github.com/google/uuid"
)

// Service is the booking collaborator. Bookings only reach completed or
// cancelled through a swap, inside the swap's unit of work.
type Service interface {
	CreateBooking(ctx context.Context, userID, stationID uuid.UUID) (*domain.Booking, error)
	MarkReady(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)
	GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error)

	CompleteTx(ctx context.Context, tx repository.Tx, bookingID uuid.UUID, now time.Time) error
	CancelTx(ctx context.Context, tx repository.Tx, bookingID uuid.UUID, now time.Time) error
}

type service struct {
	store  repository.Store
	config *config.Config
}

func NewService(store repository.Store, cfg *config.Config) Service {
	return &service{store: store, config: cfg}
}

func (s *service) CreateBooking(ctx context.Context, userID, stationID uuid.UUID) (*domain.Booking, error) {
	booking := &domain.Booking{
		ID:        uuid.New(),
		UserID:    userID,
		StationID: stationID,
		Status:    domain.BookingPending,
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetStation(ctx, stationID); err != nil {
			return err
		}
		return tx.CreateBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) MarkReady(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	var booking *domain.Booking
	_, err := repository.RunWithRetry(ctx, s.store, s.config.Swap.MaxClaimRetries, func(tx repository.Tx) error {
		var err error
		booking, err = tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != domain.BookingPending {
			return apperr.InvalidState("booking %s is %s", booking.ID, booking.Status)
		}
		booking.Status = domain.BookingReady
		return tx.UpdateBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *service) GetBooking(ctx context.Context, bookingID uuid.UUID) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

// CompleteTx marks a ready booking completed.
func (s *service) CompleteTx(ctx context.Context, tx repository.Tx, bookingID uuid.UUID, now time.Time) error {
	booking, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.Status != domain.BookingReady {
		return apperr.InvalidState("booking %s is %s", booking.ID, booking.Status)
	}
	booking.Status = domain.BookingCompleted
	booking.CompletedAt = &now
	return tx.UpdateBooking(ctx, booking)
}

// CancelTx cancels a booking that has not reached a final status. Final
// bookings are left alone.
func (s *service) CancelTx(ctx context.Context, tx repository.Tx, bookingID uuid.UUID, now time.Time) error {
	booking, err := tx.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if !booking.Cancel(now) {
		return nil
	}
	return tx.UpdateBooking(ctx, booking)
}
