package reservations

import (
	"context"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/inventory"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"
	"swapstation/internal/stats"
	"swapstation/pkg/logger"
	"swapstation/pkg/metrics"

	"github.com/google/uuid"
)

type Service interface {
	SetMetrics(recorder *metrics.Recorder)

	Reserve(ctx context.Context, slotID uuid.UUID, hold Hold, actor domain.Actor) (*domain.Slot, error)
	Cancel(ctx context.Context, slotID uuid.UUID, actor domain.Actor) (*domain.Slot, error)
	SweepExpired(ctx context.Context) (int, error)

	ReserveTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, hold Hold, actor domain.Actor) error
	CancelTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, actor domain.Actor) error
}

type service struct {
	store     repository.Store
	inventory inventory.Service
	stats     *stats.Aggregator
	config    *config.Config
	metrics   *metrics.Recorder
}

func NewService(store repository.Store, inventoryService inventory.Service, aggregator *stats.Aggregator, cfg *config.Config) Service {
	return &service{
		store:     store,
		inventory: inventoryService,
		stats:     aggregator,
		config:    cfg,
	}
}

func (s *service) SetMetrics(recorder *metrics.Recorder) {
	s.metrics = recorder
}

func (s *service) run(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	retries, err := repository.RunWithRetry(ctx, s.store, s.config.Swap.MaxClaimRetries, fn)
	if retries > 0 {
		s.metrics.ClaimRetries(operation, retries)
		logger.GetDefault().LogClaimRetried(ctx, operation, retries)
	}
	return err
}

func (s *service) Reserve(ctx context.Context, slotID uuid.UUID, hold Hold, actor domain.Actor) (*domain.Slot, error) {
	var slot *domain.Slot
	err := s.run(ctx, "reserve_slot", func(tx repository.Tx) error {
		var err error
		slot, err = s.inventory.LoadSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}

		if hold.BookingID != nil {
			booking, err := tx.GetBooking(ctx, *hold.BookingID)
			if err != nil {
				return err
			}
			if booking.Status.IsFinal() {
				return apperr.InvalidState("booking %s is %s", booking.ID, booking.Status)
			}
			if booking.StationID != slot.StationID {
				return apperr.InvalidState("booking %s is for another station", booking.ID)
			}
		}

		return s.ReserveTx(ctx, tx, slot, hold, actor)
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(ctx, slot.StationID)
	return slot, nil
}

// ReserveTx places hold on an already reconciled slot. Only empty or
// occupied slots accept a hold, and never one whose battery is promised to a
// swap.
func (s *service) ReserveTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, hold Hold, actor domain.Actor) error {
	if !slot.IsClaimable() {
		return apperr.Conflict("slot %s is %s", slot.Code, slot.Status)
	}
	if slot.BatteryID != nil {
		battery, err := tx.GetBattery(ctx, *slot.BatteryID)
		if err != nil {
			return err
		}
		if battery.Status == domain.BatteryIsBooking {
			return apperr.Conflict("battery in slot %s is promised to a swap", slot.Code)
		}
	}

	ttl := hold.TTL
	if ttl <= 0 {
		ttl = s.config.Swap.ReservationTTL
	}
	now := s.inventory.Now()

	slot.Status = domain.SlotReserved
	slot.Reservation = &domain.Reservation{
		BookingID:  hold.BookingID,
		UserID:     hold.UserID,
		SwapID:     hold.SwapID,
		ReservedAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	slot.Touch(actor, inventory.ActionReserve, now)

	if err := tx.UpdateSlot(ctx, slot); err != nil {
		return err
	}
	_, err := s.stats.RecomputePillar(ctx, tx, slot.PillarID)
	return err
}

// Cancel releases a direct hold on the slot. Cancelling a slot that is not
// reserved is a no-op. Holds taken by a swap are released through the swap.
func (s *service) Cancel(ctx context.Context, slotID uuid.UUID, actor domain.Actor) (*domain.Slot, error) {
	var slot *domain.Slot
	err := s.run(ctx, "cancel_reservation", func(tx repository.Tx) error {
		var err error
		slot, err = s.inventory.LoadSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.Reservation != nil && slot.Reservation.SwapID != nil {
			return apperr.Conflict("slot %s is held by swap %s; cancel the swap instead", slot.Code, *slot.Reservation.SwapID)
		}
		return s.CancelTx(ctx, tx, slot, actor)
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(ctx, slot.StationID)
	return slot, nil
}

func (s *service) CancelTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, actor domain.Actor) error {
	if slot.Status != domain.SlotReserved && slot.Reservation == nil {
		return nil
	}

	slot.ReleaseHold()
	slot.Touch(actor, inventory.ActionRelease, s.inventory.Now())

	if err := tx.UpdateSlot(ctx, slot); err != nil {
		return err
	}
	_, err := s.stats.RecomputePillar(ctx, tx, slot.PillarID)
	return err
}

// SweepExpired reverts holds that expired before now. Each slot is settled
// in its own unit of work so one contended slot does not hold up the rest.
func (s *service) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.store.ListReservedSlotsExpiredBefore(ctx, s.inventory.Now(), s.config.Swap.SweepBatchSize)
	if err != nil {
		return 0, err
	}

	reverted := 0
	stations := make(map[uuid.UUID]struct{})
	for _, candidate := range expired {
		var changed bool
		err := s.run(ctx, "sweep_reservations", func(tx repository.Tx) error {
			var err error
			_, changed, err = s.inventory.ReconcileSlot(ctx, tx, candidate.ID)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return reverted, ctx.Err()
			}
			logger.GetDefault().WithError(err).WarnContext(ctx, "reservation sweep skipped slot", "slot_id", candidate.ID)
			continue
		}
		if changed {
			reverted++
			stations[candidate.StationID] = struct{}{}
		}
	}

	for stationID := range stations {
		s.stats.Invalidate(ctx, stationID)
	}
	if reverted > 0 {
		s.metrics.ReservationsExpired(reverted)
		logger.GetDefault().LogReservationsExpired(ctx, reverted)
	}
	return reverted, nil
}

var _ Service = (*service)(nil)

// ExpiresIn reports the remaining lifetime of a slot's hold.
func ExpiresIn(slot *domain.Slot, now time.Time) time.Duration {
	if !slot.HasActiveHold(now) {
		return 0
	}
	return slot.Reservation.ExpiresAt.Sub(now)
}
