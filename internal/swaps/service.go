package swaps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"swapstation/internal/bookings"
	"swapstation/internal/domain"
	"swapstation/internal/inventory"
	"swapstation/internal/notifications"
	"swapstation/internal/repository"
	"swapstation/internal/reservations"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"
	"swapstation/internal/stats"
	"swapstation/pkg/logger"
	"swapstation/pkg/metrics"

	"github.com/google/uuid"
)

// InitiateSwapInput is a validated swap request.
type InitiateSwapInput struct {
	UserID    uuid.UUID
	VehicleID string
	StationID uuid.UUID
	BookingID *uuid.UUID
}

// Service coordinates the swap lifecycle. Each step commits as a single unit
// of work; a step that fails leaves the swap in its last committed status.
type Service interface {
	SetPublisher(publisher notifications.Publisher)
	SetMetrics(recorder *metrics.Recorder)

	InitiateSwap(ctx context.Context, input InitiateSwapInput, actor domain.Actor) (*InitiateSwapResponse, error)
	InsertOldBattery(ctx context.Context, swapID uuid.UUID, serial string, slotID uuid.UUID, actor domain.Actor) (*domain.SwapTransaction, error)
	CompleteSwap(ctx context.Context, swapID uuid.UUID, actor domain.Actor) (*domain.SwapTransaction, error)
	CancelSwap(ctx context.Context, swapID uuid.UUID, reason string, actor domain.Actor) (*domain.SwapTransaction, error)
	FailSwap(ctx context.Context, swapID uuid.UUID, reason string, actor domain.Actor) (*domain.SwapTransaction, error)

	GetSwap(ctx context.Context, swapID uuid.UUID) (*domain.SwapTransaction, error)
	GetSwapHistory(ctx context.Context, filter repository.SwapFilter) ([]domain.SwapTransaction, int64, error)
}

type service struct {
	store        repository.Store
	inventory    inventory.Service
	reservations reservations.Service
	bookings     bookings.Service
	stats        *stats.Aggregator
	config       *config.Config
	publisher    notifications.Publisher
	metrics      *metrics.Recorder
}

func NewService(
	store repository.Store,
	inventoryService inventory.Service,
	reservationService reservations.Service,
	bookingService bookings.Service,
	aggregator *stats.Aggregator,
	cfg *config.Config,
) Service {
	return &service{
		store:        store,
		inventory:    inventoryService,
		reservations: reservationService,
		bookings:     bookingService,
		stats:        aggregator,
		config:       cfg,
		publisher:    notifications.NopPublisher{},
	}
}

func (s *service) SetPublisher(publisher notifications.Publisher) {
	s.publisher = publisher
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

// settle commits the expiry of an initiated swap whose drop-off hold has
// lapsed, so the step that follows sees the swap cancelled.
func (s *service) settle(ctx context.Context, swapID uuid.UUID) error {
	var (
		stationID uuid.UUID
		expired   bool
	)
	err := s.run(ctx, "settle_swap", func(tx repository.Tx) error {
		swap, err := tx.GetSwap(ctx, swapID)
		if err != nil {
			return err
		}
		if swap.Status != domain.SwapInitiated {
			return nil
		}
		stationID = swap.StationID
		_, expired, err = s.inventory.ReconcileSlot(ctx, tx, swap.SlotID)
		return err
	})
	if err != nil {
		return err
	}
	if expired {
		s.stats.Invalidate(ctx, stationID)
	}
	return nil
}

// loadSwap reads the swap after its drop-off slot has been reconciled, so an
// expiry folded in by the reconciliation is already visible.
func (s *service) loadSwap(ctx context.Context, tx repository.Tx, swapID uuid.UUID) (*domain.SwapTransaction, *domain.Slot, error) {
	swap, err := tx.GetSwap(ctx, swapID)
	if err != nil {
		return nil, nil, err
	}
	slot, err := s.inventory.LoadSlot(ctx, tx, swap.SlotID)
	if err != nil {
		return nil, nil, err
	}
	swap, err = tx.GetSwap(ctx, swapID)
	if err != nil {
		return nil, nil, err
	}
	return swap, slot, nil
}

//  INITIATE

func (s *service) InitiateSwap(ctx context.Context, input InitiateSwapInput, actor domain.Actor) (*InitiateSwapResponse, error) {
	if strings.TrimSpace(input.VehicleID) == "" {
		return nil, apperr.InvalidState("vehicle id is required")
	}

	var (
		swap         *domain.SwapTransaction
		instructions SwapInstructions
	)
	err := s.run(ctx, "initiate_swap", func(tx repository.Tx) error {
		now := s.inventory.Now()

		station, err := tx.GetStation(ctx, input.StationID)
		if err != nil {
			return err
		}
		if station.Status != domain.StationActive {
			return apperr.InvalidState("station %s is %s", station.Code, station.Status)
		}

		var booking *domain.Booking
		if input.BookingID != nil {
			booking, err = tx.GetBooking(ctx, *input.BookingID)
			if err != nil {
				return err
			}
			if booking.Status != domain.BookingReady {
				return apperr.InvalidState("booking %s is %s, expected %s", booking.ID, booking.Status, domain.BookingReady)
			}
			if booking.StationID != station.ID {
				return apperr.InvalidState("booking %s is for another station", booking.ID)
			}
			if booking.UserID != input.UserID {
				return apperr.InvalidState("booking %s belongs to another user", booking.ID)
			}
			if booking.SwapID != nil {
				return apperr.InvalidState("booking %s is already used by swap %s", booking.ID, *booking.SwapID)
			}
		}

		candidates, err := s.inventory.EmptySlotCandidates(ctx, tx, station.ID, nil)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return apperr.Unavailable("no empty slot at station %s", station.Code)
		}
		slot := candidates[0]

		battery, pickUp, err := s.pickBattery(ctx, tx, station)
		if err != nil {
			return err
		}

		swapID := uuid.New()
		hold := reservations.Hold{
			UserID:    input.UserID,
			BookingID: input.BookingID,
			SwapID:    &swapID,
			TTL:       s.config.Swap.ReservationTTL,
		}
		if err := s.reservations.ReserveTx(ctx, tx, &slot, hold, actor); err != nil {
			return err
		}

		if booking != nil {
			booking.SwapID = &swapID
			if err := tx.UpdateBooking(ctx, booking); err != nil {
				return err
			}
		}

		priorStatus := battery.Status
		battery.Status = domain.BatteryIsBooking
		if err := tx.UpdateBattery(ctx, battery); err != nil {
			return err
		}

		ref, err := domain.NewSwapRef(now)
		if err != nil {
			return apperr.Unexpected(err, "generate swap reference")
		}
		chargeLevel := domain.FullChargeLevel
		swap = &domain.SwapTransaction{
			ID:        swapID,
			SwapRef:   ref,
			UserID:    input.UserID,
			VehicleID: strings.TrimSpace(input.VehicleID),
			StationID: station.ID,
			PillarID:  slot.PillarID,
			SlotID:    slot.ID,
			BookingID: input.BookingID,
			Status:    domain.SwapInitiated,
			NewBattery: domain.SwapBatteryRecord{
				BatteryID:    battery.ID,
				SerialNumber: battery.SerialNumber,
				SOH:          battery.SOH,
				ChargeLevel:  &chargeLevel,
				Status:       priorStatus,
				SlotID:       battery.CurrentSlotID,
				PillarID:     battery.CurrentPillarID,
			},
			InitiatedAt: now,
		}
		if err := tx.CreateSwap(ctx, swap); err != nil {
			return err
		}
		if _, err := s.stats.RecomputeStation(ctx, tx, station.ID); err != nil {
			return err
		}

		dropOff, err := s.locate(ctx, tx, &slot)
		if err != nil {
			return err
		}
		instructions = buildInstructions(dropOff, pickUp, slot.Reservation.ExpiresAt)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.GetDefault().LogSwapInitiated(ctx, swap.ID.String(), swap.StationID.String(), swap.SlotID.String(), swap.NewBattery.BatteryID.String())
	s.afterCommit(ctx, swap)
	return &InitiateSwapResponse{Swap: swap, Instructions: instructions}, nil
}

// pickBattery chooses the healthiest available battery sitting in an
// occupied slot. Ties go to the battery placed first.
func (s *service) pickBattery(ctx context.Context, tx repository.Tx, station *domain.Station) (*domain.Battery, SlotLocation, error) {
	batteries, err := tx.ListBatteriesByStation(ctx, station.ID)
	if err != nil {
		return nil, SlotLocation{}, err
	}
	slots, err := tx.ListSlotsByStation(ctx, station.ID)
	if err != nil {
		return nil, SlotLocation{}, err
	}
	occupied := make(map[uuid.UUID]*domain.Slot, len(slots))
	for i := range slots {
		if slots[i].Status == domain.SlotOccupied && slots[i].BatteryID != nil {
			occupied[slots[i].ID] = &slots[i]
		}
	}

	var eligible []*domain.Battery
	for i := range batteries {
		b := &batteries[i]
		if !b.Status.IsAvailable() || !b.IsPlaced() {
			continue
		}
		slot, ok := occupied[*b.CurrentSlotID]
		if !ok || *slot.BatteryID != b.ID {
			continue
		}
		eligible = append(eligible, b)
	}
	if len(eligible) == 0 {
		return nil, SlotLocation{}, apperr.Unavailable("no charged battery available at station %s", station.Code)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.SOH != b.SOH {
			return a.SOH > b.SOH
		}
		if pa, pb := placedAt(a), placedAt(b); !pa.Equal(pb) {
			return pa.Before(pb)
		}
		return a.SerialNumber < b.SerialNumber
	})

	chosen := eligible[0]
	location, err := s.locate(ctx, tx, occupied[*chosen.CurrentSlotID])
	if err != nil {
		return nil, SlotLocation{}, err
	}
	return chosen, location, nil
}

func placedAt(b *domain.Battery) time.Time {
	if b.PlacedAt == nil {
		return time.Time{}
	}
	return *b.PlacedAt
}

func (s *service) locate(ctx context.Context, tx repository.Tx, slot *domain.Slot) (SlotLocation, error) {
	pillar, err := tx.GetPillar(ctx, slot.PillarID)
	if err != nil {
		return SlotLocation{}, err
	}
	return SlotLocation{
		SlotID:       slot.ID,
		SlotCode:     slot.Code,
		SlotNumber:   slot.SlotNumber,
		PillarID:     pillar.ID,
		PillarNumber: pillar.Number,
	}, nil
}

func buildInstructions(dropOff, pickUp SlotLocation, until time.Time) SwapInstructions {
	return SwapInstructions{
		DropOff:          dropOff,
		PickUp:           pickUp,
		ReservationUntil: until,
		Steps: []string{
			fmt.Sprintf("Insert your depleted battery into slot %d of pillar %d (%s)", dropOff.SlotNumber, dropOff.PillarNumber, dropOff.SlotCode),
			fmt.Sprintf("Collect your charged battery from slot %d of pillar %d (%s)", pickUp.SlotNumber, pickUp.PillarNumber, pickUp.SlotCode),
			"Confirm the swap in the app to finish",
		},
	}
}

//  INSERT OLD BATTERY

func (s *service) InsertOldBattery(ctx context.Context, swapID uuid.UUID, serial string, slotID uuid.UUID, actor domain.Actor) (*domain.SwapTransaction, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, apperr.InvalidState("old battery serial is required")
	}

	if err := s.settle(ctx, swapID); err != nil {
		return nil, err
	}

	var swap *domain.SwapTransaction
	err := s.run(ctx, "insert_old_battery", func(tx repository.Tx) error {
		now := s.inventory.Now()

		var (
			slot *domain.Slot
			err  error
		)
		swap, slot, err = s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if swap.Status != domain.SwapInitiated {
			return apperr.InvalidState("swap %s is %s, expected %s", swap.SwapRef, swap.Status, domain.SwapInitiated)
		}
		if slotID != swap.SlotID {
			return apperr.Conflict("slot %s is not the drop-off slot of swap %s", slotID, swap.SwapRef)
		}
		if !slot.HeldBy(swap.ID, now) {
			return apperr.Conflict("slot %s is no longer reserved for swap %s", slot.Code, swap.SwapRef)
		}

		battery, err := s.resolveOldBattery(ctx, tx, serial)
		if err != nil {
			return err
		}
		if battery.ID == swap.NewBattery.BatteryID {
			return apperr.Conflict("battery %s is the replacement picked for this swap", serial)
		}

		if err := s.inventory.InsertBatteryTx(ctx, tx, slot, battery, actor, &swap.ID); err != nil {
			return err
		}

		swap.OldBattery = &domain.SwapBatteryRecord{
			BatteryID:    battery.ID,
			SerialNumber: battery.SerialNumber,
			SOH:          battery.SOH,
			Status:       battery.Status,
			SlotID:       &slot.ID,
			PillarID:     &slot.PillarID,
		}
		swap.Status = domain.SwapInProgress
		swap.InsertedAt = &now
		return tx.UpdateSwap(ctx, swap)
	})
	if err != nil {
		return nil, err
	}

	logger.GetDefault().LogSwapProgressed(ctx, swap.ID.String(), serial)
	s.afterCommit(ctx, swap)
	return swap, nil
}

// resolveOldBattery finds the returned battery by serial or registers it
// with a placeholder health until it is inspected.
func (s *service) resolveOldBattery(ctx context.Context, tx repository.Tx, serial string) (*domain.Battery, error) {
	battery, err := tx.GetBatteryBySerial(ctx, serial)
	if err == nil {
		return battery, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	battery = &domain.Battery{
		ID:           uuid.New(),
		SerialNumber: serial,
		SOH:          s.config.Swap.OldBatteryDefaultSOH,
		Status:       domain.BatteryInUse,
	}
	if err := tx.CreateBattery(ctx, battery); err != nil {
		return nil, err
	}
	return battery, nil
}

//  COMPLETE

func (s *service) CompleteSwap(ctx context.Context, swapID uuid.UUID, actor domain.Actor) (*domain.SwapTransaction, error) {
	var swap *domain.SwapTransaction
	err := s.run(ctx, "complete_swap", func(tx repository.Tx) error {
		now := s.inventory.Now()

		var err error
		swap, err = tx.GetSwap(ctx, swapID)
		if err != nil {
			return err
		}
		if swap.Status != domain.SwapInProgress {
			return apperr.InvalidState("swap %s is %s, expected %s", swap.SwapRef, swap.Status, domain.SwapInProgress)
		}
		if swap.OldBattery == nil {
			return apperr.Unexpected(nil, "swap %s is in progress without an old battery", swap.SwapRef)
		}

		replacement, err := tx.GetBattery(ctx, swap.NewBattery.BatteryID)
		if err != nil {
			return err
		}
		if replacement.Status != domain.BatteryIsBooking || !replacement.IsPlaced() {
			return apperr.InvalidState("replacement battery %s is no longer waiting in its slot", replacement.SerialNumber)
		}

		pickUp, err := s.inventory.LoadSlot(ctx, tx, *replacement.CurrentSlotID)
		if err != nil {
			return err
		}
		released, err := s.inventory.RemoveBatteryTx(ctx, tx, pickUp, actor, &swap.ID)
		if err != nil {
			return err
		}
		released.Status = domain.BatteryInUse
		released.StationID = nil
		if err := tx.UpdateBattery(ctx, released); err != nil {
			return err
		}

		returned, err := tx.GetBattery(ctx, swap.OldBattery.BatteryID)
		if err != nil {
			return err
		}
		returned.Status = domain.BatteryCharging
		if err := tx.UpdateBattery(ctx, returned); err != nil {
			return err
		}

		if swap.BookingID != nil {
			if err := s.bookings.CompleteTx(ctx, tx, *swap.BookingID, now); err != nil {
				return err
			}
		}

		duration := int64(now.Sub(swap.InitiatedAt).Seconds())
		swap.Status = domain.SwapCompleted
		swap.CompletedAt = &now
		swap.DurationSeconds = &duration
		if err := tx.UpdateSwap(ctx, swap); err != nil {
			return err
		}

		_, err = s.stats.RecomputeStation(ctx, tx, swap.StationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	duration := swap.CompletedAt.Sub(swap.InitiatedAt)
	s.metrics.SwapDuration(duration)
	logger.GetDefault().LogSwapCompleted(ctx, swap.ID.String(), duration)
	s.afterCommit(ctx, swap)
	return swap, nil
}

//  CANCEL / FAIL

func (s *service) CancelSwap(ctx context.Context, swapID uuid.UUID, reason string, actor domain.Actor) (*domain.SwapTransaction, error) {
	return s.close(ctx, swapID, domain.SwapCancelled, reason, actor)
}

// FailSwap is the operator path for a swap that cannot finish. The
// coordinator never calls it on its own.
func (s *service) FailSwap(ctx context.Context, swapID uuid.UUID, reason string, actor domain.Actor) (*domain.SwapTransaction, error) {
	return s.close(ctx, swapID, domain.SwapFailed, reason, actor)
}

// close moves a swap to a terminal status. The drop-off hold is released,
// the replacement battery gets its prior status back and the booking is
// cancelled. An old battery already inserted stays in its slot.
func (s *service) close(ctx context.Context, swapID uuid.UUID, target domain.SwapStatus, reason string, actor domain.Actor) (*domain.SwapTransaction, error) {
	if err := s.settle(ctx, swapID); err != nil {
		return nil, err
	}

	var swap *domain.SwapTransaction
	err := s.run(ctx, "close_swap", func(tx repository.Tx) error {
		now := s.inventory.Now()

		var (
			slot *domain.Slot
			err  error
		)
		swap, slot, err = s.loadSwap(ctx, tx, swapID)
		if err != nil {
			return err
		}
		if !swap.Status.CanTransitionTo(target) {
			return apperr.InvalidState("swap %s is %s and cannot become %s", swap.SwapRef, swap.Status, target)
		}

		if slot.Reservation != nil && slot.Reservation.SwapID != nil && *slot.Reservation.SwapID == swap.ID {
			if err := s.reservations.CancelTx(ctx, tx, slot, actor); err != nil {
				return err
			}
		}

		replacement, err := tx.GetBattery(ctx, swap.NewBattery.BatteryID)
		if err != nil {
			return err
		}
		if replacement.Status == domain.BatteryIsBooking {
			replacement.Status = swap.NewBattery.Status
			if err := tx.UpdateBattery(ctx, replacement); err != nil {
				return err
			}
		}

		if swap.BookingID != nil {
			if err := s.bookings.CancelTx(ctx, tx, *swap.BookingID, now); err != nil {
				return err
			}
		}

		swap.Close(target, strings.TrimSpace(reason), now)
		if err := tx.UpdateSwap(ctx, swap); err != nil {
			return err
		}

		_, err = s.stats.RecomputeStation(ctx, tx, swap.StationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.GetDefault().LogSwapCancelled(ctx, swap.ID.String(), string(swap.Status), swap.FailureReason)
	s.afterCommit(ctx, swap)
	return swap, nil
}

//  READS

func (s *service) GetSwap(ctx context.Context, swapID uuid.UUID) (*domain.SwapTransaction, error) {
	if err := s.settle(ctx, swapID); err != nil {
		return nil, err
	}
	return s.store.GetSwap(ctx, swapID)
}

func (s *service) GetSwapHistory(ctx context.Context, filter repository.SwapFilter) ([]domain.SwapTransaction, int64, error) {
	filter = filter.Normalize()
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, apperr.InvalidState("unknown swap status %q", filter.Status)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, 0, apperr.InvalidState("from must not be after to")
	}

	swaps, total, err := s.store.ListSwaps(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	settled := false
	for i := range swaps {
		if swaps[i].Status != domain.SwapInitiated {
			continue
		}
		if err := s.settle(ctx, swaps[i].ID); err != nil {
			return nil, 0, err
		}
		settled = true
	}
	if !settled {
		return swaps, total, nil
	}
	return s.store.ListSwaps(ctx, filter)
}

// afterCommit runs the side effects of a committed transition. None of them
// can undo the transition.
func (s *service) afterCommit(ctx context.Context, swap *domain.SwapTransaction) {
	s.metrics.SwapTransition(string(swap.Status))
	s.stats.Invalidate(ctx, swap.StationID)

	event := notifications.NewSwapEvent(swap, s.inventory.Now())
	if err := s.publisher.PublishSwapEvent(ctx, event); err != nil {
		s.metrics.PublishFailed()
		logger.GetDefault().WithError(err).WarnContext(ctx, "swap event publish failed",
			"swap_id", swap.ID, "type", event.Type)
	}
}
