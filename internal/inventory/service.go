package inventory

import (
	"context"
	"errors"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/constants"
	"swapstation/internal/stats"
	"swapstation/pkg/cache"
	"swapstation/pkg/logger"
	"swapstation/pkg/metrics"

	"github.com/google/uuid"
)

// Activity labels recorded on slots.
const (
	ActionInit    = "init"
	ActionInsert  = "insert"
	ActionRemove  = "remove"
	ActionExpire  = "reservation_expired"
	ActionReserve = "reserve"
	ActionRelease = "release"
)

type Service interface {
	SetCacheService(cacheService cache.Service)
	SetMetrics(recorder *metrics.Recorder)
	SetClock(now func() time.Time)

	CreatePillar(ctx context.Context, req CreatePillarRequest) (*domain.Pillar, error)
	ListPillarsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Pillar, error)
	GetPillarSlots(ctx context.Context, pillarID uuid.UUID) ([]domain.Slot, error)

	FindEmptySlot(ctx context.Context, stationID uuid.UUID, pillarID *uuid.UUID) (*domain.Slot, error)
	FindAvailableSlots(ctx context.Context, stationID uuid.UUID, pillarID *uuid.UUID, needEmpty bool) ([]domain.Slot, error)

	// Direct staff operations outside the swap flow.
	InsertBattery(ctx context.Context, slotID, batteryID uuid.UUID, actor domain.Actor) (*domain.Slot, error)
	RemoveBattery(ctx context.Context, slotID uuid.UUID, actor domain.Actor) (*domain.Slot, error)

	// Building blocks used inside another service's unit of work.
	LoadSlot(ctx context.Context, tx repository.Tx, slotID uuid.UUID) (*domain.Slot, error)
	ReconcileSlot(ctx context.Context, tx repository.Tx, slotID uuid.UUID) (*domain.Slot, bool, error)
	EmptySlotCandidates(ctx context.Context, tx repository.Tx, stationID uuid.UUID, pillarID *uuid.UUID) ([]domain.Slot, error)
	ReconcileStation(ctx context.Context, tx repository.Tx, stationID uuid.UUID) (int, error)
	InsertBatteryTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, battery *domain.Battery, actor domain.Actor, holder *uuid.UUID) error
	RemoveBatteryTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, actor domain.Actor, holder *uuid.UUID) (*domain.Battery, error)
	Now() time.Time
}

type service struct {
	store   repository.Store
	stats   *stats.Aggregator
	config  *config.Config
	metrics *metrics.Recorder
	cache   cache.Service
	now     func() time.Time
}

func NewService(store repository.Store, aggregator *stats.Aggregator, cfg *config.Config) Service {
	return &service{
		store:  store,
		stats:  aggregator,
		config: cfg,
		now:    time.Now,
	}
}

// SetCacheService enables caching of pillar listings.
func (s *service) SetCacheService(cacheService cache.Service) {
	s.cache = cacheService
}

func (s *service) SetMetrics(recorder *metrics.Recorder) {
	s.metrics = recorder
}

// SetClock replaces the wall clock used for expiry decisions.
func (s *service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *service) Now() time.Time {
	return s.now()
}

func (s *service) run(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	retries, err := repository.RunWithRetry(ctx, s.store, s.config.Swap.MaxClaimRetries, fn)
	if retries > 0 {
		s.metrics.ClaimRetries(operation, retries)
		logger.GetDefault().LogClaimRetried(ctx, operation, retries)
	}
	return err
}

//  PILLAR MANAGEMENT

func (s *service) CreatePillar(ctx context.Context, req CreatePillarRequest) (*domain.Pillar, error) {
	if req.TotalSlots <= 0 {
		return nil, apperr.InvalidState("total slots must be positive")
	}
	if req.Number <= 0 {
		return nil, apperr.InvalidState("pillar number must be positive")
	}

	var pillar *domain.Pillar
	err := s.run(ctx, "create_pillar", func(tx repository.Tx) error {
		station, err := tx.GetStation(ctx, req.StationID)
		if err != nil {
			return err
		}

		pillar = &domain.Pillar{
			ID:         uuid.New(),
			StationID:  station.ID,
			Name:       req.Name,
			Number:     req.Number,
			TotalSlots: req.TotalSlots,
			Status:     domain.PillarActive,
		}
		slots := generateSlots(station, pillar, s.now())
		pillar.SlotStats = domain.ComputeSlotStats(slots)

		if err := tx.CreatePillar(ctx, pillar, slots); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return apperr.Conflict("pillar number %d already used at station %s", req.Number, station.Code)
			}
			return err
		}
		return s.stats.Recompute(ctx, tx, pillar.ID)
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(ctx, pillar.StationID)
	return s.store.GetPillar(ctx, pillar.ID)
}

// generateSlots numbers slots 1..N in order.
func generateSlots(station *domain.Station, pillar *domain.Pillar, now time.Time) []domain.Slot {
	slots := make([]domain.Slot, pillar.TotalSlots)
	for i := range slots {
		number := i + 1
		slots[i] = domain.Slot{
			ID:         uuid.New(),
			PillarID:   pillar.ID,
			StationID:  station.ID,
			SlotNumber: number,
			Code:       domain.SlotCode(station.Code, pillar.Number, number),
			Status:     domain.SlotEmpty,
		}
		slots[i].Touch(domain.SystemActor, ActionInit, now)
	}
	return slots
}

// ListPillarsByStation settles expired holds at the station before the
// pillar stats are read, so the cached listing never counts a lapsed hold.
func (s *service) ListPillarsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Pillar, error) {
	var reverted int
	err := s.run(ctx, "list_pillars", func(tx repository.Tx) error {
		var err error
		reverted, err = s.ReconcileStation(ctx, tx, stationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reverted > 0 {
		s.stats.Invalidate(ctx, stationID)
	}

	if s.cache == nil {
		return s.listPillars(ctx, stationID)
	}

	var pillars []domain.Pillar
	err = s.cache.GetOrSet(ctx, constants.BuildStationPillarsKey(stationID.String()), constants.TTL_STATION_DETAIL,
		func() (interface{}, error) {
			return s.listPillars(ctx, stationID)
		}, &pillars)
	if err != nil {
		return nil, err
	}
	return pillars, nil
}

func (s *service) listPillars(ctx context.Context, stationID uuid.UUID) ([]domain.Pillar, error) {
	if _, err := s.store.GetStation(ctx, stationID); err != nil {
		return nil, err
	}
	return s.store.ListPillarsByStation(ctx, stationID)
}

// GetPillarSlots returns the pillar's slots after reverting expired holds.
func (s *service) GetPillarSlots(ctx context.Context, pillarID uuid.UUID) ([]domain.Slot, error) {
	var (
		slots     []domain.Slot
		stationID uuid.UUID
		reverted  int
	)
	err := s.run(ctx, "get_pillar_slots", func(tx repository.Tx) error {
		pillar, err := tx.GetPillar(ctx, pillarID)
		if err != nil {
			return err
		}
		stationID = pillar.StationID
		listed, err := tx.ListSlotsByPillar(ctx, pillarID)
		if err != nil {
			return err
		}
		slots, reverted, err = s.reconcile(ctx, tx, listed)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reverted > 0 {
		s.stats.Invalidate(ctx, stationID)
	}
	return slots, nil
}

//  SLOT QUERIES

func (s *service) FindEmptySlot(ctx context.Context, stationID uuid.UUID, pillarID *uuid.UUID) (*domain.Slot, error) {
	var (
		slot     *domain.Slot
		reverted int
	)
	err := s.run(ctx, "find_empty_slot", func(tx repository.Tx) error {
		var (
			candidates []domain.Slot
			err        error
		)
		candidates, reverted, err = s.emptySlotCandidates(ctx, tx, stationID, pillarID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return apperr.Unavailable("no empty slot at station %s", stationID)
		}
		slot = &candidates[0]
		return nil
	})
	if reverted > 0 && err == nil {
		s.stats.Invalidate(ctx, stationID)
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// FindAvailableSlots lists empty slots when needEmpty is set, otherwise the
// occupied slots holding a battery that can be handed out.
func (s *service) FindAvailableSlots(ctx context.Context, stationID uuid.UUID, pillarID *uuid.UUID, needEmpty bool) ([]domain.Slot, error) {
	var (
		result   []domain.Slot
		reverted int
	)
	err := s.run(ctx, "find_available_slots", func(tx repository.Tx) error {
		var err error
		if needEmpty {
			result, reverted, err = s.emptySlotCandidates(ctx, tx, stationID, pillarID)
			return err
		}

		var slots []domain.Slot
		slots, reverted, err = s.stationSlots(ctx, tx, stationID, pillarID)
		if err != nil {
			return err
		}
		batteries, err := tx.ListBatteriesByStation(ctx, stationID)
		if err != nil {
			return err
		}
		available := make(map[uuid.UUID]bool, len(batteries))
		for i := range batteries {
			available[batteries[i].ID] = batteries[i].Status.IsAvailable()
		}

		result = result[:0]
		for _, slot := range slots {
			if slot.Status == domain.SlotOccupied && slot.BatteryID != nil && available[*slot.BatteryID] {
				result = append(result, slot)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reverted > 0 {
		s.stats.Invalidate(ctx, stationID)
	}
	return result, nil
}

// EmptySlotCandidates returns the free empty slots of active pillars at the
// station, lowest pillar number first then lowest slot number. Expired holds
// are reverted before filtering.
func (s *service) EmptySlotCandidates(ctx context.Context, tx repository.Tx, stationID uuid.UUID, pillarID *uuid.UUID) ([]domain.Slot, error) {
	candidates, _, err := s.emptySlotCandidates(ctx, tx, stationID, pillarID)
	return candidates, err
}

func (s *service) emptySlotCandidates(ctx context.Context, tx repository.Tx, stationID uuid.UUID, pillarID *uuid.UUID) ([]domain.Slot, int, error) {
	slots, reverted, err := s.stationSlots(ctx, tx, stationID, pillarID)
	if err != nil {
		return nil, 0, err
	}
	pillars, err := tx.ListPillarsByStation(ctx, stationID)
	if err != nil {
		return nil, 0, err
	}
	active := make(map[uuid.UUID]bool, len(pillars))
	for _, p := range pillars {
		active[p.ID] = p.Status == domain.PillarActive
	}

	var candidates []domain.Slot
	for _, slot := range slots {
		if active[slot.PillarID] && slot.IsFreeEmpty() {
			candidates = append(candidates, slot)
		}
	}
	return candidates, reverted, nil
}

// ReconcileStation reverts every expired hold at the station and returns how
// many were reverted.
func (s *service) ReconcileStation(ctx context.Context, tx repository.Tx, stationID uuid.UUID) (int, error) {
	_, reverted, err := s.stationSlots(ctx, tx, stationID, nil)
	return reverted, err
}

func (s *service) stationSlots(ctx context.Context, tx repository.Tx, stationID uuid.UUID, pillarID *uuid.UUID) ([]domain.Slot, int, error) {
	if _, err := tx.GetStation(ctx, stationID); err != nil {
		return nil, 0, err
	}

	var (
		slots []domain.Slot
		err   error
	)
	if pillarID != nil {
		pillar, perr := tx.GetPillar(ctx, *pillarID)
		if perr != nil {
			return nil, 0, perr
		}
		if pillar.StationID != stationID {
			return nil, 0, apperr.NotFound("pillar %s at station %s", *pillarID, stationID)
		}
		slots, err = tx.ListSlotsByPillar(ctx, *pillarID)
	} else {
		slots, err = tx.ListSlotsByStation(ctx, stationID)
	}
	if err != nil {
		return nil, 0, err
	}
	return s.reconcile(ctx, tx, slots)
}

//  RECONCILIATION

// LoadSlot reads a slot and reverts its hold if it has expired.
func (s *service) LoadSlot(ctx context.Context, tx repository.Tx, slotID uuid.UUID) (*domain.Slot, error) {
	slot, _, err := s.ReconcileSlot(ctx, tx, slotID)
	return slot, err
}

// ReconcileSlot is LoadSlot that also reports whether an expired hold was
// reverted.
func (s *service) ReconcileSlot(ctx context.Context, tx repository.Tx, slotID uuid.UUID) (*domain.Slot, bool, error) {
	slot, err := tx.GetSlot(ctx, slotID)
	if err != nil {
		return nil, false, err
	}
	reconciled, reverted, err := s.reconcile(ctx, tx, []domain.Slot{*slot})
	if err != nil {
		return nil, false, err
	}
	return &reconciled[0], reverted > 0, nil
}

// reconcile reverts expired holds among slots, writes the changed ones and
// refreshes the stats of every pillar touched. A swap whose drop-off hold
// lapsed is closed in the same unit of work. It returns the number of slots
// written.
func (s *service) reconcile(ctx context.Context, tx repository.Tx, slots []domain.Slot) ([]domain.Slot, int, error) {
	now := s.now()
	dirty := make(map[uuid.UUID]bool)
	var (
		pillars  []uuid.UUID
		lapsed   []uuid.UUID
		reverted int
	)

	for i := range slots {
		held := slots[i].Reservation
		if !slots[i].ReconcileExpiry(now) {
			continue
		}
		slots[i].Touch(domain.SystemActor, ActionExpire, now)
		if err := tx.UpdateSlot(ctx, &slots[i]); err != nil {
			return nil, 0, err
		}
		reverted++
		if held != nil && held.SwapID != nil && held.Expired(now) {
			lapsed = append(lapsed, *held.SwapID)
		}
		if !dirty[slots[i].PillarID] {
			dirty[slots[i].PillarID] = true
			pillars = append(pillars, slots[i].PillarID)
		}
	}

	for _, pillarID := range pillars {
		if _, err := s.stats.RecomputePillar(ctx, tx, pillarID); err != nil {
			return nil, 0, err
		}
	}
	for _, swapID := range lapsed {
		if err := s.releaseSwapClaim(ctx, tx, swapID, now); err != nil {
			return nil, 0, err
		}
	}
	return slots, reverted, nil
}

// releaseSwapClaim cancels a swap that never received its old battery before
// the drop-off hold ran out. The replacement battery gets its prior status
// back and the booking is cancelled.
func (s *service) releaseSwapClaim(ctx context.Context, tx repository.Tx, swapID uuid.UUID, now time.Time) error {
	swap, err := tx.GetSwap(ctx, swapID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if swap.Status != domain.SwapInitiated {
		return nil
	}

	battery, err := tx.GetBattery(ctx, swap.NewBattery.BatteryID)
	if err != nil {
		return err
	}
	if battery.Status == domain.BatteryIsBooking {
		battery.Status = swap.NewBattery.Status
		if err := tx.UpdateBattery(ctx, battery); err != nil {
			return err
		}
	}

	if swap.BookingID != nil {
		booking, err := tx.GetBooking(ctx, *swap.BookingID)
		if err != nil {
			return err
		}
		if booking.Cancel(now) {
			if err := tx.UpdateBooking(ctx, booking); err != nil {
				return err
			}
		}
	}

	swap.Close(domain.SwapCancelled, domain.ReasonHoldExpired, now)
	if err := tx.UpdateSwap(ctx, swap); err != nil {
		return err
	}
	if _, err := s.stats.RecomputeStation(ctx, tx, swap.StationID); err != nil {
		return err
	}

	logger.GetDefault().LogSwapCancelled(ctx, swap.ID.String(), string(swap.Status), swap.FailureReason)
	return nil
}

//  BATTERY PLACEMENT

func (s *service) InsertBattery(ctx context.Context, slotID, batteryID uuid.UUID, actor domain.Actor) (*domain.Slot, error) {
	var slot *domain.Slot
	err := s.run(ctx, "insert_battery", func(tx repository.Tx) error {
		var err error
		slot, err = s.LoadSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		battery, err := tx.GetBattery(ctx, batteryID)
		if err != nil {
			return err
		}
		return s.InsertBatteryTx(ctx, tx, slot, battery, actor, nil)
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(ctx, slot.StationID)
	return slot, nil
}

func (s *service) RemoveBattery(ctx context.Context, slotID uuid.UUID, actor domain.Actor) (*domain.Slot, error) {
	var slot *domain.Slot
	err := s.run(ctx, "remove_battery", func(tx repository.Tx) error {
		var err error
		slot, err = s.LoadSlot(ctx, tx, slotID)
		if err != nil {
			return err
		}
		if slot.BatteryID != nil {
			battery, err := tx.GetBattery(ctx, *slot.BatteryID)
			if err != nil {
				return err
			}
			if battery.Status == domain.BatteryIsBooking {
				// the owning swap may have lapsed elsewhere at the station
				if _, err := s.ReconcileStation(ctx, tx, slot.StationID); err != nil {
					return err
				}
				if battery, err = tx.GetBattery(ctx, battery.ID); err != nil {
					return err
				}
			}
			if battery.Status == domain.BatteryIsBooking {
				return apperr.Conflict("battery %s is promised to a swap", battery.SerialNumber)
			}
		}
		_, err = s.RemoveBatteryTx(ctx, tx, slot, actor, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.stats.Invalidate(ctx, slot.StationID)
	return slot, nil
}

// InsertBatteryTx places battery into slot. A slot held by an active
// reservation only accepts the battery when holder owns that reservation.
// The slot must already be reconciled.
func (s *service) InsertBatteryTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, battery *domain.Battery, actor domain.Actor, holder *uuid.UUID) error {
	now := s.now()

	if slot.HasBattery() {
		return apperr.Conflict("slot %s already holds a battery", slot.Code)
	}
	if err := checkHold(slot, holder, now); err != nil {
		return err
	}
	if slot.Status != domain.SlotEmpty && slot.Status != domain.SlotReserved {
		return apperr.Conflict("slot %s is %s", slot.Code, slot.Status)
	}
	if battery.IsPlaced() {
		return apperr.Conflict("battery %s is already placed in slot %s", battery.SerialNumber, *battery.CurrentSlotID)
	}

	slot.BatteryID = &battery.ID
	slot.Status = domain.SlotOccupied
	slot.Reservation = nil
	slot.Touch(actor, ActionInsert, now)
	battery.PlaceIn(slot, now)

	if err := tx.UpdateSlot(ctx, slot); err != nil {
		return err
	}
	if err := tx.UpdateBattery(ctx, battery); err != nil {
		return err
	}
	return s.stats.Recompute(ctx, tx, slot.PillarID)
}

// RemoveBatteryTx clears both sides of the slot and battery link and returns
// the battery. The slot must already be reconciled.
func (s *service) RemoveBatteryTx(ctx context.Context, tx repository.Tx, slot *domain.Slot, actor domain.Actor, holder *uuid.UUID) (*domain.Battery, error) {
	now := s.now()

	if !slot.HasBattery() {
		return nil, apperr.Conflict("slot %s is empty", slot.Code)
	}
	if err := checkHold(slot, holder, now); err != nil {
		return nil, err
	}
	if slot.Status == domain.SlotLocked {
		return nil, apperr.Conflict("slot %s is locked", slot.Code)
	}

	battery, err := tx.GetBattery(ctx, *slot.BatteryID)
	if err != nil {
		return nil, err
	}
	if battery.CurrentSlotID == nil || *battery.CurrentSlotID != slot.ID {
		return nil, apperr.Unexpected(nil, "battery %s does not point back to slot %s", battery.SerialNumber, slot.Code)
	}

	slot.BatteryID = nil
	switch slot.Status {
	case domain.SlotOccupied, domain.SlotReserved:
		slot.Status = domain.SlotEmpty
		slot.Reservation = nil
	}
	slot.Touch(actor, ActionRemove, now)
	battery.Unplace()

	if err := tx.UpdateSlot(ctx, slot); err != nil {
		return nil, err
	}
	if err := tx.UpdateBattery(ctx, battery); err != nil {
		return nil, err
	}
	if err := s.stats.Recompute(ctx, tx, slot.PillarID); err != nil {
		return nil, err
	}
	return battery, nil
}

func checkHold(slot *domain.Slot, holder *uuid.UUID, now time.Time) error {
	if !slot.HasActiveHold(now) {
		return nil
	}
	if holder != nil && slot.HeldBy(*holder, now) {
		return nil
	}
	return apperr.Conflict("slot %s is reserved until %s", slot.Code, slot.Reservation.ExpiresAt.Format(time.RFC3339))
}

var _ Service = (*service)(nil)
