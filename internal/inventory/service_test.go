package inventory

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"testing"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/repository/memory"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/constants"
	"swapstation/internal/stats"
	"swapstation/pkg/cache"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var staff = domain.Actor{ID: uuid.New(), Role: domain.RoleStaff}

type harness struct {
	svc     Service
	store   *memory.Store
	agg     *stats.Aggregator
	station *domain.Station
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	station := &domain.Station{ID: uuid.New(), Name: "Depot", Code: "DEP", Status: domain.StationActive}
	require.NoError(t, store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateStation(ctx, station)
	}))

	cfg := &config.Config{Swap: config.SwapConfig{MaxClaimRetries: 5, ReservationTTL: 15 * time.Minute}}
	agg := stats.NewAggregator()
	return &harness{
		svc:     NewService(store, agg, cfg),
		store:   store,
		agg:     agg,
		station: station,
	}
}

func (h *harness) pillar(t *testing.T, number, slots int) (*domain.Pillar, []domain.Slot) {
	t.Helper()
	ctx := context.Background()
	pillar, err := h.svc.CreatePillar(ctx, CreatePillarRequest{StationID: h.station.ID, Name: "P", Number: number, TotalSlots: slots})
	require.NoError(t, err)
	list, err := h.store.ListSlotsByPillar(ctx, pillar.ID)
	require.NoError(t, err)
	return pillar, list
}

func (h *harness) battery(t *testing.T, serial string, soh float64, status domain.BatteryStatus) *domain.Battery {
	t.Helper()
	ctx := context.Background()
	b := &domain.Battery{ID: uuid.New(), SerialNumber: serial, SOH: soh, Status: status}
	require.NoError(t, h.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateBattery(ctx, b)
	}))
	return b
}

// hold puts a raw reservation on a slot, bypassing the reservation rules.
func (h *harness) hold(t *testing.T, slotID uuid.UUID, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.WithTx(ctx, func(tx repository.Tx) error {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		slot.Status = domain.SlotReserved
		slot.Reservation = &domain.Reservation{UserID: uuid.New(), ReservedAt: expiresAt.Add(-time.Minute), ExpiresAt: expiresAt}
		return tx.UpdateSlot(ctx, slot)
	}))
}

func (h *harness) assertLinked(t *testing.T, slotID uuid.UUID, batteryID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	slot, err := h.store.GetSlot(ctx, slotID)
	require.NoError(t, err)
	battery, err := h.store.GetBattery(ctx, batteryID)
	require.NoError(t, err)
	require.NotNil(t, slot.BatteryID)
	require.NotNil(t, battery.CurrentSlotID)
	assert.Equal(t, batteryID, *slot.BatteryID)
	assert.Equal(t, slotID, *battery.CurrentSlotID)
	assert.Equal(t, slot.PillarID, *battery.CurrentPillarID)
}

func (h *harness) assertBalanced(t *testing.T, pillarID uuid.UUID) domain.SlotStats {
	t.Helper()
	ctx := context.Background()
	pillar, err := h.store.GetPillar(ctx, pillarID)
	require.NoError(t, err)
	slots, err := h.store.ListSlotsByPillar(ctx, pillarID)
	require.NoError(t, err)
	assert.True(t, pillar.SlotStats.Balanced())
	assert.Equal(t, pillar.TotalSlots, pillar.SlotStats.Total)
	assert.Equal(t, domain.ComputeSlotStats(slots), pillar.SlotStats)
	return pillar.SlotStats
}

func TestCreatePillarGeneratesNumberedSlots(t *testing.T) {
	h := newHarness(t)
	pillar, slots := h.pillar(t, 2, 3)

	require.Len(t, slots, 3)
	for i, slot := range slots {
		assert.Equal(t, i+1, slot.SlotNumber)
		assert.Equal(t, domain.SlotEmpty, slot.Status)
		assert.Equal(t, h.station.ID, slot.StationID)
		assert.Equal(t, ActionInit, slot.LastActivityAction)
	}
	assert.Equal(t, "DEP-P02-S01", slots[0].Code)
	assert.Equal(t, "DEP-P02-S03", slots[2].Code)
	assert.Equal(t, domain.SlotStats{Total: 3, Empty: 3}, h.assertBalanced(t, pillar.ID))
	assert.Equal(t, domain.PillarActive, pillar.Status)
}

func TestCreatePillarRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.pillar(t, 1, 2)

	_, err := h.svc.CreatePillar(ctx, CreatePillarRequest{StationID: h.station.ID, Name: "dup", Number: 1, TotalSlots: 2})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.CreatePillar(ctx, CreatePillarRequest{StationID: uuid.New(), Name: "x", Number: 1, TotalSlots: 2})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.CreatePillar(ctx, CreatePillarRequest{StationID: h.station.ID, Name: "x", Number: 3, TotalSlots: 0})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	pillars, err := h.svc.ListPillarsByStation(ctx, h.station.ID)
	require.NoError(t, err)
	assert.Len(t, pillars, 1)
}

func TestInsertAndRemoveMaintainBothSides(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pillar, slots := h.pillar(t, 1, 2)
	b := h.battery(t, "B-1", 88, domain.BatteryFull)

	slot, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotOccupied, slot.Status)
	assert.Equal(t, staff.ID, *slot.LastActivityBy)
	h.assertLinked(t, slots[0].ID, b.ID)
	assert.Equal(t, domain.SlotStats{Total: 2, Occupied: 1, Empty: 1}, h.assertBalanced(t, pillar.ID))

	station, err := h.store.GetStation(ctx, h.station.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, station.TotalBatteries)
	assert.Equal(t, 1, station.AvailableBatteries)
	assert.Equal(t, 88.0, station.AverageSOH)

	other := h.battery(t, "B-2", 70, domain.BatteryCharging)
	_, err = h.svc.InsertBattery(ctx, slots[0].ID, other.ID, staff)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = h.svc.InsertBattery(ctx, slots[1].ID, b.ID, staff)
	assert.ErrorIs(t, err, apperr.ErrConflict, "a battery sits in at most one slot")

	slot, err = h.svc.RemoveBattery(ctx, slots[0].ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotEmpty, slot.Status)
	assert.Nil(t, slot.BatteryID)

	removed, err := h.store.GetBattery(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, removed.CurrentSlotID)
	assert.Nil(t, removed.CurrentPillarID)
	assert.Equal(t, domain.SlotStats{Total: 2, Empty: 2}, h.assertBalanced(t, pillar.ID))

	_, err = h.svc.RemoveBattery(ctx, slots[0].ID, staff)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestMissingSlotOrBattery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, slots := h.pillar(t, 1, 1)

	_, err := h.svc.InsertBattery(ctx, slots[0].ID, uuid.New(), staff)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.RemoveBattery(ctx, uuid.New(), staff)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestActiveHoldBlocksOtherActors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, slots := h.pillar(t, 1, 1)
	b := h.battery(t, "B-1", 90, domain.BatteryFull)

	h.hold(t, slots[0].ID, time.Now().Add(10*time.Minute))

	_, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestExpiredHoldNeverBlocks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pillar, slots := h.pillar(t, 1, 1)
	b := h.battery(t, "B-1", 90, domain.BatteryFull)

	h.hold(t, slots[0].ID, time.Now().Add(-time.Second))

	slot, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotOccupied, slot.Status)
	assert.Nil(t, slot.Reservation)
	h.assertLinked(t, slots[0].ID, b.ID)
	h.assertBalanced(t, pillar.ID)
}

func TestExpiredHoldOnOccupiedSlotNeverBlocksRemoval(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, slots := h.pillar(t, 1, 1)
	b := h.battery(t, "B-1", 90, domain.BatteryCharging)

	_, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff)
	require.NoError(t, err)
	h.hold(t, slots[0].ID, time.Now().Add(-time.Second))

	slot, err := h.svc.RemoveBattery(ctx, slots[0].ID, staff)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotEmpty, slot.Status)
	assert.Nil(t, slot.Reservation)
}

func TestGetPillarSlotsReconcilesExpiredHolds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pillar, slots := h.pillar(t, 1, 3)

	h.hold(t, slots[0].ID, time.Now().Add(-time.Second))
	h.hold(t, slots[1].ID, time.Now().Add(time.Hour))

	listed, err := h.svc.GetPillarSlots(ctx, pillar.ID)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, domain.SlotEmpty, listed[0].Status)
	assert.Nil(t, listed[0].Reservation)
	assert.Equal(t, ActionExpire, listed[0].LastActivityAction)
	assert.Equal(t, domain.SlotReserved, listed[1].Status)

	stored, err := h.store.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotEmpty, stored.Status)
	assert.Equal(t, domain.SlotStats{Total: 3, Empty: 2, Reserved: 1}, h.assertBalanced(t, pillar.ID))

	_, err = h.svc.GetPillarSlots(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFindEmptySlotTieBreak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, second := h.pillar(t, 2, 2)
	first, firstSlots := h.pillar(t, 1, 2)

	b := h.battery(t, "B-1", 90, domain.BatteryFull)
	_, err := h.svc.InsertBattery(ctx, firstSlots[0].ID, b.ID, staff)
	require.NoError(t, err)

	slot, err := h.svc.FindEmptySlot(ctx, h.station.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, firstSlots[1].ID, slot.ID)

	slot, err = h.svc.FindEmptySlot(ctx, h.station.ID, &second[0].PillarID)
	require.NoError(t, err)
	assert.Equal(t, second[0].ID, slot.ID)

	h.hold(t, firstSlots[1].ID, time.Now().Add(time.Minute))
	slot, err = h.svc.FindEmptySlot(ctx, h.station.ID, &first.ID)
	assert.ErrorIs(t, err, apperr.ErrResourceUnavailable)
	assert.Nil(t, slot)

	_, err = h.svc.FindEmptySlot(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFindEmptySlotSkipsInactivePillars(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pillar, _ := h.pillar(t, 1, 1)

	require.NoError(t, h.store.WithTx(ctx, func(tx repository.Tx) error {
		p, err := tx.GetPillar(ctx, pillar.ID)
		if err != nil {
			return err
		}
		p.Status = domain.PillarMaintenance
		return tx.UpdatePillar(ctx, p)
	}))

	_, err := h.svc.FindEmptySlot(ctx, h.station.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrResourceUnavailable)
}

func TestFindEmptySlotReconcilesFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, slots := h.pillar(t, 1, 1)
	h.hold(t, slots[0].ID, time.Now().Add(-time.Second))

	slot, err := h.svc.FindEmptySlot(ctx, h.station.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, slots[0].ID, slot.ID)
	assert.Equal(t, domain.SlotEmpty, slot.Status)
}

func TestFindAvailableSlots(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, slots := h.pillar(t, 1, 4)

	full := h.battery(t, "B-FULL", 95, domain.BatteryFull)
	charging := h.battery(t, "B-CHG", 60, domain.BatteryCharging)
	idle := h.battery(t, "B-IDLE", 80, domain.BatteryIdle)
	for i, b := range []*domain.Battery{full, charging, idle} {
		_, err := h.svc.InsertBattery(ctx, slots[i].ID, b.ID, staff)
		require.NoError(t, err)
	}

	pickups, err := h.svc.FindAvailableSlots(ctx, h.station.ID, nil, false)
	require.NoError(t, err)
	require.Len(t, pickups, 2)
	assert.Equal(t, slots[0].ID, pickups[0].ID)
	assert.Equal(t, slots[2].ID, pickups[1].ID)

	empties, err := h.svc.FindAvailableSlots(ctx, h.station.ID, nil, true)
	require.NoError(t, err)
	require.Len(t, empties, 1)
	assert.Equal(t, slots[3].ID, empties[0].ID)

	other := uuid.New()
	_, err = h.svc.FindAvailableSlots(ctx, h.station.ID, &other, true)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveBatteryPromisedToSwap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, slots := h.pillar(t, 1, 1)
	b := h.battery(t, "B-1", 90, domain.BatteryFull)
	_, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff)
	require.NoError(t, err)

	require.NoError(t, h.store.WithTx(ctx, func(tx repository.Tx) error {
		stored, err := tx.GetBattery(ctx, b.ID)
		if err != nil {
			return err
		}
		stored.Status = domain.BatteryIsBooking
		return tx.UpdateBattery(ctx, stored)
	}))

	_, err = h.svc.RemoveBattery(ctx, slots[0].ID, staff)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	h.assertLinked(t, slots[0].ID, b.ID)
}

func TestConcurrentInsertsIntoOneSlot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pillar, slots := h.pillar(t, 1, 1)

	const n = 8
	batteries := make([]*domain.Battery, n)
	for i := range batteries {
		batteries[i] = h.battery(t, uuid.NewString()[:12], 80, domain.BatteryFull)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded []uuid.UUID
	)
	for _, b := range batteries {
		wg.Add(1)
		go func(b *domain.Battery) {
			defer wg.Done()
			if _, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff); err == nil {
				mu.Lock()
				succeeded = append(succeeded, b.ID)
				mu.Unlock()
			}
		}(b)
	}
	wg.Wait()

	require.Len(t, succeeded, 1)
	h.assertLinked(t, slots[0].ID, succeeded[0])
	assert.Equal(t, domain.SlotStats{Total: 1, Occupied: 1}, h.assertBalanced(t, pillar.ID))

	for _, b := range batteries {
		if b.ID == succeeded[0] {
			continue
		}
		stored, err := h.store.GetBattery(ctx, b.ID)
		require.NoError(t, err)
		assert.Nil(t, stored.CurrentSlotID)
	}
}

// mapCache keeps JSON values in memory and matches patterns with path.Match,
// which agrees with Redis globbing for the keys used here.
type mapCache struct {
	mu      sync.Mutex
	items   map[string][]byte
	deleted []string
}

func newMapCache() *mapCache { return &mapCache{items: map[string][]byte{}} }

func (c *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = raw
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *mapCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, pattern)
	for key := range c.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *mapCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fetcher func() (interface{}, error), dest interface{}) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	}
	value, err := fetcher()
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.Get(ctx, key, dest)
}

func (c *mapCache) Ping(ctx context.Context) error { return nil }

func TestListPillarsDropsLapsedHoldsFromCachedStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now()
	h.svc.SetClock(func() time.Time { return now })
	c := newMapCache()
	h.svc.SetCacheService(c)
	h.agg.SetCacheService(c)

	pillar, slots := h.pillar(t, 1, 2)
	h.hold(t, slots[0].ID, now.Add(time.Minute))
	require.NoError(t, h.store.WithTx(ctx, func(tx repository.Tx) error {
		return h.agg.Recompute(ctx, tx, pillar.ID)
	}))

	listed, err := h.svc.ListPillarsByStation(ctx, h.station.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 1, listed[0].SlotStats.Reserved)
	assert.Empty(t, c.deleted)

	now = now.Add(2 * time.Minute)

	listed, err = h.svc.ListPillarsByStation(ctx, h.station.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, domain.SlotStats{Total: 2, Empty: 2}, listed[0].SlotStats)
	assert.Equal(t, []string{constants.BuildStationInvalidatePattern(h.station.ID.String())}, c.deleted)

	stored, err := h.store.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotEmpty, stored.Status)
	assert.Nil(t, stored.Reservation)
}

func TestReadsThatReconcileInvalidateStationCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := newMapCache()
	h.agg.SetCacheService(c)
	pillar, slots := h.pillar(t, 1, 2)

	_, err := h.svc.GetPillarSlots(ctx, pillar.ID)
	require.NoError(t, err)
	assert.Empty(t, c.deleted)

	h.hold(t, slots[0].ID, time.Now().Add(-time.Second))
	_, err = h.svc.FindEmptySlot(ctx, h.station.ID, nil)
	require.NoError(t, err)
	assert.Len(t, c.deleted, 1)
}

// skewPillar makes the pillar's recorded slot count disagree with its slots,
// so the next stats recompute fails.
func skewPillar(t *testing.T, store *memory.Store, pillarID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.WithTx(ctx, func(tx repository.Tx) error {
		pillar, err := tx.GetPillar(ctx, pillarID)
		if err != nil {
			return err
		}
		pillar.TotalSlots++
		return tx.UpdatePillar(ctx, pillar)
	}))
}

func TestInsertBatteryRollsBackWhenStatsFail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pillar, slots := h.pillar(t, 1, 1)
	b := h.battery(t, "B-1", 90, domain.BatteryFull)
	skewPillar(t, h.store, pillar.ID)

	_, err := h.svc.InsertBattery(ctx, slots[0].ID, b.ID, staff)
	assert.ErrorIs(t, err, apperr.ErrUnexpected)

	slot, err := h.store.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotEmpty, slot.Status)
	assert.Nil(t, slot.BatteryID)
	battery, err := h.store.GetBattery(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, battery.CurrentSlotID)
	assert.Nil(t, battery.StationID)
	assert.Equal(t, domain.BatteryFull, battery.Status)
}
