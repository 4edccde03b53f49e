// Package memory is an in-process repository.Store. Records live in
// arena-style maps keyed by id; a unit of work stages its writes and
// validates the versions it wrote against when it commits.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"

	"github.com/google/uuid"
)

type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	stations  *table[domain.Station]
	pillars   *table[domain.Pillar]
	slots     *table[domain.Slot]
	batteries *table[domain.Battery]
	bookings  *table[domain.Booking]
	swaps     *table[domain.SwapTransaction]
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		now: time.Now,
		stations: &table[domain.Station]{
			name:    "station",
			rows:    make(map[uuid.UUID]*domain.Station),
			index:   make(map[string]uuid.UUID),
			id:      func(s *domain.Station) uuid.UUID { return s.ID },
			version: func(s *domain.Station) *int64 { return &s.Version },
			clone:   (*domain.Station).Clone,
			keys:    func(s *domain.Station) []string { return []string{"code:" + strings.ToUpper(s.Code)} },
			stamp: func(s *domain.Station, now time.Time, created bool) {
				if created {
					s.CreatedAt = now
				}
				s.UpdatedAt = now
			},
		},
		pillars: &table[domain.Pillar]{
			name:    "pillar",
			rows:    make(map[uuid.UUID]*domain.Pillar),
			index:   make(map[string]uuid.UUID),
			id:      func(p *domain.Pillar) uuid.UUID { return p.ID },
			version: func(p *domain.Pillar) *int64 { return &p.Version },
			clone:   (*domain.Pillar).Clone,
			keys: func(p *domain.Pillar) []string {
				return []string{fmt.Sprintf("number:%s:%d", p.StationID, p.Number)}
			},
			stamp: func(p *domain.Pillar, now time.Time, created bool) {
				if created {
					p.CreatedAt = now
				}
				p.UpdatedAt = now
			},
		},
		slots: &table[domain.Slot]{
			name:    "slot",
			rows:    make(map[uuid.UUID]*domain.Slot),
			index:   make(map[string]uuid.UUID),
			id:      func(s *domain.Slot) uuid.UUID { return s.ID },
			version: func(s *domain.Slot) *int64 { return &s.Version },
			clone:   (*domain.Slot).Clone,
			keys: func(s *domain.Slot) []string {
				keys := []string{fmt.Sprintf("number:%s:%d", s.PillarID, s.SlotNumber)}
				if s.BatteryID != nil {
					keys = append(keys, "battery:"+s.BatteryID.String())
				}
				return keys
			},
			stamp: func(s *domain.Slot, now time.Time, created bool) {
				if created {
					s.CreatedAt = now
				}
				s.UpdatedAt = now
			},
		},
		batteries: &table[domain.Battery]{
			name:    "battery",
			rows:    make(map[uuid.UUID]*domain.Battery),
			index:   make(map[string]uuid.UUID),
			id:      func(b *domain.Battery) uuid.UUID { return b.ID },
			version: func(b *domain.Battery) *int64 { return &b.Version },
			clone:   (*domain.Battery).Clone,
			keys: func(b *domain.Battery) []string {
				keys := []string{"serial:" + b.SerialNumber}
				if b.CurrentSlotID != nil {
					keys = append(keys, "slot:"+b.CurrentSlotID.String())
				}
				return keys
			},
			stamp: func(b *domain.Battery, now time.Time, created bool) {
				if created {
					b.CreatedAt = now
				}
				b.UpdatedAt = now
			},
		},
		bookings: &table[domain.Booking]{
			name:    "booking",
			rows:    make(map[uuid.UUID]*domain.Booking),
			index:   make(map[string]uuid.UUID),
			id:      func(b *domain.Booking) uuid.UUID { return b.ID },
			version: func(b *domain.Booking) *int64 { return &b.Version },
			clone:   (*domain.Booking).Clone,
			stamp: func(b *domain.Booking, now time.Time, created bool) {
				if created {
					b.CreatedAt = now
				}
				b.UpdatedAt = now
			},
		},
		swaps: &table[domain.SwapTransaction]{
			name:    "swap",
			rows:    make(map[uuid.UUID]*domain.SwapTransaction),
			index:   make(map[string]uuid.UUID),
			id:      func(s *domain.SwapTransaction) uuid.UUID { return s.ID },
			version: func(s *domain.SwapTransaction) *int64 { return &s.Version },
			clone:   (*domain.SwapTransaction).Clone,
			keys:    func(s *domain.SwapTransaction) []string { return []string{"ref:" + s.SwapRef} },
			stamp: func(s *domain.SwapTransaction, now time.Time, created bool) {
				if created {
					s.CreatedAt = now
				}
				s.UpdatedAt = now
			},
		},
	}
}

// WithTx stages fn's writes and commits them atomically when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := s.begin()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.commit()
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

// The Store's own reads go through an empty tx view.

func (s *Store) GetStation(ctx context.Context, id uuid.UUID) (*domain.Station, error) {
	return s.begin().GetStation(ctx, id)
}

func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	return s.begin().ListStations(ctx)
}

func (s *Store) GetPillar(ctx context.Context, id uuid.UUID) (*domain.Pillar, error) {
	return s.begin().GetPillar(ctx, id)
}

func (s *Store) ListPillarsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Pillar, error) {
	return s.begin().ListPillarsByStation(ctx, stationID)
}

func (s *Store) GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	return s.begin().GetSlot(ctx, id)
}

func (s *Store) ListSlotsByPillar(ctx context.Context, pillarID uuid.UUID) ([]domain.Slot, error) {
	return s.begin().ListSlotsByPillar(ctx, pillarID)
}

func (s *Store) ListSlotsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Slot, error) {
	return s.begin().ListSlotsByStation(ctx, stationID)
}

func (s *Store) ListReservedSlotsExpiredBefore(ctx context.Context, t time.Time, limit int) ([]domain.Slot, error) {
	return s.begin().ListReservedSlotsExpiredBefore(ctx, t, limit)
}

func (s *Store) GetBattery(ctx context.Context, id uuid.UUID) (*domain.Battery, error) {
	return s.begin().GetBattery(ctx, id)
}

func (s *Store) GetBatteryBySerial(ctx context.Context, serial string) (*domain.Battery, error) {
	return s.begin().GetBatteryBySerial(ctx, serial)
}

func (s *Store) ListBatteriesByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Battery, error) {
	return s.begin().ListBatteriesByStation(ctx, stationID)
}

func (s *Store) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.begin().GetBooking(ctx, id)
}

func (s *Store) GetSwap(ctx context.Context, id uuid.UUID) (*domain.SwapTransaction, error) {
	return s.begin().GetSwap(ctx, id)
}

func (s *Store) ListSwaps(ctx context.Context, filter repository.SwapFilter) ([]domain.SwapTransaction, int64, error) {
	return s.begin().ListSwaps(ctx, filter)
}

func (s *Store) begin() *tx {
	return &tx{
		store:     s,
		stations:  newPending(s.stations),
		pillars:   newPending(s.pillars),
		slots:     newPending(s.slots),
		batteries: newPending(s.batteries),
		bookings:  newPending(s.bookings),
		swaps:     newPending(s.swaps),
	}
}

type tx struct {
	store *Store

	stations  *pending[domain.Station]
	pillars   *pending[domain.Pillar]
	slots     *pending[domain.Slot]
	batteries *pending[domain.Battery]
	bookings  *pending[domain.Booking]
	swaps     *pending[domain.SwapTransaction]
}

func (t *tx) commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	checks := []func() error{
		t.stations.validate,
		t.pillars.validate,
		t.slots.validate,
		t.batteries.validate,
		t.bookings.validate,
		t.swaps.validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}

	t.stations.apply()
	t.pillars.apply()
	t.slots.apply()
	t.batteries.apply()
	t.bookings.apply()
	t.swaps.apply()
	return nil
}

func (t *tx) rlock() func() {
	t.store.mu.RLock()
	return t.store.mu.RUnlock
}

func (t *tx) now() time.Time {
	return t.store.now()
}

func (t *tx) GetStation(_ context.Context, id uuid.UUID) (*domain.Station, error) {
	defer t.rlock()()
	if st, ok := t.stations.get(id); ok {
		return st, nil
	}
	return nil, apperr.NotFound("station %s", id)
}

func (t *tx) ListStations(_ context.Context) ([]domain.Station, error) {
	defer t.rlock()()
	out := t.stations.list(func(*domain.Station) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *tx) GetPillar(_ context.Context, id uuid.UUID) (*domain.Pillar, error) {
	defer t.rlock()()
	if p, ok := t.pillars.get(id); ok {
		return p, nil
	}
	return nil, apperr.NotFound("pillar %s", id)
}

func (t *tx) ListPillarsByStation(_ context.Context, stationID uuid.UUID) ([]domain.Pillar, error) {
	defer t.rlock()()
	out := t.pillars.list(func(p *domain.Pillar) bool { return p.StationID == stationID })
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (t *tx) GetSlot(_ context.Context, id uuid.UUID) (*domain.Slot, error) {
	defer t.rlock()()
	if s, ok := t.slots.get(id); ok {
		return s, nil
	}
	return nil, apperr.NotFound("slot %s", id)
}

func (t *tx) ListSlotsByPillar(_ context.Context, pillarID uuid.UUID) ([]domain.Slot, error) {
	defer t.rlock()()
	out := t.slots.list(func(s *domain.Slot) bool { return s.PillarID == pillarID })
	sort.Slice(out, func(i, j int) bool { return out[i].SlotNumber < out[j].SlotNumber })
	return out, nil
}

func (t *tx) ListSlotsByStation(_ context.Context, stationID uuid.UUID) ([]domain.Slot, error) {
	defer t.rlock()()
	numbers := make(map[uuid.UUID]int)
	for _, p := range t.pillars.list(func(p *domain.Pillar) bool { return p.StationID == stationID }) {
		numbers[p.ID] = p.Number
	}
	out := t.slots.list(func(s *domain.Slot) bool { return s.StationID == stationID })
	sort.Slice(out, func(i, j int) bool {
		pi, pj := numbers[out[i].PillarID], numbers[out[j].PillarID]
		if pi != pj {
			return pi < pj
		}
		return out[i].SlotNumber < out[j].SlotNumber
	})
	return out, nil
}

func (t *tx) ListReservedSlotsExpiredBefore(_ context.Context, at time.Time, limit int) ([]domain.Slot, error) {
	defer t.rlock()()
	out := t.slots.list(func(s *domain.Slot) bool {
		return s.Status == domain.SlotReserved && (s.Reservation == nil || s.Reservation.Expired(at))
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) GetBattery(_ context.Context, id uuid.UUID) (*domain.Battery, error) {
	defer t.rlock()()
	if b, ok := t.batteries.get(id); ok {
		return b, nil
	}
	return nil, apperr.NotFound("battery %s", id)
}

func (t *tx) GetBatteryBySerial(_ context.Context, serial string) (*domain.Battery, error) {
	defer t.rlock()()
	found := t.batteries.list(func(b *domain.Battery) bool { return b.SerialNumber == serial })
	if len(found) == 0 {
		return nil, apperr.NotFound("battery with serial %s", serial)
	}
	return &found[0], nil
}

func (t *tx) ListBatteriesByStation(_ context.Context, stationID uuid.UUID) ([]domain.Battery, error) {
	defer t.rlock()()
	out := t.batteries.list(func(b *domain.Battery) bool {
		return b.StationID != nil && *b.StationID == stationID
	})
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (t *tx) GetBooking(_ context.Context, id uuid.UUID) (*domain.Booking, error) {
	defer t.rlock()()
	if b, ok := t.bookings.get(id); ok {
		return b, nil
	}
	return nil, apperr.NotFound("booking %s", id)
}

func (t *tx) GetSwap(_ context.Context, id uuid.UUID) (*domain.SwapTransaction, error) {
	defer t.rlock()()
	if s, ok := t.swaps.get(id); ok {
		return s, nil
	}
	return nil, apperr.NotFound("swap %s", id)
}

func (t *tx) ListSwaps(_ context.Context, filter repository.SwapFilter) ([]domain.SwapTransaction, int64, error) {
	defer t.rlock()()
	filter = filter.Normalize()
	out := t.swaps.list(filter.Matches)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].InitiatedAt.Equal(out[j].InitiatedAt) {
			return out[i].InitiatedAt.After(out[j].InitiatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	total := int64(len(out))
	start := min(filter.Offset(), len(out))
	end := min(start+filter.Limit, len(out))
	return out[start:end], total, nil
}

func (t *tx) CreateStation(_ context.Context, station *domain.Station) error {
	defer t.rlock()()
	return t.stations.create(station, t.now())
}

func (t *tx) UpdateStation(_ context.Context, station *domain.Station) error {
	defer t.rlock()()
	return t.stations.update(station, t.now())
}

func (t *tx) CreatePillar(_ context.Context, pillar *domain.Pillar, slots []domain.Slot) error {
	defer t.rlock()()
	now := t.now()
	if err := t.pillars.create(pillar, now); err != nil {
		return err
	}
	for i := range slots {
		if err := t.slots.create(&slots[i], now); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) UpdatePillar(_ context.Context, pillar *domain.Pillar) error {
	defer t.rlock()()
	return t.pillars.update(pillar, t.now())
}

func (t *tx) UpdateSlot(_ context.Context, slot *domain.Slot) error {
	defer t.rlock()()
	return t.slots.update(slot, t.now())
}

func (t *tx) CreateBattery(_ context.Context, battery *domain.Battery) error {
	defer t.rlock()()
	return t.batteries.create(battery, t.now())
}

func (t *tx) UpdateBattery(_ context.Context, battery *domain.Battery) error {
	defer t.rlock()()
	return t.batteries.update(battery, t.now())
}

func (t *tx) CreateBooking(_ context.Context, booking *domain.Booking) error {
	defer t.rlock()()
	return t.bookings.create(booking, t.now())
}

func (t *tx) UpdateBooking(_ context.Context, booking *domain.Booking) error {
	defer t.rlock()()
	return t.bookings.update(booking, t.now())
}

func (t *tx) CreateSwap(_ context.Context, swap *domain.SwapTransaction) error {
	defer t.rlock()()
	return t.swaps.create(swap, t.now())
}

func (t *tx) UpdateSwap(_ context.Context, swap *domain.SwapTransaction) error {
	defer t.rlock()()
	return t.swaps.update(swap, t.now())
}
