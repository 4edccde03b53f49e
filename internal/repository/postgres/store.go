// Package postgres implements repository.Store on gorm and PostgreSQL.
// Updates are issued as UPDATE ... WHERE id = ? AND version = ?, so a row
// changed by another writer affects zero rows and surfaces as a lost race.
package postgres

import (
	"context"
	"errors"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct {
	queries
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{queries{db: db}}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{queries{db: gtx}})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.Unexpected(err, "get sql.DB")
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the connection pool belongs to database.DB.
func (s *Store) Close() error {
	return nil
}

// queries is shared by the store and its transactions.
type queries struct {
	db *gorm.DB
}

func (q queries) first(ctx context.Context, dest any, kind string, query string, args ...any) error {
	err := q.db.WithContext(ctx).Where(query, args...).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("%s %v", kind, args[0])
	}
	if err != nil {
		return apperr.Unexpected(err, "load %s", kind)
	}
	return nil
}

func (q queries) GetStation(ctx context.Context, id uuid.UUID) (*domain.Station, error) {
	var station domain.Station
	if err := q.first(ctx, &station, "station", "id = ?", id); err != nil {
		return nil, err
	}
	return &station, nil
}

func (q queries) ListStations(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	if err := q.db.WithContext(ctx).Order("code ASC").Find(&stations).Error; err != nil {
		return nil, apperr.Unexpected(err, "list stations")
	}
	return stations, nil
}

func (q queries) GetPillar(ctx context.Context, id uuid.UUID) (*domain.Pillar, error) {
	var pillar domain.Pillar
	if err := q.first(ctx, &pillar, "pillar", "id = ?", id); err != nil {
		return nil, err
	}
	return &pillar, nil
}

func (q queries) ListPillarsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Pillar, error) {
	var pillars []domain.Pillar
	err := q.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("number ASC").
		Find(&pillars).Error
	if err != nil {
		return nil, apperr.Unexpected(err, "list pillars")
	}
	return pillars, nil
}

func (q queries) GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error) {
	var slot domain.Slot
	if err := q.first(ctx, &slot, "slot", "id = ?", id); err != nil {
		return nil, err
	}
	return &slot, nil
}

func (q queries) ListSlotsByPillar(ctx context.Context, pillarID uuid.UUID) ([]domain.Slot, error) {
	var slots []domain.Slot
	err := q.db.WithContext(ctx).
		Where("pillar_id = ?", pillarID).
		Order("slot_number ASC").
		Find(&slots).Error
	if err != nil {
		return nil, apperr.Unexpected(err, "list slots")
	}
	return slots, nil
}

func (q queries) ListSlotsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Slot, error) {
	var slots []domain.Slot
	err := q.db.WithContext(ctx).
		Select("slots.*").
		Joins("JOIN pillars ON pillars.id = slots.pillar_id").
		Where("slots.station_id = ?", stationID).
		Order("pillars.number ASC, slots.slot_number ASC").
		Find(&slots).Error
	if err != nil {
		return nil, apperr.Unexpected(err, "list station slots")
	}
	return slots, nil
}

func (q queries) ListReservedSlotsExpiredBefore(ctx context.Context, t time.Time, limit int) ([]domain.Slot, error) {
	var slots []domain.Slot
	query := q.db.WithContext(ctx).
		Where("status = ?", domain.SlotReserved).
		Where("reservation IS NULL OR (reservation->>'expires_at')::timestamptz <= ?", t).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&slots).Error; err != nil {
		return nil, apperr.Unexpected(err, "list expired reservations")
	}
	return slots, nil
}

func (q queries) GetBattery(ctx context.Context, id uuid.UUID) (*domain.Battery, error) {
	var battery domain.Battery
	if err := q.first(ctx, &battery, "battery", "id = ?", id); err != nil {
		return nil, err
	}
	return &battery, nil
}

func (q queries) GetBatteryBySerial(ctx context.Context, serial string) (*domain.Battery, error) {
	var battery domain.Battery
	if err := q.first(ctx, &battery, "battery with serial", "serial_number = ?", serial); err != nil {
		return nil, err
	}
	return &battery, nil
}

func (q queries) ListBatteriesByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Battery, error) {
	var batteries []domain.Battery
	err := q.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("serial_number ASC").
		Find(&batteries).Error
	if err != nil {
		return nil, apperr.Unexpected(err, "list batteries")
	}
	return batteries, nil
}

func (q queries) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	var booking domain.Booking
	if err := q.first(ctx, &booking, "booking", "id = ?", id); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (q queries) GetSwap(ctx context.Context, id uuid.UUID) (*domain.SwapTransaction, error) {
	var swap domain.SwapTransaction
	if err := q.first(ctx, &swap, "swap", "id = ?", id); err != nil {
		return nil, err
	}
	return &swap, nil
}

func (q queries) ListSwaps(ctx context.Context, filter repository.SwapFilter) ([]domain.SwapTransaction, int64, error) {
	filter = filter.Normalize()

	var (
		swaps []domain.SwapTransaction
		total int64
	)
	base := applySwapFilters(q.db.WithContext(ctx).Model(&domain.SwapTransaction{}), filter)
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, apperr.Unexpected(err, "count swaps")
	}

	err := base.
		Order("initiated_at DESC, id ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&swaps).Error
	if err != nil {
		return nil, 0, apperr.Unexpected(err, "list swaps")
	}
	return swaps, total, nil
}

func applySwapFilters(query *gorm.DB, filter repository.SwapFilter) *gorm.DB {
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.StationID != nil {
		query = query.Where("station_id = ?", *filter.StationID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("initiated_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("initiated_at <= ?", *filter.To)
	}
	return query
}
