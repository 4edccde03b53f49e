package postgres

import (
	"context"
	"errors"

	"swapstation/internal/domain"
	"swapstation/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type tx struct {
	queries
}

func (t *tx) create(ctx context.Context, kind string, row any, version *int64) error {
	*version = 1
	if err := t.db.WithContext(ctx).Create(row).Error; err != nil {
		return translate(err, "create %s", kind)
	}
	return nil
}

// update writes every column of row guarded by its current version and
// advances the version on success.
func (t *tx) update(ctx context.Context, kind string, row any, id uuid.UUID, version *int64) error {
	expected := *version
	*version = expected + 1

	res := t.db.WithContext(ctx).
		Model(row).
		Where("version = ?", expected).
		Select("*").
		Omit("created_at").
		Updates(row)
	if res.Error != nil {
		*version = expected
		return translate(res.Error, "update %s %s", kind, id)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	*version = expected
	var count int64
	if err := t.db.WithContext(ctx).Model(row).Where("id = ?", id).Count(&count).Error; err != nil {
		return apperr.Unexpected(err, "update %s %s", kind, id)
	}
	if count == 0 {
		return apperr.NotFound("%s %s", kind, id)
	}
	return apperr.RaceLost("%s %s changed concurrently", kind, id)
}

func translate(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict(format, args...)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperr.Conflict(format, args...)
		case "40001", "40P01":
			return apperr.RaceLost(format, args...)
		}
	}
	return apperr.Unexpected(err, format, args...)
}

func (t *tx) CreateStation(ctx context.Context, station *domain.Station) error {
	return t.create(ctx, "station", station, &station.Version)
}

func (t *tx) UpdateStation(ctx context.Context, station *domain.Station) error {
	return t.update(ctx, "station", station, station.ID, &station.Version)
}

func (t *tx) CreatePillar(ctx context.Context, pillar *domain.Pillar, slots []domain.Slot) error {
	if err := t.create(ctx, "pillar", pillar, &pillar.Version); err != nil {
		return err
	}
	if len(slots) == 0 {
		return nil
	}
	for i := range slots {
		slots[i].Version = 1
	}
	if err := t.db.WithContext(ctx).CreateInBatches(slots, 100).Error; err != nil {
		return translate(err, "create slots for pillar %s", pillar.ID)
	}
	return nil
}

func (t *tx) UpdatePillar(ctx context.Context, pillar *domain.Pillar) error {
	return t.update(ctx, "pillar", pillar, pillar.ID, &pillar.Version)
}

func (t *tx) UpdateSlot(ctx context.Context, slot *domain.Slot) error {
	return t.update(ctx, "slot", slot, slot.ID, &slot.Version)
}

func (t *tx) CreateBattery(ctx context.Context, battery *domain.Battery) error {
	return t.create(ctx, "battery", battery, &battery.Version)
}

func (t *tx) UpdateBattery(ctx context.Context, battery *domain.Battery) error {
	return t.update(ctx, "battery", battery, battery.ID, &battery.Version)
}

func (t *tx) CreateBooking(ctx context.Context, booking *domain.Booking) error {
	return t.create(ctx, "booking", booking, &booking.Version)
}

func (t *tx) UpdateBooking(ctx context.Context, booking *domain.Booking) error {
	return t.update(ctx, "booking", booking, booking.ID, &booking.Version)
}

func (t *tx) CreateSwap(ctx context.Context, swap *domain.SwapTransaction) error {
	return t.create(ctx, "swap", swap, &swap.Version)
}

func (t *tx) UpdateSwap(ctx context.Context, swap *domain.SwapTransaction) error {
	return t.update(ctx, "swap", swap, swap.ID, &swap.Version)
}
