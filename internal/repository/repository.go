// Package repository defines the persistence contract of the swap engine.
//
// Every mutation goes through a Tx obtained from Store.WithTx. Update methods
// are conditional on the Version the caller read: when another writer has
// moved the record on, the update fails with apperr.ErrRaceLost and the whole
// unit of work is rolled back. On success the entity's Version is advanced in
// place so it can be updated again in the same unit of work.
package repository

import (
	"context"
	"time"

	"swapstation/internal/domain"

	"github.com/google/uuid"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// SwapFilter selects swap transactions for history queries.
type SwapFilter struct {
	UserID    *uuid.UUID
	StationID *uuid.UUID
	Status    domain.SwapStatus
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

// Normalize applies pagination defaults and bounds.
func (f SwapFilter) Normalize() SwapFilter {
	if f.Page <= 0 {
		f.Page = DefaultPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

func (f SwapFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// Matches reports whether swap passes every filter except pagination.
func (f SwapFilter) Matches(swap *domain.SwapTransaction) bool {
	if f.UserID != nil && swap.UserID != *f.UserID {
		return false
	}
	if f.StationID != nil && swap.StationID != *f.StationID {
		return false
	}
	if f.Status != "" && swap.Status != f.Status {
		return false
	}
	if f.From != nil && swap.InitiatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && swap.InitiatedAt.After(*f.To) {
		return false
	}
	return true
}

// Reader holds the read accessors. Lists are returned in a stable order:
// pillars by number, slots by pillar number then slot number, batteries by
// serial, swaps newest first. Missing records yield apperr.ErrNotFound.
type Reader interface {
	GetStation(ctx context.Context, id uuid.UUID) (*domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)

	GetPillar(ctx context.Context, id uuid.UUID) (*domain.Pillar, error)
	ListPillarsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Pillar, error)

	GetSlot(ctx context.Context, id uuid.UUID) (*domain.Slot, error)
	ListSlotsByPillar(ctx context.Context, pillarID uuid.UUID) ([]domain.Slot, error)
	ListSlotsByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Slot, error)
	ListReservedSlotsExpiredBefore(ctx context.Context, t time.Time, limit int) ([]domain.Slot, error)

	GetBattery(ctx context.Context, id uuid.UUID) (*domain.Battery, error)
	GetBatteryBySerial(ctx context.Context, serial string) (*domain.Battery, error)
	ListBatteriesByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Battery, error)

	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)

	GetSwap(ctx context.Context, id uuid.UUID) (*domain.SwapTransaction, error)
	ListSwaps(ctx context.Context, filter SwapFilter) ([]domain.SwapTransaction, int64, error)
}

// Tx is a unit of work. Reads inside a Tx observe its own pending writes.
type Tx interface {
	Reader

	CreateStation(ctx context.Context, station *domain.Station) error
	UpdateStation(ctx context.Context, station *domain.Station) error

	// CreatePillar stores the pillar together with its slots. A second
	// pillar with the same station and number is a conflict.
	CreatePillar(ctx context.Context, pillar *domain.Pillar, slots []domain.Slot) error
	UpdatePillar(ctx context.Context, pillar *domain.Pillar) error

	UpdateSlot(ctx context.Context, slot *domain.Slot) error

	// CreateBattery fails with apperr.ErrConflict on a duplicate serial.
	CreateBattery(ctx context.Context, battery *domain.Battery) error
	UpdateBattery(ctx context.Context, battery *domain.Battery) error

	CreateBooking(ctx context.Context, booking *domain.Booking) error
	UpdateBooking(ctx context.Context, booking *domain.Booking) error

	CreateSwap(ctx context.Context, swap *domain.SwapTransaction) error
	UpdateSwap(ctx context.Context, swap *domain.SwapTransaction) error
}

type Store interface {
	Reader

	// WithTx runs fn in a unit of work. It commits when fn returns nil and
	// discards every write otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}
