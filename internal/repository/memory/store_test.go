package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPillar(t *testing.T, s *Store, slots int) (*domain.Station, *domain.Pillar) {
	t.Helper()
	ctx := context.Background()
	station := &domain.Station{ID: uuid.New(), Name: "Central", Code: "CTR", Status: domain.StationActive}
	pillar := &domain.Pillar{ID: uuid.New(), StationID: station.ID, Name: "P1", Number: 1, TotalSlots: slots, Status: domain.PillarActive}
	rows := make([]domain.Slot, slots)
	for i := range rows {
		rows[i] = domain.Slot{ID: uuid.New(), PillarID: pillar.ID, StationID: station.ID, SlotNumber: slots - i, Status: domain.SlotEmpty}
	}
	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.CreateStation(ctx, station); err != nil {
			return err
		}
		return tx.CreatePillar(ctx, pillar, rows)
	}))
	return station, pillar
}

func TestWithTxCommitsAndVersions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, pillar := seedPillar(t, s, 3)

	slots, err := s.ListSlotsByPillar(ctx, pillar.ID)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{slots[0].SlotNumber, slots[1].SlotNumber, slots[2].SlotNumber})
	assert.Equal(t, int64(1), slots[0].Version)

	slot := slots[0]
	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		slot.Status = domain.SlotLocked
		return tx.UpdateSlot(ctx, &slot)
	}))
	assert.Equal(t, int64(2), slot.Version)

	got, err := s.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotLocked, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestStaleVersionLosesRace(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, pillar := seedPillar(t, s, 1)
	slots, err := s.ListSlotsByPillar(ctx, pillar.ID)
	require.NoError(t, err)

	first, second := slots[0], slots[0]
	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		first.Status = domain.SlotReserved
		return tx.UpdateSlot(ctx, &first)
	}))

	err = s.WithTx(ctx, func(tx repository.Tx) error {
		second.Status = domain.SlotLocked
		return tx.UpdateSlot(ctx, &second)
	})
	assert.ErrorIs(t, err, apperr.ErrRaceLost)
}

func TestConcurrentCommitIsDetectedAtCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_, pillar := seedPillar(t, s, 1)
	slots, err := s.ListSlotsByPillar(ctx, pillar.ID)
	require.NoError(t, err)

	err = s.WithTx(ctx, func(tx repository.Tx) error {
		mine := slots[0]
		mine.Status = domain.SlotReserved
		if err := tx.UpdateSlot(ctx, &mine); err != nil {
			return err
		}

		// another writer commits between our staged write and our commit
		theirs := slots[0]
		theirs.Status = domain.SlotLocked
		return s.WithTx(ctx, func(other repository.Tx) error {
			return other.UpdateSlot(ctx, &theirs)
		})
	})
	assert.ErrorIs(t, err, apperr.ErrRaceLost)

	got, err := s.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotLocked, got.Status)
}

func TestFailedTxLeavesNothingBehind(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	station, pillar := seedPillar(t, s, 1)
	slots, err := s.ListSlotsByPillar(ctx, pillar.ID)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx repository.Tx) error {
		slot := slots[0]
		slot.Status = domain.SlotOccupied
		if err := tx.UpdateSlot(ctx, &slot); err != nil {
			return err
		}
		if err := tx.CreateBattery(ctx, &domain.Battery{ID: uuid.New(), SerialNumber: "B-1", StationID: &station.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetSlot(ctx, slots[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SlotEmpty, got.Status)

	_, err = s.GetBatteryBySerial(ctx, "B-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReadsInsideTxSeeStagedWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	station, _ := seedPillar(t, s, 1)

	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		b := &domain.Battery{ID: uuid.New(), SerialNumber: "B-7", SOH: 80, StationID: &station.ID}
		require.NoError(t, tx.CreateBattery(ctx, b))

		got, err := tx.GetBatteryBySerial(ctx, "B-7")
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)

		list, err := tx.ListBatteriesByStation(ctx, station.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		_, err = s.GetBatteryBySerial(ctx, "B-7")
		assert.ErrorIs(t, err, apperr.ErrNotFound, "uncommitted write must not leak")
		return nil
	}))
}

func TestUniqueKeys(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	station, _ := seedPillar(t, s, 1)

	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateBattery(ctx, &domain.Battery{ID: uuid.New(), SerialNumber: "DUP"})
	}))

	err := s.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateBattery(ctx, &domain.Battery{ID: uuid.New(), SerialNumber: "DUP"})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = s.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreatePillar(ctx, &domain.Pillar{ID: uuid.New(), StationID: station.ID, Number: 1, TotalSlots: 0}, nil)
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	err = s.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateStation(ctx, &domain.Station{ID: uuid.New(), Name: "Copy", Code: "ctr"})
	})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestListSwapsFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	user, other := uuid.New(), uuid.New()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		for i := 0; i < 15; i++ {
			owner := user
			if i%3 == 0 {
				owner = other
			}
			swap := &domain.SwapTransaction{
				ID:          uuid.New(),
				SwapRef:     fmt.Sprintf("SWP-%02d", i),
				UserID:      owner,
				Status:      domain.SwapCompleted,
				InitiatedAt: base.Add(time.Duration(i) * time.Hour),
			}
			if err := tx.CreateSwap(ctx, swap); err != nil {
				return err
			}
		}
		return nil
	}))

	page, total, err := s.ListSwaps(ctx, repository.SwapFilter{UserID: &user, Limit: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 10, total)
	require.Len(t, page, 4)
	assert.Equal(t, "SWP-14", page[0].SwapRef)
	for i := 1; i < len(page); i++ {
		assert.True(t, page[i-1].InitiatedAt.After(page[i].InitiatedAt))
	}

	from := base.Add(10 * time.Hour)
	page, total, err = s.ListSwaps(ctx, repository.SwapFilter{From: &from, Page: 2, Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page, 2)

	_, total, err = s.ListSwaps(ctx, repository.SwapFilter{Status: domain.SwapCancelled})
	require.NoError(t, err)
	assert.Zero(t, total)
}
