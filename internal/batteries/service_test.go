package batteries

import (
	"context"
	"testing"

	"swapstation/internal/domain"
	"swapstation/internal/inventory"
	"swapstation/internal/repository"
	"swapstation/internal/repository/memory"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"
	"swapstation/internal/stats"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (Service, *memory.Store, *domain.Station) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	station := &domain.Station{ID: uuid.New(), Name: "Depot", Code: "DEP"}
	require.NoError(t, store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateStation(ctx, station)
	}))
	agg := stats.NewAggregator()
	cfg := &config.Config{}
	return NewService(store, inventory.NewService(store, agg, cfg), agg, cfg), store, station
}

func TestCreateBatteryUpdatesStationTotals(t *testing.T) {
	svc, store, station := setup(t)
	ctx := context.Background()

	battery, err := svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: " BAT-001 ", SOH: 91.5, Status: domain.BatteryFull, StationID: &station.ID})
	require.NoError(t, err)
	assert.Equal(t, "BAT-001", battery.SerialNumber)
	assert.False(t, battery.IsPlaced())

	_, err = svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-002", SOH: 80.5, StationID: &station.ID})
	require.NoError(t, err)

	updated, err := store.GetStation(ctx, station.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.TotalBatteries)
	assert.Zero(t, updated.AvailableBatteries, "unplaced batteries are not available")
	assert.Equal(t, 86.0, updated.AverageSOH)

	found, err := svc.FindBySerial(ctx, "BAT-002")
	require.NoError(t, err)
	assert.Equal(t, domain.BatteryIdle, found.Status)

	listed, err := svc.ListByStation(ctx, station.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestCreateBatteryValidation(t *testing.T) {
	svc, _, station := setup(t)
	ctx := context.Background()

	_, err := svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-1", SOH: 50})
	require.NoError(t, err)

	_, err = svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-1", SOH: 70})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-2", SOH: 101})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-3", SOH: 50, Status: domain.BatteryIsBooking})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	missing := uuid.New()
	_, err = svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-4", SOH: 50, StationID: &missing})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.ListByStation(ctx, missing)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.ListByStation(ctx, station.ID)
	assert.NoError(t, err)
}

func TestUpdateStatus(t *testing.T) {
	svc, store, station := setup(t)
	ctx := context.Background()

	battery, err := svc.CreateBattery(ctx, CreateBatteryInput{SerialNumber: "BAT-1", SOH: 60, Status: domain.BatteryCharging, StationID: &station.ID})
	require.NoError(t, err)

	soh := 75.0
	battery, err = svc.UpdateStatus(ctx, battery.ID, domain.BatteryFull, &soh)
	require.NoError(t, err)
	assert.Equal(t, domain.BatteryFull, battery.Status)
	assert.Equal(t, 75.0, battery.SOH)

	updated, err := store.GetStation(ctx, station.ID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, updated.AverageSOH)

	_, err = svc.UpdateStatus(ctx, battery.ID, domain.BatteryIsBooking, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	require.NoError(t, store.WithTx(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBattery(ctx, battery.ID)
		if err != nil {
			return err
		}
		b.Status = domain.BatteryIsBooking
		return tx.UpdateBattery(ctx, b)
	}))
	_, err = svc.UpdateStatus(ctx, battery.ID, domain.BatteryFaulty, nil)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.UpdateStatus(ctx, uuid.New(), domain.BatteryFull, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
