package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwapCloneDoesNotShareRecords(t *testing.T) {
	level := FullChargeLevel
	slot, pillar := uuid.New(), uuid.New()
	oldSlot, oldPillar := uuid.New(), uuid.New()
	measured := 18.0
	swap := &SwapTransaction{
		ID:         uuid.New(),
		Status:     SwapInProgress,
		NewBattery: SwapBatteryRecord{BatteryID: uuid.New(), ChargeLevel: &level, SlotID: &slot, PillarID: &pillar},
		OldBattery: &SwapBatteryRecord{BatteryID: uuid.New(), ChargeLevel: &measured, SlotID: &oldSlot, PillarID: &oldPillar},
	}

	c := swap.Clone()
	*c.NewBattery.ChargeLevel = 50
	*c.NewBattery.SlotID = uuid.New()
	*c.NewBattery.PillarID = uuid.New()
	*c.OldBattery.ChargeLevel = 90
	*c.OldBattery.SlotID = uuid.New()
	*c.OldBattery.PillarID = uuid.New()

	assert.Equal(t, FullChargeLevel, *swap.NewBattery.ChargeLevel)
	assert.Equal(t, slot, *swap.NewBattery.SlotID)
	assert.Equal(t, pillar, *swap.NewBattery.PillarID)
	assert.Equal(t, 18.0, *swap.OldBattery.ChargeLevel)
	assert.Equal(t, oldSlot, *swap.OldBattery.SlotID)
	assert.Equal(t, oldPillar, *swap.OldBattery.PillarID)
}

func TestSwapClose(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cancelled := &SwapTransaction{Status: SwapInitiated}
	cancelled.Close(SwapCancelled, ReasonHoldExpired, now)
	assert.Equal(t, SwapCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Nil(t, cancelled.FailedAt)
	assert.Equal(t, ReasonHoldExpired, cancelled.FailureReason)

	failed := &SwapTransaction{Status: SwapInProgress}
	failed.Close(SwapFailed, "bay offline", now)
	require.NotNil(t, failed.FailedAt)
	assert.Nil(t, failed.CancelledAt)
}

func TestBookingCancel(t *testing.T) {
	now := time.Now()
	b := &Booking{Status: BookingReady}
	assert.True(t, b.Cancel(now))
	assert.Equal(t, BookingCancelled, b.Status)

	done := &Booking{Status: BookingCompleted}
	assert.False(t, done.Cancel(now))
	assert.Nil(t, done.CancelledAt)
}
