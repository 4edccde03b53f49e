package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type SwapStatus string

const (
	SwapInitiated  SwapStatus = "initiated"
	SwapInProgress SwapStatus = "in-progress"
	SwapCompleted  SwapStatus = "completed"
	SwapFailed     SwapStatus = "failed"
	SwapCancelled  SwapStatus = "cancelled"
)

func (s SwapStatus) IsValid() bool {
	switch s {
	case SwapInitiated, SwapInProgress, SwapCompleted, SwapFailed, SwapCancelled:
		return true
	}
	return false
}

func (s SwapStatus) IsFinal() bool {
	return s == SwapCompleted || s == SwapFailed || s == SwapCancelled
}

// CanTransitionTo enforces the forward-only swap lifecycle.
func (s SwapStatus) CanTransitionTo(next SwapStatus) bool {
	switch s {
	case SwapInitiated:
		return next == SwapInProgress || next == SwapCancelled || next == SwapFailed
	case SwapInProgress:
		return next == SwapCompleted || next == SwapCancelled || next == SwapFailed
	}
	return false
}

// FullChargeLevel is assumed for a battery picked from the rack.
const FullChargeLevel = 100.0

// SwapBatteryRecord is a snapshot of a battery taken when it entered the
// swap. ChargeLevel is nil when it has not been measured.
type SwapBatteryRecord struct {
	BatteryID    uuid.UUID     `json:"battery_id"`
	SerialNumber string        `json:"serial_number"`
	SOH          float64       `json:"soh"`
	ChargeLevel  *float64      `json:"charge_level"`
	Status       BatteryStatus `json:"status"`
	SlotID       *uuid.UUID    `json:"slot_id,omitempty"`
	PillarID     *uuid.UUID    `json:"pillar_id,omitempty"`
}

type SwapTransaction struct {
	ID              uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	SwapRef         string             `gorm:"type:varchar(32);uniqueIndex;not null" json:"swap_ref"`
	UserID          uuid.UUID          `gorm:"type:uuid;index;not null" json:"user_id"`
	VehicleID       string             `gorm:"type:varchar(64);not null" json:"vehicle_id"`
	StationID       uuid.UUID          `gorm:"type:uuid;index;not null" json:"station_id"`
	PillarID        uuid.UUID          `gorm:"type:uuid;not null" json:"pillar_id"`
	SlotID          uuid.UUID          `gorm:"type:uuid;not null" json:"slot_id"`
	BookingID       *uuid.UUID         `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	Status          SwapStatus         `gorm:"type:varchar(20);not null;index" json:"status"`
	OldBattery      *SwapBatteryRecord `gorm:"type:jsonb;serializer:json" json:"old_battery,omitempty"`
	NewBattery      SwapBatteryRecord  `gorm:"type:jsonb;serializer:json" json:"new_battery"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	InitiatedAt     time.Time          `gorm:"not null;index" json:"initiated_at"`
	InsertedAt      *time.Time         `json:"inserted_at,omitempty"`
	CompletedAt     *time.Time         `json:"completed_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
	FailedAt        *time.Time         `json:"failed_at,omitempty"`
	DurationSeconds *int64             `json:"duration_seconds,omitempty"`
	Version         int64              `gorm:"not null;default:1" json:"-"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ReasonHoldExpired is recorded on swaps closed because the drop-off hold
// ran out before the old battery arrived.
const ReasonHoldExpired = "reservation expired"

func (r SwapBatteryRecord) clone() SwapBatteryRecord {
	c := r
	if r.ChargeLevel != nil {
		level := *r.ChargeLevel
		c.ChargeLevel = &level
	}
	c.SlotID = cloneID(r.SlotID)
	c.PillarID = cloneID(r.PillarID)
	return c
}

func (SwapTransaction) TableName() string {
	return "swap_transactions"
}

// Close moves the swap to a terminal failed or cancelled status.
func (s *SwapTransaction) Close(target SwapStatus, reason string, now time.Time) {
	s.Status = target
	s.FailureReason = reason
	at := now
	if target == SwapFailed {
		s.FailedAt = &at
	} else {
		s.CancelledAt = &at
	}
}

func (s *SwapTransaction) Clone() *SwapTransaction {
	c := *s
	c.BookingID = cloneID(s.BookingID)
	c.NewBattery = s.NewBattery.clone()
	if s.OldBattery != nil {
		old := s.OldBattery.clone()
		c.OldBattery = &old
	}
	c.InsertedAt = cloneTime(s.InsertedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	c.CancelledAt = cloneTime(s.CancelledAt)
	c.FailedAt = cloneTime(s.FailedAt)
	if s.DurationSeconds != nil {
		d := *s.DurationSeconds
		c.DurationSeconds = &d
	}
	return &c
}

// NewSwapRef returns a short reference of the form SWP-YYYYMMDD-XXXXXX.
func NewSwapRef(now time.Time) (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	randomPart := make([]byte, 6)
	for i := range randomPart {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		randomPart[i] = letters[num.Int64()]
	}
	return fmt.Sprintf("SWP-%s-%s", now.Format("20060102"), string(randomPart)), nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
