package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotEmpty       SlotStatus = "empty"
	SlotOccupied    SlotStatus = "occupied"
	SlotReserved    SlotStatus = "reserved"
	SlotLocked      SlotStatus = "locked"
	SlotMaintenance SlotStatus = "maintenance"
	SlotError       SlotStatus = "error"
)

// Occupancy categories used for pillar stats.
const (
	CategoryEmpty    = "empty"
	CategoryOccupied = "occupied"
	CategoryReserved = "reserved"
)

// Reservation is a time-boxed hold on a slot. SwapID is set when the hold
// was taken by a swap transaction.
type Reservation struct {
	BookingID  *uuid.UUID `json:"booking_id,omitempty"`
	UserID     uuid.UUID  `json:"user_id"`
	SwapID     *uuid.UUID `json:"swap_id,omitempty"`
	ReservedAt time.Time  `json:"reserved_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

func (r Reservation) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

type Slot struct {
	ID                 uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	PillarID           uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_pillar_slot_number" json:"pillar_id"`
	StationID          uuid.UUID    `gorm:"type:uuid;not null;index" json:"station_id"`
	SlotNumber         int          `gorm:"not null;uniqueIndex:idx_pillar_slot_number" json:"slot_number"`
	Code               string       `gorm:"type:varchar(64);not null" json:"code"`
	Status             SlotStatus   `gorm:"type:varchar(20);not null;default:'empty';index" json:"status"`
	BatteryID          *uuid.UUID   `gorm:"type:uuid;uniqueIndex" json:"battery_id,omitempty"`
	Reservation        *Reservation `gorm:"type:jsonb;serializer:json" json:"reservation,omitempty"`
	LastActivityAt     *time.Time   `json:"last_activity_at,omitempty"`
	LastActivityBy     *uuid.UUID   `gorm:"type:uuid" json:"last_activity_by,omitempty"`
	LastActivityAction string       `gorm:"type:varchar(32)" json:"last_activity_action,omitempty"`
	Version            int64        `gorm:"not null;default:1" json:"-"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (Slot) TableName() string {
	return "slots"
}

// SlotCode builds the human readable code printed on the bay.
func SlotCode(stationCode string, pillarNumber, slotNumber int) string {
	return fmt.Sprintf("%s-P%02d-S%02d", stationCode, pillarNumber, slotNumber)
}

func (s *Slot) Clone() *Slot {
	c := *s
	if s.BatteryID != nil {
		id := *s.BatteryID
		c.BatteryID = &id
	}
	if s.Reservation != nil {
		r := *s.Reservation
		c.Reservation = &r
	}
	if s.LastActivityAt != nil {
		at := *s.LastActivityAt
		c.LastActivityAt = &at
	}
	if s.LastActivityBy != nil {
		by := *s.LastActivityBy
		c.LastActivityBy = &by
	}
	return &c
}

func (s *Slot) HasBattery() bool {
	return s.BatteryID != nil
}

// Category maps the slot to one of the three stats buckets. Locked,
// maintenance and error slots count by battery presence.
func (s *Slot) Category() string {
	switch {
	case s.Status == SlotReserved:
		return CategoryReserved
	case s.BatteryID != nil:
		return CategoryOccupied
	default:
		return CategoryEmpty
	}
}

// HasActiveHold reports whether the slot is reserved by an unexpired hold.
func (s *Slot) HasActiveHold(now time.Time) bool {
	return s.Status == SlotReserved && s.Reservation != nil && !s.Reservation.Expired(now)
}

// HeldBy reports whether the active hold on the slot belongs to swapID.
func (s *Slot) HeldBy(swapID uuid.UUID, now time.Time) bool {
	return s.HasActiveHold(now) && s.Reservation.SwapID != nil && *s.Reservation.SwapID == swapID
}

// IsClaimable reports whether a new hold may be placed on the slot.
func (s *Slot) IsClaimable() bool {
	return s.Status == SlotEmpty || s.Status == SlotOccupied
}

// IsFreeEmpty reports whether the slot can receive a battery from anyone.
func (s *Slot) IsFreeEmpty() bool {
	return s.Status == SlotEmpty && s.BatteryID == nil
}

// ReleaseHold drops any reservation and returns the slot to the status
// matching its battery presence.
func (s *Slot) ReleaseHold() {
	s.Reservation = nil
	if s.BatteryID != nil {
		s.Status = SlotOccupied
	} else {
		s.Status = SlotEmpty
	}
}

// ReconcileExpiry reverts an expired hold. It returns true when the slot
// was changed and has to be written back.
func (s *Slot) ReconcileExpiry(now time.Time) bool {
	switch {
	case s.Status == SlotReserved && (s.Reservation == nil || s.Reservation.Expired(now)):
		s.ReleaseHold()
		return true
	case s.Status != SlotReserved && s.Reservation != nil:
		s.Reservation = nil
		return true
	}
	return false
}

// Touch records who last changed the slot.
func (s *Slot) Touch(actor Actor, action string, now time.Time) {
	at := now
	s.LastActivityAt = &at
	s.LastActivityAction = action
	if actor.ID != uuid.Nil {
		by := actor.ID
		s.LastActivityBy = &by
	} else {
		s.LastActivityBy = nil
	}
}
