package domain

import (
	"time"

	"github.com/google/uuid"
)

type BatteryStatus string

const (
	BatteryCharging  BatteryStatus = "charging"
	BatteryFull      BatteryStatus = "full"
	BatteryFaulty    BatteryStatus = "faulty"
	BatteryInUse     BatteryStatus = "in-use"
	BatteryIdle      BatteryStatus = "idle"
	BatteryIsBooking BatteryStatus = "is-booking"
)

func (s BatteryStatus) IsValid() bool {
	switch s {
	case BatteryCharging, BatteryFull, BatteryFaulty, BatteryInUse, BatteryIdle, BatteryIsBooking:
		return true
	}
	return false
}

// IsAvailable reports whether a battery in this status can be handed out.
func (s BatteryStatus) IsAvailable() bool {
	return s == BatteryFull || s == BatteryIdle
}

type Battery struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SerialNumber    string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"serial_number"`
	Model           string        `gorm:"type:varchar(64)" json:"model"`
	SOH             float64       `gorm:"column:soh;not null;default:0" json:"soh"`
	Status          BatteryStatus `gorm:"type:varchar(20);not null;default:'idle';index" json:"status"`
	StationID       *uuid.UUID    `gorm:"type:uuid;index" json:"station_id,omitempty"`
	CurrentPillarID *uuid.UUID    `gorm:"type:uuid" json:"current_pillar_id,omitempty"`
	CurrentSlotID   *uuid.UUID    `gorm:"type:uuid;uniqueIndex" json:"current_slot_id,omitempty"`
	PlacedAt        *time.Time    `json:"placed_at,omitempty"`
	Version         int64         `gorm:"not null;default:1" json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (Battery) TableName() string {
	return "batteries"
}

func (b *Battery) Clone() *Battery {
	c := *b
	c.StationID = cloneID(b.StationID)
	c.CurrentPillarID = cloneID(b.CurrentPillarID)
	c.CurrentSlotID = cloneID(b.CurrentSlotID)
	if b.PlacedAt != nil {
		at := *b.PlacedAt
		c.PlacedAt = &at
	}
	return &c
}

func (b *Battery) IsPlaced() bool {
	return b.CurrentSlotID != nil
}

// PlaceIn links the battery to slot. The caller sets the slot side.
func (b *Battery) PlaceIn(slot *Slot, now time.Time) {
	slotID, pillarID, stationID := slot.ID, slot.PillarID, slot.StationID
	at := now
	b.CurrentSlotID = &slotID
	b.CurrentPillarID = &pillarID
	b.StationID = &stationID
	b.PlacedAt = &at
}

// Unplace clears the slot link. The station link is kept so the battery
// still counts toward the station until it leaves with a vehicle.
func (b *Battery) Unplace() {
	b.CurrentSlotID = nil
	b.CurrentPillarID = nil
	b.PlacedAt = nil
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
