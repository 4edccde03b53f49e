package domain

import (
	"time"

	"github.com/google/uuid"
)

type PillarStatus string

const (
	PillarActive      PillarStatus = "active"
	PillarInactive    PillarStatus = "inactive"
	PillarMaintenance PillarStatus = "maintenance"
	PillarError       PillarStatus = "error"
)

func (s PillarStatus) IsValid() bool {
	switch s {
	case PillarActive, PillarInactive, PillarMaintenance, PillarError:
		return true
	}
	return false
}

// SlotStats is the occupancy summary persisted on a pillar.
type SlotStats struct {
	Total    int `gorm:"not null;default:0" json:"total"`
	Occupied int `gorm:"not null;default:0" json:"occupied"`
	Empty    int `gorm:"not null;default:0" json:"empty"`
	Reserved int `gorm:"not null;default:0" json:"reserved"`
}

// Balanced reports whether the three categories add up to the total.
func (s SlotStats) Balanced() bool {
	return s.Occupied+s.Empty+s.Reserved == s.Total
}

type Pillar struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	StationID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_station_pillar_number" json:"station_id"`
	Name       string       `gorm:"not null" json:"name"`
	Number     int          `gorm:"not null;uniqueIndex:idx_station_pillar_number" json:"number"`
	TotalSlots int          `gorm:"not null" json:"total_slots"`
	Status     PillarStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	SlotStats  SlotStats    `gorm:"embedded;embeddedPrefix:slot_stats_" json:"slot_stats"`
	Version    int64        `gorm:"not null;default:1" json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (Pillar) TableName() string {
	return "pillars"
}

func (p *Pillar) Clone() *Pillar {
	c := *p
	return &c
}

// ComputeSlotStats counts slots by occupancy category.
func ComputeSlotStats(slots []Slot) SlotStats {
	stats := SlotStats{Total: len(slots)}
	for i := range slots {
		switch slots[i].Category() {
		case CategoryReserved:
			stats.Reserved++
		case CategoryOccupied:
			stats.Occupied++
		default:
			stats.Empty++
		}
	}
	return stats
}
