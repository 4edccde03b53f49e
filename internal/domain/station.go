package domain

import (
	"time"

	"github.com/google/uuid"
)

type StationStatus string

const (
	StationActive      StationStatus = "active"
	StationInactive    StationStatus = "inactive"
	StationMaintenance StationStatus = "maintenance"
)

// Station is the top of the inventory tree. The battery aggregates are
// written back by the stats aggregator and never edited directly.
type Station struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string        `gorm:"not null" json:"name"`
	Code               string        `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Status             StationStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	TotalBatteries     int           `gorm:"not null;default:0" json:"total_batteries"`
	AvailableBatteries int           `gorm:"not null;default:0" json:"available_batteries"`
	AverageSOH         float64       `gorm:"column:average_soh;not null;default:0" json:"average_soh"`
	Version            int64         `gorm:"not null;default:1" json:"-"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

func (Station) TableName() string {
	return "stations"
}

func (s *Station) Clone() *Station {
	c := *s
	return &c
}
