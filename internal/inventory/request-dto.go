package inventory

import "github.com/google/uuid"

type CreatePillarRequest struct {
	StationID  uuid.UUID `json:"-"`
	Name       string    `json:"name" binding:"required,min=1,max=64"`
	Number     int       `json:"number" binding:"required,min=1,max=999"`
	TotalSlots int       `json:"total_slots" binding:"required,min=1,max=64"`
}

type InsertBatteryRequest struct {
	BatteryID string `json:"battery_id" binding:"required,uuid"`
}

type AvailableSlotsQuery struct {
	PillarID  string `form:"pillar_id" binding:"omitempty,uuid"`
	NeedEmpty bool   `form:"need_empty"`
}
