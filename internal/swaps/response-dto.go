package swaps

import (
	"time"

	"swapstation/internal/domain"

	"github.com/google/uuid"
)

// SlotLocation points a driver at a physical bay.
type SlotLocation struct {
	SlotID       uuid.UUID `json:"slot_id"`
	SlotCode     string    `json:"slot_code"`
	SlotNumber   int       `json:"slot_number"`
	PillarID     uuid.UUID `json:"pillar_id"`
	PillarNumber int       `json:"pillar_number"`
}

type SwapInstructions struct {
	DropOff          SlotLocation `json:"drop_off"`
	PickUp           SlotLocation `json:"pick_up"`
	ReservationUntil time.Time    `json:"reservation_until"`
	Steps            []string     `json:"steps"`
}

type InitiateSwapResponse struct {
	Swap         *domain.SwapTransaction `json:"swap"`
	Instructions SwapInstructions        `json:"instructions"`
}
