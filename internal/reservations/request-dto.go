package reservations

import (
	"time"

	"github.com/google/uuid"
)

type ReserveSlotRequest struct {
	BookingID  string `json:"booking_id" binding:"omitempty,uuid"`
	TTLMinutes int    `json:"ttl_minutes" binding:"omitempty,min=1,max=120"`
}

// Hold describes a reservation to place on a slot.
type Hold struct {
	UserID    uuid.UUID
	BookingID *uuid.UUID
	SwapID    *uuid.UUID
	TTL       time.Duration
}
