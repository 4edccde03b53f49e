package reservations

import (
	"time"

	"swapstation/internal/domain"
)

type ReservationResponse struct {
	Slot             *domain.Slot `json:"slot"`
	ExpiresInSeconds int64        `json:"expires_in_seconds"`
}

func toReservationResponse(slot *domain.Slot, now time.Time) ReservationResponse {
	return ReservationResponse{
		Slot:             slot,
		ExpiresInSeconds: int64(ExpiresIn(slot, now).Seconds()),
	}
}
