package notifications

import (
	"encoding/json"
	"time"

	"swapstation/internal/domain"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSwapInitiated  EventType = "swap.initiated"
	EventSwapInProgress EventType = "swap.in_progress"
	EventSwapCompleted  EventType = "swap.completed"
	EventSwapCancelled  EventType = "swap.cancelled"
	EventSwapFailed     EventType = "swap.failed"
)

// SwapEvent is published after every committed swap transition.
type SwapEvent struct {
	ID        uuid.UUID         `json:"id"`
	Type      EventType         `json:"type"`
	SwapID    uuid.UUID         `json:"swap_id"`
	SwapRef   string            `json:"swap_ref"`
	Status    domain.SwapStatus `json:"status"`
	StationID uuid.UUID         `json:"station_id"`
	UserID    uuid.UUID         `json:"user_id"`
	BookingID *uuid.UUID        `json:"booking_id,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	At        time.Time         `json:"at"`
}

// NewSwapEvent snapshots swap after a transition.
func NewSwapEvent(swap *domain.SwapTransaction, at time.Time) *SwapEvent {
	return &SwapEvent{
		ID:        uuid.New(),
		Type:      eventTypeFor(swap.Status),
		SwapID:    swap.ID,
		SwapRef:   swap.SwapRef,
		Status:    swap.Status,
		StationID: swap.StationID,
		UserID:    swap.UserID,
		BookingID: swap.BookingID,
		Reason:    swap.FailureReason,
		At:        at,
	}
}

func eventTypeFor(status domain.SwapStatus) EventType {
	switch status {
	case domain.SwapInProgress:
		return EventSwapInProgress
	case domain.SwapCompleted:
		return EventSwapCompleted
	case domain.SwapCancelled:
		return EventSwapCancelled
	case domain.SwapFailed:
		return EventSwapFailed
	default:
		return EventSwapInitiated
	}
}

func (e *SwapEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PartitionKey keeps every event of one station on one partition so
// consumers see them in order.
func (e *SwapEvent) PartitionKey() string {
	return e.StationID.String()
}
