package domain

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingReady     BookingStatus = "ready"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) IsFinal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

type Booking struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID     `gorm:"type:uuid;index;not null" json:"user_id"`
	StationID   uuid.UUID     `gorm:"type:uuid;index;not null" json:"station_id"`
	Status      BookingStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	// SwapID is set once a swap claims the booking.
	SwapID      *uuid.UUID    `gorm:"type:uuid" json:"swap_id,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	Version     int64         `gorm:"not null;default:1" json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (Booking) TableName() string {
	return "bookings"
}

func (b *Booking) Clone() *Booking {
	c := *b
	if b.SwapID != nil {
		id := *b.SwapID
		c.SwapID = &id
	}
	if b.CompletedAt != nil {
		at := *b.CompletedAt
		c.CompletedAt = &at
	}
	if b.CancelledAt != nil {
		at := *b.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}

// Cancel moves a booking that has not reached a final status to cancelled.
// It reports whether the booking changed.
func (b *Booking) Cancel(now time.Time) bool {
	if b.Status.IsFinal() {
		return false
	}
	at := now
	b.Status = BookingCancelled
	b.CancelledAt = &at
	return true
}
