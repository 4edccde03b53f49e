package bookings

type CreateBookingRequest struct {
	StationID string `json:"station_id" binding:"required,uuid"`
}
