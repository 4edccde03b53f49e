package swaps

// initiate swap request payload
type InitiateSwapRequest struct {
	StationID string `json:"station_id" validate:"required,uuid"`
	VehicleID string `json:"vehicle_id" validate:"required,min=1,max=64"`
	BookingID string `json:"booking_id,omitempty" validate:"omitempty,uuid"`
}

// old battery drop-off payload
type InsertOldBatteryRequest struct {
	SerialNumber string `json:"serial_number" validate:"required,min=3,max=64"`
	SlotID       string `json:"slot_id" validate:"required,uuid"`
}

// cancel or fail payload
type CloseSwapRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=256"`
}

// history query string
type SwapHistoryQuery struct {
	StationID string `form:"station_id" validate:"omitempty,uuid"`
	UserID    string `form:"user_id" validate:"omitempty,uuid"`
	Status    string `form:"status" validate:"omitempty,swap_status"`
	From      string `form:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To        string `form:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	Limit     int    `form:"limit" validate:"omitempty,min=1,max=100"`
}
