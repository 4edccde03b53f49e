package batteries

type CreateBatteryRequest struct {
	SerialNumber string   `json:"serial_number" binding:"required,min=3,max=64"`
	Model        string   `json:"model" binding:"omitempty,max=64"`
	SOH          *float64 `json:"soh" binding:"required,gte=0,lte=100"`
	Status       string   `json:"status" binding:"omitempty,oneof=charging full faulty in-use idle"`
	StationID    string   `json:"station_id" binding:"omitempty,uuid"`
}

type UpdateBatteryStatusRequest struct {
	Status string   `json:"status" binding:"required,oneof=charging full faulty in-use idle"`
	SOH    *float64 `json:"soh" binding:"omitempty,gte=0,lte=100"`
}
