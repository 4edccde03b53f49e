package stations

type CreateStationRequest struct {
	Name string `json:"name" binding:"required,min=2,max=100"`
	Code string `json:"code" binding:"required,alphanum,min=2,max=16"`
}
