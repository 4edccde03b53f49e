package stations

import (
	"net/http"

	"swapstation/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Controller struct {
	service Service
}

func NewController(service Service) *Controller {
	return &Controller{service: service}
}

func (c *Controller) CreateStation(ctx *gin.Context) {
	var req CreateStationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}

	station, err := c.service.CreateStation(ctx.Request.Context(), req)
	if err != nil {
		response.RespondError(ctx, "Failed to create station", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Station created successfully", station, nil)
}

func (c *Controller) GetStation(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("stationId"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Station ID is invalid", nil, err.Error())
		return
	}

	station, err := c.service.GetStation(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get station", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Station retrieved successfully", station, nil)
}

func (c *Controller) ListStations(ctx *gin.Context) {
	stations, err := c.service.ListStations(ctx.Request.Context())
	if err != nil {
		response.RespondError(ctx, "Failed to list stations", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Stations retrieved successfully", stations, nil)
}
