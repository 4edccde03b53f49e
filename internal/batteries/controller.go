package batteries

import (
	"net/http"

	"swapstation/internal/domain"
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

func (c *Controller) CreateBattery(ctx *gin.Context) {
	var req CreateBatteryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}

	input := CreateBatteryInput{
		SerialNumber: req.SerialNumber,
		Model:        req.Model,
		SOH:          *req.SOH,
		Status:       domain.BatteryStatus(req.Status),
	}
	if req.StationID != "" {
		stationID := uuid.MustParse(req.StationID)
		input.StationID = &stationID
	}

	battery, err := c.service.CreateBattery(ctx.Request.Context(), input)
	if err != nil {
		response.RespondError(ctx, "Failed to create battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Battery created successfully", battery, nil)
}

func (c *Controller) GetBattery(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Battery ID is invalid", nil, err.Error())
		return
	}

	battery, err := c.service.GetBattery(ctx.Request.Context(), id)
	if err != nil {
		response.RespondError(ctx, "Failed to get battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Battery retrieved successfully", battery, nil)
}

func (c *Controller) GetBatteryBySerial(ctx *gin.Context) {
	battery, err := c.service.FindBySerial(ctx.Request.Context(), ctx.Param("serial"))
	if err != nil {
		response.RespondError(ctx, "Failed to get battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Battery retrieved successfully", battery, nil)
}

func (c *Controller) ListStationBatteries(ctx *gin.Context) {
	stationID, err := uuid.Parse(ctx.Param("stationId"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Station ID is invalid", nil, err.Error())
		return
	}

	batteries, err := c.service.ListByStation(ctx.Request.Context(), stationID)
	if err != nil {
		response.RespondError(ctx, "Failed to list batteries", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Batteries retrieved successfully", batteries, nil)
}

func (c *Controller) UpdateStatus(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Battery ID is invalid", nil, err.Error())
		return
	}

	var req UpdateBatteryStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}

	battery, err := c.service.UpdateStatus(ctx.Request.Context(), id, domain.BatteryStatus(req.Status), req.SOH)
	if err != nil {
		response.RespondError(ctx, "Failed to update battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Battery updated successfully", battery, nil)
}
