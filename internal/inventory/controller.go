package inventory

import (
	"net/http"

	"swapstation/internal/shared/middleware"
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

func parseID(ctx *gin.Context, param, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param(param))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, label+" ID is invalid", nil, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

//  PILLARS

func (c *Controller) CreatePillar(ctx *gin.Context) {
	stationID, ok := parseID(ctx, "stationId", "Station")
	if !ok {
		return
	}

	var req CreatePillarRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}
	req.StationID = stationID

	pillar, err := c.service.CreatePillar(ctx.Request.Context(), req)
	if err != nil {
		response.RespondError(ctx, "Failed to create pillar", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Pillar created successfully", pillar, nil)
}

func (c *Controller) ListPillars(ctx *gin.Context) {
	stationID, ok := parseID(ctx, "stationId", "Station")
	if !ok {
		return
	}

	pillars, err := c.service.ListPillarsByStation(ctx.Request.Context(), stationID)
	if err != nil {
		response.RespondError(ctx, "Failed to get pillars", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Pillars retrieved successfully", pillars, nil)
}

func (c *Controller) GetPillarSlots(ctx *gin.Context) {
	pillarID, ok := parseID(ctx, "pillarId", "Pillar")
	if !ok {
		return
	}

	slots, err := c.service.GetPillarSlots(ctx.Request.Context(), pillarID)
	if err != nil {
		response.RespondError(ctx, "Failed to get slots", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Slots retrieved successfully", slots, nil)
}

//  SLOT AVAILABILITY

func (c *Controller) FindAvailableSlots(ctx *gin.Context) {
	stationID, ok := parseID(ctx, "stationId", "Station")
	if !ok {
		return
	}

	var query AvailableSlotsQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}

	var pillarID *uuid.UUID
	if query.PillarID != "" {
		id := uuid.MustParse(query.PillarID)
		pillarID = &id
	}

	slots, err := c.service.FindAvailableSlots(ctx.Request.Context(), stationID, pillarID, query.NeedEmpty)
	if err != nil {
		response.RespondError(ctx, "Failed to find available slots", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Available slots retrieved successfully", slots, nil)
}

//  STAFF OPERATIONS

func (c *Controller) AssignBattery(ctx *gin.Context) {
	slotID, ok := parseID(ctx, "slotId", "Slot")
	if !ok {
		return
	}

	var req InsertBatteryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}

	slot, err := c.service.InsertBattery(ctx.Request.Context(), slotID, uuid.MustParse(req.BatteryID), middleware.ActorFromContext(ctx))
	if err != nil {
		response.RespondError(ctx, "Failed to assign battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Battery assigned successfully", slot, nil)
}

func (c *Controller) RemoveBattery(ctx *gin.Context) {
	slotID, ok := parseID(ctx, "slotId", "Slot")
	if !ok {
		return
	}

	slot, err := c.service.RemoveBattery(ctx.Request.Context(), slotID, middleware.ActorFromContext(ctx))
	if err != nil {
		response.RespondError(ctx, "Failed to remove battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Battery removed successfully", slot, nil)
}
