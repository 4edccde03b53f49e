package swaps

import (
	"context"
	"net/http"
	"time"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/middleware"
	"swapstation/internal/shared/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Controller struct {
	service   Service
	validator *validator.Validate
	timeout   time.Duration
}

func NewController(service Service, timeout time.Duration) *Controller {
	v := validator.New()
	_ = v.RegisterValidation("swap_status", func(fl validator.FieldLevel) bool {
		return domain.SwapStatus(fl.Field().String()).IsValid()
	})

	return &Controller{
		service:   service,
		validator: v,
		timeout:   timeout,
	}
}

func (c *Controller) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx.Request.Context())
	}
	return context.WithTimeout(ctx.Request.Context(), c.timeout)
}

func (c *Controller) swapID(ctx *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Swap ID is invalid", nil, err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// canAccess lets drivers see only their own swaps.
func canAccess(actor domain.Actor, swap *domain.SwapTransaction) bool {
	return swap.UserID == actor.ID || middleware.IsStaff(actor)
}

// InitiateSwap handles POST /api/v1/swaps
func (c *Controller) InitiateSwap(ctx *gin.Context) {
	var req InitiateSwapRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	actor := middleware.ActorFromContext(ctx)
	input := InitiateSwapInput{
		UserID:    actor.ID,
		VehicleID: req.VehicleID,
		StationID: uuid.MustParse(req.StationID),
	}
	if req.BookingID != "" {
		bookingID := uuid.MustParse(req.BookingID)
		input.BookingID = &bookingID
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.service.InitiateSwap(reqCtx, input, actor)
	if err != nil {
		response.RespondError(ctx, "Failed to initiate swap", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Swap initiated successfully", resp, nil)
}

// InsertOldBattery handles POST /api/v1/swaps/:id/old-battery
func (c *Controller) InsertOldBattery(ctx *gin.Context) {
	swapID, ok := c.swapID(ctx)
	if !ok {
		return
	}

	var req InsertOldBatteryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	actor := middleware.ActorFromContext(ctx)
	if !c.authorize(ctx, reqCtx, swapID, actor) {
		return
	}

	swap, err := c.service.InsertOldBattery(reqCtx, swapID, req.SerialNumber, uuid.MustParse(req.SlotID), actor)
	if err != nil {
		response.RespondError(ctx, "Failed to insert old battery", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Old battery inserted", swap, nil)
}

// CompleteSwap handles POST /api/v1/swaps/:id/complete
func (c *Controller) CompleteSwap(ctx *gin.Context) {
	swapID, ok := c.swapID(ctx)
	if !ok {
		return
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	actor := middleware.ActorFromContext(ctx)
	if !c.authorize(ctx, reqCtx, swapID, actor) {
		return
	}

	swap, err := c.service.CompleteSwap(reqCtx, swapID, actor)
	if err != nil {
		response.RespondError(ctx, "Failed to complete swap", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Swap completed successfully", swap, nil)
}

// CancelSwap handles POST /api/v1/swaps/:id/cancel
func (c *Controller) CancelSwap(ctx *gin.Context) {
	c.closeSwap(ctx, false)
}

// FailSwap handles POST /api/v1/admin/swaps/:id/fail
func (c *Controller) FailSwap(ctx *gin.Context) {
	c.closeSwap(ctx, true)
}

func (c *Controller) closeSwap(ctx *gin.Context, failed bool) {
	swapID, ok := c.swapID(ctx)
	if !ok {
		return
	}

	var req CloseSwapRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request body", nil, err.Error())
			return
		}
	}
	if err := c.validator.Struct(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	actor := middleware.ActorFromContext(ctx)
	if !c.authorize(ctx, reqCtx, swapID, actor) {
		return
	}

	var (
		swap *domain.SwapTransaction
		err  error
	)
	if failed {
		swap, err = c.service.FailSwap(reqCtx, swapID, req.Reason, actor)
	} else {
		swap, err = c.service.CancelSwap(reqCtx, swapID, req.Reason, actor)
	}
	if err != nil {
		response.RespondError(ctx, "Failed to close swap", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Swap "+string(swap.Status), swap, nil)
}

// GetSwap handles GET /api/v1/swaps/:id
func (c *Controller) GetSwap(ctx *gin.Context) {
	swapID, ok := c.swapID(ctx)
	if !ok {
		return
	}

	swap, err := c.service.GetSwap(ctx.Request.Context(), swapID)
	if err != nil {
		response.RespondError(ctx, "Failed to get swap", err)
		return
	}
	if !canAccess(middleware.ActorFromContext(ctx), swap) {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Swap retrieved successfully", swap, nil)
}

// GetSwapHistory handles GET /api/v1/swaps
func (c *Controller) GetSwapHistory(ctx *gin.Context) {
	var query SwapHistoryQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid query parameters", nil, err.Error())
		return
	}
	if err := c.validator.Struct(&query); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Validation failed", nil, err.Error())
		return
	}

	filter := repository.SwapFilter{
		Status: domain.SwapStatus(query.Status),
		Page:   query.Page,
		Limit:  query.Limit,
	}
	if query.StationID != "" {
		id := uuid.MustParse(query.StationID)
		filter.StationID = &id
	}
	if query.From != "" {
		from, _ := time.Parse(time.RFC3339, query.From)
		filter.From = &from
	}
	if query.To != "" {
		to, _ := time.Parse(time.RFC3339, query.To)
		filter.To = &to
	}

	// Drivers only ever see their own history
	actor := middleware.ActorFromContext(ctx)
	switch {
	case !middleware.IsStaff(actor):
		filter.UserID = &actor.ID
	case query.UserID != "":
		id := uuid.MustParse(query.UserID)
		filter.UserID = &id
	}

	items, total, err := c.service.GetSwapHistory(ctx.Request.Context(), filter)
	if err != nil {
		response.RespondError(ctx, "Failed to get swap history", err)
		return
	}

	filter = filter.Normalize()
	totalPages := int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	response.RespondJSON(ctx, "success", http.StatusOK, "Swap history retrieved successfully", response.PaginatedData{
		Items:      items,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil)
}

func (c *Controller) authorize(ctx *gin.Context, reqCtx context.Context, swapID uuid.UUID, actor domain.Actor) bool {
	swap, err := c.service.GetSwap(reqCtx, swapID)
	if err != nil {
		response.RespondError(ctx, "Failed to get swap", err)
		return false
	}
	if !canAccess(actor, swap) {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return false
	}
	return true
}
