package reservations

import (
	"net/http"
	"time"

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

func (c *Controller) ReserveSlot(ctx *gin.Context) {
	slotID, err := uuid.Parse(ctx.Param("slotId"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Slot ID is invalid", nil, err.Error())
		return
	}

	var req ReserveSlotRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}

	actor := middleware.ActorFromContext(ctx)
	hold := Hold{
		UserID: actor.ID,
		TTL:    time.Duration(req.TTLMinutes) * time.Minute,
	}
	if req.BookingID != "" {
		bookingID := uuid.MustParse(req.BookingID)
		hold.BookingID = &bookingID
	}

	slot, err := c.service.Reserve(ctx.Request.Context(), slotID, hold, actor)
	if err != nil {
		response.RespondError(ctx, "Failed to reserve slot", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Slot reserved successfully", toReservationResponse(slot, time.Now()), nil)
}

func (c *Controller) CancelReservation(ctx *gin.Context) {
	slotID, err := uuid.Parse(ctx.Param("slotId"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Slot ID is invalid", nil, err.Error())
		return
	}

	slot, err := c.service.Cancel(ctx.Request.Context(), slotID, middleware.ActorFromContext(ctx))
	if err != nil {
		response.RespondError(ctx, "Failed to cancel reservation", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Reservation cancelled successfully", slot, nil)
}
