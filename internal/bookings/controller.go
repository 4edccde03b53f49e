package bookings

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

// CreateBooking handles POST /api/v1/bookings
func (c *Controller) CreateBooking(ctx *gin.Context) {
	var req CreateBookingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Invalid request data", nil, err.Error())
		return
	}

	actor := middleware.ActorFromContext(ctx)
	booking, err := c.service.CreateBooking(ctx.Request.Context(), actor.ID, uuid.MustParse(req.StationID))
	if err != nil {
		response.RespondError(ctx, "Failed to create booking", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusCreated, "Booking created successfully", booking, nil)
}

// GetBooking handles GET /api/v1/bookings/:id
func (c *Controller) GetBooking(ctx *gin.Context) {
	bookingID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Booking ID is invalid", nil, err.Error())
		return
	}

	booking, err := c.service.GetBooking(ctx.Request.Context(), bookingID)
	if err != nil {
		response.RespondError(ctx, "Failed to get booking", err)
		return
	}

	actor := middleware.ActorFromContext(ctx)
	if booking.UserID != actor.ID && !middleware.IsStaff(actor) {
		response.RespondJSON(ctx, "error", http.StatusForbidden, "Access denied", nil, nil)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Booking retrieved successfully", booking, nil)
}

// MarkReady handles POST /api/v1/admin/bookings/:id/ready
func (c *Controller) MarkReady(ctx *gin.Context) {
	bookingID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		response.RespondJSON(ctx, "error", http.StatusBadRequest, "Booking ID is invalid", nil, err.Error())
		return
	}

	booking, err := c.service.MarkReady(ctx.Request.Context(), bookingID)
	if err != nil {
		response.RespondError(ctx, "Failed to mark booking ready", err)
		return
	}

	response.RespondJSON(ctx, "success", http.StatusOK, "Booking is ready", booking, nil)
}
