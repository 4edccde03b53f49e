package bookings

import (
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupBookingRoutes configures all booking-related routes
func SetupBookingRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	bookings := rg.Group("/bookings")
	bookings.Use(middleware.JWTAuth(cfg))
	{
		bookings.POST("", controller.CreateBooking) // POST /api/v1/bookings
		bookings.GET("/:id", controller.GetBooking) // GET /api/v1/bookings/:id
	}

	admin := rg.Group("/admin/bookings")
	admin.Use(middleware.JWTAuth(cfg), middleware.RequireStaff())
	{
		admin.POST("/:id/ready", controller.MarkReady) // POST /api/v1/admin/bookings/:id/ready
	}
}
