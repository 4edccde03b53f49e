package reservations

import (
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupReservationRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	slots := rg.Group("/slots")
	slots.Use(middleware.JWTAuth(cfg))
	{
		slots.POST("/:slotId/reservation", controller.ReserveSlot)         // POST /api/v1/slots/:slotId/reservation
		slots.DELETE("/:slotId/reservation", controller.CancelReservation) // DELETE /api/v1/slots/:slotId/reservation
	}
}
