package inventory

import (
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupInventoryRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {

	// STATION INVENTORY

	stations := rg.Group("/stations/:stationId")
	stations.Use(middleware.JWTAuth(cfg))
	{
		stations.GET("/pillars", controller.ListPillars)                 // GET /api/v1/stations/:stationId/pillars
		stations.GET("/slots/available", controller.FindAvailableSlots) // GET /api/v1/stations/:stationId/slots/available?need_empty=true
	}

	pillars := rg.Group("/pillars")
	pillars.Use(middleware.JWTAuth(cfg))
	{
		pillars.GET("/:pillarId/slots", controller.GetPillarSlots) // GET /api/v1/pillars/:pillarId/slots
	}

	// STAFF OPERATIONS

	staff := rg.Group("/admin")
	staff.Use(middleware.JWTAuth(cfg), middleware.RequireStaff())
	{
		staff.POST("/stations/:stationId/pillars", controller.CreatePillar) // POST /api/v1/admin/stations/:stationId/pillars
		staff.POST("/slots/:slotId/battery", controller.AssignBattery)      // POST /api/v1/admin/slots/:slotId/battery
		staff.DELETE("/slots/:slotId/battery", controller.RemoveBattery)    // DELETE /api/v1/admin/slots/:slotId/battery
	}
}
