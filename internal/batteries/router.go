package batteries

import (
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupBatteryRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	staff := rg.Group("/admin")
	staff.Use(middleware.JWTAuth(cfg), middleware.RequireStaff())
	{
		staff.POST("/batteries", controller.CreateBattery)                    // POST /api/v1/admin/batteries
		staff.GET("/batteries/:id", controller.GetBattery)                    // GET /api/v1/admin/batteries/:id
		staff.GET("/batteries/serial/:serial", controller.GetBatteryBySerial) // GET /api/v1/admin/batteries/serial/:serial
		staff.PATCH("/batteries/:id/status", controller.UpdateStatus)         // PATCH /api/v1/admin/batteries/:id/status
		staff.GET("/stations/:stationId/batteries", controller.ListStationBatteries)
	}
}
