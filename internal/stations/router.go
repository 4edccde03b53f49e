package stations

import (
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupStationRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	stations := rg.Group("/stations")
	stations.Use(middleware.JWTAuth(cfg))
	{
		stations.GET("", controller.ListStations)          // GET /api/v1/stations
		stations.GET("/:stationId", controller.GetStation) // GET /api/v1/stations/:stationId
	}

	admin := rg.Group("/admin/stations")
	admin.Use(middleware.JWTAuth(cfg), middleware.RequireStaff())
	{
		admin.POST("", controller.CreateStation) // POST /api/v1/admin/stations
	}
}
