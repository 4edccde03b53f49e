package swaps

import (
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

// SetupSwapRoutes configures all swap-related routes
func SetupSwapRoutes(rg *gin.RouterGroup, controller *Controller, cfg *config.Config) {
	swaps := rg.Group("/swaps")
	swaps.Use(middleware.JWTAuth(cfg))
	{
		swaps.GET("", controller.GetSwapHistory)                    // GET /api/v1/swaps?station_id=&status=&from=&to=&page=&limit=
		swaps.GET("/:id", controller.GetSwap)                       // GET /api/v1/swaps/:id
		swaps.POST("", controller.InitiateSwap)                     // POST /api/v1/swaps
		swaps.POST("/:id/old-battery", controller.InsertOldBattery) // POST /api/v1/swaps/:id/old-battery
		swaps.POST("/:id/complete", controller.CompleteSwap)        // POST /api/v1/swaps/:id/complete
		swaps.POST("/:id/cancel", controller.CancelSwap)            // POST /api/v1/swaps/:id/cancel
	}

	admin := rg.Group("/admin/swaps")
	admin.Use(middleware.JWTAuth(cfg), middleware.RequireStaff())
	{
		admin.POST("/:id/fail", controller.FailSwap) // POST /api/v1/admin/swaps/:id/fail
	}
}
