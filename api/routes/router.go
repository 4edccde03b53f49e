// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"swapstation/internal/batteries"
	"swapstation/internal/bookings"
	"swapstation/internal/inventory"
	"swapstation/internal/notifications"
	"swapstation/internal/repository"
	"swapstation/internal/reservations"
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/database"
	"swapstation/internal/stations"
	"swapstation/internal/stats"
	"swapstation/internal/swaps"
	"swapstation/pkg/cache"
	"swapstation/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the process-wide resources shared by every module.
// Cache, Metrics and Publisher are optional.
type Dependencies struct {
	Store     repository.Store
	DB        *database.DB
	Cache     cache.Service
	Metrics   *metrics.Recorder
	Publisher notifications.Publisher
}

// Router holds all route dependencies
type Router struct {
	config *config.Config
	deps   Dependencies

	aggregator   *stats.Aggregator
	inventory    inventory.Service
	reservations reservations.Service
	bookings     bookings.Service
}

// NewRouter builds the services shared between route groups.
func NewRouter(cfg *config.Config, deps Dependencies) *Router {
	r := &Router{config: cfg, deps: deps}

	r.aggregator = stats.NewAggregator()
	r.inventory = inventory.NewService(deps.Store, r.aggregator, cfg)
	r.inventory.SetMetrics(deps.Metrics)
	r.reservations = reservations.NewService(deps.Store, r.inventory, r.aggregator, cfg)
	r.reservations.SetMetrics(deps.Metrics)
	r.bookings = bookings.NewService(deps.Store, cfg)

	if deps.Cache != nil {
		r.aggregator.SetCacheService(deps.Cache)
		r.inventory.SetCacheService(deps.Cache)
	}
	return r
}

// Reservations exposes the reservation service for the expiry sweeper.
func (r *Router) Reservations() reservations.Service {
	return r.reservations
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	r.setupHealthRoutes(engine)

	api := engine.Group(r.config.GetAPIBasePath())
	{
		r.setupStationRoutes(api)
		r.setupInventoryRoutes(api)
		r.setupBatteryRoutes(api)
		r.setupReservationRoutes(api)
		r.setupBookingRoutes(api)
		r.setupSwapRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		ctx := c.Request.Context()
		err := r.deps.Store.Ping(ctx)
		if err == nil && r.deps.DB != nil {
			err = r.deps.DB.HealthCheck(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "swapstation",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "swapstation",
			"storage":   r.config.StorageDriver,
		})
	})

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (r *Router) setupStationRoutes(rg *gin.RouterGroup) {
	stationService := stations.NewService(r.deps.Store)
	if r.deps.Cache != nil {
		stationService.SetCacheService(r.deps.Cache)
	}
	stations.SetupStationRoutes(rg, stations.NewController(stationService), r.config)
}

func (r *Router) setupInventoryRoutes(rg *gin.RouterGroup) {
	inventory.SetupInventoryRoutes(rg, inventory.NewController(r.inventory), r.config)
}

func (r *Router) setupBatteryRoutes(rg *gin.RouterGroup) {
	batteryService := batteries.NewService(r.deps.Store, r.inventory, r.aggregator, r.config)
	batteries.SetupBatteryRoutes(rg, batteries.NewController(batteryService), r.config)
}

func (r *Router) setupReservationRoutes(rg *gin.RouterGroup) {
	reservations.SetupReservationRoutes(rg, reservations.NewController(r.reservations), r.config)
}

func (r *Router) setupBookingRoutes(rg *gin.RouterGroup) {
	bookings.SetupBookingRoutes(rg, bookings.NewController(r.bookings), r.config)
}

func (r *Router) setupSwapRoutes(rg *gin.RouterGroup) {
	swapService := swaps.NewService(r.deps.Store, r.inventory, r.reservations, r.bookings, r.aggregator, r.config)
	swapService.SetMetrics(r.deps.Metrics)
	if r.deps.Publisher != nil {
		swapService.SetPublisher(r.deps.Publisher)
	}
	swaps.SetupSwapRoutes(rg, swaps.NewController(swapService, r.config.Swap.HandlerTimeout), r.config)
}
