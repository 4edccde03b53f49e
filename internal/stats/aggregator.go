// Package stats keeps the pillar and station aggregates in step with the
// slots and batteries they summarize. It is called explicitly from inside the
// unit of work that changed the underlying records.
package stats

import (
	"context"
	"fmt"
	"math"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/constants"
	"swapstation/pkg/cache"
	"swapstation/pkg/logger"

	"github.com/google/uuid"
)

// StationStats is the battery summary written back to a station.
type StationStats struct {
	TotalBatteries     int     `json:"total_batteries"`
	AvailableBatteries int     `json:"available_batteries"`
	AverageSOH         float64 `json:"average_soh"`
}

type Aggregator struct {
	cache cache.Service
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// SetCacheService enables invalidation of cached station views.
func (a *Aggregator) SetCacheService(cacheService cache.Service) {
	a.cache = cacheService
}

// Recompute refreshes a pillar and then its station.
func (a *Aggregator) Recompute(ctx context.Context, tx repository.Tx, pillarID uuid.UUID) error {
	pillar, err := a.RecomputePillar(ctx, tx, pillarID)
	if err != nil {
		return err
	}
	_, err = a.RecomputeStation(ctx, tx, pillar.StationID)
	return err
}

// RecomputePillar counts the pillar's slots and persists the result. The
// pillar row is always rewritten so that concurrent slot mutations on the
// same pillar conflict on its version instead of overwriting each other's
// counts.
func (a *Aggregator) RecomputePillar(ctx context.Context, tx repository.Tx, pillarID uuid.UUID) (*domain.Pillar, error) {
	pillar, err := tx.GetPillar(ctx, pillarID)
	if err != nil {
		return nil, err
	}
	slots, err := tx.ListSlotsByPillar(ctx, pillarID)
	if err != nil {
		return nil, err
	}

	stats := domain.ComputeSlotStats(slots)
	if stats.Total != pillar.TotalSlots {
		return nil, apperr.Unexpected(nil, "pillar %s has %d slots, expected %d", pillarID, stats.Total, pillar.TotalSlots)
	}

	pillar.SlotStats = stats
	if err := tx.UpdatePillar(ctx, pillar); err != nil {
		return nil, fmt.Errorf("write pillar stats: %w", err)
	}
	return pillar, nil
}

// RecomputeStation scans the station's batteries and persists the totals.
func (a *Aggregator) RecomputeStation(ctx context.Context, tx repository.Tx, stationID uuid.UUID) (*domain.Station, error) {
	station, err := tx.GetStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	batteries, err := tx.ListBatteriesByStation(ctx, stationID)
	if err != nil {
		return nil, err
	}

	stats := ComputeStationStats(batteries)
	station.TotalBatteries = stats.TotalBatteries
	station.AvailableBatteries = stats.AvailableBatteries
	station.AverageSOH = stats.AverageSOH
	if err := tx.UpdateStation(ctx, station); err != nil {
		return nil, fmt.Errorf("write station stats: %w", err)
	}
	return station, nil
}

// ComputeStationStats summarizes batteries. A battery is available when it
// sits in a slot with status full or idle.
func ComputeStationStats(batteries []domain.Battery) StationStats {
	var (
		stats StationStats
		soh   float64
	)
	for i := range batteries {
		stats.TotalBatteries++
		soh += batteries[i].SOH
		if batteries[i].Status.IsAvailable() && batteries[i].IsPlaced() {
			stats.AvailableBatteries++
		}
	}
	if stats.TotalBatteries > 0 {
		stats.AverageSOH = math.Round(soh/float64(stats.TotalBatteries)*100) / 100
	}
	return stats
}

// Invalidate drops cached views of a station. It runs after commit; a cache
// failure is logged and otherwise ignored.
func (a *Aggregator) Invalidate(ctx context.Context, stationID uuid.UUID) {
	if a.cache == nil {
		return
	}
	pattern := constants.BuildStationInvalidatePattern(stationID.String())
	if err := a.cache.DeletePattern(ctx, pattern); err != nil {
		logger.GetDefault().WarnContext(ctx, "station cache invalidation failed",
			"station_id", stationID, "pattern", pattern, "error", err)
	}
}
