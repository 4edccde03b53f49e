package stations

import (
	"context"
	"errors"
	"strings"

	"swapstation/internal/domain"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/constants"
	"swapstation/pkg/cache"

	"github.com/google/uuid"
)

// Service is the station registry. Station aggregates are owned by the stats
// aggregator and are read-only here.
type Service interface {
	SetCacheService(cacheService cache.Service)

	CreateStation(ctx context.Context, req CreateStationRequest) (*domain.Station, error)
	GetStation(ctx context.Context, id uuid.UUID) (*domain.Station, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
}

type service struct {
	store repository.Store
	cache cache.Service
}

func NewService(store repository.Store) Service {
	return &service{store: store}
}

// SetCacheService injects the cache service dependency
func (s *service) SetCacheService(cacheService cache.Service) {
	s.cache = cacheService
}

func (s *service) CreateStation(ctx context.Context, req CreateStationRequest) (*domain.Station, error) {
	station := &domain.Station{
		ID:     uuid.New(),
		Name:   strings.TrimSpace(req.Name),
		Code:   strings.ToUpper(strings.TrimSpace(req.Code)),
		Status: domain.StationActive,
	}
	if station.Name == "" || station.Code == "" {
		return nil, apperr.InvalidState("station name and code are required")
	}

	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.CreateStation(ctx, station)
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("station code %s already exists", station.Code)
		}
		return nil, err
	}
	return station, nil
}

// GetStation returns a station with its current aggregates. Cached views are
// dropped by the stats aggregator whenever the aggregates change.
func (s *service) GetStation(ctx context.Context, id uuid.UUID) (*domain.Station, error) {
	if s.cache == nil {
		return s.store.GetStation(ctx, id)
	}

	var station domain.Station
	err := s.cache.GetOrSet(ctx, constants.BuildStationDetailKey(id.String()), constants.TTL_STATION_DETAIL,
		func() (interface{}, error) {
			return s.store.GetStation(ctx, id)
		}, &station)
	if err != nil {
		return nil, err
	}
	return &station, nil
}

func (s *service) ListStations(ctx context.Context) ([]domain.Station, error) {
	return s.store.ListStations(ctx)
}
