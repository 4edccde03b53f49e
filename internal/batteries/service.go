package batteries

import (
	"context"
	"errors"
	"strings"

	"swapstation/internal/domain"
	"swapstation/internal/inventory"
	"swapstation/internal/repository"
	"swapstation/internal/shared/apperr"
	"swapstation/internal/shared/config"
	"swapstation/internal/stats"

	"github.com/google/uuid"
)

// CreateBatteryInput carries a validated battery registration.
type CreateBatteryInput struct {
	SerialNumber string
	Model        string
	SOH          float64
	Status       domain.BatteryStatus
	StationID    *uuid.UUID
}

// Service is the battery registry.
type Service interface {
	CreateBattery(ctx context.Context, input CreateBatteryInput) (*domain.Battery, error)
	GetBattery(ctx context.Context, id uuid.UUID) (*domain.Battery, error)
	FindBySerial(ctx context.Context, serial string) (*domain.Battery, error)
	ListByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Battery, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatteryStatus, soh *float64) (*domain.Battery, error)
}

type service struct {
	store     repository.Store
	inventory inventory.Service
	stats     *stats.Aggregator
	config    *config.Config
}

func NewService(store repository.Store, inventoryService inventory.Service, aggregator *stats.Aggregator, cfg *config.Config) Service {
	return &service{store: store, inventory: inventoryService, stats: aggregator, config: cfg}
}

func validSOH(soh float64) bool {
	return soh >= 0 && soh <= 100
}

func (s *service) CreateBattery(ctx context.Context, input CreateBatteryInput) (*domain.Battery, error) {
	serial := strings.TrimSpace(input.SerialNumber)
	if serial == "" {
		return nil, apperr.InvalidState("serial number is required")
	}
	if !validSOH(input.SOH) {
		return nil, apperr.InvalidState("soh %.2f is outside 0-100", input.SOH)
	}
	status := input.Status
	if status == "" {
		status = domain.BatteryIdle
	}
	if !status.IsValid() || status == domain.BatteryIsBooking {
		return nil, apperr.InvalidState("battery status %q cannot be set directly", status)
	}

	battery := &domain.Battery{
		ID:           uuid.New(),
		SerialNumber: serial,
		Model:        input.Model,
		SOH:          input.SOH,
		Status:       status,
		StationID:    input.StationID,
	}

	_, err := repository.RunWithRetry(ctx, s.store, s.config.Swap.MaxClaimRetries, func(tx repository.Tx) error {
		if battery.StationID != nil {
			if _, err := tx.GetStation(ctx, *battery.StationID); err != nil {
				return err
			}
		}
		if err := tx.CreateBattery(ctx, battery); err != nil {
			return err
		}
		if battery.StationID != nil {
			_, err := s.stats.RecomputeStation(ctx, tx, *battery.StationID)
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return nil, apperr.Conflict("battery serial %s already registered", serial)
		}
		return nil, err
	}

	if battery.StationID != nil {
		s.stats.Invalidate(ctx, *battery.StationID)
	}
	return battery, nil
}

func (s *service) GetBattery(ctx context.Context, id uuid.UUID) (*domain.Battery, error) {
	return s.store.GetBattery(ctx, id)
}

func (s *service) FindBySerial(ctx context.Context, serial string) (*domain.Battery, error) {
	return s.store.GetBatteryBySerial(ctx, strings.TrimSpace(serial))
}

func (s *service) ListByStation(ctx context.Context, stationID uuid.UUID) ([]domain.Battery, error) {
	if _, err := s.store.GetStation(ctx, stationID); err != nil {
		return nil, err
	}
	return s.store.ListBatteriesByStation(ctx, stationID)
}

// UpdateStatus records a charger or inspection result. Batteries promised to
// a swap are frozen until the swap settles or its drop-off hold lapses.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BatteryStatus, soh *float64) (*domain.Battery, error) {
	if !status.IsValid() || status == domain.BatteryIsBooking {
		return nil, apperr.InvalidState("battery status %q cannot be set directly", status)
	}
	if soh != nil && !validSOH(*soh) {
		return nil, apperr.InvalidState("soh %.2f is outside 0-100", *soh)
	}

	var battery *domain.Battery
	_, err := repository.RunWithRetry(ctx, s.store, s.config.Swap.MaxClaimRetries, func(tx repository.Tx) error {
		var err error
		battery, err = tx.GetBattery(ctx, id)
		if err != nil {
			return err
		}
		if battery.Status == domain.BatteryIsBooking && battery.StationID != nil {
			if _, err := s.inventory.ReconcileStation(ctx, tx, *battery.StationID); err != nil {
				return err
			}
			if battery, err = tx.GetBattery(ctx, id); err != nil {
				return err
			}
		}
		if battery.Status == domain.BatteryIsBooking {
			return apperr.Conflict("battery %s is promised to a swap", battery.SerialNumber)
		}

		battery.Status = status
		if soh != nil {
			battery.SOH = *soh
		}
		if err := tx.UpdateBattery(ctx, battery); err != nil {
			return err
		}
		if battery.StationID != nil {
			_, err = s.stats.RecomputeStation(ctx, tx, *battery.StationID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if battery.StationID != nil {
		s.stats.Invalidate(ctx, *battery.StationID)
	}
	return battery, nil
}
