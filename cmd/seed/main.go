package main

import (
	"context"
	"fmt"
	"log"

	"swapstation/internal/batteries"
	"swapstation/internal/domain"
	"swapstation/internal/inventory"
	"swapstation/internal/repository"
	"swapstation/internal/repository/postgres"
	"swapstation/internal/shared/config"
	"swapstation/internal/shared/constants"
	"swapstation/internal/shared/database"
	"swapstation/internal/stations"
	"swapstation/internal/stats"
	"swapstation/pkg/cache"

	"github.com/joho/godotenv"
	"gorm.io/gorm"
)

type Seeder struct {
	db        *database.DB
	store     repository.Store
	stations  stations.Service
	inventory inventory.Service
	batteries batteries.Service
}

type stationSeed struct {
	name    string
	code    string
	pillars int
	slots   int
	stocked int // batteries placed per pillar
}

var stationSeeds = []stationSeed{
	{name: "Harbour Front", code: "HBR", pillars: 2, slots: 6, stocked: 4},
	{name: "Central Depot", code: "CTL", pillars: 3, slots: 8, stocked: 6},
	{name: "Airport Road", code: "APT", pillars: 1, slots: 4, stocked: 2},
}

var staffActor = domain.Actor{Role: domain.RoleAdmin}

func main() {
	_ = godotenv.Load()
	fmt.Println("Starting swap station seeder...")

	cfg := config.Load()
	if cfg.UsesMemoryStore() {
		log.Fatal("Seeding needs STORAGE_DRIVER=postgres")
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	store := postgres.NewStore(db.PostgreSQL)
	aggregator := stats.NewAggregator()
	inventoryService := inventory.NewService(store, aggregator, cfg)
	seeder := &Seeder{
		db:        db,
		store:     store,
		stations:  stations.NewService(store),
		inventory: inventoryService,
		batteries: batteries.NewService(store, inventoryService, aggregator, cfg),
	}

	fmt.Println("\nCleaning database...")
	if err := seeder.CleanDatabase(); err != nil {
		log.Fatalf("Failed to clean database: %v", err)
	}

	fmt.Println("\nSeeding database...")
	if err := seeder.SeedAll(context.Background()); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	fmt.Println("\nSeeding completed! Database is ready for testing.")
}

// CleanDatabase truncates every swap engine table.
func (s *Seeder) CleanDatabase() error {
	tables := []string{
		"swap_transactions",
		"bookings",
		"batteries",
		"slots",
		"pillars",
		"stations",
	}

	err := s.db.PostgreSQL.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			fmt.Printf("  Truncating table: %s\n", table)
			if err := tx.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
				return fmt.Errorf("failed to truncate table %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.db.Redis != nil {
		fmt.Println("  Flushing cached station views")
		if err := cache.NewService(s.db.Redis).DeletePattern(context.Background(), constants.PATTERN_INVALIDATE_STATIONS_ALL); err != nil {
			return fmt.Errorf("failed to flush station cache: %w", err)
		}
	}
	return nil
}

// SeedAll creates stations with pillars and partially stocks them.
func (s *Seeder) SeedAll(ctx context.Context) error {
	serial := 0
	for _, seed := range stationSeeds {
		station, err := s.stations.CreateStation(ctx, stations.CreateStationRequest{Name: seed.name, Code: seed.code})
		if err != nil {
			return fmt.Errorf("failed to seed station %s: %w", seed.code, err)
		}
		fmt.Printf("  Station %s (%s)\n", station.Name, station.Code)

		for p := 1; p <= seed.pillars; p++ {
			pillar, err := s.inventory.CreatePillar(ctx, inventory.CreatePillarRequest{
				StationID:  station.ID,
				Name:       fmt.Sprintf("Pillar %d", p),
				Number:     p,
				TotalSlots: seed.slots,
			})
			if err != nil {
				return fmt.Errorf("failed to seed pillar %d at %s: %w", p, seed.code, err)
			}

			slots, err := s.inventory.GetPillarSlots(ctx, pillar.ID)
			if err != nil {
				return err
			}
			for i := 0; i < seed.stocked && i < len(slots); i++ {
				serial++
				status := domain.BatteryFull
				if i%3 == 2 {
					status = domain.BatteryCharging
				}
				battery, err := s.batteries.CreateBattery(ctx, batteries.CreateBatteryInput{
					SerialNumber: fmt.Sprintf("BAT-%05d", serial),
					Model:        "LFP-48V",
					SOH:          float64(80 + (serial*7)%20),
					Status:       status,
				})
				if err != nil {
					return fmt.Errorf("failed to seed battery: %w", err)
				}
				if _, err := s.inventory.InsertBattery(ctx, slots[i].ID, battery.ID, staffActor); err != nil {
					return fmt.Errorf("failed to place battery %s: %w", battery.SerialNumber, err)
				}
			}
			fmt.Printf("    Pillar %d: %d slots, %d stocked\n", p, seed.slots, min(seed.stocked, seed.slots))
		}
	}
	return nil
}
