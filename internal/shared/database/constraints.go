package database

import (
	"fmt"

	"gorm.io/gorm"
)

type constraint struct {
	table string
	name  string
	check string
}

// Row-level rules the store relies on. Cross-row rules (slot and battery
// pointing at each other, pillar stats) are kept by the services.
var checkConstraints = []constraint{
	{"batteries", "chk_batteries_soh", "soh >= 0 AND soh <= 100"},
	{"batteries", "chk_batteries_status", "status IN ('charging','full','faulty','in-use','idle','is-booking')"},
	{"batteries", "chk_batteries_placement", "(current_slot_id IS NULL) = (current_pillar_id IS NULL)"},
	{"slots", "chk_slots_status", "status IN ('empty','occupied','reserved','locked','maintenance','error')"},
	{"slots", "chk_slots_occupied_has_battery", "status <> 'occupied' OR battery_id IS NOT NULL"},
	{"slots", "chk_slots_empty_has_no_battery", "status <> 'empty' OR battery_id IS NULL"},
	{"slots", "chk_slots_reserved_has_hold", "status <> 'reserved' OR reservation IS NOT NULL"},
	{"pillars", "chk_pillars_stats_balanced", "slot_stats_occupied + slot_stats_empty + slot_stats_reserved = slot_stats_total"},
	{"pillars", "chk_pillars_total_slots", "total_slots > 0"},
	{"swap_transactions", "chk_swaps_status", "status IN ('initiated','in-progress','completed','failed','cancelled')"},
	{"bookings", "chk_bookings_status", "status IN ('pending','ready','completed','cancelled')"},
}

// MigrateConstraints adds check constraints and the indexes behind the hot
// queries. Safe to run on every start.
func MigrateConstraints(db *gorm.DB) error {
	for _, c := range checkConstraints {
		err := db.Exec(fmt.Sprintf(`
			DO $$ BEGIN
				IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = '%s') THEN
					ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s);
				END IF;
			END $$;`, c.name, c.table, c.name, c.check)).Error
		if err != nil {
			return fmt.Errorf("add constraint %s: %w", c.name, err)
		}
	}

	// Sweeper scan over live holds
	err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_slots_reserved
		ON slots (id)
		WHERE status = 'reserved';
	`).Error
	if err != nil {
		return err
	}

	// Swap history by user, newest first
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_swap_transactions_user_initiated
		ON swap_transactions (user_id, initiated_at DESC);
	`).Error
}
