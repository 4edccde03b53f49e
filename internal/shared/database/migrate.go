package database

import (
	"swapstation/internal/domain"

	"gorm.io/gorm"
)

// Models lists every table owned by the swap engine.
func Models() []interface{} {
	return []interface{}{
		&domain.Station{},
		&domain.Pillar{},
		&domain.Slot{},
		&domain.Battery{},
		&domain.Booking{},
		&domain.SwapTransaction{},
	}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return MigrateConstraints(db)
}
