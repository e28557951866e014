package models

import "gorm.io/gorm"

// All returns every model managed by AutoMigrate, parents first
func All() []interface{} {
	return []interface{}{
		&Master{},
		&Order{},
		&OrderWork{},
		&OrderMaterial{},
		&OrderPart{},
		&OrderMaster{},
		&OrderAllocation{},
		&Bonus{},
		&Setting{},
	}
}

// AutoMigrate creates or updates the schema for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(All()...)
}
