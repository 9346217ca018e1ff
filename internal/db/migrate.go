package db

import (
	"boostpanel/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.User{},
		&models.Service{},
		&models.Order{},
		&models.OrderStatusHistory{},
		&models.Transaction{},
		&models.SystemSetting{},
	)
}
