package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a resold fulfillment product (e.g. "Instagram Followers"),
// priced per 1000 units.
type Service struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	Platform    string `gorm:"type:varchar(50);not null;index"`
	ServiceType string `gorm:"type:varchar(50);not null"`
	Name        string `gorm:"type:varchar(255);not null"`

	Rate        decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	MinQuantity int             `gorm:"not null"`
	MaxQuantity int             `gorm:"not null"`
	Description string          `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Service) TableName() string {
	return "services"
}
