package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	Email        string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Name         string `gorm:"type:varchar(255);not null"`
	PasswordHash string `gorm:"type:varchar(100);not null" json:"-"`

	// Balance is mutated only through the settlement engine (refunds),
	// deposit approval, and order placement. Every writer re-reads after
	// writing to detect lost updates.
	Balance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:0"`

	Role string `gorm:"type:varchar(20);not null;default:'user'"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (User) TableName() string {
	return "users"
}
