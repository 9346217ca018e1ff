package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)

type Order struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	UserID    string `gorm:"type:varchar(36);not null;index"`
	ServiceID string `gorm:"type:varchar(36);not null;index"`

	Link     string `gorm:"type:text;not null"`
	Quantity int    `gorm:"not null"`

	// TotalCost is fixed at creation and doubles as the refund amount.
	TotalCost decimal.Decimal `gorm:"type:numeric(20,8);not null"`

	// Status holds the canonical vocabulary (see internal/status). Only the
	// reconciler and the admin override path write it after creation.
	Status string `gorm:"type:varchar(20);not null;default:'pending';index"`

	// Upstream references, one column per panel. Numeric panels store the id
	// as digits; a panel's "not placed" sentinel or an empty value means the
	// order was never forwarded there.
	SmmstoneOrderID  string `gorm:"type:varchar(100)"`
	PanelzoneOrderID string `gorm:"type:varchar(100)"`
	BoostlineOrderID string `gorm:"type:varchar(100)"`
	PrimesmmOrderID  string `gorm:"type:varchar(100)"`

	LastStatusCheck *time.Time `gorm:"type:timestamptz;index"`
	CompletedAt     *time.Time `gorm:"type:timestamptz"`

	// RefundStatus transitions null→pending→{succeeded,failed}; failed may be
	// re-claimed back to pending, succeeded is terminal. All writes go through
	// the settlement engine's conditional update.
	RefundStatus      *string    `gorm:"type:varchar(20);index"`
	RefundAttemptedAt *time.Time `gorm:"type:timestamptz"`
	RefundError       string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
