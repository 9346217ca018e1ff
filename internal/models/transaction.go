package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeDeposit          = "deposit"
	TransactionTypeOrder            = "order"
	TransactionTypeRefund           = "refund"
	TransactionTypeReferralBonus    = "referral_bonus"
	TransactionTypeManualAdjustment = "manual_adjustment"
	TransactionTypeUnknown          = "unknown"

	TransactionStatusPending  = "pending"
	TransactionStatusApproved = "approved"
	TransactionStatusRejected = "rejected"
	TransactionStatusDone     = "done"
)

// Transaction is a ledger entry. Amount is a magnitude; Type carries the sign
// for balance recomputation (deposit/refund/referral_bonus credit, order
// debits, manual_adjustment per its description). A refund row records the
// same economic event as the direct balance credit performed by the
// settlement engine and must never be applied on top of it.
type Transaction struct {
	ID     string `gorm:"type:varchar(36);primaryKey"`
	UserID string `gorm:"type:varchar(36);not null;index"`

	Amount decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Type   string          `gorm:"type:varchar(30);not null;index"`
	Status string          `gorm:"type:varchar(20);not null;index"`

	OrderID        string `gorm:"type:varchar(36);index"`
	Description    string `gorm:"type:text"`
	AutoClassified bool   `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "transactions"
}
