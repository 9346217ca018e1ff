package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	HistorySourceManual = "manual"
	HistorySourceSystem = "system"
)

// OrderStatusHistory is an append-only audit row, one per committed status
// transition. Rows are never updated or deleted.
type OrderStatusHistory struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	OrderID string `gorm:"type:varchar(36);not null;index"`

	NewStatus      string `gorm:"type:varchar(20);not null"`
	PreviousStatus string `gorm:"type:varchar(20)"`

	// Source is the provider key that reported the status, or "manual"/"system".
	Source     string         `gorm:"type:varchar(50);not null"`
	RawPayload datatypes.JSON `gorm:"type:jsonb"`
	ActorID    string         `gorm:"type:varchar(36)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}
