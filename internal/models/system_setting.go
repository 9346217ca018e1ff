package models

import (
	"time"

	"gorm.io/datatypes"
)

type SystemSetting struct {
	Key         string         `gorm:"type:varchar(100);primaryKey"`
	Value       datatypes.JSON `gorm:"type:jsonb"`
	Description string         `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}
