package model

import (
	"time"

	"gorm.io/datatypes"
)

// ZoneSnapshot stores the last zone listing fetched from a DNS provider
type ZoneSnapshot struct {
	ID         int            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Provider   string         `gorm:"column:provider;type:varchar(32);uniqueIndex;not null" json:"provider"`
	ZonesJSON  datatypes.JSON `gorm:"column:zones_json;type:json;not null" json:"zones_json"`
	ZoneCount  int            `gorm:"column:zone_count;not null;default:0" json:"zone_count"`
	LastSyncAt time.Time      `gorm:"column:last_sync_at;not null" json:"last_sync_at"`
	CreatedAt  time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for ZoneSnapshot model
func (ZoneSnapshot) TableName() string {
	return "zone_snapshots"
}
