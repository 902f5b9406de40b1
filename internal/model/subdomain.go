package model

import (
	"time"
)

// SyncStatus represents the provider sync status of a subdomain
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusOK      SyncStatus = "ok"
	SyncStatusError   SyncStatus = "error"
)

// Subdomain is a registered dynamic-DNS name. Its ID is the correlation id
// carried by flares for it.
type Subdomain struct {
	BaseModel
	Name             string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	IPv4             string     `gorm:"column:ipv4;type:varchar(15)" json:"ipv4"`
	IPv6             string     `gorm:"column:ipv6;type:varchar(45)" json:"ipv6"`
	TTL              int        `gorm:"default:1" json:"ttl"`
	Proxied          bool       `gorm:"type:tinyint;default:0" json:"proxied"`
	LastSyncStatus   SyncStatus `gorm:"type:enum('pending','ok','error');default:'pending'" json:"last_sync_status"`
	LastSyncError    *string    `gorm:"type:varchar(255)" json:"last_sync_error"`
	LastSyncDetail   string     `gorm:"type:varchar(255)" json:"last_sync_detail"`
	LastSyncAttempts int        `gorm:"default:0" json:"last_sync_attempts"`
	LastSyncedAt     *time.Time `json:"last_synced_at"`
}

// TableName specifies the table name for Subdomain model
func (Subdomain) TableName() string {
	return "subdomains"
}
