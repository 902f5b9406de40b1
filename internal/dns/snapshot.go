package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go_flare/internal/dnstypes"
	"go_flare/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotStore keeps zone listings in the zone_snapshots table
type SnapshotStore struct {
	db       *gorm.DB
	provider string
}

// NewSnapshotStore creates a snapshot store for one provider
func NewSnapshotStore(db *gorm.DB, provider string) *SnapshotStore {
	return &SnapshotStore{db: db, provider: provider}
}

// LoadZones returns the last saved listing
func (s *SnapshotStore) LoadZones(ctx context.Context) ([]dnstypes.Zone, error) {
	var snap model.ZoneSnapshot
	if err := s.db.WithContext(ctx).Where("provider = ?", s.provider).First(&snap).Error; err != nil {
		return nil, fmt.Errorf("failed to query zone snapshot: %w", err)
	}

	var zones []dnstypes.Zone
	if err := json.Unmarshal(snap.ZonesJSON, &zones); err != nil {
		return nil, fmt.Errorf("failed to unmarshal zone snapshot: %w", err)
	}
	return zones, nil
}

// SaveZones replaces the saved listing
func (s *SnapshotStore) SaveZones(ctx context.Context, zones []dnstypes.Zone) error {
	data, err := json.Marshal(zones)
	if err != nil {
		return fmt.Errorf("failed to marshal zones: %w", err)
	}

	snap := model.ZoneSnapshot{
		Provider:   s.provider,
		ZonesJSON:  datatypes.JSON(data),
		ZoneCount:  len(zones),
		LastSyncAt: time.Now(),
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"zones_json", "zone_count", "last_sync_at", "updated_at"}),
	}).Create(&snap).Error
}
