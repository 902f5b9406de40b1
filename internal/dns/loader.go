package dns

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go_flare/internal/dnstypes"

	"github.com/sirupsen/logrus"
	"go.yaml.in/yaml/v3"
)

// ZoneLister lists the zones visible to the provider credentials
type ZoneLister interface {
	ListZones(ctx context.Context) ([]dnstypes.Zone, error)
}

// ZoneSnapshotStore persists the last successful zone listing
type ZoneSnapshotStore interface {
	LoadZones(ctx context.Context) ([]dnstypes.Zone, error)
	SaveZones(ctx context.Context, zones []dnstypes.Zone) error
}

// LoadOptions controls how the zone directory is built at startup
type LoadOptions struct {
	Lister     ZoneLister
	Snapshots  ZoneSnapshotStore // optional
	StaticFile string            // optional YAML file, entries override listed zones
	Logger     *logrus.Entry
}

// staticZonesFile is the YAML layout of a static zone file
type staticZonesFile struct {
	Zones []dnstypes.Zone `yaml:"zones"`
}

// LoadStaticZones reads a YAML zone file
func LoadStaticZones(path string) ([]dnstypes.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading zones file: %w", err)
	}

	var f staticZonesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing zones file: %w", err)
	}

	return f.Zones, nil
}

// LoadZoneDirectory lists zones from the provider once and builds the directory.
// When the listing fails, the last saved snapshot is used instead.
func LoadZoneDirectory(ctx context.Context, opts LoadOptions) (*ZoneDirectory, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "zone-directory")

	var listed []dnstypes.Zone
	if opts.Lister != nil {
		zones, err := opts.Lister.ListZones(ctx)
		switch {
		case err == nil:
			listed = zones
			logger.Infof("Listed %d zones from provider", len(zones))
			if opts.Snapshots != nil {
				if err := opts.Snapshots.SaveZones(ctx, zones); err != nil {
					logger.Warnf("Failed to save zone snapshot: %v", err)
				}
			}
		case opts.Snapshots != nil:
			logger.Warnf("Failed to list zones from provider, falling back to snapshot: %v", err)
			snap, snapErr := opts.Snapshots.LoadZones(ctx)
			if snapErr != nil {
				return nil, errors.Join(fmt.Errorf("failed to list zones: %w", err), fmt.Errorf("failed to load zone snapshot: %w", snapErr))
			}
			listed = snap
		default:
			return nil, fmt.Errorf("failed to list zones: %w", err)
		}
	}

	var static []dnstypes.Zone
	if opts.StaticFile != "" {
		zones, err := LoadStaticZones(opts.StaticFile)
		if err != nil {
			return nil, err
		}
		logger.Infof("Loaded %d static zones from %s", len(zones), opts.StaticFile)
		static = zones
	}

	// static entries come first so NewZoneDirectory keeps their IDs
	merged := make([]dnstypes.Zone, 0, len(static)+len(listed))
	merged = append(merged, static...)
	merged = append(merged, listed...)

	dir, err := NewZoneDirectory(merged)
	if err != nil {
		return nil, err
	}
	logger.Infof("Zone directory ready with %d zones", dir.Len())
	return dir, nil
}
