package dns

import (
	"errors"
	"fmt"
	"sort"

	"go_flare/internal/dnstypes"

	mdns "github.com/miekg/dns"
)

var (
	// ErrZoneNotFound is returned when no configured zone contains a name
	ErrZoneNotFound = errors.New("zone not found")
	// ErrInvalidName is returned for malformed target names
	ErrInvalidName = errors.New("invalid target name")
)

// ZoneDirectory resolves fully-qualified names to provider zone IDs.
// It is built once and never mutated, so lookups need no locking.
type ZoneDirectory struct {
	zones []dnstypes.Zone // longest suffix first
}

// NewZoneDirectory builds a directory from a zone listing.
// Duplicate zone names keep the first ID seen.
func NewZoneDirectory(zones []dnstypes.Zone) (*ZoneDirectory, error) {
	seen := make(map[string]bool, len(zones))
	normalized := make([]dnstypes.Zone, 0, len(zones))
	for _, z := range zones {
		name := CanonicalName(z.Name)
		if name == "" || z.ID == "" {
			return nil, fmt.Errorf("zone %q has empty name or id", z.Name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		normalized = append(normalized, dnstypes.Zone{ID: z.ID, Name: name})
	}

	if len(normalized) == 0 {
		return nil, errors.New("zone directory is empty")
	}

	sort.SliceStable(normalized, func(i, j int) bool {
		return mdns.CountLabel(normalized[i].Name) > mdns.CountLabel(normalized[j].Name)
	})

	return &ZoneDirectory{zones: normalized}, nil
}

// Resolve returns the zone a target name belongs to.
// A name equal to its zone apex, or with an empty subdomain portion, is
// rejected with ErrInvalidName; ErrZoneNotFound means no zone matched.
func (d *ZoneDirectory) Resolve(name string) (dnstypes.Zone, error) {
	if err := ValidateHostname(name); err != nil {
		return dnstypes.Zone{}, err
	}
	name = CanonicalName(name)

	for _, z := range d.zones {
		if name == z.Name {
			return dnstypes.Zone{}, fmt.Errorf("%w: %q is the zone apex", ErrInvalidName, name)
		}
		if mdns.IsSubDomain(mdns.Fqdn(z.Name), mdns.Fqdn(name)) {
			return z, nil
		}
	}

	return dnstypes.Zone{}, fmt.Errorf("%w: %q", ErrZoneNotFound, name)
}

// Zones returns a copy of the directory contents, longest suffix first
func (d *ZoneDirectory) Zones() []dnstypes.Zone {
	out := make([]dnstypes.Zone, len(d.zones))
	copy(out, d.zones)
	return out
}

// Len returns the number of zones
func (d *ZoneDirectory) Len() int {
	return len(d.zones)
}
