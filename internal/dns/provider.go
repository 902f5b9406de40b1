package dns

import (
	"context"

	"go_flare/internal/dnstypes"
)

// Provider defines the interface for DNS providers
type Provider interface {
	// UpsertRecord creates the record, or updates the existing record of the
	// same type and name, so that it carries record.Value.
	// Errors should be *dnstypes.ProviderError so callers can read the class.
	UpsertRecord(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (dnstypes.UpsertResult, error)
}
