// Package faulty wraps a DNS provider and fails a fraction of its calls.
// It is used by tests and by staging deployments to exercise retry paths.
package faulty

import (
	"context"
	"math/rand"
	"sync"

	"go_flare/internal/dns"
	"go_flare/internal/dnstypes"
)

// Config controls fault injection
type Config struct {
	// FailureRate is the probability in [0,1] that a call fails
	FailureRate float64
	// RateLimitedShare is the share of injected failures reported as rate-limited
	RateLimitedShare float64
	// Source provides randomness; a seeded source gives reproducible runs
	Source rand.Source
}

// Provider injects synthetic failures in front of another provider
type Provider struct {
	next  dns.Provider
	cfg   Config
	mu    sync.Mutex
	rng   *rand.Rand
	stats Stats
}

// Stats counts calls seen by the wrapper
type Stats struct {
	Calls       int
	Injected    int
	RateLimited int
}

// New wraps next. A nil Source uses a time-independent default seed of 1.
func New(next dns.Provider, cfg Config) *Provider {
	src := cfg.Source
	if src == nil {
		src = rand.NewSource(1)
	}
	return &Provider{
		next: next,
		cfg:  cfg,
		rng:  rand.New(src),
	}
}

// UpsertRecord fails with a synthetic error or delegates to the wrapped provider
func (p *Provider) UpsertRecord(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (dnstypes.UpsertResult, error) {
	p.mu.Lock()
	p.stats.Calls++
	fail := p.rng.Float64() < p.cfg.FailureRate
	rateLimited := fail && p.rng.Float64() < p.cfg.RateLimitedShare
	if fail {
		p.stats.Injected++
	}
	if rateLimited {
		p.stats.RateLimited++
	}
	p.mu.Unlock()

	if rateLimited {
		return dnstypes.UpsertResult{}, &dnstypes.ProviderError{
			Class:      dnstypes.ClassRateLimited,
			HTTPStatus: 429,
			Message:    "injected rate limit",
		}
	}
	if fail {
		return dnstypes.UpsertResult{}, &dnstypes.ProviderError{
			Class:      dnstypes.ClassTransient,
			HTTPStatus: 503,
			Message:    "injected failure",
		}
	}

	return p.next.UpsertRecord(ctx, zoneID, record)
}

// Stats returns a copy of the call counters
func (p *Provider) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
