package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go_flare/internal/dns"
	"go_flare/internal/dnstypes"
)

// fakeProvider answers upserts from a scripted list of errors; nil means success
type fakeProvider struct {
	mu     sync.Mutex
	calls  []dnstypes.DNSRecord
	zones  []string
	script []error
	block  chan struct{} // when set, calls wait on it ignoring ctx
}

func (p *fakeProvider) UpsertRecord(ctx context.Context, zoneID string, record dnstypes.DNSRecord) (dnstypes.UpsertResult, error) {
	p.mu.Lock()
	n := len(p.calls)
	p.calls = append(p.calls, record)
	p.zones = append(p.zones, zoneID)
	var err error
	if n < len(p.script) {
		err = p.script[n]
	}
	block := p.block
	p.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return dnstypes.UpsertResult{}, err
	}
	return dnstypes.UpsertResult{RecordID: "rec-1", Changed: true}, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type countingGate struct {
	mu    sync.Mutex
	calls int
}

func (g *countingGate) ReserveAttempt(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return nil
}

func transient(msg string) error {
	return &dnstypes.ProviderError{Class: dnstypes.ClassTransient, HTTPStatus: 503, Message: msg}
}

func rateLimited() error {
	return &dnstypes.ProviderError{Class: dnstypes.ClassRateLimited, HTTPStatus: 429, Code: 971, Message: "rate limited"}
}

func testZones(t *testing.T) *dns.ZoneDirectory {
	t.Helper()
	zones, err := dns.NewZoneDirectory([]dnstypes.Zone{
		{ID: "zone-example", Name: "example.com"},
		{ID: "zone-sub", Name: "dyn.example.net"},
	})
	if err != nil {
		t.Fatalf("NewZoneDirectory() failed: %v", err)
	}
	return zones
}

// newTestController returns a controller whose sleeps are recorded instead of waited
func newTestController(t *testing.T, provider dns.Provider, policy RetryPolicy) (*Controller, *[]time.Duration) {
	t.Helper()
	c := NewController(testZones(t), provider, policy, nil, nil)
	c.jitter = func(time.Duration) time.Duration { return 0 }

	var mu sync.Mutex
	sleeps := []time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, &sleeps
}

func request(target string) dnstypes.UpdateRequest {
	return dnstypes.UpdateRequest{
		ID:            "req-1",
		TargetName:    target,
		RecordType:    dnstypes.RecordTypeA,
		Content:       "203.0.113.10",
		CorrelationID: "42",
	}
}

func TestController_PermanentNameFailures(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		wantErr error
	}{
		{name: "unknown zone", target: "host.unknown.org", wantErr: dns.ErrZoneNotFound},
		{name: "zone apex", target: "example.com", wantErr: dns.ErrInvalidName},
		{name: "nested zone apex", target: "dyn.example.net.", wantErr: dns.ErrInvalidName},
		{name: "empty label", target: "host..example.com", wantErr: dns.ErrInvalidName},
		{name: "empty name", target: "", wantErr: dns.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			c, sleeps := newTestController(t, provider, RetryPolicy{MaxRetries: 3})

			outcome := c.Execute(context.Background(), request(tt.target))

			if outcome.Status != dnstypes.OutcomeError {
				t.Errorf("Expected error status, got %s", outcome.Status)
			}
			if outcome.Terminal != dnstypes.TerminalPermanentlyFailed {
				t.Errorf("Expected permanently_failed, got %s", outcome.Terminal)
			}
			if provider.Calls() != 0 {
				t.Errorf("Expected zero provider calls, got %d", provider.Calls())
			}
			if len(*sleeps) != 0 {
				t.Errorf("Expected no retries, got %d sleeps", len(*sleeps))
			}
			if outcome.CorrelationID != "42" {
				t.Errorf("Expected correlation id 42, got %s", outcome.CorrelationID)
			}
			if _, err := testZones(t).Resolve(tt.target); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// maxRetries=2 with a provider that always fails transiently: 1 + 2 attempts.
func TestController_RetriesExhausted(t *testing.T) {
	provider := &fakeProvider{script: []error{transient("a"), transient("b"), transient("c"), transient("d")}}
	c, sleeps := newTestController(t, provider, RetryPolicy{MaxRetries: 2, BaseDelay: 100 * time.Millisecond})
	gate := &countingGate{}
	c.gate = gate

	outcome := c.Execute(context.Background(), request("host.example.com"))

	if provider.Calls() != 3 {
		t.Errorf("Expected 3 attempts, got %d", provider.Calls())
	}
	if outcome.Attempts != 3 {
		t.Errorf("Expected outcome attempts 3, got %d", outcome.Attempts)
	}
	if outcome.Terminal != dnstypes.TerminalRetriesExhausted {
		t.Errorf("Expected retries_exhausted, got %s", outcome.Terminal)
	}
	if outcome.Status != dnstypes.OutcomeError {
		t.Errorf("Expected error status, got %s", outcome.Status)
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*sleeps) != len(want) {
		t.Fatalf("Expected %d backoff waits, got %v", len(want), *sleeps)
	}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("Backoff %d = %s, want %s", i, (*sleeps)[i], want[i])
		}
	}
	if gate.calls != 2 {
		t.Errorf("Expected 2 retry reservations, got %d", gate.calls)
	}
}

func TestController_RequestBudgetOverridesDefault(t *testing.T) {
	provider := &fakeProvider{script: []error{transient("a"), transient("b")}}
	c, _ := newTestController(t, provider, RetryPolicy{MaxRetries: 5})

	budget := 0
	req := request("host.example.com")
	req.RetryBudget = &budget

	outcome := c.Execute(context.Background(), req)

	if provider.Calls() != 1 {
		t.Errorf("Expected 1 attempt with zero budget, got %d", provider.Calls())
	}
	if outcome.Terminal != dnstypes.TerminalRetriesExhausted {
		t.Errorf("Expected retries_exhausted, got %s", outcome.Terminal)
	}
}

func TestController_SucceedsAfterTransientFailures(t *testing.T) {
	provider := &fakeProvider{script: []error{transient("a"), rateLimited(), nil}}
	c, sleeps := newTestController(t, provider, RetryPolicy{MaxRetries: 3, BaseDelay: time.Second})

	outcome := c.Execute(context.Background(), request("Host.Example.com"))

	if !outcome.OK() || outcome.Terminal != dnstypes.TerminalSucceeded {
		t.Fatalf("Expected success, got %s/%s: %s", outcome.Status, outcome.Terminal, outcome.Detail)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", outcome.Attempts)
	}
	if provider.zones[0] != "zone-example" {
		t.Errorf("Expected zone-example, got %s", provider.zones[0])
	}

	// second wait follows a rate-limited error: 2^1 * 1s, doubled
	want := []time.Duration{time.Second, 4 * time.Second}
	for i := range want {
		if (*sleeps)[i] != want[i] {
			t.Errorf("Backoff %d = %s, want %s", i, (*sleeps)[i], want[i])
		}
	}
}

func TestController_PermanentProviderError(t *testing.T) {
	provider := &fakeProvider{script: []error{
		&dnstypes.ProviderError{Class: dnstypes.ClassPermanent, HTTPStatus: 400, Code: 9005, Message: "content for A record is invalid"},
	}}
	c, sleeps := newTestController(t, provider, RetryPolicy{MaxRetries: 3})

	outcome := c.Execute(context.Background(), request("host.example.com"))

	if provider.Calls() != 1 {
		t.Errorf("Expected a single attempt, got %d", provider.Calls())
	}
	if outcome.Terminal != dnstypes.TerminalPermanentlyFailed {
		t.Errorf("Expected permanently_failed, got %s", outcome.Terminal)
	}
	if len(*sleeps) != 0 {
		t.Errorf("Expected no backoff, got %v", *sleeps)
	}
	if !strings.Contains(outcome.Detail, "invalid") {
		t.Errorf("Expected provider message in detail, got %q", outcome.Detail)
	}
}

// A provider call that never returns is cut off by the attempt timeout and retried.
func TestController_AttemptTimeoutIsTransient(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	provider := &fakeProvider{block: block}
	c, sleeps := newTestController(t, provider, RetryPolicy{
		MaxRetries:     1,
		AttemptTimeout: 20 * time.Millisecond,
	})

	start := time.Now()
	outcome := c.Execute(context.Background(), request("host.example.com"))

	if outcome.Terminal != dnstypes.TerminalRetriesExhausted {
		t.Errorf("Expected retries_exhausted, got %s", outcome.Terminal)
	}
	if outcome.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", outcome.Attempts)
	}
	if len(*sleeps) != 1 {
		t.Errorf("Expected 1 backoff, got %d", len(*sleeps))
	}
	if !strings.Contains(outcome.Detail, "timed out") {
		t.Errorf("Expected timeout in detail, got %q", outcome.Detail)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Attempt timeout not enforced, took %s", elapsed)
	}
}

func TestController_AbortedDuringBackoff(t *testing.T) {
	provider := &fakeProvider{script: []error{transient("a"), transient("b")}}
	c, _ := newTestController(t, provider, RetryPolicy{MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	outcome := c.Execute(ctx, request("host.example.com"))

	if outcome.Terminal != dnstypes.TerminalAborted {
		t.Errorf("Expected aborted, got %s", outcome.Terminal)
	}
	if provider.Calls() != 1 {
		t.Errorf("Expected 1 attempt, got %d", provider.Calls())
	}
}

func TestController_Backoff(t *testing.T) {
	c := NewController(nil, nil, RetryPolicy{BaseDelay: time.Second}, nil, nil)

	tests := []struct {
		name   string
		retry  int
		class  dnstypes.ErrorClass
		jitter time.Duration
		want   time.Duration
	}{
		{name: "first retry", retry: 0, class: dnstypes.ClassTransient, want: time.Second},
		{name: "third retry", retry: 2, class: dnstypes.ClassTransient, want: 4 * time.Second},
		{name: "with jitter", retry: 1, class: dnstypes.ClassTransient, jitter: 300 * time.Millisecond, want: 2300 * time.Millisecond},
		{name: "rate limited doubles", retry: 1, class: dnstypes.ClassRateLimited, want: 4 * time.Second},
		{name: "rate limited with jitter", retry: 0, class: dnstypes.ClassRateLimited, jitter: 100 * time.Millisecond, want: 2200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.jitter = func(time.Duration) time.Duration { return tt.jitter }
			if got := c.Backoff(tt.retry, tt.class); got != tt.want {
				t.Errorf("Backoff(%d, %s) = %s, want %s", tt.retry, tt.class, got, tt.want)
			}
		})
	}
}

func TestController_JitterBound(t *testing.T) {
	c := NewController(nil, nil, RetryPolicy{BaseDelay: time.Second}, nil, nil)

	var maxJitter time.Duration
	c.jitter = func(max time.Duration) time.Duration {
		maxJitter = max
		return max
	}

	got := c.Backoff(2, dnstypes.ClassTransient)
	if maxJitter != 1200*time.Millisecond {
		t.Errorf("Expected jitter bound of 30%% (1.2s), got %s", maxJitter)
	}
	if got != 5200*time.Millisecond {
		t.Errorf("Expected 5.2s, got %s", got)
	}

	for i := 0; i < 100; i++ {
		if j := randomJitter(time.Second); j < 0 || j > time.Second {
			t.Fatalf("randomJitter out of range: %s", j)
		}
	}
}
