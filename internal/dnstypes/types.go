package dnstypes

import (
	"fmt"
	"net/netip"
	"time"
)

// RecordType represents the DNS record type a flare updates
type RecordType string

const (
	RecordTypeA    RecordType = "A"
	RecordTypeAAAA RecordType = "AAAA"
)

// RecordTypeForIP picks A or AAAA from the address family
func RecordTypeForIP(ip string) (RecordType, netip.Addr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "", netip.Addr{}, fmt.Errorf("invalid ip address %q: %w", ip, err)
	}
	addr = addr.Unmap()
	if addr.Is4() {
		return RecordTypeA, addr, nil
	}
	return RecordTypeAAAA, addr, nil
}

// DNSRecord represents a DNS record for provider operations
type DNSRecord struct {
	Type    RecordType // A, AAAA
	Name    string     // FQDN (e.g., host.example.com)
	Value   string     // IP address
	TTL     int        // Time to live, 1 = provider automatic
	Proxied bool       // Cloudflare proxy (orange cloud)
}

// RecordOptions are the optional per-record settings carried by a flare
type RecordOptions struct {
	TTL     int  `json:"ttl"`
	Proxied bool `json:"proxied"`
}

// UpdateRequest describes one desired DNS change.
// It is a value type: stages pass it by copy and never mutate it.
type UpdateRequest struct {
	ID            string
	TargetName    string
	RecordType    RecordType
	Content       string
	Options       RecordOptions
	Priority      int
	RetryBudget   *int // nil means the dispatcher default
	CorrelationID string
	ReceivedAt    time.Time
}

// Record converts the request into the provider record shape
func (r UpdateRequest) Record() DNSRecord {
	return DNSRecord{
		Type:    r.RecordType,
		Name:    r.TargetName,
		Value:   r.Content,
		TTL:     r.Options.TTL,
		Proxied: r.Options.Proxied,
	}
}

// Budget returns the request's retry budget, falling back to def
func (r UpdateRequest) Budget(def int) int {
	if r.RetryBudget == nil {
		return def
	}
	if *r.RetryBudget < 0 {
		return 0
	}
	return *r.RetryBudget
}

// OutcomeStatus is the status reported for a finished request
type OutcomeStatus string

const (
	OutcomeOK    OutcomeStatus = "ok"
	OutcomeError OutcomeStatus = "error"
)

// Terminal is the terminal state a request ended in
type Terminal string

const (
	TerminalSucceeded         Terminal = "succeeded"
	TerminalPermanentlyFailed Terminal = "permanently_failed"
	TerminalRetriesExhausted  Terminal = "retries_exhausted"
	// TerminalAborted is used for requests still queued at shutdown
	TerminalAborted Terminal = "aborted"
)

// DispatchOutcome is the terminal result of processing one UpdateRequest
type DispatchOutcome struct {
	CorrelationID string        `json:"correlationId"`
	Status        OutcomeStatus `json:"status"`
	Detail        string        `json:"detail"`
	CompletedAt   time.Time     `json:"completedAt"`

	RequestID  string     `json:"requestId"`
	TargetName string     `json:"targetName"`
	RecordType RecordType `json:"recordType"`
	Content    string     `json:"content"`
	Attempts   int        `json:"attempts"`
	Terminal   Terminal   `json:"terminal"`
}

// OK reports whether the outcome is a success
func (o DispatchOutcome) OK() bool {
	return o.Status == OutcomeOK
}

// Zone is a provider-side zone: its identifier and apex name
type Zone struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// UpsertResult is what a provider returns for a successful upsert
type UpsertResult struct {
	RecordID string
	Changed  bool // false when the record already carried the content
}
