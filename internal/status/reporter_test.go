package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"go_flare/internal/dispatcher"
	"go_flare/internal/dnstypes"
	"go_flare/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func okOutcome() dnstypes.DispatchOutcome {
	return dnstypes.DispatchOutcome{
		CorrelationID: "12",
		Status:        dnstypes.OutcomeOK,
		Detail:        "A home.example.com -> 203.0.113.9",
		CompletedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		RequestID:     "req-1",
		TargetName:    "home.example.com",
		RecordType:    dnstypes.RecordTypeA,
		Content:       "203.0.113.9",
		Attempts:      2,
		Terminal:      dnstypes.TerminalSucceeded,
	}
}

func testLogger(buf *bytes.Buffer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(buf)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logrus.NewEntry(logger)
}

func TestMulti_ReportsInOrder(t *testing.T) {
	var order []string
	m := Multi{
		dispatcher.ReporterFunc(func(dnstypes.DispatchOutcome) { order = append(order, "first") }),
		nil,
		dispatcher.ReporterFunc(func(dnstypes.DispatchOutcome) { order = append(order, "second") }),
	}

	m.Report(okOutcome())

	if strings.Join(order, ",") != "first,second" {
		t.Errorf("Expected first,second got %v", order)
	}
}

func TestLogReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewLogReporter(testLogger(&buf))

	failed := okOutcome()
	failed.Status = dnstypes.OutcomeError
	failed.Terminal = dnstypes.TerminalRetriesExhausted
	failed.Detail = "retries exhausted after 4 attempts"

	r.Report(okOutcome())
	r.Report(failed)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}

	var first, second map[string]interface{}
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)

	if first["level"] != "info" || first["correlation_id"] != "12" {
		t.Errorf("Unexpected success line: %v", first)
	}
	if second["level"] != "warning" || second["terminal"] != "retries_exhausted" {
		t.Errorf("Unexpected failure line: %v", second)
	}
}

func TestOutcomeUpdates(t *testing.T) {
	tests := []struct {
		name       string
		outcome    func() dnstypes.DispatchOutcome
		wantStatus model.SyncStatus
		wantColumn string
	}{
		{
			name:       "ipv4 success",
			outcome:    okOutcome,
			wantStatus: model.SyncStatusOK,
			wantColumn: "ipv4",
		},
		{
			name: "ipv6 success",
			outcome: func() dnstypes.DispatchOutcome {
				o := okOutcome()
				o.RecordType = dnstypes.RecordTypeAAAA
				o.Content = "2001:db8::9"
				return o
			},
			wantStatus: model.SyncStatusOK,
			wantColumn: "ipv6",
		},
		{
			name: "failure keeps addresses",
			outcome: func() dnstypes.DispatchOutcome {
				o := okOutcome()
				o.Status = dnstypes.OutcomeError
				o.Terminal = dnstypes.TerminalPermanentlyFailed
				o.Detail = "zone not found"
				return o
			},
			wantStatus: model.SyncStatusError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := tt.outcome()
			updates := outcomeUpdates(outcome)

			if updates["last_sync_status"] != tt.wantStatus {
				t.Errorf("Expected status %s, got %v", tt.wantStatus, updates["last_sync_status"])
			}
			if updates["last_sync_attempts"] != outcome.Attempts {
				t.Errorf("Expected attempts %d, got %v", outcome.Attempts, updates["last_sync_attempts"])
			}

			_, hasV4 := updates["ipv4"]
			_, hasV6 := updates["ipv6"]
			switch tt.wantColumn {
			case "ipv4":
				if updates["ipv4"] != outcome.Content || hasV6 {
					t.Errorf("Expected only ipv4 update, got %v", updates)
				}
			case "ipv6":
				if updates["ipv6"] != outcome.Content || hasV4 {
					t.Errorf("Expected only ipv6 update, got %v", updates)
				}
			default:
				if hasV4 || hasV6 {
					t.Errorf("Expected no address update on failure, got %v", updates)
				}
				errMsg, ok := updates["last_sync_error"].(*string)
				if !ok || *errMsg != "zone not found" {
					t.Errorf("Expected error message, got %v", updates["last_sync_error"])
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short"); got != "short" {
		t.Errorf("Expected unchanged, got %q", got)
	}
	long := strings.Repeat("x", 300)
	got := truncate(long)
	if len(got) != 255 || !strings.HasSuffix(got, "...") {
		t.Errorf("Expected 255 chars ending in ..., got %d", len(got))
	}
}

type fakePublisher struct {
	channel string
	message interface{}
	err     error
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message = message
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func TestPubSubReporter(t *testing.T) {
	pub := &fakePublisher{}
	r := NewPubSubReporter(pub, "", testLogger(&bytes.Buffer{}))

	r.Report(okOutcome())

	if pub.channel != DefaultOutcomeChannel {
		t.Errorf("Expected channel %s, got %s", DefaultOutcomeChannel, pub.channel)
	}
	payload, ok := pub.message.([]byte)
	if !ok {
		t.Fatalf("Expected []byte payload, got %T", pub.message)
	}
	var decoded dnstypes.DispatchOutcome
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if decoded.CorrelationID != "12" || decoded.Terminal != dnstypes.TerminalSucceeded {
		t.Errorf("Unexpected payload: %+v", decoded)
	}
}

func TestPubSubReporter_PublishErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{err: errors.New("redis: connection pool timeout")}
	r := NewPubSubReporter(pub, "custom", testLogger(&buf))

	r.Report(okOutcome())

	if pub.channel != "custom" {
		t.Errorf("Expected custom channel, got %s", pub.channel)
	}
	if !strings.Contains(buf.String(), "connection pool timeout") {
		t.Errorf("Expected publish failure in log, got %q", buf.String())
	}
}

type fakeBroadcaster struct {
	namespace string
	event     string
	args      []interface{}
}

func (b *fakeBroadcaster) BroadcastToNamespace(namespace string, event string, args ...interface{}) bool {
	b.namespace, b.event, b.args = namespace, event, args
	return true
}

func TestSocketReporter(t *testing.T) {
	b := &fakeBroadcaster{}
	NewSocketReporter(b).Report(okOutcome())

	if b.namespace != "/" || b.event != OutcomeEvent {
		t.Errorf("Expected broadcast of %s on /, got %s on %s", OutcomeEvent, b.event, b.namespace)
	}
	if len(b.args) != 1 {
		t.Fatalf("Expected one argument, got %d", len(b.args))
	}
	if o, ok := b.args[0].(dnstypes.DispatchOutcome); !ok || o.RequestID != "req-1" {
		t.Errorf("Unexpected broadcast payload: %v", b.args[0])
	}

	// A reporter without a server is a no-op
	NewSocketReporter(nil).Report(okOutcome())
}
