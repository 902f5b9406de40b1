package status

import (
	"context"
	"encoding/json"
	"time"

	"go_flare/internal/dnstypes"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultOutcomeChannel is the Redis channel outcomes are published on
	DefaultOutcomeChannel = "flare:outcomes"

	publishTimeout = 2 * time.Second
)

// Publisher is the part of *redis.Client the reporter needs
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PubSubReporter publishes outcomes as JSON on a Redis channel so other
// processes (dashboards, notifiers) can follow sync results.
type PubSubReporter struct {
	rdb     Publisher
	channel string
	logger  *logrus.Entry
}

// NewPubSubReporter creates a Redis publishing reporter
func NewPubSubReporter(rdb Publisher, channel string, logger *logrus.Entry) *PubSubReporter {
	if channel == "" {
		channel = DefaultOutcomeChannel
	}
	return &PubSubReporter{
		rdb:     rdb,
		channel: channel,
		logger:  logger.WithField("component", "status-pubsub"),
	}
}

// Report implements dispatcher.Reporter
func (r *PubSubReporter) Report(outcome dnstypes.DispatchOutcome) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		r.logger.Errorf("Failed to marshal outcome %s: %v", outcome.RequestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Errorf("Failed to publish outcome %s: %v", outcome.RequestID, err)
	}
}
