package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go_flare/internal/dns"
	"go_flare/internal/dnstypes"

	"github.com/sirupsen/logrus"
)

const (
	defaultJitterFraction  = 0.3
	defaultRateLimitFactor = 2
	maxBackoffShift        = 20
)

// ZoneResolver resolves a target name to its zone
type ZoneResolver interface {
	Resolve(name string) (dnstypes.Zone, error)
}

// AttemptGate accounts retry attempts against the provider rate limit
type AttemptGate interface {
	ReserveAttempt(ctx context.Context) error
}

// RetryPolicy controls attempts for one request
type RetryPolicy struct {
	AttemptTimeout time.Duration
	BaseDelay      time.Duration
	MaxRetries     int // default retry budget

	// JitterFraction is the upper bound of jitter relative to the exponential delay
	JitterFraction float64
	// RateLimitFactor multiplies the delay after a rate-limited error
	RateLimitFactor float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = 10 * time.Second
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.JitterFraction <= 0 {
		p.JitterFraction = defaultJitterFraction
	}
	if p.RateLimitFactor <= 0 {
		p.RateLimitFactor = defaultRateLimitFactor
	}
	return p
}

// Controller runs one admitted request to a terminal state:
// Attempting -> Succeeded | RetryScheduled -> Attempting | PermanentlyFailed | RetriesExhausted
type Controller struct {
	zones    ZoneResolver
	provider dns.Provider
	policy   RetryPolicy
	logger   *logrus.Entry
	metrics  *Metrics
	gate     AttemptGate // optional; the first attempt is accounted at admission

	jitter func(max time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewController creates a retry controller
func NewController(zones ZoneResolver, provider dns.Provider, policy RetryPolicy, logger *logrus.Entry, metrics *Metrics) *Controller {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{
		zones:    zones,
		provider: provider,
		policy:   policy.withDefaults(),
		logger:   logger.WithField("component", "retry-controller"),
		metrics:  metrics,
		jitter:   randomJitter,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max + 1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the delay before retry number retry (0-based):
// base * 2^retry plus up to JitterFraction of that, doubled when rate-limited.
func (c *Controller) Backoff(retry int, class dnstypes.ErrorClass) time.Duration {
	if retry > maxBackoffShift {
		retry = maxBackoffShift
	}
	exp := c.policy.BaseDelay * time.Duration(1<<retry)
	delay := exp + c.jitter(time.Duration(float64(exp)*c.policy.JitterFraction))
	if class == dnstypes.ClassRateLimited {
		delay = time.Duration(float64(delay) * c.policy.RateLimitFactor)
	}
	return delay
}

// Execute runs req until it succeeds, fails permanently or exhausts its
// retry budget, and returns the single outcome for it.
func (c *Controller) Execute(ctx context.Context, req dnstypes.UpdateRequest) dnstypes.DispatchOutcome {
	logger := c.logger.WithFields(logrus.Fields{
		"request_id":     req.ID,
		"correlation_id": req.CorrelationID,
		"target":         req.TargetName,
		"type":           req.RecordType,
	})

	budget := req.Budget(c.policy.MaxRetries)
	attempts := 0

	for retry := 0; ; retry++ {
		zone, err := c.zones.Resolve(req.TargetName)
		if err != nil {
			logger.Warnf("Permanently failed: %v", err)
			return c.outcome(req, dnstypes.TerminalPermanentlyFailed, attempts, err.Error())
		}

		attempts++
		result, err := c.attempt(ctx, zone.ID, req)
		if err == nil {
			c.metrics.observeAttempt("ok")
			logger.Infof("Upserted %s in zone %s (record_id=%s, changed=%v, attempts=%d)",
				dns.NormalizeRelativeName(req.TargetName, zone.Name), zone.Name, result.RecordID, result.Changed, attempts)
			detail := fmt.Sprintf("%s %s -> %s (record_id=%s, changed=%v)", req.RecordType, req.TargetName, req.Content, result.RecordID, result.Changed)
			return c.outcome(req, dnstypes.TerminalSucceeded, attempts, detail)
		}

		class := dnstypes.ClassOf(err)
		c.metrics.observeAttempt(string(class))

		if class == dnstypes.ClassPermanent {
			logger.Warnf("Permanently failed on attempt %d: %v", attempts, err)
			return c.outcome(req, dnstypes.TerminalPermanentlyFailed, attempts, err.Error())
		}

		if retry >= budget {
			logger.Warnf("Retries exhausted after %d attempts: %v", attempts, err)
			return c.outcome(req, dnstypes.TerminalRetriesExhausted, attempts,
				fmt.Sprintf("retries exhausted after %d attempts: %v", attempts, err))
		}

		delay := c.Backoff(retry, class)
		logger.Infof("Attempt %d failed (%s), retrying in %s: %v", attempts, class, delay, err)

		if err := c.waitRetry(ctx, delay); err != nil {
			logger.Warnf("Stopped while waiting to retry: %v", err)
			return c.outcome(req, dnstypes.TerminalAborted, attempts,
				fmt.Sprintf("dispatcher stopped after %d attempts, last error: %v", attempts, err))
		}
	}
}

// waitRetry sleeps out the backoff delay, then takes a slot in the rate window
func (c *Controller) waitRetry(ctx context.Context, delay time.Duration) error {
	if err := c.sleep(ctx, delay); err != nil {
		return err
	}
	if c.gate == nil {
		return nil
	}
	return c.gate.ReserveAttempt(ctx)
}

type attemptResult struct {
	result dnstypes.UpsertResult
	err    error
}

// attempt calls the provider once with a hard timeout
func (c *Controller) attempt(ctx context.Context, zoneID string, req dnstypes.UpdateRequest) (dnstypes.UpsertResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		result, err := c.provider.UpsertRecord(attemptCtx, zoneID, req.Record())
		done <- attemptResult{result: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.result, dnstypes.NewTransientError(fmt.Sprintf("attempt timed out after %s", c.policy.AttemptTimeout), r.err)
		}
		return r.result, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return dnstypes.UpsertResult{}, dnstypes.NewTransientError("attempt cancelled", ctx.Err())
		}
		return dnstypes.UpsertResult{}, dnstypes.NewTransientError(fmt.Sprintf("attempt timed out after %s", c.policy.AttemptTimeout), attemptCtx.Err())
	}
}

func (c *Controller) outcome(req dnstypes.UpdateRequest, terminal dnstypes.Terminal, attempts int, detail string) dnstypes.DispatchOutcome {
	status := dnstypes.OutcomeError
	if terminal == dnstypes.TerminalSucceeded {
		status = dnstypes.OutcomeOK
	}
	return dnstypes.DispatchOutcome{
		CorrelationID: req.CorrelationID,
		Status:        status,
		Detail:        detail,
		CompletedAt:   c.now(),
		RequestID:     req.ID,
		TargetName:    req.TargetName,
		RecordType:    req.RecordType,
		Content:       req.Content,
		Attempts:      attempts,
		Terminal:      terminal,
	}
}
