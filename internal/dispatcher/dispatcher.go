package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go_flare/internal/dns"
	"go_flare/internal/dnstypes"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Submit after Stop was called
var ErrStopped = errors.New("dispatcher stopped")

// Reporter receives exactly one outcome per submitted request.
// Reporting is fire-and-forget: failures are not retried by the dispatcher.
type Reporter interface {
	Report(outcome dnstypes.DispatchOutcome)
}

// ReporterFunc adapts a func to Reporter
type ReporterFunc func(outcome dnstypes.DispatchOutcome)

// Report implements Reporter
func (f ReporterFunc) Report(outcome dnstypes.DispatchOutcome) {
	f(outcome)
}

// Config holds dispatcher configuration
type Config struct {
	RateLimit      int
	RateWindow     time.Duration
	MaxConcurrent  int
	AttemptTimeout time.Duration
	RetryBaseDelay time.Duration
	MaxRetries     int
	BatchWindow    time.Duration
	IntakeSize     int
}

// Dispatcher turns submitted update requests into provider upserts:
// Batcher -> Governor -> Controller -> Reporter.
type Dispatcher struct {
	cfg        Config
	governor   *Governor
	batcher    *Batcher
	controller *Controller
	reporter   Reporter
	logger     *logrus.Entry
	metrics    *Metrics

	mu      sync.RWMutex
	started bool
	stopped bool

	// gateCtx stops admission; runCtx is cancelled only when Stop times out
	gateCtx    context.Context
	gateCancel context.CancelFunc
	runCtx     context.Context
	runCancel  context.CancelFunc

	batcherDone chan struct{}
	offerDone   chan struct{}
	inFlight    sync.WaitGroup
}

// Option customises a Dispatcher
type Option func(*Dispatcher)

// WithLogger sets the logger
func WithLogger(logger *logrus.Entry) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// New creates a dispatcher. Call Start before Submit.
func New(cfg Config, zones ZoneResolver, provider dns.Provider, reporter Reporter, opts ...Option) *Dispatcher {
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 500 * time.Millisecond
	}
	if cfg.IntakeSize <= 0 {
		cfg.IntakeSize = 1024
	}

	d := &Dispatcher{
		cfg:         cfg,
		reporter:    reporter,
		logger:      logrus.NewEntry(logrus.StandardLogger()),
		batcherDone: make(chan struct{}),
		offerDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithField("component", "dns-dispatcher")

	d.governor = NewGovernor(GovernorConfig{
		MaxConcurrent: cfg.MaxConcurrent,
		RateLimit:     cfg.RateLimit,
		Window:        cfg.RateWindow,
	})
	d.batcher = NewBatcher(cfg.BatchWindow, cfg.IntakeSize)
	d.controller = NewController(zones, provider, RetryPolicy{
		AttemptTimeout: cfg.AttemptTimeout,
		BaseDelay:      cfg.RetryBaseDelay,
		MaxRetries:     cfg.MaxRetries,
	}, d.logger, d.metrics)
	d.controller.gate = d.governor

	d.gateCtx, d.gateCancel = context.WithCancel(context.Background())
	d.runCtx, d.runCancel = context.WithCancel(context.Background())
	return d
}

// Governor returns the admission gate
func (d *Dispatcher) Governor() *Governor {
	return d.governor
}

// Start starts the batching and offering loops
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	d.logger.Infof("Starting with rate_limit=%d/%s, max_concurrent=%d, batch_window=%s, max_retries=%d",
		d.governor.cfg.RateLimit, d.governor.cfg.Window, d.governor.cfg.MaxConcurrent,
		d.cfg.BatchWindow, d.controller.policy.MaxRetries)

	go func() {
		defer close(d.batcherDone)
		d.batcher.Run()
	}()
	go d.offer()
}

// Submit hands a request to the pipeline. Missing ID and ReceivedAt are filled in.
func (d *Dispatcher) Submit(req dnstypes.UpdateRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.started || d.stopped {
		return ErrStopped
	}

	d.metrics.observeQueued()
	d.batcher.In() <- req
	return nil
}

// offer takes released requests in order and blocks on the gate for each,
// so a request is never offered before the ones released ahead of it.
func (d *Dispatcher) offer() {
	defer close(d.offerDone)

	for req := range d.batcher.Out() {
		if d.gateCtx.Err() != nil {
			d.abort(req)
			continue
		}

		start := time.Now()
		release, err := d.governor.Acquire(d.gateCtx)
		if err != nil {
			d.abort(req)
			continue
		}
		d.metrics.observeAdmitted(time.Since(start))

		d.inFlight.Add(1)
		go d.run(req, release)
	}
}

// run executes one admitted request and reports its outcome
func (d *Dispatcher) run(req dnstypes.UpdateRequest, release func()) {
	defer d.inFlight.Done()

	outcome := d.controller.Execute(d.runCtx, req)
	release()
	d.metrics.observeDone()
	d.report(outcome)
}

// abort reports a request that was never admitted
func (d *Dispatcher) abort(req dnstypes.UpdateRequest) {
	d.metrics.observeDropped()
	d.report(dnstypes.DispatchOutcome{
		CorrelationID: req.CorrelationID,
		Status:        dnstypes.OutcomeError,
		Detail:        "dispatcher stopped before the request was admitted",
		CompletedAt:   time.Now(),
		RequestID:     req.ID,
		TargetName:    req.TargetName,
		RecordType:    req.RecordType,
		Content:       req.Content,
		Terminal:      dnstypes.TerminalAborted,
	})
}

func (d *Dispatcher) report(outcome dnstypes.DispatchOutcome) {
	d.metrics.observeOutcome(string(outcome.Terminal))
	if d.reporter == nil {
		return
	}
	d.reporter.Report(outcome)
}

// Stop closes intake, reports queued requests as aborted and waits for
// admitted requests to finish. When ctx ends first, in-flight attempts and
// backoff waits are cancelled and Stop returns ctx's error.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started || d.stopped {
		d.stopped = true
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.batcher.in)
	d.mu.Unlock()

	d.logger.Info("Stopping...")
	d.gateCancel()

	done := make(chan struct{})
	go func() {
		<-d.batcherDone
		<-d.offerDone
		d.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.runCancel()
		d.logger.Info("Stopped")
		return nil
	case <-ctx.Done():
		d.runCancel()
		<-done
		return fmt.Errorf("dispatcher stop: %w", ctx.Err())
	}
}

// Stats returns the governor's view of the rate window
func (d *Dispatcher) Stats() GovernorStats {
	return d.governor.Stats()
}
