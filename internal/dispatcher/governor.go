package dispatcher

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	defaultCapacityBuffer  = 100 * time.Millisecond
	defaultSpreadMin       = 500 * time.Millisecond
	defaultSpreadMax       = 1500 * time.Millisecond
	defaultSpreadThreshold = 0.8
	defaultRateWindow      = 5 * time.Minute
)

// GovernorConfig holds the two admission caps and the wait policy
type GovernorConfig struct {
	MaxConcurrent int
	RateLimit     int           // attempts allowed per Window
	Window        time.Duration // rate accounting window

	// CapacityBuffer is added to the wait for the oldest attempt to leave a full window
	CapacityBuffer time.Duration
	// SpreadMin/SpreadMax bound the random wait applied above SpreadThreshold utilization
	SpreadMin       time.Duration
	SpreadMax       time.Duration
	SpreadThreshold float64
}

func (c GovernorConfig) withDefaults() GovernorConfig {
	if c.MaxConcurrent < 1 {
		c.MaxConcurrent = 1
	}
	if c.RateLimit < 1 {
		c.RateLimit = 1
	}
	if c.Window <= 0 {
		c.Window = defaultRateWindow
	}
	if c.CapacityBuffer <= 0 {
		c.CapacityBuffer = defaultCapacityBuffer
	}
	if c.SpreadMin <= 0 {
		c.SpreadMin = defaultSpreadMin
	}
	if c.SpreadMax < c.SpreadMin {
		c.SpreadMax = defaultSpreadMax
		if c.SpreadMax < c.SpreadMin {
			c.SpreadMax = c.SpreadMin
		}
	}
	if c.SpreadThreshold <= 0 || c.SpreadThreshold >= 1 {
		c.SpreadThreshold = defaultSpreadThreshold
	}
	return c
}

// GovernorStats is a point-in-time view of the governor
type GovernorStats struct {
	InFlight         int           `json:"inFlight"`
	AttemptsInWindow int           `json:"attemptsInWindow"`
	MaxConcurrent    int           `json:"maxConcurrent"`
	RateLimit        int           `json:"rateLimit"`
	Window           time.Duration `json:"window"`
}

// Governor is the admission gate. It owns the rate window (attempt start
// timestamps) and the in-flight counter; every read-modify-write of either
// happens under mu.
type Governor struct {
	cfg GovernorConfig

	mu       sync.Mutex
	attempts []time.Time // ascending
	inFlight int
	released chan struct{} // closed and replaced on every release

	now    func() time.Time
	spread func(min, max time.Duration) time.Duration
}

// NewGovernor creates a governor with an empty rate window
func NewGovernor(cfg GovernorConfig) *Governor {
	return &Governor{
		cfg:      cfg.withDefaults(),
		released: make(chan struct{}),
		now:      time.Now,
		spread:   randomBetween,
	}
}

func randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

// TryAdmit checks both caps once. When admitted it returns a release func
// that must be called when the request reaches a terminal state; otherwise
// it returns how long to wait before checking again (0 = until a release).
func (g *Governor) TryAdmit() (release func(), wait time.Duration, ok bool) {
	release, wait, _, ok = g.tryAdmit()
	return release, wait, ok
}

func (g *Governor) tryAdmit() (func(), time.Duration, <-chan struct{}, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.trimLocked(now)

	if g.inFlight < g.cfg.MaxConcurrent && len(g.attempts) < g.cfg.RateLimit {
		g.inFlight++
		g.attempts = append(g.attempts, now)
		return g.releaseFunc(), 0, nil, true
	}

	return nil, g.waitLocked(now), g.released, false
}

// Acquire blocks until the request is admitted or ctx is done
func (g *Governor) Acquire(ctx context.Context) (func(), error) {
	for {
		release, wait, wake, ok := g.tryAdmit()
		if ok {
			return release, nil
		}

		if wait <= 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-wake:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// ReserveAttempt records a retry attempt in the rate window, waiting while
// the window is full. The caller already holds a concurrency slot.
func (g *Governor) ReserveAttempt(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.now()
		g.trimLocked(now)
		if len(g.attempts) < g.cfg.RateLimit {
			g.attempts = append(g.attempts, now)
			g.mu.Unlock()
			return nil
		}
		wait := g.waitLocked(now)
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// releaseFunc returns a func that decrements the in-flight counter exactly once
func (g *Governor) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			g.inFlight--
			close(g.released)
			g.released = make(chan struct{})
		})
	}
}

// trimLocked drops attempts that left the accounting window
func (g *Governor) trimLocked(now time.Time) {
	cutoff := now.Add(-g.cfg.Window)
	i := 0
	for i < len(g.attempts) && !g.attempts[i].After(cutoff) {
		i++
	}
	if i > 0 {
		g.attempts = append(g.attempts[:0], g.attempts[i:]...)
	}
}

// waitLocked computes how long a rejected request should wait
func (g *Governor) waitLocked(now time.Time) time.Duration {
	n := len(g.attempts)
	switch {
	case n == 0:
		return 0
	case n >= g.cfg.RateLimit:
		wait := g.attempts[0].Add(g.cfg.Window).Sub(now) + g.cfg.CapacityBuffer
		if wait < g.cfg.CapacityBuffer {
			wait = g.cfg.CapacityBuffer
		}
		return wait
	case float64(n)/float64(g.cfg.RateLimit) > g.cfg.SpreadThreshold:
		return g.spread(g.cfg.SpreadMin, g.cfg.SpreadMax)
	default:
		return 0
	}
}

// Stats returns the current window usage
func (g *Governor) Stats() GovernorStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trimLocked(g.now())
	return GovernorStats{
		InFlight:         g.inFlight,
		AttemptsInWindow: len(g.attempts),
		MaxConcurrent:    g.cfg.MaxConcurrent,
		RateLimit:        g.cfg.RateLimit,
		Window:           g.cfg.Window,
	}
}
