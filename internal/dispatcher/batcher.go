package dispatcher

import (
	"cmp"
	"slices"
	"time"

	"go_flare/internal/dnstypes"
)

// OrderBatch sorts one window of requests by priority, highest first.
// Requests with equal priority keep their arrival order.
func OrderBatch(batch []dnstypes.UpdateRequest) []dnstypes.UpdateRequest {
	ordered := slices.Clone(batch)
	slices.SortStableFunc(ordered, func(a, b dnstypes.UpdateRequest) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return ordered
}

// Batcher collects requests per time window and releases them one at a
// time, in window order, priority-sorted within each window. Intake never
// waits on the consumer: released windows queue in memory until taken.
type Batcher struct {
	window time.Duration
	in     chan dnstypes.UpdateRequest
	out    chan dnstypes.UpdateRequest

	// onRelease is called with each non-empty ordered window
	onRelease func(batch []dnstypes.UpdateRequest)
}

// NewBatcher creates a batcher; intakeSize bounds only the hand-off channel
func NewBatcher(window time.Duration, intakeSize int) *Batcher {
	if intakeSize < 1 {
		intakeSize = 1
	}
	return &Batcher{
		window: window,
		in:     make(chan dnstypes.UpdateRequest, intakeSize),
		out:    make(chan dnstypes.UpdateRequest),
	}
}

// In is the intake channel. Closing it flushes the open window and,
// once everything was taken from Out, closes Out.
func (b *Batcher) In() chan<- dnstypes.UpdateRequest {
	return b.in
}

// Out yields released requests one at a time
func (b *Batcher) Out() <-chan dnstypes.UpdateRequest {
	return b.out
}

// Run is the batching loop; it returns after In is closed and drained
func (b *Batcher) Run() {
	defer close(b.out)

	ticker := time.NewTicker(b.window)
	defer ticker.Stop()

	var (
		open    []dnstypes.UpdateRequest // current window, arrival order
		pending []dnstypes.UpdateRequest // released, not yet taken
		closed  bool
	)

	release := func() {
		if len(open) == 0 {
			return
		}
		ordered := OrderBatch(open)
		if b.onRelease != nil {
			b.onRelease(ordered)
		}
		pending = append(pending, ordered...)
		open = nil
	}

	for {
		if closed && len(pending) == 0 {
			return
		}

		var (
			out  chan<- dnstypes.UpdateRequest
			next dnstypes.UpdateRequest
			in   <-chan dnstypes.UpdateRequest
		)
		if len(pending) > 0 {
			out = b.out
			next = pending[0]
		}
		if !closed {
			in = b.in
		}

		select {
		case req, ok := <-in:
			if !ok {
				closed = true
				release()
				continue
			}
			open = append(open, req)
		case <-ticker.C:
			release()
		case out <- next:
			pending[0] = dnstypes.UpdateRequest{}
			pending = pending[1:]
		}
	}
}
