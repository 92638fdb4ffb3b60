package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// Policy decides what Enqueue does when the queue is full.
type Policy string

const (
	// PolicyBlock waits for room in the queue.
	PolicyBlock Policy = "block"
	// PolicyDrop discards the new event and logs it.
	PolicyDrop Policy = "drop"
)

// DefaultDrainTimeout bounds how long Close waits for queued events.
const DefaultDrainTimeout = 10 * time.Second

var (
	// ErrQueueFull is returned by Enqueue when an event was dropped.
	ErrQueueFull = errors.New("delivery queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// ParsePolicy converts a config value into a Policy. Empty means PolicyBlock.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyBlock:
		return PolicyBlock, nil
	case PolicyDrop:
		return PolicyDrop, nil
	default:
		return "", fmt.Errorf("unknown queue policy %q (expected block or drop)", s)
	}
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	QueueSize    int // 0 delivers synchronously inside Enqueue
	Policy       Policy
	DrainTimeout time.Duration
	History      database.HistoryWriter // optional, records successful deliveries
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
	Pending   int   `json:"pending"`
}

// Dispatcher hands events to an Emitter on a single worker goroutine behind a
// bounded queue, so a slow recording service does not stall frame capture.
type Dispatcher struct {
	emitter Emitter
	opts    DispatcherOptions

	queue  chan attendance.Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher and starts its worker when QueueSize > 0.
func NewDispatcher(emitter Emitter, opts DispatcherOptions) *Dispatcher {
	if opts.Policy == "" {
		opts.Policy = PolicyBlock
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		emitter: emitter,
		opts:    opts,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	if opts.QueueSize > 0 {
		d.queue = make(chan attendance.Event, opts.QueueSize)
		go d.run()
	} else {
		close(d.done)
	}
	return d
}

// Enqueue submits ev for delivery. Delivery failures are logged, never returned;
// the error only reports that ev was not accepted (dropped, closed, or ctx done).
func (d *Dispatcher) Enqueue(ctx context.Context, ev attendance.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	if d.queue == nil {
		d.deliver(ctx, ev)
		return nil
	}

	if d.opts.Policy == PolicyDrop {
		select {
		case d.queue <- ev:
			return nil
		default:
			d.dropped.Add(1)
			log.Printf("Warning: delivery queue full, dropped event for %s at %s %s", ev.StudentID, ev.Date, ev.Time)
			return ErrQueueFull
		}
	}

	select {
	case d.queue <- ev:
		return nil
	case <-ctx.Done():
		log.Printf("Warning: event for %s at %s %s not queued: %v", ev.StudentID, ev.Date, ev.Time, ctx.Err())
		return ctx.Err()
	}
}

// Close stops accepting events and waits up to the drain timeout for queued
// events to be delivered. Events still queued after that are logged as lost.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	if d.queue != nil {
		close(d.queue)
	}
	d.mu.Unlock()

	timer := time.NewTimer(d.opts.DrainTimeout)
	defer timer.Stop()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-timer.C:
		pending := len(d.queue)
		d.cancel()
		<-d.done
		return fmt.Errorf("drain timeout after %s, %d event(s) not delivered", d.opts.DrainTimeout, pending)
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
	}
	if d.queue != nil {
		s.Pending = len(d.queue)
	}
	return s
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.queue {
		d.deliver(d.ctx, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev attendance.Event) {
	if err := d.emitter.Emit(ctx, ev); err != nil {
		d.failed.Add(1)
		log.Printf("Warning: attendance for %s at %s %s not delivered: %v", ev.StudentID, ev.Date, ev.Time, err)
		return
	}
	d.delivered.Add(1)
	log.Printf("Delivered attendance for %s (%s) at %s %s: %s", ev.StudentID, ev.Name, ev.Date, ev.Time, ev.Status)

	if d.opts.History == nil {
		return
	}
	rec := database.AttendanceRecord{
		EventID:   ev.ID,
		StudentID: ev.StudentID,
		Date:      ev.Date,
		Time:      ev.Time,
		Status:    ev.Status,
		ImagePath: ev.ImagePath,
	}
	// The history write uses its own context so it still runs while draining.
	hctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
	defer cancel()
	if err := d.opts.History.RecordAttendance(hctx, rec); err != nil {
		log.Printf("Warning: failed to record attendance history for %s on %s: %v", ev.StudentID, ev.Date, err)
	}
}
