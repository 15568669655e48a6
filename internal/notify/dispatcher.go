package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/metrics"
)

const (
	defaultCountWorkers = 4
	defaultQueueSize    = 1024
	defaultRate         = rate.Limit(50) // events per second
	defaultBurst        = 10
	defaultMaxAttempts  = 3
)

type sender interface {
	Send(ctx context.Context, event Event) error
}

type observer interface {
	ObserveNotification(outcome string)
}

type delivery struct {
	event   Event
	attempt int
}

type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.countWorkers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan delivery, n)
		}
	}
}

// Limit outgoing requests to r per second with the given burst
func WithRate(r rate.Limit, burst int) DispatcherOption {
	return func(d *Dispatcher) {
		d.limiter = rate.NewLimiter(r, burst)
	}
}

func WithMaxAttempts(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

func WithMetrics(m observer) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Asynchronous Notifier: events are queued and sent by a pool of workers
// When the queue is full new events are dropped
type Dispatcher struct {
	queue        chan delivery
	countWorkers int
	maxAttempts  int
	limiter      *rate.Limiter

	// Notification service may answer with Retry-After
	// Workers hold off until the time is up (unix nanoseconds)
	waitUntil atomic.Int64

	client  sender
	metrics observer
	logger  logger.Logger
	now     func() time.Time
}

func NewDispatcher(client sender, l logger.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:        make(chan delivery, defaultQueueSize),
		countWorkers: defaultCountWorkers,
		maxAttempts:  defaultMaxAttempts,
		limiter:      rate.NewLimiter(defaultRate, defaultBurst),
		client:       client,
		metrics:      (*metrics.Metrics)(nil),
		logger:       l,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Notify(_ context.Context, accountID uuid.UUID, kind Kind, payload any) {
	event := Event{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: d.now(),
	}

	if !d.enqueue(delivery{event: event}) {
		d.logger.Warn("Notification queue is full, event dropped", "event_id", event.ID, "kind", kind, "account_id", accountID)
	}
}

// Start workers; the returned channel is closed when all of them stopped
// Events still queued when ctx is done are not delivered
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range d.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		if n := len(d.queue); n > 0 {
			d.logger.Warn("Dispatcher stopped with undelivered events", "count", n)
		}
		d.logger.Debug("Dispatcher stopped")
	}()

	return idleStopped
}

func (d *Dispatcher) enqueue(dl delivery) bool {
	select {
	case d.queue <- dl:
		return true
	default:
		d.metrics.ObserveNotification(metrics.NotificationDropped)
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case dl := <-d.queue:
			if !d.holdOff(ctx) {
				return
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.deliver(ctx, dl)
		}
	}
}

// Wait until throttling is over; false if context is done first
func (d *Dispatcher) holdOff(ctx context.Context) bool {
	for {
		waitUntil := time.Unix(0, d.waitUntil.Load())
		wait := waitUntil.Sub(d.now())
		if wait <= 0 {
			return true
		}

		d.logger.Debug("Worker is waiting for throttling to reset", "wait_until", waitUntil)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, dl delivery) {
	dl.attempt++
	err := d.client.Send(ctx, dl.event)
	if err == nil {
		d.metrics.ObserveNotification(metrics.NotificationSent)
		return
	}

	var derr *DeliveryError
	if !errors.As(err, &derr) {
		derr = &DeliveryError{Code: CodeUnknown, Err: err}
	}

	if derr.Code == CodeRetryAfter {
		d.logger.Info("Notification throttled, waiting", "retry_after", derr.RetryAfter)
		d.waitUntil.Store(d.now().Add(derr.RetryAfter).UnixNano())
	}

	// Throttled attempts count too, an endpoint answering 429 forever must not keep the event alive
	if derr.Code == CodeRejected || dl.attempt >= d.maxAttempts {
		d.metrics.ObserveNotification(metrics.NotificationFailed)
		d.logger.Error("Failed to deliver event", "error", err, "event_id", dl.event.ID, "kind", dl.event.Kind, "attempt", dl.attempt)
		return
	}

	d.metrics.ObserveNotification(metrics.NotificationRetried)
	if !d.enqueue(dl) {
		d.logger.Warn("Notification queue is full, retry dropped", "event_id", dl.event.ID)
	}
}
