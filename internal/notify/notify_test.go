package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nkiryanov/venuewallet/internal/logger"
	"github.com/nkiryanov/venuewallet/internal/metrics"
)

type outcomes struct {
	mu   sync.Mutex
	seen map[string]int
}

func (o *outcomes) ObserveNotification(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen == nil {
		o.seen = make(map[string]int)
	}
	o.seen[outcome]++
}

func (o *outcomes) count(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seen[outcome]
}

// Webhook that answers with the queued statuses, then accepts events
type webhook struct {
	mu       sync.Mutex
	statuses []int
	headers  []http.Header
	events   []Event
}

func (wh *webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wh.mu.Lock()
	defer wh.mu.Unlock()

	var e Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	wh.headers = append(wh.headers, r.Header.Clone())

	if len(wh.statuses) > 0 {
		status := wh.statuses[0]
		wh.statuses = wh.statuses[1:]
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.WriteHeader(status)
		return
	}

	wh.events = append(wh.events, e)
	w.WriteHeader(http.StatusAccepted)
}

func (wh *webhook) delivered() []Event {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return append([]Event(nil), wh.events...)
}

func (wh *webhook) calls() int {
	wh.mu.Lock()
	defer wh.mu.Unlock()
	return len(wh.headers)
}

func TestClient_Send(t *testing.T) {
	event := Event{ID: uuid.New(), AccountID: uuid.New(), Kind: KindTopUp, Payload: map[string]any{"amount": 100}}

	tests := []struct {
		name       string
		status     int
		retryAfter string
		code       string
		wait       time.Duration
	}{
		{"accepted", http.StatusAccepted, "", "", 0},
		{"throttled", http.StatusTooManyRequests, "7", CodeRetryAfter, 7 * time.Second},
		{"throttled without header", http.StatusTooManyRequests, "", CodeRetryAfter, time.Minute},
		{"rejected", http.StatusUnprocessableEntity, "", CodeRejected, 0},
		{"server error", http.StatusBadGateway, "", CodeUnknown, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got Event
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, event.ID.String(), r.Header.Get("Idempotency-Key"))
				_ = json.NewDecoder(r.Body).Decode(&got)

				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			err := NewClient(srv.URL, logger.NewNoOpLogger()).Send(t.Context(), event)

			require.Equal(t, event.ID, got.ID)
			require.Equal(t, KindTopUp, got.Kind)
			if tc.code == "" {
				require.NoError(t, err)
				return
			}
			var derr *DeliveryError
			require.ErrorAs(t, err, &derr)
			require.Equal(t, tc.code, derr.Code)
			require.Equal(t, tc.wait, derr.RetryAfter)
		})
	}

	t.Run("service is down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		err := NewClient(srv.URL, logger.NewNoOpLogger()).Send(t.Context(), event)

		var derr *DeliveryError
		require.ErrorAs(t, err, &derr)
		require.Equal(t, CodeUnknown, derr.Code)
	})
}

func TestDispatcher(t *testing.T) {
	start := func(t *testing.T, wh *webhook, opts ...DispatcherOption) (*Dispatcher, *outcomes) {
		srv := httptest.NewServer(wh)
		t.Cleanup(srv.Close)

		obs := &outcomes{}
		opts = append([]DispatcherOption{WithWorkers(2), WithRate(rate.Inf, 1), WithMetrics(obs)}, opts...)
		d := NewDispatcher(NewClient(srv.URL, logger.NewNoOpLogger()), logger.NewNoOpLogger(), opts...)

		ctx, cancel := context.WithCancel(context.Background())
		stopped := d.Run(ctx)
		t.Cleanup(func() {
			cancel()
			<-stopped
		})
		return d, obs
	}

	t.Run("deliver events", func(t *testing.T) {
		wh := &webhook{}
		d, obs := start(t, wh)
		accountID := uuid.New()

		d.Notify(t.Context(), accountID, KindTopUp, map[string]any{"amount": 100})
		d.Notify(t.Context(), accountID, KindRewardClaimed, map[string]any{"reward_id": "free-coffee"})
		d.Notify(t.Context(), accountID, KindPurchase, nil)

		require.Eventually(t, func() bool { return len(wh.delivered()) == 3 }, 5*time.Second, 10*time.Millisecond)
		kinds := make(map[Kind]bool)
		for _, e := range wh.delivered() {
			require.Equal(t, accountID, e.AccountID)
			kinds[e.Kind] = true
		}
		require.Len(t, kinds, 3)
		require.Equal(t, 3, obs.count(metrics.NotificationSent))
	})

	t.Run("retry server errors", func(t *testing.T) {
		wh := &webhook{statuses: []int{http.StatusInternalServerError}}
		d, obs := start(t, wh)

		d.Notify(t.Context(), uuid.New(), KindTopUp, nil)

		require.Eventually(t, func() bool { return len(wh.delivered()) == 1 }, 5*time.Second, 10*time.Millisecond)
		require.Equal(t, 1, obs.count(metrics.NotificationRetried))
		require.Equal(t, 1, obs.count(metrics.NotificationSent))
	})

	t.Run("give up after max attempts", func(t *testing.T) {
		wh := &webhook{statuses: []int{500, 500, 500, 500}}
		d, obs := start(t, wh, WithMaxAttempts(2))

		d.Notify(t.Context(), uuid.New(), KindTopUp, nil)

		require.Eventually(t, func() bool { return obs.count(metrics.NotificationFailed) == 1 }, 5*time.Second, 10*time.Millisecond)
		require.Equal(t, 2, wh.calls())
		require.Empty(t, wh.delivered())
	})

	t.Run("rejected events are not retried", func(t *testing.T) {
		wh := &webhook{statuses: []int{http.StatusBadRequest}}
		d, obs := start(t, wh)

		d.Notify(t.Context(), uuid.New(), KindTopUp, nil)

		require.Eventually(t, func() bool { return obs.count(metrics.NotificationFailed) == 1 }, 5*time.Second, 10*time.Millisecond)
		require.Equal(t, 1, wh.calls())
	})

	t.Run("honour retry after", func(t *testing.T) {
		wh := &webhook{statuses: []int{http.StatusTooManyRequests}}
		d, _ := start(t, wh)
		started := time.Now()

		d.Notify(t.Context(), uuid.New(), KindTopUp, nil)

		require.Eventually(t, func() bool { return len(wh.delivered()) == 1 }, 5*time.Second, 10*time.Millisecond)
		require.GreaterOrEqual(t, time.Since(started), time.Second)
	})
}

func TestDispatcher_ThrottledForever(t *testing.T) {
	var sent atomic.Int32
	obs := &outcomes{}
	d := NewDispatcher(sendFunc(func(context.Context, Event) error {
		sent.Add(1)
		return &DeliveryError{Code: CodeRetryAfter, RetryAfter: time.Millisecond, Err: errors.New("429 Too Many Requests")}
	}), logger.NewNoOpLogger(), WithRate(rate.Inf, 1), WithMaxAttempts(3), WithMetrics(obs))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := d.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	d.Notify(t.Context(), uuid.New(), KindTopUp, nil)

	require.Eventually(t, func() bool { return obs.count(metrics.NotificationFailed) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return sent.Load() > 3 }, 100*time.Millisecond, 10*time.Millisecond, "event must be dropped after the last attempt")
	require.Equal(t, int32(3), sent.Load())
	require.Equal(t, 2, obs.count(metrics.NotificationRetried))
}

func TestDispatcher_QueueFull(t *testing.T) {
	obs := &outcomes{}
	d := NewDispatcher(sendFunc(func(context.Context, Event) error { return nil }), logger.NewNoOpLogger(), WithQueueSize(1), WithMetrics(obs))

	// Not running, so the queue is never drained
	d.Notify(t.Context(), uuid.New(), KindTopUp, nil)
	d.Notify(t.Context(), uuid.New(), KindTopUp, nil)

	require.Equal(t, 1, obs.count(metrics.NotificationDropped))
	require.Len(t, d.queue, 1)
}

func TestDispatcher_Stop(t *testing.T) {
	var sent atomic.Int32
	d := NewDispatcher(sendFunc(func(context.Context, Event) error {
		sent.Add(1)
		return errors.New("never called after stop")
	}), logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := d.Run(ctx)
	cancel()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	require.Equal(t, int32(0), sent.Load())
}

type sendFunc func(context.Context, Event) error

func (f sendFunc) Send(ctx context.Context, e Event) error {
	return f(ctx, e)
}
