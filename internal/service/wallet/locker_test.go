package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
)

func TestLocker(t *testing.T) {
	t.Run("busy account times out", func(t *testing.T) {
		l := newLocker(20 * time.Millisecond)
		id := uuid.New()

		release, err := l.Lock(t.Context(), id)
		require.NoError(t, err)
		defer release()

		_, err = l.Lock(t.Context(), id)

		require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
	})

	t.Run("other accounts are independent", func(t *testing.T) {
		l := newLocker(20 * time.Millisecond)

		release, err := l.Lock(t.Context(), uuid.New())
		require.NoError(t, err)
		defer release()

		other, err := l.Lock(t.Context(), uuid.New())
		require.NoError(t, err)
		other()
	})

	t.Run("release lets the next one in", func(t *testing.T) {
		l := newLocker(time.Second)
		id := uuid.New()

		release, err := l.Lock(t.Context(), id)
		require.NoError(t, err)
		go func() {
			time.Sleep(20 * time.Millisecond)
			release()
		}()

		next, err := l.Lock(t.Context(), id)
		require.NoError(t, err)
		next()
	})

	t.Run("partial lock is released on timeout", func(t *testing.T) {
		l := newLocker(20 * time.Millisecond)
		a, b := uuid.New(), uuid.New()

		holdB, err := l.Lock(t.Context(), b)
		require.NoError(t, err)

		_, err = l.Lock(t.Context(), a, b)
		require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

		// a must be free again
		holdA, err := l.Lock(t.Context(), a)
		require.NoError(t, err)
		holdA()
		holdB()
		require.Empty(t, l.locks, "released entries are removed")
	})

	t.Run("canceled context", func(t *testing.T) {
		l := newLocker(0)
		id := uuid.New()
		release, err := l.Lock(t.Context(), id)
		require.NoError(t, err)
		defer release()

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
		defer cancel()
		_, err = l.Lock(ctx, id)

		require.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("crossed pairs do not deadlock", func(t *testing.T) {
		l := newLocker(0)
		a, b := uuid.New(), uuid.New()
		var inside atomic.Int32
		var wg sync.WaitGroup

		for i := range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ids := []uuid.UUID{a, b}
				if i%2 == 1 {
					ids = []uuid.UUID{b, a}
				}
				release, err := l.Lock(context.Background(), ids...)
				if err != nil {
					t.Error(err)
					return
				}
				if inside.Add(1) != 1 {
					t.Error("two holders inside the critical section")
				}
				inside.Add(-1)
				release()
			}()
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("deadlock")
		}
	})
}
