package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/venuewallet/internal/apperrors"
	"github.com/nkiryanov/venuewallet/internal/service/ledger"
)

// In-process mutual exclusion per account
// Entries live only while somebody holds or waits for them
type locker struct {
	mu    sync.Mutex
	wait  time.Duration
	locks map[uuid.UUID]*accountLock
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

// Zero wait means wait until the context is done
func newLocker(wait time.Duration) *locker {
	return &locker{
		wait:  wait,
		locks: make(map[uuid.UUID]*accountLock),
	}
}

// Lock accounts in ascending id order and return the release func
// If not all locks are taken in time returns apperrors.ErrConcurrencyConflict
func (l *locker) Lock(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	var timeout <-chan time.Time
	if l.wait > 0 {
		timer := time.NewTimer(l.wait)
		defer timer.Stop()
		timeout = timer.C
	}

	held := make([]uuid.UUID, 0, len(ids))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, id := range ledger.SortedIDs(ids...) {
		lock := l.ref(id)

		select {
		case lock.ch <- struct{}{}:
			held = append(held, id)

		case <-timeout:
			l.unref(id)
			release()
			return nil, fmt.Errorf("account %s is busy: %w", id, apperrors.ErrConcurrencyConflict)

		case <-ctx.Done():
			l.unref(id)
			release()
			return nil, fmt.Errorf("waiting for account %s: %w: %w", id, apperrors.ErrConcurrencyConflict, ctx.Err())
		}
	}

	return release, nil
}

func (l *locker) ref(id uuid.UUID) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = &accountLock{ch: make(chan struct{}, 1)}
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *locker) unref(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.locks[id]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

func (l *locker) unlock(id uuid.UUID) {
	l.mu.Lock()
	lock := l.locks[id]
	l.mu.Unlock()

	<-lock.ch
	l.unref(id)
}
