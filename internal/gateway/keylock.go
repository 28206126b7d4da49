package gateway

import (
	"context"
	"sync"
	"time"

	"buffet-system/internal/domain"
)

// keyedLock hands out one exclusive critical section per resource key
// ("table:5", "user:7"). Different keys proceed fully in parallel; the same
// key is strictly serialized. Waiters give up after the bounded wait with
// ErrBusy so a stuck holder cannot starve everyone behind it.
type keyedLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	// sem holds one token when the section is free.
	sem  chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[string]*lockEntry)}
}

// acquire blocks until the section for key is free, the wait elapses, or ctx
// is cancelled. On success the returned func releases the section.
func (l *keyedLock) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		e.sem <- struct{}{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-e.sem:
		return func() {
			e.sem <- struct{}{}
			l.unref(key)
		}, nil
	case <-timer.C:
		l.unref(key)
		return nil, domain.ErrBusy
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	}
}

// unref drops one holder/waiter; the entry is reclaimed once nobody
// references it.
func (l *keyedLock) unref(key string) {
	l.mu.Lock()
	if e, ok := l.locks[key]; ok {
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
	}
	l.mu.Unlock()
}
