package locker

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/anirudh/go-ridebid/internal/errors"
)

// RideLocks serializes all bid-set mutations on a single ride. Operations on
// different rides proceed concurrently. Acquire waits at most the configured
// bound, then gives up so a stuck ride never starves unrelated work.
type RideLocks struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

type entry struct {
	sem  chan struct{}
	refs int
}

func New(wait time.Duration) *RideLocks {
	return &RideLocks{
		entries: make(map[string]*entry),
		wait:    wait,
	}
}

// Acquire takes the exclusive section for rideID. It returns a release
// function on success. On a bounded-wait timeout it returns ErrBusy; callers
// may retry with backoff.
func (l *RideLocks) Acquire(ctx context.Context, rideID string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[rideID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[rideID] = e
	}
	e.refs++
	l.mu.Unlock()

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			l.put(rideID, e)
		}, nil
	case <-ctx.Done():
		l.put(rideID, e)
		return nil, ctx.Err()
	case <-timer.C:
		l.put(rideID, e)
		return nil, apperrors.ErrBusy
	}
}

// put drops one reference and evicts the entry once nobody holds or waits on
// it, so the map does not grow with ride history.
func (l *RideLocks) put(rideID string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, rideID)
	}
	l.mu.Unlock()
}
