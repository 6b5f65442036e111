package store

import "context"

// Semaphore bounds concurrent in-flight writes to the pool size: rather
// than letting request goroutines pile up waiting on pgxpool's internal
// queue (where a slow query starves unrelated requests invisibly),
// callers acquire a token up front, waiting until one frees up, and get
// ctx's error if ctx is done first. Waiters are never rejected for the
// queue being long.
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore creates a Semaphore sized to n concurrent holders.
func NewSemaphore(n int) *Semaphore {
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a token is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a token to the pool. Callers must pair every successful
// Acquire with exactly one Release.
func (s *Semaphore) Release() {
	<-s.tokens
}
