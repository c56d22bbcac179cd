package semantics

import (
	"context"
	"sync"
)

// timeoutRWMutex is a sync.RWMutex that can be acquired under a
// context.Context deadline instead of blocking forever. The stdlib
// RWMutex has no native cancellation, so acquisition happens on a
// background goroutine and the caller races it against ctx.Done(); if
// ctx wins, the goroutine is left to finish acquiring and immediately
// release without the caller ever touching the guarded value. No
// third-party library in the pack offers a context-aware RWMutex
// (golang.org/x/sync/semaphore is the closest ecosystem fit but isn't a
// dependency any example repo actually pulls in), so this is a
// deliberately stdlib-only piece of infrastructure.
type timeoutRWMutex struct {
	mu sync.RWMutex
}

func (l *timeoutRWMutex) Lock(ctx context.Context) error {
	acquired := make(chan struct{})

	go func() {
		l.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.mu.Unlock()
		}()

		return ctx.Err()
	}
}

func (l *timeoutRWMutex) Unlock() { l.mu.Unlock() }

func (l *timeoutRWMutex) RLock(ctx context.Context) error {
	acquired := make(chan struct{})

	go func() {
		l.mu.RLock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.mu.RUnlock()
		}()

		return ctx.Err()
	}
}

func (l *timeoutRWMutex) RUnlock() { l.mu.RUnlock() }
