/*
Package lock serializes work on one aggregate.

PURPOSE:
  The engine is written as if single-threaded per Session or Payment. The
  service takes a lock keyed by the aggregate before its read-check-write
  cycle, so two bookings for the last seat can never both observe a free
  seat. Different keys never contend.

IMPLEMENTATIONS:
  - KeyedMutex:  in-process, for a single server
  - RedisLocker: SET NX PX lease with a token-checked release, for several
                 servers sharing one database

KEYS:
  SessionKey and PaymentKey build the canonical key strings.
*/
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock on key. The returned release function
// must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

func SessionKey(id string) string { return "session:" + id }
func PaymentKey(id string) string { return "payment:" + id }

// =============================================================================
// KEYED MUTEX - in-process
// =============================================================================

// KeyedMutex holds one channel-based mutex per key and frees it when the
// last holder or waiter is done.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{} // buffered(1): full means held
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.drop(key, e)
		})
	}, nil
}

func (k *KeyedMutex) drop(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Len reports how many keys are held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
