// Package lock holds the mutual-exclusion primitives the engines rely on:
// an in-process mutex per key for booking writes, and a Redis-backed guard
// for deduplicating payment confirmations.
package lock

import "sync"

// KeyedMutex hands out one mutex per key. Mutexes are created on first use
// and never removed, so a key always maps to the same lock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *KeyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// Lock blocks until key is held and returns the matching unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	m := k.get(key)
	m.Lock()
	return m.Unlock
}

// WithLock runs fn while holding key.
func (k *KeyedMutex) WithLock(key string, fn func() error) error {
	unlock := k.Lock(key)
	defer unlock()
	return fn()
}
