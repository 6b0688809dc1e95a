package redis

import (
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	fallbackTTL        = 5 * time.Minute
	maxFallbackEntries = 10000
)

// lastValues remembers recent GET replies by key so an open breaker can still answer reads.
// Entries older than fallbackTTL are never served. When full, expired entries are evicted
// first and new keys are dropped if none have expired.
type lastValues struct {
	clock   clockwork.Clock
	mu      sync.RWMutex
	entries map[string]lastValue
}

type lastValue struct {
	value  string
	seenAt time.Time
}

func newLastValues(clock clockwork.Clock) *lastValues {
	return &lastValues{clock: clock, entries: make(map[string]lastValue)}
}

func (v *lastValues) put(key any, value string) {
	now := v.clock.Now()
	k := fmt.Sprint(key)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.entries[k]; !exists && len(v.entries) >= maxFallbackEntries {
		for old, e := range v.entries {
			if now.Sub(e.seenAt) > fallbackTTL {
				delete(v.entries, old)
			}
		}
		if len(v.entries) >= maxFallbackEntries {
			return
		}
	}
	v.entries[k] = lastValue{value: value, seenAt: now}
}

func (v *lastValues) get(key any) (string, bool) {
	v.mu.RLock()
	e, ok := v.entries[fmt.Sprint(key)]
	v.mu.RUnlock()
	if !ok || v.clock.Since(e.seenAt) > fallbackTTL {
		return "", false
	}
	return e.value, true
}

func (v *lastValues) drop(keys ...any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, key := range keys {
		delete(v.entries, fmt.Sprint(key))
	}
}

func (v *lastValues) len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries)
}
