// Package shareddata implements the shared-data store (spec.md §4.10):
// typed key/value state visible to all contexts with optional TTL and
// deferred, mutex-free watch notifications.
package shareddata

import (
	"sort"
	"sync"

	"github.com/lixenwraith/tasrun/serialize"
)

// StoredValue is a SerializedValue plus optional absolute expiry
// (spec.md §3 StoredValue). ExpiryTickMs == 0 means no expiry.
type StoredValue struct {
	Value        serialize.Value
	ExpiryTickMs uint64
}

func (sv StoredValue) expired(nowTickMs uint64) bool {
	return sv.ExpiryTickMs != 0 && sv.ExpiryTickMs <= nowTickMs
}

// WatchCallback receives the old and new values for a watched key.
type WatchCallback func(key string, oldValue, newValue serialize.Value)

// ContextAlive reports whether a watch's owning context is still alive,
// the same weak-reference liveness check the bus uses.
type ContextAlive func() bool

type watchEntry struct {
	contextName string
	alive       ContextAlive
	callback    WatchCallback
	generation  uint64
}

type pendingNotification struct {
	key              string
	oldVal, newVal   serialize.Value
}

// Store is the shared-data store. Set/Get/Has/Remove/Clear are
// mutex-protected and callable from any thread; watch callbacks are
// always deferred to Tick's post-unlock flush so they can safely call
// back into the store (spec.md §4.10).
type Store struct {
	mu sync.Mutex

	values  map[string]StoredValue
	watches map[string][]watchEntry // key -> watches
	nextGen uint64

	pending []pendingNotification
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		values:  make(map[string]StoredValue),
		watches: make(map[string][]watchEntry),
	}
}

// Set serializes value, stores it (with optional absolute expiry), and
// queues a watch notification with the old and new stored values — even
// when identical, a set counts as a change (spec.md §4.10).
func (s *Store) Set(key string, value serialize.Value, expiryTickMs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, hadOld := s.values[key]
	oldVal := serialize.Nil()
	if hadOld && !old.expired(0) {
		oldVal = old.Value
	}
	s.values[key] = StoredValue{Value: value, ExpiryTickMs: expiryTickMs}
	s.queueNotification(key, oldVal, value)
}

// Get lazily evicts an expired entry (queuing a nil-change notification)
// and returns the default value in that case; otherwise returns the
// stored value.
func (s *Store) Get(key string, nowTickMs uint64, def serialize.Value) serialize.Value {
	s.mu.Lock()
	defer s.mu.Unlock()

	sv, ok := s.values[key]
	if !ok {
		return def
	}
	if sv.expired(nowTickMs) {
		delete(s.values, key)
		s.queueNotification(key, sv.Value, serialize.Nil())
		return def
	}
	return sv.Value
}

// Has reports whether key holds a live (non-expired) value.
func (s *Store) Has(key string, nowTickMs uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.values[key]
	if !ok {
		return false
	}
	if sv.expired(nowTickMs) {
		delete(s.values, key)
		s.queueNotification(key, sv.Value, serialize.Nil())
		return false
	}
	return true
}

// Remove deletes key unconditionally, queuing a nil-change notification
// if it held a live value.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sv, ok := s.values[key]
	if !ok {
		return
	}
	delete(s.values, key)
	s.queueNotification(key, sv.Value, serialize.Nil())
}

// Clear removes every entry, queuing nil-change notifications for all of
// them.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sv := range s.values {
		s.queueNotification(key, sv.Value, serialize.Nil())
	}
	s.values = make(map[string]StoredValue)
}

// GetKeys returns every live (non-expired) key, sorted for determinism.
func (s *Store) GetKeys(nowTickMs uint64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.values))
	for key, sv := range s.values {
		if !sv.expired(nowTickMs) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// GetSize returns the count of live (non-expired) entries.
func (s *Store) GetSize(nowTickMs uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sv := range s.values {
		if !sv.expired(nowTickMs) {
			n++
		}
	}
	return n
}

// Watch stores a weak-ref WatchEntry with a monotonically increasing
// generation and returns a token Unwatch can use to remove just this
// registration.
func (s *Store) Watch(contextName, key string, alive ContextAlive, cb WatchCallback) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextGen++
	gen := s.nextGen
	s.watches[key] = append(s.watches[key], watchEntry{
		contextName: contextName, alive: alive, callback: cb, generation: gen,
	})
	return gen
}

// Unwatch removes the single watch identified by (key, generation).
func (s *Store) Unwatch(key string, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.watches[key]
	for i, e := range entries {
		if e.generation == generation {
			s.watches[key] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// UnwatchAll removes every watch registered by contextName, across all
// keys, for context teardown.
func (s *Store) UnwatchAll(contextName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entries := range s.watches {
		kept := entries[:0]
		for _, e := range entries {
			if e.contextName != contextName {
				kept = append(kept, e)
			}
		}
		s.watches[key] = kept
	}
}

// queueNotification must be called with s.mu held.
func (s *Store) queueNotification(key string, oldVal, newVal serialize.Value) {
	s.pending = append(s.pending, pendingNotification{key: key, oldVal: oldVal, newVal: newVal})
}

// Tick runs the per-tick TTL pass (expiring entries whose deadline has
// passed, queuing watch notifications) and then flushes every queued
// notification outside the mutex, per spec.md §4.10 and the ordering
// contract in §5 ("shared-data TTL pass -> watch notifications ->
// message delivery -> context ticks ... -> input system apply").
// Notifications for destroyed contexts are silently dropped.
func (s *Store) Tick(nowTickMs uint64) {
	s.mu.Lock()
	for key, sv := range s.values {
		if sv.expired(nowTickMs) {
			delete(s.values, key)
			s.queueNotification(key, sv.Value, serialize.Nil())
		}
	}
	toFlush := s.pending
	s.pending = nil
	watchesByKey := make(map[string][]watchEntry, len(toFlush))
	for _, n := range toFlush {
		if _, ok := watchesByKey[n.key]; !ok {
			watchesByKey[n.key] = append([]watchEntry(nil), s.watches[n.key]...)
		}
	}
	s.mu.Unlock()

	for _, n := range toFlush {
		for _, w := range watchesByKey[n.key] {
			if w.alive != nil && !w.alive() {
				continue
			}
			w.callback(n.key, n.oldVal, n.newVal)
		}
	}
}
