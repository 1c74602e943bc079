// Package queue implements the lock-free priority MPSC queue (spec.md
// §4.1): many producers enqueue wait-free, a single consumer dequeues,
// priority lanes are drained highest-first and FIFO within a lane.
//
// Each lane is an intrusive Michael & Scott style singly-linked list with
// a permanent stub/sentinel node. Enqueue is a single atomic pointer swap
// plus an atomic store into the previous tail's next field — wait-free
// because no producer ever retries a CAS loop; the brief window where
// prev.next is not yet visible only delays the consumer, it never blocks
// another producer. This mirrors the published-flag discipline the
// teacher's event.EventQueue uses for its ring buffer (write payload,
// THEN publish), adapted from a bounded ring to an unbounded intrusive
// list so that each priority gets its own lane instead of sharing one
// index space.
package queue

import (
	"sync/atomic"
)

// cacheLinePad prevents false sharing between adjacent lanes' hot fields,
// the same padding idiom the retrieved alphadose/ZenQ reference and the
// teacher's own status metric maps rely on for cache-line isolation.
type cacheLinePad [64]byte

type node[T any] struct {
	next  atomic.Pointer[node[T]]
	value T
}

type lane[T any] struct {
	_    cacheLinePad
	tail atomic.Pointer[node[T]]
	_    cacheLinePad
	head *node[T] // consumer-owned only; never touched by producers
	_    cacheLinePad
}

// Queue is a bounded, wait-free-enqueue, single-consumer-dequeue priority
// queue with MaxPriority+1 lanes.
type Queue[T any] struct {
	lanes       []lane[T]
	maxPriority int
	maxSize     int64
	approxSize  atomic.Int64
}

// New creates a Queue with lanes [0, maxPriority] and the given approximate
// capacity bound.
func New[T any](maxPriority int, maxSize int) *Queue[T] {
	if maxPriority < 0 {
		maxPriority = 0
	}
	q := &Queue[T]{
		lanes:       make([]lane[T], maxPriority+1),
		maxPriority: maxPriority,
		maxSize:     int64(maxSize),
	}
	for i := range q.lanes {
		stub := &node[T]{}
		q.lanes[i].head = stub
		q.lanes[i].tail.Store(stub)
	}
	return q
}

// clampPriority clamps into [0, MaxPriority] per spec.md §4.1.
func (q *Queue[T]) clampPriority(priority int) int {
	if priority < 0 {
		return 0
	}
	if priority > q.maxPriority {
		return q.maxPriority
	}
	return priority
}

// Enqueue is wait-free: a producer performs exactly one atomic swap and
// one atomic store, never a retry loop. Returns false when the queue's
// approximate size has already reached maxSize, so at most maxSize
// entries are accepted (spec.md §4.1).
func (q *Queue[T]) Enqueue(value T, priority int) bool {
	if q.maxSize > 0 && q.approxSize.Load() >= q.maxSize {
		return false
	}
	priority = q.clampPriority(priority)
	n := &node[T]{value: value}
	l := &q.lanes[priority]
	prev := l.tail.Swap(n)
	prev.next.Store(n)
	q.approxSize.Add(1)
	return true
}

// Dequeue scans lanes from MaxPriority down to 0 and returns the oldest
// element of the first non-empty lane. Single-consumer only.
func (q *Queue[T]) Dequeue() (T, bool) {
	for p := q.maxPriority; p >= 0; p-- {
		l := &q.lanes[p]
		next := l.head.next.Load()
		if next == nil {
			continue
		}
		value := next.value
		// Drop the stale head; 'next' becomes the new stub so its
		// zero-value .value field is never observed again.
		l.head = next
		var zero T
		next.value = zero
		q.approxSize.Add(-1)
		return value, true
	}
	var zero T
	return zero, false
}

// Size returns an eventually-consistent approximate count (spec.md §4.1).
func (q *Queue[T]) Size() int {
	n := q.approxSize.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// DropPolicy documents the three nominal overflow policies a producer can
// request. Per spec.md §4.1/§9, DropOldest and Block both degenerate to
// DropNewest under this lock-free structure: the data structure has no
// efficient way to remove the oldest entry of the highest-priority lane
// without breaking the single-consumer dequeue invariant, and blocking a
// wait-free producer defeats the point of the structure. Callers that pass
// DropOldest or Block get DropNewest behavior and, at the message-bus
// layer, a one-time warning (spec.md §4.9).
type DropPolicy int

const (
	DropNewest DropPolicy = iota
	DropOldest
	Block
)

// EffectivePolicy returns the policy actually implemented for p, and
// whether p was degraded from what the caller asked for.
func EffectivePolicy(p DropPolicy) (effective DropPolicy, degraded bool) {
	if p == DropNewest {
		return DropNewest, false
	}
	return DropNewest, true
}
