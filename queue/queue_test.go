package queue

import "testing"

// S4: MaxPriority = 3. Enqueue (A,1) (B,3) (C,1) (D,3). Dequeue order
// must be [B, D, A, C] — higher priority drains first, FIFO within a lane.
func TestPriorityOrdering(t *testing.T) {
	q := New[string](3, 0)
	q.Enqueue("A", 1)
	q.Enqueue("B", 3)
	q.Enqueue("C", 1)
	q.Enqueue("D", 3)

	want := []string{"B", "D", "A", "C"}
	for i, w := range want {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: queue unexpectedly empty", i)
		}
		if got != w {
			t.Fatalf("dequeue %d: got %q, want %q", i, got, w)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected empty queue after draining all elements")
	}
}

func TestPriorityClamping(t *testing.T) {
	q := New[int](2, 0)
	q.Enqueue(1, -5)
	q.Enqueue(2, 99)
	got, _ := q.Dequeue()
	if got != 2 {
		t.Fatalf("expected priority 99 clamped to lane 2 to drain first, got %d", got)
	}
	got, _ = q.Dequeue()
	if got != 1 {
		t.Fatalf("expected priority -5 clamped to lane 0, got %d", got)
	}
}

func TestMaxSizeRejection(t *testing.T) {
	q := New[int](0, 2)
	if !q.Enqueue(1, 0) {
		t.Fatalf("first enqueue should succeed")
	}
	if !q.Enqueue(2, 0) {
		t.Fatalf("second enqueue should succeed")
	}
	if q.Enqueue(3, 0) {
		t.Fatalf("third enqueue should be rejected once approx size reaches max_size")
	}
	if q.Size() != 2 {
		t.Fatalf("expected size 2, got %d", q.Size())
	}
}

func TestFIFOWithinLane(t *testing.T) {
	q := New[int](0, 0)
	for i := 0; i < 100; i++ {
		q.Enqueue(i, 0)
	}
	for i := 0; i < 100; i++ {
		got, ok := q.Dequeue()
		if !ok || got != i {
			t.Fatalf("expected %d, got %d (ok=%v)", i, got, ok)
		}
	}
}
