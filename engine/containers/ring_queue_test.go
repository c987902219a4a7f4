package containers

import (
	"errors"
	"testing"
)

func TestRingQueueBounded(t *testing.T) {
	q := NewRingQueue[int](2)
	if err := q.Enqueue(1); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(2); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue(3); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue = %v, want ErrQueueFull", err)
	}
	if v, _ := q.Peek(); v != 1 {
		t.Fatalf("Peek = %d, want 1", v)
	}
	for _, want := range []int{1, 2} {
		v, err := q.Dequeue()
		if err != nil || v != want {
			t.Fatalf("Dequeue = %d, %v; want %d", v, err, want)
		}
	}
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("Dequeue on empty queue = %v, want ErrQueueEmpty", err)
	}
}

func TestRingQueueGrowPreservesOrder(t *testing.T) {
	q := NewGrowingRingQueue[int](2)
	// Wrap the indices before growing.
	q.Enqueue(0)
	q.Enqueue(1)
	q.Dequeue()
	q.Enqueue(2)
	for i := 3; i < 10; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if q.Len() != 9 {
		t.Fatalf("Len = %d, want 9", q.Len())
	}
	if q.Cap() < 9 {
		t.Fatalf("Cap = %d, want >= 9", q.Cap())
	}
	for want := 1; want < 10; want++ {
		v, err := q.Dequeue()
		if err != nil || v != want {
			t.Fatalf("Dequeue = %d, %v; want %d", v, err, want)
		}
	}
	if !q.IsEmpty() {
		t.Fatal("queue not empty after draining")
	}
}
