package containers

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestRingQueueOrder(t *testing.T) {
	rq := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := rq.Enqueue(i); err != nil {
			t.Fatalf("Enqueue(%d): %v", i, err)
		}
	}
	if !rq.IsFull() {
		t.Fatal("queue should be full")
	}
	if err := rq.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue = %v, want ErrQueueFull", err)
	}

	v, err := rq.Peek()
	if err != nil || v != 1 {
		t.Fatalf("Peek() = %d, %v", v, err)
	}

	// wrap the write index around
	if v, _ := rq.Dequeue(); v != 1 {
		t.Fatalf("Dequeue() = %d, want 1", v)
	}
	if err := rq.Enqueue(4); err != nil {
		t.Fatalf("Enqueue after dequeue: %v", err)
	}

	want := []int{2, 3, 4}
	for _, w := range want {
		v, err := rq.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if v != w {
			t.Fatalf("Dequeue() = %d, want %d", v, w)
		}
	}
	if _, err := rq.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Fatalf("Dequeue on empty queue = %v, want ErrQueueEmpty", err)
	}
}

func TestRingQueueCapacity(t *testing.T) {
	tests := []struct {
		name string
		size int
		cap  int
	}{
		{"positive", 4, 4},
		{"zero", 0, 1},
		{"negative", -2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rq := NewRingQueue[string](tt.size)
			if rq.Cap() != tt.cap {
				t.Fatalf("Cap() = %d, want %d", rq.Cap(), tt.cap)
			}
			if rq.Len() != 0 || !rq.IsEmpty() {
				t.Fatal("new queue should be empty")
			}
		})
	}
}
