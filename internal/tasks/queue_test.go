package tasks_test

import (
	"context"
	"errors"
	"testing"

	"github.com/divaadaan/grocery-ai-planner/internal/tasks"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := tasks.NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, id); err != nil {
			t.Fatalf("Enqueue(%q): %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if got != want {
			t.Errorf("Dequeue = %q, want %q", got, want)
		}
	}
}

func TestMemoryQueueEmptyReturnsErrEmpty(t *testing.T) {
	q := tasks.NewMemoryQueue()

	// Cancelled context makes the empty poll return immediately.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatal("expected error from empty queue")
	}
	if !errors.Is(err, tasks.ErrEmpty) && !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want ErrEmpty or context.Canceled", err)
	}
}
