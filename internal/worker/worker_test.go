package worker

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestStartProcessesJobsInOrder(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobs := make(chan int, 8)
	sem := make(chan struct{}, 1)

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	Start(StartOptions[int]{
		Ctx:  ctx,
		Sem:  sem,
		Jobs: jobs,
		Handle: func(_ context.Context, j int) {
			mu.Lock()
			got = append(got, j)
			if len(got) == 3 {
				close(done)
			}
			mu.Unlock()
		},
	})

	for i := 1; i <= 3; i++ {
		if err := Enqueue(ctx, ctx, jobs, i); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("jobs not processed in time")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, want := range []int{1, 2, 3} {
		if got[i] != want {
			t.Fatalf("job order mismatch: got %v want [1 2 3]", got)
		}
	}
}

func TestEnqueueFailsAfterCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make(chan int)
	if err := Enqueue(ctx, ctx, jobs, 1); err == nil {
		t.Fatalf("Enqueue() after cancel expected error, got nil")
	}
}
