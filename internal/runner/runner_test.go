package runner

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSerialRunnerOrdersClosures(t *testing.T) {
	r := NewSerialRunner()
	defer r.Close()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		if err := r.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d (FIFO violated): %v", i, v, i, order)
		}
	}
}

func TestSerialRunnerCloseDrainsThenStops(t *testing.T) {
	r := NewSerialRunner()
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := r.Post(func() { ran.Add(1) }); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}
	r.Close()

	if got := ran.Load(); got != 5 {
		t.Fatalf("ran = %d, want 5 (Close must drain queued work)", got)
	}

	if err := r.Post(func() {}); err != ErrClosed {
		t.Fatalf("Post after Close: err = %v, want ErrClosed", err)
	}
}

func TestSerialRunnerCloseIdempotent(t *testing.T) {
	r := NewSerialRunner()
	r.Close()
	r.Close() // must not hang or panic
}

func TestWorkerPoolRunsAllWork(t *testing.T) {
	p := NewWorkerPool(4)
	defer p.Close()

	var n atomic.Int32
	var wg sync.WaitGroup
	wg.Add(50)
	for i := 0; i < 50; i++ {
		if err := p.Post(func() {
			n.Add(1)
			wg.Done()
		}); err != nil {
			t.Fatalf("Post: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker pool to run all tasks")
	}

	if got := n.Load(); got != 50 {
		t.Fatalf("n = %d, want 50", got)
	}
}

func TestWorkerPoolPostAfterCloseFails(t *testing.T) {
	p := NewWorkerPool(2)
	p.Close()
	if err := p.Post(func() {}); err != ErrClosed {
		t.Fatalf("Post after Close: err = %v, want ErrClosed", err)
	}
}
