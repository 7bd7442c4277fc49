package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		n, lo, hi, want int
	}{
		{1, 2, 20, 2},
		{5, 2, 20, 5},
		{50, 2, 20, 20},
		{0, 4, 30, 4},
		{31, 4, 30, 30},
	}
	for _, tt := range tests {
		if got := clamp(tt.n, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%d, %d, %d) = %d, want %d", tt.n, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestTasksRun(t *testing.T) {
	m := NewManager(context.Background(), zerolog.Nop())
	defer shutdown(m)

	var n int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		m.SubmitSingle(4, func(ctx context.Context) {
			atomic.AddInt64(&n, 1)
			wg.Done()
		})
	}
	waitOrFail(t, &wg)
	if atomic.LoadInt64(&n) != 20 {
		t.Errorf("ran %d tasks, want 20", n)
	}
}

func TestGrowOnlyResize(t *testing.T) {
	m := NewManager(context.Background(), zerolog.Nop())
	defer shutdown(m)

	var wg sync.WaitGroup
	wg.Add(1)
	m.SubmitSingle(10, func(ctx context.Context) { wg.Done() })
	waitOrFail(t, &wg)
	if got := m.SingleSize(); got != 10 {
		t.Errorf("size after grow = %d, want 10", got)
	}

	// asking for less keeps the larger pool
	wg.Add(1)
	m.SubmitSingle(2, func(ctx context.Context) { wg.Done() })
	waitOrFail(t, &wg)
	if got := m.SingleSize(); got != 10 {
		t.Errorf("size after shrink request = %d, want 10", got)
	}
}

func TestResizeDoesNotLoseInflightTasks(t *testing.T) {
	m := NewManager(context.Background(), zerolog.Nop())
	defer shutdown(m)

	var n int64
	var wg sync.WaitGroup

	block := make(chan struct{})
	wg.Add(1)
	m.SubmitBatch(4, func(ctx context.Context) {
		<-block
		atomic.AddInt64(&n, 1)
		wg.Done()
	})

	// trigger a replace while the first task is still running
	wg.Add(1)
	m.SubmitBatch(20, func(ctx context.Context) {
		atomic.AddInt64(&n, 1)
		wg.Done()
	})
	close(block)

	waitOrFail(t, &wg)
	if atomic.LoadInt64(&n) != 2 {
		t.Errorf("ran %d tasks, want 2", n)
	}
	if got := m.BatchSize(); got != 20 {
		t.Errorf("batch size = %d, want 20", got)
	}
}

func TestPoolsAreIndependent(t *testing.T) {
	m := NewManager(context.Background(), zerolog.Nop())
	defer shutdown(m)

	// saturate the batch pool with blocked tasks
	block := make(chan struct{})
	defer close(block)
	for i := 0; i < BatchMin*2; i++ {
		m.SubmitBatch(BatchMin, func(ctx context.Context) { <-block })
	}

	// single-item work still runs
	var wg sync.WaitGroup
	wg.Add(1)
	m.SubmitSingle(SingleMin, func(ctx context.Context) { wg.Done() })
	waitOrFail(t, &wg)
}

func shutdown(m *Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Shutdown(ctx)
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
}
