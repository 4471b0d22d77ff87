package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(4)
	defer p.Stop()

	const n = 100
	var done int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Schedule(func() {
			atomic.AddInt32(&done, 1)
			wg.Done()
		})
	}
	wg.Wait()

	if got := atomic.LoadInt32(&done); got != n {
		t.Errorf("tasks run = %d, want %d", got, n)
	}
}

func TestPoolBoundsWorkers(t *testing.T) {
	const limit = 3
	p := NewPool(limit)
	defer p.Stop()

	var live, peak int32
	var wg sync.WaitGroup
	gate := make(chan struct{})

	wg.Add(limit * 5)
	for i := 0; i < limit*5; i++ {
		p.Schedule(func() {
			cur := atomic.AddInt32(&live, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
					break
				}
			}
			<-gate
			atomic.AddInt32(&live, -1)
			wg.Done()
		})
		// Unblock one task per scheduled task, otherwise Schedule
		// blocks once the pool saturates.
		go func() { gate <- struct{}{} }()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&peak); got > limit {
		t.Errorf("peak concurrent workers = %d, want at most %d", got, limit)
	}
}
