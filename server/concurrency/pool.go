// Package concurrency provides a worker pool for background tasks which
// conversation threads must not block on, such as push notification
// delivery.
package concurrency

// Task is a unit of background work.
type Task func()

// Pool runs tasks on a bounded set of goroutines. Workers are started on
// demand up to the limit and stay around to pick up subsequent tasks.
type Pool struct {
	tasks chan Task
	// Counting semaphore limiting the number of live workers.
	slots chan struct{}
	quit  chan struct{}
}

// NewPool creates a pool of at most limit workers. No goroutines are
// started until the first Schedule call.
func NewPool(limit int) *Pool {
	return &Pool{
		tasks: make(chan Task),
		slots: make(chan struct{}, limit),
		quit:  make(chan struct{}, limit),
	}
}

// Schedule hands the task to an idle worker, starting a new one when the
// limit permits. Blocks while all workers are busy.
func (p *Pool) Schedule(task Task) {
	select {
	case p.tasks <- task:
	case p.slots <- struct{}{}:
		go p.run(task)
	}
}

// Stop tells every worker to exit after finishing its current task.
func (p *Pool) Stop() {
	for i := 0; i < cap(p.slots); i++ {
		p.quit <- struct{}{}
	}
}

func (p *Pool) run(task Task) {
	defer func() { <-p.slots }()
	for {
		task()
		select {
		case task = <-p.tasks:
		case <-p.quit:
			return
		}
	}
}
