package build

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("build queue is full")
	ErrQueueClosed = errors.New("build queue is closed")
)

type job struct {
	buildID string
	run     func()
}

// Pool dispatches queued builds on a fixed set of workers. The queue is
// bounded so a flood of requests surfaces as ErrQueueFull instead of
// unbounded goroutines. Dispatch is short-lived: workers stage the project
// and hand off to a platform manager, they do not sit through the build.
type Pool struct {
	jobs    chan job
	done    chan struct{}
	workers int
	wg      sync.WaitGroup
	once    sync.Once
	log     *zap.Logger
}

func NewPool(workers, queueSize int, log *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		jobs:    make(chan job, queueSize),
		done:    make(chan struct{}),
		workers: workers,
		log:     log,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues a build dispatch without blocking.
func (p *Pool) Submit(buildID string, run func()) error {
	select {
	case <-p.done:
		return ErrQueueClosed
	default:
	}

	select {
	case p.jobs <- job{buildID: buildID, run: run}:
		p.log.Debug("build enqueued", zap.String("build_id", buildID))
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop signals workers to exit and waits for in-flight dispatches to finish.
// Queued but undispatched builds are dropped; their records stay queued and
// are failed over by the recovery sweep on the next start.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.jobs:
			p.runJob(id, j)
		case <-p.done:
			return
		}
	}
}

func (p *Pool) runJob(worker int, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("build dispatch panicked",
				zap.String("build_id", j.buildID),
				zap.Int("worker", worker),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	j.run()
}
