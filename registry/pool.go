package registry

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"YoloDetServer/logger"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool closed")
	ErrJobPanic   = errors.New("job panicked")
)

type job struct {
	ctx  context.Context
	run  func()
	err  error
	done chan struct{}
}

// Pool runs jobs on a fixed set of workers, each locked to its own OS
// thread. A worker whose job panics is replaced on a fresh thread.
type Pool struct {
	jobs         chan *job
	quit         chan struct{}
	closeOnce    sync.Once
	wg           sync.WaitGroup
	restartDelay time.Duration
	log          *zap.Logger
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		jobs:         make(chan *job, workers),
		quit:         make(chan struct{}),
		restartDelay: time.Second,
		log:          logger.Log(),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
	return p
}

func (p *Pool) runWorker(workerID int) {
	restart := false
	defer func() {
		if restart {
			p.log.Error("Worker panicked, restarting", zap.Int("worker", workerID), zap.Duration("delay", p.restartDelay))
			select {
			case <-time.After(p.restartDelay):
				go p.runWorker(workerID)
				return
			case <-p.quit:
			}
		}
		p.wg.Done()
	}()
	// the thread is dropped with the goroutine when a job panics
	runtime.LockOSThread()
	p.log.Debug("Worker created", zap.Int("worker", workerID))
	for {
		select {
		case <-p.quit:
			runtime.UnlockOSThread()
			return
		case j := <-p.jobs:
			if !p.execute(j) {
				restart = true
				return
			}
		}
	}
}

func (p *Pool) execute(j *job) (ok bool) {
	defer close(j.done)
	if err := j.ctx.Err(); err != nil {
		j.err = err
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			j.err = fmt.Errorf("%w: %v", ErrJobPanic, r)
			ok = false
		}
	}()
	j.run()
	return true
}

// Submit queues fn and waits for it. A caller whose ctx ends while the job is
// still queued gets ctx.Err() and the job is skipped; once running, fn is
// never interrupted.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	j := &job{ctx: ctx, run: fn, done: make(chan struct{})}
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Close stops the workers after their current job.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}
