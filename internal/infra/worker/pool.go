package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

var ErrPoolFull = errors.New("worker queue full")

var errNilTask = errors.New("nil task")

// Task is a unit of work run by the Pool.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of goroutines. Submit never blocks;
// the backlog holds four tasks per worker.
type Pool struct {
	size    int
	backlog chan Task
	done    chan struct{}
	stop    sync.Once
	wg      sync.WaitGroup
	log     *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		size:    workers,
		backlog: make(chan Task, workers*4),
		done:    make(chan struct{}),
		log:     logger,
	}
}

// Size is the number of worker goroutines.
func (p *Pool) Size() int { return p.size }

func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.loop(ctx, i)
	}
}

func (p *Pool) loop(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case task := <-p.backlog:
			if err := p.run(ctx, task); err != nil {
				p.log.Error().Err(err).Int("worker", id).Msg("task failed")
			}
		}
	}
}

// run keeps a panicking task from taking the worker goroutine down.
func (p *Pool) run(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task(ctx)
}

// Stop signals workers to exit and waits for running tasks to return.
func (p *Pool) Stop() {
	p.stop.Do(func() { close(p.done) })
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errNilTask
	}
	select {
	case p.backlog <- task:
		return nil
	default:
		// the poller retries on its next tick
		return ErrPoolFull
	}
}
