package processing

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"masterpost/internal/domain"
)

// TransformFunc performs the per-image work for one task. Implementations
// must honor ctx cancellation at stage boundaries; they are otherwise free to
// block on CPU or I/O.
type TransformFunc func(ctx context.Context, task domain.Task) domain.Result

// ResultFunc observes each completed task. It is always invoked from the
// goroutine that called Run, so a single caller sees a single writer.
type ResultFunc func(res domain.Result, completed, total int)

const (
	poolHardCap        = 30
	defaultTaskTimeout = 5 * time.Minute
	progressLogEvery   = 10
)

// Workers maps a task count to the concurrency level. Per-image work mixes
// blocking segmentation I/O with CPU-bound compositing, so the curve runs
// well past core count for large batches.
func Workers(taskCount int) int {
	switch {
	case taskCount <= 10:
		return 2
	case taskCount <= 50:
		return 5
	case taskCount <= 100:
		return 10
	case taskCount <= 200:
		return 20
	default:
		return poolHardCap
	}
}

// Pool executes transform tasks with bounded parallelism and per-task
// time-boxing. A Pool is stateless between Run calls and safe to reuse.
type Pool struct {
	maxWorkers  int
	taskTimeout time.Duration
	logger      zerolog.Logger
}

// NewPool builds a pool capped at min(3 x cores, 30) workers, or lower when
// maxWorkers says so.
func NewPool(maxWorkers int, taskTimeout time.Duration, logger zerolog.Logger) *Pool {
	systemCap := runtime.NumCPU() * 3
	if systemCap > poolHardCap {
		systemCap = poolHardCap
	}
	if maxWorkers <= 0 || maxWorkers > systemCap {
		maxWorkers = systemCap
	}
	if taskTimeout <= 0 {
		taskTimeout = defaultTaskTimeout
	}
	return &Pool{maxWorkers: maxWorkers, taskTimeout: taskTimeout, logger: logger}
}

func (p *Pool) workersFor(taskCount int) int {
	w := Workers(taskCount)
	if w > p.maxWorkers {
		w = p.maxWorkers
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Run dispatches all tasks across the pool and collects results in completion
// order. A failing or timed-out task yields a failed Result without aborting
// its siblings; callers correlate order through Result.Index. onResult fires
// once per completed task.
func (p *Pool) Run(ctx context.Context, tasks []domain.Task, fn TransformFunc, onResult ResultFunc) []domain.Result {
	total := len(tasks)
	if total == 0 {
		return nil
	}
	workers := p.workersFor(total)
	p.logger.Info().Int("tasks", total).Int("workers", workers).Msg("pool: starting batch")

	queue := make(chan domain.Task)
	resultCh := make(chan domain.Result)

	for i := 0; i < workers; i++ {
		go func() {
			for task := range queue {
				resultCh <- p.runTask(ctx, task, fn)
			}
		}()
	}

	go func() {
		defer close(queue)
		for _, task := range tasks {
			queue <- task
		}
	}()

	start := time.Now()
	results := make([]domain.Result, 0, total)
	for completed := 1; completed <= total; completed++ {
		res := <-resultCh
		results = append(results, res)
		if onResult != nil {
			onResult(res, completed, total)
		}
		if completed%progressLogEvery == 0 || completed == total {
			elapsed := time.Since(start).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(completed) / elapsed
			}
			eta := 0.0
			if rate > 0 {
				eta = float64(total-completed) / rate
			}
			p.logger.Info().
				Int("completed", completed).
				Int("total", total).
				Float64("images_per_sec", rate).
				Float64("eta_seconds", eta).
				Msg("pool: progress")
		}
	}
	return results
}

// runTask time-boxes one task. A task that outlives the timeout is abandoned:
// its goroutine finishes into a buffered channel nobody reads, and the worker
// moves on so siblings are not blocked.
func (p *Pool) runTask(ctx context.Context, task domain.Task, fn TransformFunc) domain.Result {
	tctx, cancel := context.WithTimeout(ctx, p.taskTimeout)
	defer cancel()

	done := make(chan domain.Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- domain.Result{Index: task.Index, Err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		done <- fn(tctx, task)
	}()

	select {
	case res := <-done:
		return res
	case <-tctx.Done():
		// A cancelled parent context fires tctx.Done immediately; that is a
		// shutdown, not a stuck task.
		if err := ctx.Err(); err != nil {
			p.logger.Warn().Int("index", task.Index).Msg("pool: task aborted by shutdown")
			return domain.Result{
				Index: task.Index,
				Err:   fmt.Errorf("task aborted: %w", err),
			}
		}
		p.logger.Warn().Int("index", task.Index).Dur("timeout", p.taskTimeout).Msg("pool: task abandoned")
		return domain.Result{
			Index: task.Index,
			Err:   fmt.Errorf("%w after %s", domain.ErrTaskTimeout, p.taskTimeout),
		}
	}
}
