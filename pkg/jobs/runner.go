package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a named periodic job, such as the monthly reset check or the
// session sweep.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Runner drives a set of periodic tasks, each on its own ticker. Every
// task also runs once immediately on start.
type Runner struct {
	tasks  []Task
	logger *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewRunner builds an empty runner.
func NewRunner(logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{logger: logger}
}

// Add registers a task. Must be called before Start.
func (r *Runner) Add(task Task) {
	if task.Interval <= 0 || task.Run == nil {
		return
	}
	r.mu.Lock()
	r.tasks = append(r.tasks, task)
	r.mu.Unlock()
}

// Start launches one goroutine per task. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.started = true

	for _, task := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, task)
	}
	r.logger.Sugar().Infow("runner started", "tasks", len(r.tasks))
}

// Stop cancels all task loops and waits for them to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Sugar().Infow("runner stopped")
}

func (r *Runner) loop(ctx context.Context, task Task) {
	defer r.wg.Done()

	run := func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Sugar().Errorw("task panicked", "task", task.Name, "panic", rec)
			}
		}()
		task.Run(ctx)
	}

	run()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
