package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sjperalta/fintera-prestamos/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker runs queued jobs on a fixed pool and owns the periodic schedules
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	queue         chan Job
	maxConcurrent int
	closeMu       sync.RWMutex
	closed        bool
	stats         WorkerStats
	schedules     map[string]*ScheduleStats
	statsMu       sync.RWMutex
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int   `json:"active_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
	QueueLength   int   `json:"queue_length"`
	MaxConcurrent int   `json:"max_concurrent"`
}

// ScheduleStats describes the last run of a named periodic job
type ScheduleStats struct {
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   *time.Time    `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
	Duration  time.Duration `json:"last_duration"`
}

// NewWorker creates a worker with N concurrent processors
func NewWorker(numWorkers int) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		ctx:           ctx,
		cancel:        cancel,
		queue:         make(chan Job, 100),
		maxConcurrent: numWorkers,
		schedules:     make(map[string]*ScheduleStats),
	}

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.process(i)
	}

	return w
}

// Enqueue adds a job to the pool. When the queue is full the job runs on the
// caller's goroutine. It returns false if the worker is shut down.
func (w *Worker) Enqueue(job Job) bool {
	w.closeMu.RLock()
	if w.closed {
		w.closeMu.RUnlock()
		logger.Warn("[Worker] Enqueue after shutdown, job dropped")
		return false
	}
	select {
	case w.queue <- job:
		w.closeMu.RUnlock()
	default:
		w.closeMu.RUnlock()
		logger.Warn("[Worker] Queue full, running job synchronously")
		w.run(job, "[Worker] Job error")
	}
	return true
}

// RunBatch spreads jobs over the pool and waits for all of them. It returns
// the number of jobs that failed.
func (w *Worker) RunBatch(ctx context.Context, batch []Job) int {
	var (
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for _, job := range batch {
		job := job
		wg.Add(1)
		accepted := w.Enqueue(func(workerCtx context.Context) error {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					failed.Add(1)
					panic(r)
				}
			}()
			if ctx.Err() != nil {
				failed.Add(1)
				return ctx.Err()
			}
			if err := job(ctx); err != nil {
				failed.Add(1)
				return err
			}
			return nil
		})
		if !accepted {
			wg.Done()
			failed.Add(1)
		}
	}
	wg.Wait()
	return int(failed.Load())
}

func (w *Worker) process(workerID int) {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain(workerID)
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			w.run(job, fmt.Sprintf("[Worker %d] Job error", workerID))
		}
	}
}

// drain finishes jobs already queued so RunBatch callers are released
func (w *Worker) drain(workerID int) {
	for job := range w.queue {
		w.run(job, fmt.Sprintf("[Worker %d] Job error", workerID))
	}
}

func (w *Worker) run(job Job, errPrefix string) (err error) {
	w.trackJobStart()
	defer w.trackJobEnd()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error(fmt.Sprintf("%s: %v", errPrefix, err))
			w.trackJobFailure()
		}
	}()

	if err = job(w.ctx); err != nil {
		logger.Error(fmt.Sprintf("%s: %v", errPrefix, err))
		w.trackJobFailure()
	}
	return err
}

// ScheduleEvery runs a named job at fixed intervals. The first run happens
// after the interval.
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, false, job)
}

// ScheduleEveryImmediate runs a named job once at startup, then at fixed intervals
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, true, job)
}

func (w *Worker) schedule(name string, interval time.Duration, immediate bool, job Job) {
	w.statsMu.Lock()
	w.schedules[name] = &ScheduleStats{Name: name, Interval: interval}
	w.statsMu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.runScheduledJob(name, job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.runScheduledJob(name, job)
			}
		}
	}()
}

func (w *Worker) runScheduledJob(name string, job Job) {
	start := time.Now()
	err := w.run(job, fmt.Sprintf("[Scheduler] %s error", name))
	elapsed := time.Since(start)
	if err == nil {
		logger.Info(fmt.Sprintf("[Scheduler] %s completed in %v", name, elapsed))
	}

	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	s := w.schedules[name]
	s.Runs++
	s.LastRun = &start
	s.Duration = elapsed
	s.LastError = ""
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
}

// Shutdown stops the schedules, finishes queued jobs and waits for the pool
func (w *Worker) Shutdown() {
	w.closeMu.Lock()
	if w.closed {
		w.closeMu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.closeMu.Unlock()
	w.cancel()
	w.wg.Wait()
}

// Context returns the worker's context for checking cancellation
func (w *Worker) Context() context.Context {
	return w.ctx
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.QueueLength = len(w.queue)
	stats.MaxConcurrent = w.maxConcurrent
	return stats
}

// GetSchedules returns a copy of the per-schedule statistics
func (w *Worker) GetSchedules() []ScheduleStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	out := make([]ScheduleStats, 0, len(w.schedules))
	for _, s := range w.schedules {
		out = append(out, *s)
	}
	return out
}

func (w *Worker) trackJobStart() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
}

// trackJobEnd counts every finished job; FailedJobs is a subset of CompletedJobs.
func (w *Worker) trackJobEnd() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

func (w *Worker) trackJobFailure() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.FailedJobs++
}
