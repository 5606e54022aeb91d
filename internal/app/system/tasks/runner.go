// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Job is a unit of periodic housekeeping.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// JobStatus is a point-in-time view of one job.
type JobStatus struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Running  bool          `json:"running"`
	Runs     int64         `json:"runs"`
	Failures int64         `json:"failures"`
	LastRun  time.Time     `json:"lastRun,omitempty"`
	LastErr  string        `json:"lastError,omitempty"`
}

// Runner ticks each registered job on its own goroutine until Stop.
// Each job runs once immediately, then on its interval; a job never
// overlaps with itself.
type Runner struct {
	logger *zap.Logger
	jobs   []Job

	mu     sync.Mutex
	state  map[string]*JobStatus
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates an idle Runner.
func New(logger *zap.Logger) *Runner {
	return &Runner{logger: logger, state: map[string]*JobStatus{}}
}

// Register adds a job. Jobs without a Run func or a positive interval, and
// duplicate names, are dropped with a warning.
func (r *Runner) Register(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, dup := r.state[job.Name]
	if job.Run == nil || job.Interval <= 0 || dup {
		r.logger.Warn("ignoring invalid job",
			zap.String("job", job.Name),
			zap.Duration("interval", job.Interval),
			zap.Bool("duplicate", dup))
		return
	}
	r.jobs = append(r.jobs, job)
	r.state[job.Name] = &JobStatus{Name: job.Name, Interval: job.Interval}
}

// Names returns the registered job names in registration order.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.Name
	}
	return names
}

// Snapshot reports every job's counters, sorted by name.
func (r *Runner) Snapshot() []JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobStatus, 0, len(r.state))
	for _, s := range r.state {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start launches every registered job. Calling Start twice is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.group != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.group = &errgroup.Group{}
	jobs := append([]Job(nil), r.jobs...)
	r.mu.Unlock()

	for _, job := range jobs {
		job := job
		r.group.Go(func() error {
			r.loop(ctx, job)
			return nil
		})
	}
	r.logger.Info("background task runner started", zap.Strings("jobs", r.Names()))
}

// Stop cancels all jobs and waits for them until ctx is done, returning
// ctx.Err() if some job outlives it.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, group := r.cancel, r.group
	r.mu.Unlock()
	if group == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		_ = group.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		var busy []string
		for _, s := range r.Snapshot() {
			if s.Running {
				busy = append(busy, s.Name)
			}
		}
		r.logger.Warn("background task runner shutdown timed out", zap.Strings("jobs_still_running", busy))
		return ctx.Err()
	}
}

func (r *Runner) loop(ctx context.Context, job Job) {
	r.execute(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.execute(ctx, job)
		}
	}
}

func (r *Runner) execute(ctx context.Context, job Job) {
	r.track(job.Name, func(s *JobStatus) { s.Running = true })
	start := time.Now()
	err := safeRun(ctx, job)
	took := time.Since(start)

	r.track(job.Name, func(s *JobStatus) {
		s.Running = false
		s.Runs++
		s.LastRun = start
		s.LastErr = ""
		if err != nil && ctx.Err() == nil {
			s.Failures++
			s.LastErr = err.Error()
		}
	})

	switch {
	case err == nil:
		r.logger.Debug("job completed", zap.String("job", job.Name), zap.Duration("duration", took))
	case ctx.Err() != nil:
		r.logger.Debug("job cancelled during shutdown", zap.String("job", job.Name), zap.Duration("duration", took))
	default:
		r.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("duration", took), zap.Error(err))
	}
}

func (r *Runner) track(name string, fn func(*JobStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.state[name]; ok {
		fn(s)
	}
}

// safeRun turns a panic into an error so the job's loop survives it.
func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, p)
		}
	}()
	return job.Run(ctx)
}

// RunOnce runs the named job now, outside its schedule.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	r.mu.Lock()
	var found *Job
	for i := range r.jobs {
		if r.jobs[i].Name == name {
			found = &r.jobs[i]
			break
		}
	}
	r.mu.Unlock()
	if found == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return safeRun(ctx, *found)
}
