// Package scheduler runs the periodic jobs on cron schedules, with at most one
// active run per job and failure and recovery notifications.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rewired-gh/buybackd/internal/logger"
	"github.com/rewired-gh/buybackd/internal/metrics"
)

// JobFunc is one run of a job.
type JobFunc func(ctx context.Context) error

// Notifier is told when a job starts failing and when it recovers.
type Notifier interface {
	SendError(job string, err error) error
	SendRecovery(job string, failures int) error
}

// JobStatus is a snapshot of a job's state.
type JobStatus struct {
	Name                string    `json:"name"`
	Spec                string    `json:"spec"`
	Running             bool      `json:"running"`
	Runs                int       `json:"runs"`
	Skipped             int       `json:"skipped"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastStart           time.Time `json:"last_start"`
	LastDuration        string    `json:"last_duration"`
	LastError           string    `json:"last_error,omitempty"`
	Next                time.Time `json:"next"`
}

type job struct {
	name    string
	spec    string
	fn      JobFunc
	entryID cron.EntryID

	running  sync.Mutex
	mu       sync.Mutex
	status   JobStatus
	inFlight bool
}

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron     *cron.Cron
	notifier Notifier
	metrics  *metrics.Registry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	jobs    map[string]*job
	stopped bool
}

// ErrStopped is returned by RunNow after Stop.
var ErrStopped = errors.New("scheduler stopped")

// New creates a scheduler. notifier may be nil.
func New(notifier Notifier, m *metrics.Registry) *Scheduler {
	cl := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		notifier: notifier,
		metrics:  m,
		ctx:      ctx,
		cancel:   cancel,
		jobs:     make(map[string]*job),
	}
}

// Add registers a job under a unique name.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("duplicate job %q", name)
	}
	j := &job{name: name, spec: spec, fn: fn, status: JobStatus{Name: name, Spec: spec}}
	id, err := s.cron.AddFunc(spec, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	j.entryID = id
	s.jobs[name] = j
	logger.Debug("Registered job %s with schedule %s", name, spec)
	return nil
}

// Start starts the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Scheduler started with %d jobs", len(s.jobs))
}

// Stop stops scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	logger.Info("Scheduler stopped")
}

// RunNow starts the named job in the background, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown job %q", name)
	}
	// Added under mu so Stop cannot be waiting already.
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		s.run(j)
	}()
	return nil
}

// Status returns the state of every job ordered by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]JobStatus, 0, len(jobs))
	for _, j := range jobs {
		j.mu.Lock()
		st := j.status
		st.Running = j.inFlight
		j.mu.Unlock()
		st.Next = s.cron.Entry(j.entryID).Next
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// run executes one run of j unless one is already active.
func (s *Scheduler) run(j *job) {
	if !j.running.TryLock() {
		logger.Warn("Job %s is still running, skipping this run", j.name)
		s.metrics.SkipJob(j.name)
		j.mu.Lock()
		j.status.Skipped++
		j.mu.Unlock()
		return
	}
	defer j.running.Unlock()

	start := time.Now()
	j.mu.Lock()
	j.inFlight = true
	j.status.LastStart = start
	j.mu.Unlock()

	logger.Debug("Job %s started", j.name)
	err := j.fn(s.ctx)
	took := time.Since(start)
	s.metrics.ObserveJob(j.name, took, err)

	j.mu.Lock()
	j.inFlight = false
	j.status.Runs++
	j.status.LastDuration = took.Round(time.Millisecond).String()
	failures := j.status.ConsecutiveFailures
	if err != nil {
		j.status.ConsecutiveFailures++
		j.status.LastError = err.Error()
	} else {
		j.status.ConsecutiveFailures = 0
		j.status.LastError = ""
	}
	j.mu.Unlock()

	if err != nil {
		logger.Error("Job %s failed after %s (%d consecutive): %v", j.name, took.Round(time.Millisecond), failures+1, err)
		// Notify only on the first failure of a streak.
		if failures == 0 && s.notifier != nil {
			if sendErr := s.notifier.SendError(j.name, err); sendErr != nil {
				logger.Error("Failed to send error notification for %s: %v", j.name, sendErr)
			}
		}
		return
	}

	logger.Info("Job %s finished in %s", j.name, took.Round(time.Millisecond))
	if failures > 0 && s.notifier != nil {
		if sendErr := s.notifier.SendRecovery(j.name, failures); sendErr != nil {
			logger.Error("Failed to send recovery notification for %s: %v", j.name, sendErr)
		}
	}
}

// cronLogger routes cron's own messages to the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: %s: %v %v", msg, err, keysAndValues)
}
