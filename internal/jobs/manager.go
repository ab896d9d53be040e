// Package jobs runs pipeline executions in the background for the HTTP API.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/amazon-pipeline/internal/metrics"
	"github.com/maltedev/amazon-pipeline/internal/queue"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrUnknownKind = errors.New("unknown job kind")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is a queued or finished pipeline execution.
type Job struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      Status     `json:"status"`
	Params      any        `json:"params"`
	Result      any        `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stats summarizes the jobs the manager knows about.
type Stats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	SuccessRate   float64 `json:"success_rate"`
}

// Runner executes one job and returns its result.
type Runner func(ctx context.Context, job *Job) (any, error)

type Manager struct {
	queue   queue.Queue
	logger  *slog.Logger
	mu      sync.RWMutex
	jobs    map[string]*Job
	runners map[string]Runner
}

func NewManager(q queue.Queue, logger *slog.Logger) *Manager {
	if q == nil {
		q = queue.NewInMemoryQueue()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		queue:   q,
		logger:  logger.With("component", "job_manager"),
		jobs:    make(map[string]*Job),
		runners: make(map[string]Runner),
	}
}

// Register binds a runner to a job kind. It must be called before Run.
func (m *Manager) Register(kind string, r Runner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[kind] = r
}

// Submit creates a pending job and queues it.
func (m *Manager) Submit(kind string, params any, priority int) (*Job, error) {
	m.mu.Lock()
	if _, ok := m.runners[kind]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusPending,
		Params:    params,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	if err := m.queue.Push(&queue.Task{ID: job.ID, Kind: kind, Priority: priority}); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "kind", kind)
	return &snapshot, nil
}

// Get returns a copy of the job.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	c := *job
	return &c, nil
}

// List returns copies of all jobs, newest first.
func (m *Manager) List() []*Job {
	m.mu.RLock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		c := *j
		out = append(out, &c)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	s.TotalJobs = len(m.jobs)
	for _, j := range m.jobs {
		switch j.Status {
		case StatusPending:
			s.PendingJobs++
		case StatusRunning:
			s.RunningJobs++
		case StatusCompleted:
			s.CompletedJobs++
		case StatusFailed:
			s.FailedJobs++
		}
	}
	if finished := s.CompletedJobs + s.FailedJobs; finished > 0 {
		s.SuccessRate = float64(s.CompletedJobs) / float64(finished) * 100
	}
	return s
}

// Run processes queued jobs with the given number of workers until ctx is
// done or the queue is closed and drained.
func (m *Manager) Run(ctx context.Context, workers int) {
	if workers < 1 {
		workers = 1
	}
	m.logger.Info("job workers started", "workers", workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.work(ctx)
		}()
	}
	wg.Wait()

	m.logger.Info("job workers stopped")
}

// Close stops accepting jobs. Workers finish what is already queued.
func (m *Manager) Close() error {
	return m.queue.Close()
}

func (m *Manager) work(ctx context.Context) {
	for {
		task, err := m.queue.Pop(ctx)
		if err != nil {
			return
		}
		m.process(ctx, task.ID)
	}
}

func (m *Manager) process(ctx context.Context, id string) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	runner := m.runners[job.Kind]
	started := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &started
	snapshot := *job
	m.mu.Unlock()

	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()

	m.logger.Info("processing job", "id", id, "kind", job.Kind)
	result, err := runner(ctx, &snapshot)

	m.mu.Lock()
	defer m.mu.Unlock()
	completed := time.Now()
	job.CompletedAt = &completed
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
		m.logger.Error("job failed", "id", id, "error", err)
		return
	}
	job.Status = StatusCompleted
	job.Result = result
	m.logger.Info("job completed", "id", id, "duration", completed.Sub(started))
}
