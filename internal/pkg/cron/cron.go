// Package cron is a fixed-interval in-process scheduler. Jobs are
// registered before Start, run on their own goroutines, and never
// overlap themselves: a tick that lands while the previous run is still
// going is dropped, not queued.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// JobStatus is the last known state of a job.
type JobStatus string

const (
	StatusIdle    JobStatus = "idle"
	StatusRunning JobStatus = "running"
	StatusFulfill JobStatus = "fulfill"
	StatusReject  JobStatus = "reject"
)

// Job defines a scheduled background task. The first run happens one
// Interval after registration, never at registration time, so boot is
// not serialized behind job work.
type Job struct {
	Name        string
	Description string
	Interval    time.Duration
	Fn          func(ctx context.Context) error
}

// JobState holds runtime state for a registered job.
type JobState struct {
	Job
	Status    JobStatus
	Message   string
	LastRunAt *time.Time
	NextRunAt time.Time
	mu        sync.Mutex
}

// begin moves the job to running. Reports false when a run is already
// in flight.
func (js *JobState) begin() bool {
	js.mu.Lock()
	defer js.mu.Unlock()
	if js.Status == StatusRunning {
		return false
	}
	js.Status = StatusRunning
	return true
}

func (js *JobState) finish(startedAt time.Time, err error) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.LastRunAt = &startedAt
	if err != nil {
		js.Status = StatusReject
		js.Message = err.Error()
		return
	}
	js.Status = StatusFulfill
	js.Message = ""
}

// ListItem is the serializable representation of a job for the API.
type ListItem struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      JobStatus  `json:"status"`
	NextDate    *time.Time `json:"nextDate"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
}

// TaskResult is returned when polling task execution status.
type TaskResult struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message,omitempty"`
}

// Scheduler manages a collection of named cron jobs.
type Scheduler struct {
	mu   sync.RWMutex
	jobs map[string]*JobState
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*JobState)}
}

// Register adds a job. Must be called before Start; re-registering a
// name replaces the previous job.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.Name] = &JobState{
		Job:       job,
		Status:    StatusIdle,
		NextRunAt: time.Now().Add(job.Interval),
	}
}

// Start launches all registered jobs. The context stops every loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, js := range s.jobs {
		go s.runLoop(ctx, js)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, js *JobState) {
	timer := time.NewTimer(time.Until(js.NextRunAt))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.execute(ctx, js)
			js.mu.Lock()
			js.NextRunAt = time.Now().Add(js.Interval)
			js.mu.Unlock()
			timer.Reset(time.Until(js.NextRunAt))
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, js *JobState) {
	if !js.begin() {
		return
	}
	startedAt := time.Now()
	js.finish(startedAt, js.Fn(ctx))
}

// Run triggers a job by name immediately without touching its schedule.
// The run happens on its own goroutine.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	js, err := s.lookup(name)
	if err != nil {
		return err
	}
	go s.execute(ctx, js)
	return nil
}

// GetTask returns the current execution state of a job.
func (s *Scheduler) GetTask(name string) (*TaskResult, error) {
	js, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	js.mu.Lock()
	defer js.mu.Unlock()
	return &TaskResult{Status: js.Status, Message: js.Message}, nil
}

func (s *Scheduler) lookup(name string) (*JobState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	js, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q not found", name)
	}
	return js, nil
}

// List returns a summary of all registered jobs.
func (s *Scheduler) List() []ListItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ListItem, 0, len(s.jobs))
	for _, js := range s.jobs {
		js.mu.Lock()
		next := js.NextRunAt
		items = append(items, ListItem{
			Name:        js.Name,
			Description: js.Description,
			Status:      js.Status,
			NextDate:    &next,
			LastRunAt:   js.LastRunAt,
		})
		js.mu.Unlock()
	}
	return items
}
