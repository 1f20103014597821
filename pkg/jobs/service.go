package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/legalytics/legalytics/pkg/observability/logger"
	"github.com/legalytics/legalytics/pkg/observability/tracing"
)

const (
	DefaultWorkers          = 4
	DefaultQueueBuffer      = 1024
	DefaultPollTimeout      = 250 * time.Millisecond
	DefaultStopTimeout      = 5 * time.Second
	DefaultRetryCount       = 3
	DefaultRetryBackoffBase = time.Second
	DefaultRetryBackoffMax  = 60 * time.Second
	DefaultListLimit        = 100
)

const cancelledMessage = "job cancelled by caller"

// Handler executes one job. It receives the job's task data and returns the
// job result, or an error when the attempt failed. A returned error drives
// the retry policy; a panic is recovered and treated the same way.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Config controls pool sizing, queue capacity, and the retry schedule.
type Config struct {
	Workers          int
	QueueBuffer      int
	PollTimeout      time.Duration
	StopTimeout      time.Duration
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueBuffer <= 0 {
		c.QueueBuffer = DefaultQueueBuffer
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.RetryBackoffBase <= 0 {
		c.RetryBackoffBase = DefaultRetryBackoffBase
	}
	if c.RetryBackoffMax <= 0 {
		c.RetryBackoffMax = DefaultRetryBackoffMax
	}
}

// EnqueueOptions carries the per-job knobs. The zero value means NORMAL
// priority, the default retry budget, and no initial delay.
type EnqueueOptions struct {
	Priority   Priority
	RetryCount int
	Delay      time.Duration
}

func (o *EnqueueOptions) normalize() {
	if o.Priority == 0 {
		o.Priority = PriorityNormal
	}
	if o.RetryCount <= 0 {
		o.RetryCount = DefaultRetryCount
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
}

// ListOptions filters ListJobs output. Zero-valued fields are ignored.
type ListOptions struct {
	Status   Status
	TaskName string
	Limit    int
}

// QueueStats is a point-in-time snapshot of service state.
type QueueStats struct {
	TotalJobs       int            `json:"total_jobs"`
	QueueDepths     map[string]int `json:"queue_sizes"`
	StatusCounts    map[string]int `json:"status_counts"`
	RegisteredTasks []string       `json:"registered_tasks"`
	Workers         int            `json:"workers_running"`
	Running         bool           `json:"service_running"`
}

// Service is the local job runner: named handlers, four priority queues, a
// fixed worker pool, and write-through persistence of every job transition.
// Construct one per application through the composition root and share it by
// reference; there is no package-level instance.
type Service struct {
	config Config
	log    logger.Logger
	store  Store

	queues *priorityQueues

	mu       sync.RWMutex
	jobs     map[string]*Job
	handlers map[string]Handler

	lifecycleMu sync.Mutex
	running     atomic.Bool
	workerCount int
	wg          *sync.WaitGroup
}

// NewService builds a service over the given store and loads previously
// persisted jobs into the registry. Jobs found on disk in PENDING status are
// re-queued; all other statuses are loaded for inspection only.
func NewService(store Store, log logger.Logger, cfg Config) (*Service, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()

	s := &Service{
		config:   cfg,
		log:      log,
		store:    store,
		queues:   newPriorityQueues(cfg.QueueBuffer),
		jobs:     map[string]*Job{},
		handlers: map[string]Handler{},
	}
	if err := s.loadJobs(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// RegisterTask binds a handler to a task name. Re-registering a name silently
// replaces the previous handler; callers are responsible for uniqueness.
func (s *Service) RegisterTask(taskName string, handler Handler) error {
	if s == nil {
		return ErrNotInitialized
	}
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		return jobsError(ErrValidation, "task name is required")
	}
	if handler == nil {
		return jobsError(ErrValidation, "handler is required")
	}

	s.mu.Lock()
	s.handlers[taskName] = handler
	s.mu.Unlock()

	s.log.Info("registered task handler", "task_name", taskName)
	return nil
}

// Enqueue validates the task name against the registry, creates a PENDING
// job, persists it, and places it on the queue matching its priority. This is
// the only path for work to enter the system. The returned id is the key for
// all later lookups.
func (s *Service) Enqueue(ctx context.Context, taskName string, taskData map[string]any, opts EnqueueOptions) (string, error) {
	if s == nil {
		return "", ErrNotInitialized
	}
	taskName = strings.TrimSpace(taskName)
	if taskName == "" {
		return "", jobsError(ErrValidation, "task name is required")
	}
	opts.normalize()
	if !opts.Priority.valid() {
		return "", jobsError(ErrValidation, "invalid priority")
	}

	s.mu.RLock()
	_, registered := s.handlers[taskName]
	s.mu.RUnlock()
	if !registered {
		return "", jobsError(ErrUnknownTask, taskName)
	}

	job := newJob(taskName, taskData, opts)

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.store.Save(ctx, job.record()); err != nil {
		s.forgetJob(job.ID)
		return "", fmt.Errorf("persist job: %w", err)
	}
	if err := s.queues.push(job); err != nil {
		s.forgetJob(job.ID)
		if deleteErr := s.store.Delete(ctx, job.ID); deleteErr != nil {
			s.log.Warn("failed to remove rejected job file", "job_id", job.ID, "error", deleteErr)
		}
		return "", err
	}

	recordJobEnqueued(job)
	recordQueueDepth(job.Priority, s.queues.depth(job.Priority))
	s.log.Info("enqueued job", "job_id", job.ID, "task_name", taskName, "priority", job.Priority.String())
	return job.ID, nil
}

// StartWorkers spawns the worker pool. Calling it while the pool is already
// running is a no-op.
func (s *Service) StartWorkers() {
	if s == nil {
		return
	}
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.running.Load() {
		return
	}
	s.running.Store(true)
	s.workerCount = s.config.Workers
	s.wg = &sync.WaitGroup{}

	for idx := 0; idx < s.config.Workers; idx++ {
		s.wg.Add(1)
		go s.workerLoop(s.wg, fmt.Sprintf("worker-%d", idx))
	}
	s.log.Info("started job workers", "workers", s.config.Workers)
}

// StopWorkers clears the running flag, pushes one poison pill per worker per
// priority queue so every blocked worker wakes up, and waits for the pool
// with a bounded timeout. Workers still busy after the timeout are abandoned,
// not force-killed; queued jobs stay queued and resume on the next
// StartWorkers.
func (s *Service) StopWorkers() {
	if s == nil {
		return
	}
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.running.Load() {
		return
	}
	s.running.Store(false)

	for _, priority := range prioritiesHighFirst {
		for idx := 0; idx < s.workerCount; idx++ {
			s.queues.pushPill(priority)
		}
	}

	wg := s.wg
	s.wg = nil
	s.workerCount = 0

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		s.log.Info("stopped job workers")
	case <-time.After(s.config.StopTimeout):
		s.log.Warn("job workers did not exit before timeout, abandoning", "timeout", s.config.StopTimeout)
	}
}

// JobStatus returns a snapshot of the job, or nil when the id is unknown.
func (s *Service) JobStatus(jobID string) *Record {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[strings.TrimSpace(jobID)]
	if !ok {
		return nil
	}
	return job.record()
}

// ListJobs returns snapshots filtered by optional status and task name,
// sorted newest-created-first and truncated to the limit.
func (s *Service) ListJobs(opts ListOptions) []*Record {
	if s == nil {
		return nil
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultListLimit
	}
	taskName := strings.TrimSpace(opts.TaskName)

	s.mu.RLock()
	matched := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if opts.Status != "" && job.Status != opts.Status {
			continue
		}
		if taskName != "" && job.TaskName != taskName {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	records := make([]*Record, 0, len(matched))
	for _, job := range matched {
		records = append(records, job.record())
	}
	s.mu.RUnlock()

	return records
}

// CancelJob cancels a job that is still PENDING, marking it failed with a
// system-generated message. Jobs already picked up by a worker cannot be
// cancelled. Returns false when the job does not exist or is past PENDING.
func (s *Service) CancelJob(jobID string) bool {
	if s == nil {
		return false
	}

	s.mu.Lock()
	job, ok := s.jobs[strings.TrimSpace(jobID)]
	if !ok || job.Status != StatusPending {
		s.mu.Unlock()
		return false
	}
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.ErrorMessage = cancelledMessage
	job.CompletedAt = &now
	rec := job.record()
	s.mu.Unlock()

	s.persist(rec)
	s.log.Info("cancelled job", "job_id", rec.ID, "task_name", rec.TaskName)
	return true
}

// Stats returns totals, per-priority queue depths, per-status counts, the
// registered task names, and pool state.
func (s *Service) Stats() QueueStats {
	if s == nil {
		return QueueStats{}
	}

	s.lifecycleMu.Lock()
	running := s.running.Load()
	workers := s.workerCount
	s.lifecycleMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := QueueStats{
		TotalJobs:       len(s.jobs),
		QueueDepths:     make(map[string]int, len(prioritiesHighFirst)),
		StatusCounts:    make(map[string]int, len(allStatuses)),
		RegisteredTasks: make([]string, 0, len(s.handlers)),
		Workers:         workers,
		Running:         running,
	}
	for _, priority := range prioritiesHighFirst {
		stats.QueueDepths[priority.String()] = s.queues.depth(priority)
	}
	for _, status := range allStatuses {
		stats.StatusCounts[strings.ToUpper(string(status))] = 0
	}
	for _, job := range s.jobs {
		stats.StatusCounts[strings.ToUpper(string(job.Status))]++
	}
	for name := range s.handlers {
		stats.RegisteredTasks = append(stats.RegisteredTasks, name)
	}
	sort.Strings(stats.RegisteredTasks)
	return stats
}

// CleanupOldJobs removes terminal jobs whose completion timestamp is older
// than maxAge from both the registry and disk, and returns the count removed.
// Jobs without a completion timestamp are never eligible.
func (s *Service) CleanupOldJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	if s == nil {
		return 0, ErrNotInitialized
	}
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	expired := make([]string, 0)
	for id, job := range s.jobs {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(s.jobs, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range expired {
		if err := s.store.Delete(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	s.log.Info("cleaned up old jobs", "removed", len(expired))
	return len(expired), errors.Join(errs...)
}

// HealthCheck verifies the persistence layer is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s == nil {
		return ErrNotInitialized
	}
	return s.store.Ping(ctx)
}

func (s *Service) workerLoop(wg *sync.WaitGroup, name string) {
	defer wg.Done()
	s.log.Debug("job worker started", "worker", name)

	for s.running.Load() {
		job, pill := s.queues.poll(s.config.PollTimeout)
		if pill || job == nil {
			continue
		}
		recordQueueDepth(job.Priority, s.queues.depth(job.Priority))
		s.processJob(job)
	}

	s.log.Debug("job worker stopped", "worker", name)
}

// processJob runs one dequeued job through its full lifecycle. Failures are
// contained here: a bad handler never takes down the loop or other jobs.
func (s *Service) processJob(job *Job) {
	s.mu.Lock()
	if job.Status != StatusPending && job.Status != StatusRetrying {
		// Cancelled while queued; the status field wins.
		s.mu.Unlock()
		return
	}
	delay := job.Delay
	job.Delay = 0
	s.mu.Unlock()

	// The delay blocks only this worker, and applies exactly once.
	if delay > 0 {
		time.Sleep(delay)
	}

	ctx, span := tracing.StartJobSpan(context.Background(), tracing.SpanOperationJobProcess,
		tracing.WithJobID(job.ID),
		tracing.WithJobTask(job.TaskName),
		tracing.WithJobPriority(job.Priority.String()),
	)
	defer span.End()

	s.mu.Lock()
	job.Status = StatusRunning
	if job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	span.SetAttributes(
		attribute.Int("jobs.retries_remaining", job.RetryCount),
		attribute.Int("jobs.max_retries", job.MaxRetries),
	)
	handler, registered := s.handlers[job.TaskName]
	rec := job.record()
	s.mu.Unlock()
	s.persist(rec)

	log := s.log.WithContext(ctx)
	log.Info("processing job", "job_id", job.ID, "task_name", job.TaskName)
	incrementJobInFlight(job.Priority)
	defer decrementJobInFlight(job.Priority)

	var result any
	var execErr error
	if !registered {
		execErr = jobsError(ErrUnknownTask, job.TaskName)
	} else {
		result, execErr = s.executeHandler(ctx, handler, job)
	}

	if execErr == nil {
		s.mu.Lock()
		now := time.Now().UTC()
		job.Result = result
		job.Status = StatusCompleted
		job.CompletedAt = &now
		rec = job.record()
		s.mu.Unlock()

		s.persist(rec)
		recordJobProcessed(job.TaskName, "success")
		tracing.RecordSuccess(span)
		log.Info("job completed", "job_id", job.ID, "task_name", job.TaskName)
		return
	}

	tracing.RecordError(span, execErr)
	s.handleFailure(job, execErr)
}

// handleFailure applies the retry policy: decrement the budget, re-queue with
// exponential backoff while attempts remain, otherwise fail permanently.
func (s *Service) handleFailure(job *Job, failure error) {
	s.mu.Lock()
	job.ErrorMessage = failure.Error()
	job.RetryCount--

	if job.RetryCount > 0 {
		job.Status = StatusRetrying
		job.Delay = retryBackoff(job.MaxRetries, job.RetryCount, s.config.RetryBackoffBase, s.config.RetryBackoffMax)
		rec := job.record()
		s.mu.Unlock()

		if err := s.queues.push(job); err != nil {
			s.failPermanently(job, fmt.Errorf("re-enqueue for retry: %w", err))
			return
		}
		s.persist(rec)
		recordJobRetry(job.TaskName)
		recordJobProcessed(job.TaskName, "retry")
		s.log.Warn("job failed, retry scheduled",
			"job_id", job.ID, "task_name", job.TaskName,
			"retries_remaining", rec.RetryCount, "delay", time.Duration(rec.DelaySeconds*float64(time.Second)),
			"error", failure)
		return
	}

	now := time.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = &now
	rec := job.record()
	s.mu.Unlock()

	s.persist(rec)
	recordJobProcessed(job.TaskName, "failed")
	s.log.Error("job failed permanently", "job_id", job.ID, "task_name", job.TaskName, "error", failure)
}

func (s *Service) failPermanently(job *Job, failure error) {
	s.mu.Lock()
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.ErrorMessage = failure.Error()
	job.CompletedAt = &now
	rec := job.record()
	s.mu.Unlock()

	s.persist(rec)
	recordJobProcessed(job.TaskName, "failed")
	s.log.Error("job failed permanently", "job_id", job.ID, "task_name", job.TaskName, "error", failure)
}

func (s *Service) executeHandler(ctx context.Context, handler Handler, job *Job) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic while handling job: %v; stack=%s", rec, string(debug.Stack()))
		}
	}()
	return handler(ctx, job.TaskData)
}

// persist writes a snapshot from the worker path. Worker loops survive
// persistence failures; the error is logged and the in-memory state remains
// authoritative until the next transition rewrites the file.
func (s *Service) persist(rec *Record) {
	if err := s.store.Save(context.Background(), rec); err != nil {
		s.log.Error("persist job failed", "job_id", rec.ID, "error", err)
	}
}

func (s *Service) forgetJob(jobID string) {
	s.mu.Lock()
	delete(s.jobs, jobID)
	s.mu.Unlock()
}

// loadJobs populates the registry from disk. Only PENDING jobs are re-queued;
// jobs interrupted mid-flight (RUNNING, RETRYING) stay visible via the query
// API but are not resumed.
func (s *Service) loadJobs(ctx context.Context) error {
	records, err := s.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load persisted jobs: %w", err)
	}

	requeued := 0
	for _, rec := range records {
		job, err := jobFromRecord(rec)
		if err != nil {
			s.log.Warn("skipping invalid persisted job", "job_id", rec.ID, "error", err)
			continue
		}

		s.mu.Lock()
		s.jobs[job.ID] = job
		s.mu.Unlock()

		if job.Status == StatusPending {
			if err := s.queues.push(job); err != nil {
				s.log.Warn("could not re-queue pending job", "job_id", job.ID, "error", err)
				continue
			}
			requeued++
		}
	}

	s.log.Info("loaded persisted jobs", "total", len(records), "requeued", requeued)
	return nil
}

// retryBackoff doubles the base delay for each consumed retry, capped at max.
// With the default one second base this yields 2s, 4s, 8s, ... up to the cap.
func retryBackoff(maxRetries, remaining int, base, max time.Duration) time.Duration {
	consumed := maxRetries - remaining
	if consumed < 1 {
		consumed = 1
	}

	backoff := base
	for idx := 0; idx < consumed; idx++ {
		if backoff >= max/2 {
			return max
		}
		backoff *= 2
	}
	if backoff > max {
		return max
	}
	return backoff
}
