package jobs

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority selects which queue a job lands on. Workers drain higher values first.
type Priority int

// Priority levels, ordered by numeric value.
const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// prioritiesHighFirst is the queue consultation order used by workers.
var prioritiesHighFirst = []Priority{PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow}

// String returns the symbolic priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityUrgent:
		return "URGENT"
	default:
		return "UNKNOWN"
	}
}

func (p Priority) valid() bool {
	return p >= PriorityLow && p <= PriorityUrgent
}

// ParsePriority converts a symbolic name into a Priority.
func ParsePriority(value string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "LOW":
		return PriorityLow, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "HIGH":
		return PriorityHigh, nil
	case "URGENT":
		return PriorityUrgent, nil
	default:
		return 0, jobsError(ErrValidation, "invalid priority "+value)
	}
}

// Status describes where a job sits in its lifecycle. The status field is the
// single source of truth for which stage a job occupies.
type Status string

// Job lifecycle states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// allStatuses is used for stat aggregation, in a stable order.
var allStatuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusRetrying}

func (s Status) valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusRetrying:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a status name into a Status.
func ParseStatus(value string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	if !status.valid() {
		return "", jobsError(ErrValidation, "invalid status "+value)
	}
	return status, nil
}

// Job is one unit of enqueued work: a named handler invocation with a
// priority, a retry budget, and lifecycle timestamps. Workers mutate a job
// only while they own it; a job lives on exactly one queue or in exactly one
// worker's hands at a time.
type Job struct {
	ID           string
	TaskName     string
	TaskData     map[string]any
	Priority     Priority
	Status       Status
	RetryCount   int
	MaxRetries   int
	Delay        time.Duration
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	Result       any
}

func newJob(taskName string, taskData map[string]any, opts EnqueueOptions) *Job {
	return &Job{
		ID:         uuid.NewString(),
		TaskName:   taskName,
		TaskData:   cloneTaskData(taskData),
		Priority:   opts.Priority,
		Status:     StatusPending,
		RetryCount: opts.RetryCount,
		MaxRetries: opts.RetryCount,
		Delay:      opts.Delay,
		CreatedAt:  time.Now().UTC(),
	}
}

// Record is the serialized snapshot of a job, with priority and status encoded
// as their scalar values, durations as seconds, and timestamps as RFC 3339
// strings. It is both the persistence format and the shape returned by the
// query API.
type Record struct {
	ID           string         `json:"id"`
	TaskName     string         `json:"task_name"`
	TaskData     map[string]any `json:"task_data"`
	Priority     int            `json:"priority"`
	Status       string         `json:"status"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	DelaySeconds float64        `json:"delay"`
	CreatedAt    string         `json:"created_at"`
	StartedAt    *string        `json:"started_at"`
	CompletedAt  *string        `json:"completed_at"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Result       any            `json:"result,omitempty"`
}

// record snapshots the job. Callers must hold the registry lock when the job
// may be mutated concurrently.
func (j *Job) record() *Record {
	return &Record{
		ID:           j.ID,
		TaskName:     j.TaskName,
		TaskData:     cloneTaskData(j.TaskData),
		Priority:     int(j.Priority),
		Status:       string(j.Status),
		RetryCount:   j.RetryCount,
		MaxRetries:   j.MaxRetries,
		DelaySeconds: j.Delay.Seconds(),
		CreatedAt:    j.CreatedAt.UTC().Format(time.RFC3339Nano),
		StartedAt:    formatOptionalTime(j.StartedAt),
		CompletedAt:  formatOptionalTime(j.CompletedAt),
		ErrorMessage: j.ErrorMessage,
		Result:       j.Result,
	}
}

func jobFromRecord(rec *Record) (*Job, error) {
	if rec == nil {
		return nil, jobsError(ErrValidation, "record is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, jobsError(ErrValidation, "job id is required")
	}
	if strings.TrimSpace(rec.TaskName) == "" {
		return nil, jobsError(ErrValidation, "task name is required")
	}

	priority := Priority(rec.Priority)
	if !priority.valid() {
		return nil, jobsError(ErrValidation, "invalid priority value")
	}
	status := Status(rec.Status)
	if !status.valid() {
		return nil, jobsError(ErrValidation, "invalid status value")
	}

	createdAt, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return nil, jobsError(ErrValidation, "invalid created_at timestamp")
	}
	startedAt, err := parseOptionalTime(rec.StartedAt)
	if err != nil {
		return nil, jobsError(ErrValidation, "invalid started_at timestamp")
	}
	completedAt, err := parseOptionalTime(rec.CompletedAt)
	if err != nil {
		return nil, jobsError(ErrValidation, "invalid completed_at timestamp")
	}

	return &Job{
		ID:           strings.TrimSpace(rec.ID),
		TaskName:     strings.TrimSpace(rec.TaskName),
		TaskData:     cloneTaskData(rec.TaskData),
		Priority:     priority,
		Status:       status,
		RetryCount:   rec.RetryCount,
		MaxRetries:   rec.MaxRetries,
		Delay:        time.Duration(rec.DelaySeconds * float64(time.Second)),
		CreatedAt:    createdAt.UTC(),
		StartedAt:    startedAt,
		CompletedAt:  completedAt,
		ErrorMessage: rec.ErrorMessage,
		Result:       rec.Result,
	}, nil
}

func formatOptionalTime(ts *time.Time) *string {
	if ts == nil {
		return nil
	}
	formatted := ts.UTC().Format(time.RFC3339Nano)
	return &formatted
}

func parseOptionalTime(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, *value)
	if err != nil {
		return nil, err
	}
	utc := ts.UTC()
	return &utc, nil
}

func cloneTaskData(input map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}
