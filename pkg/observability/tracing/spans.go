package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

const (
	// SpanOperationJobProcess represents executing one job on a worker.
	SpanOperationJobProcess SpanOperation = "jobs.process"
	// SpanOperationJobEnqueue represents placing a job on a queue.
	SpanOperationJobEnqueue SpanOperation = "jobs.enqueue"
)

// JobSpanOption configures a job span.
type JobSpanOption func(*jobSpanOptions)

type jobSpanOptions struct {
	taskName   string
	attributes []attribute.KeyValue
}

// WithJobID sets the job identifier attribute.
func WithJobID(jobID string) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("jobs.job_id", jobID))
	}
}

// WithJobTask sets the task name attribute and the span name suffix.
func WithJobTask(taskName string) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.taskName = taskName
		opts.attributes = append(opts.attributes, attribute.String("jobs.task_name", taskName))
	}
}

// WithJobPriority sets the priority level attribute.
func WithJobPriority(priority string) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("jobs.priority", priority))
	}
}

// StartJobSpan creates a span for a job queue operation. Process spans are
// consumer-kind, enqueue spans producer-kind.
func StartJobSpan(ctx context.Context, operation SpanOperation, opts ...JobSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("jobs")

	spanOpts := &jobSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("jobs.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("JOB %s", operation)
	if spanOpts.taskName != "" {
		spanName = fmt.Sprintf("JOB %s %s", operation, spanOpts.taskName)
	}

	spanKind := trace.SpanKindConsumer
	if operation == SpanOperationJobEnqueue {
		spanKind = trace.SpanKindProducer
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(spanKind))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// RecordError records the error on the span and marks the span status.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
