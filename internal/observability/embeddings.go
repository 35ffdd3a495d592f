package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EmbeddingMetrics records the async embedding pipeline: jobs enqueued on
// question writes and the worker's outcomes.
type EmbeddingMetrics interface {
	RecordJobsEnqueued(ctx context.Context, count int64)
	RecordWorkerError(ctx context.Context, reason string)
	RecordJobOutcome(ctx context.Context, model, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

type embeddingMetrics struct {
	enqueued     metric.Int64Counter
	workerErrors metric.Int64Counter
	outcomes     metric.Int64Counter
	duration     metric.Float64Histogram
}

// allowedWorkerErrorReasons bounds the reason label.
var allowedWorkerErrorReasons = map[string]bool{
	"get_question_failed": true,
	"embed_failed":        true,
	"store_failed":        true,
}

// NewEmbeddingMetrics creates EmbeddingMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewEmbeddingMetrics(meter metric.Meter) (EmbeddingMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	enqueued, err := meter.Int64Counter(
		MetricNameEmbeddingsEnqueued,
		metric.WithDescription("Total embedding jobs enqueued"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding jobs enqueued counter: %w", err)
	}

	workerErrors, err := meter.Int64Counter(
		MetricNameEmbeddingErrors,
		metric.WithDescription("Embedding worker errors by reason (get_question_failed, embed_failed, store_failed)"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding worker errors counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		MetricNameEmbeddingOutcomes,
		metric.WithDescription("Embedding job outcomes by model and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding outcomes counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameEmbeddingDuration,
		metric.WithDescription("Embedding job duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedding duration histogram: %w", err)
	}

	return &embeddingMetrics{
		enqueued:     enqueued,
		workerErrors: workerErrors,
		outcomes:     outcomes,
		duration:     duration,
	}, nil
}

func (e *embeddingMetrics) RecordJobsEnqueued(ctx context.Context, count int64) {
	e.enqueued.Add(ctx, count)
}

func (e *embeddingMetrics) RecordWorkerError(ctx context.Context, reason string) {
	if !allowedWorkerErrorReasons[reason] {
		reason = "other"
	}

	e.workerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrReason, reason)))
}

func (e *embeddingMetrics) RecordJobOutcome(ctx context.Context, model, status string) {
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrModel, model),
		attribute.String(AttrStatus, NormalizeEmbeddingStatus(status)),
	))
}

func (e *embeddingMetrics) RecordJobDuration(ctx context.Context, duration time.Duration, status string) {
	e.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStatus, NormalizeEmbeddingStatus(status)),
	))
}
