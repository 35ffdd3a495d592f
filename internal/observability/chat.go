package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChatMetrics records chat pipeline metrics with bounded cardinality
// (model identifiers come from a closed set).
type ChatMetrics interface {
	RecordRequest(ctx context.Context, model, mode, status string)
	RecordStageDuration(ctx context.Context, stage string, duration time.Duration)
	RecordDocumentsRetrieved(ctx context.Context, count int)
	RecordAgentFallback(ctx context.Context, reason string)
}

type chatMetrics struct {
	requests      metric.Int64Counter
	stageDuration metric.Float64Histogram
	documents     metric.Int64Histogram
	fallbacks     metric.Int64Counter
}

// NewChatMetrics creates ChatMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewChatMetrics(meter metric.Meter) (ChatMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requests, err := meter.Int64Counter(
		MetricNameChatRequests,
		metric.WithDescription("Total chat requests by inference model, generation mode, and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat requests counter: %w", err)
	}

	stageDuration, err := meter.Float64Histogram(
		MetricNameChatStageDuration,
		metric.WithDescription("Duration of each retrieval pipeline stage (transform, embed, retrieve, rerank)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat stage duration histogram: %w", err)
	}

	documents, err := meter.Int64Histogram(
		MetricNameChatDocuments,
		metric.WithDescription("Documents surviving the distance threshold per request"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat documents histogram: %w", err)
	}

	fallbacks, err := meter.Int64Counter(
		MetricNameChatFallbacks,
		metric.WithDescription("Agent requests that fell back to direct generation"),
	)
	if err != nil {
		return nil, fmt.Errorf("create chat fallbacks counter: %w", err)
	}

	return &chatMetrics{
		requests:      requests,
		stageDuration: stageDuration,
		documents:     documents,
		fallbacks:     fallbacks,
	}, nil
}

func (c *chatMetrics) RecordRequest(ctx context.Context, model, mode, status string) {
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrModel, model),
		attribute.String(AttrMode, mode),
		attribute.String(AttrStatus, NormalizeChatStatus(status)),
	))
}

func (c *chatMetrics) RecordStageDuration(ctx context.Context, stage string, duration time.Duration) {
	c.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrStage, stage),
	))
}

func (c *chatMetrics) RecordDocumentsRetrieved(ctx context.Context, count int) {
	c.documents.Record(ctx, int64(count))
}

func (c *chatMetrics) RecordAgentFallback(ctx context.Context, reason string) {
	c.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrReason, reason),
	))
}
