package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameChatRequests       = "chat_requests_total"
	MetricNameChatStageDuration  = "chat_stage_duration_seconds"
	MetricNameChatDocuments      = "chat_documents_retrieved"
	MetricNameChatFallbacks      = "chat_agent_fallbacks_total"
	MetricNameCacheHits          = "cache_hits_total"
	MetricNameCacheMisses        = "cache_misses_total"
	MetricNameEmbeddingsEnqueued = "embedding_jobs_enqueued_total"
	MetricNameEmbeddingErrors    = "embedding_worker_errors_total"
	MetricNameEmbeddingOutcomes  = "embedding_job_outcomes_total"
	MetricNameEmbeddingDuration  = "embedding_job_duration_seconds"
)

// Attribute keys.
const (
	AttrModel  = "model"
	AttrMode   = "mode"
	AttrStage  = "stage"
	AttrStatus = "status"
	AttrReason = "reason"
	AttrCache  = "cache"
)

// Pipeline stages recorded on chat_stage_duration_seconds.
const (
	StageTransform = "transform"
	StageEmbed     = "embed"
	StageRetrieve  = "retrieve"
	StageRerank    = "rerank"
)

// Chat request statuses, bounded for cardinality.
var allowedChatStatuses = map[string]bool{
	"ok":                   true,
	"unsupported_model":    true,
	"model_not_ready":      true,
	"retrieval_failed":     true,
	"provider_unavailable": true,
	"stream_error":         true,
	"error":                true,
}

// Embedding job outcomes.
var allowedEmbeddingStatuses = map[string]bool{
	"stored":       true,
	"retry":        true,
	"failed_final": true,
	"skipped":      true,
}

// NormalizeChatStatus returns status if allowed, otherwise "error".
func NormalizeChatStatus(status string) string {
	if allowedChatStatuses[status] {
		return status
	}

	return "error"
}

// NormalizeEmbeddingStatus returns status if allowed, otherwise "other".
func NormalizeEmbeddingStatus(status string) string {
	if allowedEmbeddingStatuses[status] {
		return status
	}

	return "other"
}
