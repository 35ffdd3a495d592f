package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/finki-hub/finki-chat-bot/internal/models"
)

const (
	questionEmbeddingKind = "question_embedding"
	// EmbeddingsQueueName is the River queue used for question embedding jobs.
	EmbeddingsQueueName = "embeddings"
)

// EmbeddingJobInserter inserts embedding jobs (e.g. River client).
type EmbeddingJobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// QuestionEmbeddingArgs is the job payload for generating and storing one
// question's vector for one model. Uniqueness is by (question, model) so a
// burst of edits to the same question does not pile up duplicate jobs.
type QuestionEmbeddingArgs struct {
	QuestionID uuid.UUID    `json:"question_id" river:"unique"`
	Model      models.Model `json:"model"       river:"unique"`
}

// Kind returns the River job kind.
func (QuestionEmbeddingArgs) Kind() string { return questionEmbeddingKind }

var _ river.JobArgs = QuestionEmbeddingArgs{}
