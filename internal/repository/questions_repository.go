// Package repository handles data access for questions and links.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// ErrQuestionNotFound is returned when no question row matches the lookup.
var ErrQuestionNotFound = errors.New("question not found")

// ErrDuplicateName is returned when an insert or rename collides with the unique name slug.
var ErrDuplicateName = errors.New("name already exists")

// QuestionsRepository handles data access for the question table, including
// the per-model embedding columns used by nearest-neighbor retrieval.
type QuestionsRepository struct {
	db *pgxpool.Pool
}

// NewQuestionsRepository creates a new questions repository.
func NewQuestionsRepository(db *pgxpool.Pool) *QuestionsRepository {
	return &QuestionsRepository{db: db}
}

const questionColumns = "id, name, content, user_id, links, created_at, updated_at"

func scanQuestion(row pgx.Row) (*models.Question, error) {
	var (
		q        models.Question
		rawLinks []byte
	)

	err := row.Scan(&q.ID, &q.Name, &q.Content, &q.UserID, &rawLinks, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(rawLinks) > 0 {
		if err := json.Unmarshal(rawLinks, &q.Links); err != nil {
			return nil, fmt.Errorf("decode links: %w", err)
		}
	}

	return &q, nil
}

// List returns all questions ordered by name.
func (r *QuestionsRepository) List(ctx context.Context) ([]models.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+questionColumns+` FROM question ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []models.Question

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		out = append(out, *q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating questions: %w", err)
	}

	return out, nil
}

// ListNames returns all question names ordered ascending.
func (r *QuestionsRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM question ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list question names: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan question name: %w", err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating question names: %w", err)
	}

	return names, nil
}

// GetByName returns the question with the given name slug.
// Returns ErrQuestionNotFound when no row exists.
func (r *QuestionsRepository) GetByName(ctx context.Context, name string) (*models.Question, error) {
	q, err := scanQuestion(r.db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM question WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}

		return nil, fmt.Errorf("get question by name: %w", err)
	}

	return q, nil
}

// GetByID returns the question with the given id.
// Returns ErrQuestionNotFound when no row exists.
func (r *QuestionsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Question, error) {
	q, err := scanQuestion(r.db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM question WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}

		return nil, fmt.Errorf("get question by id: %w", err)
	}

	return q, nil
}

// GetNth returns the question at ordinal position n in name order.
// Returns ErrQuestionNotFound when n is out of range.
func (r *QuestionsRepository) GetNth(ctx context.Context, n int) (*models.Question, error) {
	q, err := scanQuestion(r.db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM question ORDER BY name ASC OFFSET $1 LIMIT 1`, n))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}

		return nil, fmt.Errorf("get nth question: %w", err)
	}

	return q, nil
}

// Create inserts a new question. Returns ErrDuplicateName on a name collision.
func (r *QuestionsRepository) Create(ctx context.Context, req models.CreateQuestionRequest) (*models.Question, error) {
	links := req.Links
	if links == nil {
		links = map[string]string{}
	}

	rawLinks, err := json.Marshal(links)
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}

	now := time.Now()

	q, err := scanQuestion(r.db.QueryRow(ctx, `
		INSERT INTO question (id, name, content, user_id, links, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $6)
		RETURNING `+questionColumns,
		uuid.Must(uuid.NewV7()), req.Name, req.Content, req.UserID, rawLinks, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}

		return nil, fmt.Errorf("create question: %w", err)
	}

	return q, nil
}

// Update applies the non-nil fields of req to the named question and clears the
// embedding columns when content changed, since stored vectors no longer match.
// Returns ErrQuestionNotFound when the question does not exist.
func (r *QuestionsRepository) Update(ctx context.Context, name string, req models.UpdateQuestionRequest) (*models.Question, error) {
	set := "updated_at = NOW()"
	args := []any{}
	n := 1

	if req.Name != nil {
		set += fmt.Sprintf(", name = $%d", n)
		args = append(args, *req.Name)
		n++
	}

	if req.Content != nil {
		set += fmt.Sprintf(", content = $%d", n)
		args = append(args, *req.Content)
		n++

		for _, m := range models.EmbeddingModels() {
			col, _ := m.EmbeddingColumn()
			set += ", " + col + " = NULL"
		}
	}

	if req.UserID != nil {
		set += fmt.Sprintf(", user_id = $%d", n)
		args = append(args, *req.UserID)
		n++
	}

	if req.Links != nil {
		rawLinks, err := json.Marshal(*req.Links)
		if err != nil {
			return nil, fmt.Errorf("encode links: %w", err)
		}

		set += fmt.Sprintf(", links = $%d::jsonb", n)
		args = append(args, rawLinks)
		n++
	}

	args = append(args, name)
	query := fmt.Sprintf("UPDATE question SET %s WHERE name = $%d RETURNING %s", set, n, questionColumns)

	q, err := scanQuestion(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}

		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}

		return nil, fmt.Errorf("update question: %w", err)
	}

	return q, nil
}

// Delete removes the named question. Deleting a missing question is not an error.
func (r *QuestionsRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM question WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}

	return nil
}

// Nearest returns up to limit questions whose embedding for model is within
// threshold cosine distance of queryEmbedding, ordered ascending by distance.
// Ties fall back to Postgres row order, which is stable for an unchanged table.
func (r *QuestionsRepository) Nearest(
	ctx context.Context, queryEmbedding []float32, model models.Model, limit int, threshold float64,
) ([]models.RetrievalCandidate, error) {
	column, err := model.EmbeddingColumn()
	if err != nil {
		return nil, fmt.Errorf("nearest questions: %w", err)
	}

	vec := pgvector.NewVector(queryEmbedding)

	// column comes from the closed model table, never from user input.
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s, %s <=> $1 AS distance
		FROM question
		WHERE %s IS NOT NULL AND %s <=> $1 < $3
		ORDER BY distance
		LIMIT $2`, questionColumns, column, column, column),
		vec, limit, threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("nearest questions: %w", err)
	}
	defer rows.Close()

	var out []models.RetrievalCandidate

	for rows.Next() {
		var (
			c        models.RetrievalCandidate
			rawLinks []byte
		)

		err := rows.Scan(&c.ID, &c.Name, &c.Content, &c.UserID, &rawLinks, &c.CreatedAt, &c.UpdatedAt, &c.Distance)
		if err != nil {
			return nil, fmt.Errorf("scan retrieval candidate: %w", err)
		}

		if len(rawLinks) > 0 {
			if err := json.Unmarshal(rawLinks, &c.Links); err != nil {
				return nil, fmt.Errorf("decode links: %w", err)
			}
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest: %w", err)
	}

	return out, nil
}

// ListMissingEmbeddings returns questions without a stored vector for model.
// When all is true, every question is returned regardless (full regeneration).
func (r *QuestionsRepository) ListMissingEmbeddings(
	ctx context.Context, model models.Model, all bool,
) ([]models.Question, error) {
	column, err := model.EmbeddingColumn()
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}

	query := `SELECT ` + questionColumns + ` FROM question ORDER BY name ASC`
	if !all {
		query = `SELECT ` + questionColumns + ` FROM question WHERE ` + column + ` IS NULL ORDER BY name ASC`
	}

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Question

	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}

		out = append(out, *q)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating missing embeddings: %w", err)
	}

	return out, nil
}

// SetEmbedding stores the vector for (question, model), overwriting any previous value.
func (r *QuestionsRepository) SetEmbedding(
	ctx context.Context, id uuid.UUID, model models.Model, embedding []float32,
) error {
	column, err := model.EmbeddingColumn()
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}

	if want := model.EmbeddingDimensions(); len(embedding) != want {
		return fmt.Errorf("set embedding: got %d dimensions, want %d for model %q", len(embedding), want, model)
	}

	_, err = r.db.Exec(ctx,
		fmt.Sprintf(`UPDATE question SET %s = $1, updated_at = NOW() WHERE id = $2`, column),
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}

	return nil
}
