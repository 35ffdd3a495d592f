package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/finki-hub/finki-chat-bot/internal/models"
)

// ErrLinkNotFound is returned when no link row matches the lookup.
var ErrLinkNotFound = errors.New("link not found")

// LinksRepository handles data access for the link table.
type LinksRepository struct {
	db *pgxpool.Pool
}

// NewLinksRepository creates a new links repository.
func NewLinksRepository(db *pgxpool.Pool) *LinksRepository {
	return &LinksRepository{db: db}
}

const linkColumns = "id, name, url, user_id, created_at, updated_at"

func scanLink(row pgx.Row) (*models.Link, error) {
	var l models.Link

	err := row.Scan(&l.ID, &l.Name, &l.URL, &l.UserID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// List returns all links ordered by name.
func (r *LinksRepository) List(ctx context.Context) ([]models.Link, error) {
	rows, err := r.db.Query(ctx, `SELECT `+linkColumns+` FROM link ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	var out []models.Link

	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}

		out = append(out, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating links: %w", err)
	}

	return out, nil
}

// ListNames returns all link names ordered ascending.
func (r *LinksRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM link ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list link names: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan link name: %w", err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating link names: %w", err)
	}

	return names, nil
}

// GetByName returns the link with the given name. Returns ErrLinkNotFound when no row exists.
func (r *LinksRepository) GetByName(ctx context.Context, name string) (*models.Link, error) {
	l, err := scanLink(r.db.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM link WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}

		return nil, fmt.Errorf("get link by name: %w", err)
	}

	return l, nil
}

// Create inserts a new link. Returns ErrDuplicateName on a name collision.
func (r *LinksRepository) Create(ctx context.Context, req models.CreateLinkRequest) (*models.Link, error) {
	now := time.Now()

	l, err := scanLink(r.db.QueryRow(ctx, `
		INSERT INTO link (id, name, url, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+linkColumns,
		uuid.Must(uuid.NewV7()), req.Name, req.URL, req.UserID, now,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}

		return nil, fmt.Errorf("create link: %w", err)
	}

	return l, nil
}

// Update applies the non-nil fields of req to the named link.
// Returns ErrLinkNotFound when the link does not exist.
func (r *LinksRepository) Update(ctx context.Context, name string, req models.UpdateLinkRequest) (*models.Link, error) {
	set := "updated_at = NOW()"
	args := []any{}
	n := 1

	if req.Name != nil {
		set += fmt.Sprintf(", name = $%d", n)
		args = append(args, *req.Name)
		n++
	}

	if req.URL != nil {
		set += fmt.Sprintf(", url = $%d", n)
		args = append(args, *req.URL)
		n++
	}

	args = append(args, name)
	query := fmt.Sprintf("UPDATE link SET %s WHERE name = $%d RETURNING %s", set, n, linkColumns)

	l, err := scanLink(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}

		if isUniqueViolation(err) {
			return nil, ErrDuplicateName
		}

		return nil, fmt.Errorf("update link: %w", err)
	}

	return l, nil
}

// Delete removes the named link. Deleting a missing link is not an error.
func (r *LinksRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM link WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	return nil
}
