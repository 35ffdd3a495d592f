package service

import (
	"context"
	"log/slog"

	"github.com/finki-hub/finki-chat-bot/internal/models"
	"github.com/finki-hub/finki-chat-bot/internal/repository"
)

// LinksRepo provides the persistence operations the service needs.
type LinksRepo interface {
	List(ctx context.Context) ([]models.Link, error)
	ListNames(ctx context.Context) ([]string, error)
	GetByName(ctx context.Context, name string) (*models.Link, error)
	Create(ctx context.Context, req models.CreateLinkRequest) (*models.Link, error)
	Update(ctx context.Context, name string, req models.UpdateLinkRequest) (*models.Link, error)
	Delete(ctx context.Context, name string) error
}

// LinksService owns the named link directory.
type LinksService struct {
	repo   LinksRepo
	logger *slog.Logger
}

// NewLinksService creates a LinksService.
func NewLinksService(repo LinksRepo, logger *slog.Logger) *LinksService {
	if logger == nil {
		logger = slog.Default()
	}

	return &LinksService{repo: repo, logger: logger}
}

// List returns all links in name order.
func (s *LinksService) List(ctx context.Context) ([]models.Link, error) {
	return s.repo.List(ctx)
}

// ListNames returns all link names in name order.
func (s *LinksService) ListNames(ctx context.Context) ([]string, error) {
	return s.repo.ListNames(ctx)
}

// GetByName returns one link by its name slug.
func (s *LinksService) GetByName(ctx context.Context, name string) (*models.Link, error) {
	return s.repo.GetByName(ctx, name)
}

// Create inserts a link.
func (s *LinksService) Create(ctx context.Context, req models.CreateLinkRequest) (*models.Link, error) {
	return s.repo.Create(ctx, req)
}

// Update modifies a link.
func (s *LinksService) Update(ctx context.Context, name string, req models.UpdateLinkRequest) (*models.Link, error) {
	return s.repo.Update(ctx, name, req)
}

// Delete removes a link by name.
func (s *LinksService) Delete(ctx context.Context, name string) error {
	return s.repo.Delete(ctx, name)
}

var _ LinksRepo = (*repository.LinksRepository)(nil)
