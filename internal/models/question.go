package models

import (
	"time"

	"github.com/google/uuid"
)

// Question is a stored Q&A entry. Name is a unique slug; Links maps a display
// name to a URL. Embedding vectors live in per-model columns and are not
// carried on this struct.
type Question struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Content   string            `json:"content"`
	UserID    *string           `json:"user_id,omitempty"`
	Links     map[string]string `json:"links,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CreateQuestionRequest is the body for POST /questions/create.
type CreateQuestionRequest struct {
	Name    string            `json:"name"              validate:"required,no_null_bytes"`
	Content string            `json:"content"           validate:"required,no_null_bytes"`
	UserID  *string           `json:"user_id,omitempty"`
	Links   map[string]string `json:"links,omitempty"`
}

// UpdateQuestionRequest is the body for PUT /questions/update/{name}.
// Nil fields are left unchanged.
type UpdateQuestionRequest struct {
	Name    *string            `json:"name,omitempty"    validate:"omitempty,min=1,no_null_bytes"`
	Content *string            `json:"content,omitempty" validate:"omitempty,min=1,no_null_bytes"`
	UserID  *string            `json:"user_id,omitempty"`
	Links   *map[string]string `json:"links,omitempty"`
}

// RetrievalCandidate is a question plus its distance to a query embedding.
// Produced per request, never persisted. Lower distance means closer.
type RetrievalCandidate struct {
	Question
	Distance float64 `json:"distance"`
}

// Link is a stored named URL, managed independently of questions.
type Link struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	UserID    *string   `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateLinkRequest is the body for POST /links/create.
type CreateLinkRequest struct {
	Name   string  `json:"name"              validate:"required,no_null_bytes"`
	URL    string  `json:"url"               validate:"required,url"`
	UserID *string `json:"user_id,omitempty"`
}

// UpdateLinkRequest is the body for PUT /links/update/{name}. Nil fields are left unchanged.
type UpdateLinkRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,no_null_bytes"`
	URL  *string `json:"url,omitempty"  validate:"omitempty,url"`
}
