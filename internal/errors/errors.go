// Package errors defines the typed error categories the API layer maps to
// HTTP statuses. Components return these; handlers translate them exactly once.
package errors

import "fmt"

// ErrUnsupportedModel is the sentinel for errors.Is checks against any UnsupportedModelError.
var ErrUnsupportedModel = &UnsupportedModelError{}

// UnsupportedModelError means the requested model identifier has no registered
// adapter for the attempted capability. Maps to 400.
type UnsupportedModelError struct {
	Model      string
	Capability string
}

func (e *UnsupportedModelError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("model %q does not support %s", e.Model, e.Capability)
	}

	if e.Model != "" {
		return fmt.Sprintf("unsupported model %q", e.Model)
	}

	return "unsupported model"
}

// Is matches any UnsupportedModelError regardless of fields.
func (e *UnsupportedModelError) Is(target error) bool {
	_, ok := target.(*UnsupportedModelError)
	return ok
}

// NewUnsupportedModelError creates an UnsupportedModelError for the given model and capability.
func NewUnsupportedModelError(model, capability string) *UnsupportedModelError {
	return &UnsupportedModelError{Model: model, Capability: capability}
}

// ErrModelNotReady is the sentinel for errors.Is checks against any ModelNotReadyError.
var ErrModelNotReady = &ModelNotReadyError{}

// ModelNotReadyError means a local model is still loading. Maps to 503 and is
// safe to retry after a delay.
type ModelNotReadyError struct {
	Model string
}

func (e *ModelNotReadyError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %q is still warming up", e.Model)
	}

	return "model is still warming up"
}

// Is matches any ModelNotReadyError regardless of fields.
func (e *ModelNotReadyError) Is(target error) bool {
	_, ok := target.(*ModelNotReadyError)
	return ok
}

// NewModelNotReadyError creates a ModelNotReadyError for the given model.
func NewModelNotReadyError(model string) *ModelNotReadyError {
	return &ModelNotReadyError{Model: model}
}

// ErrRetrieval is the sentinel for errors.Is checks against any RetrievalError.
var ErrRetrieval = &RetrievalError{}

// RetrievalError wraps any failure between query transform and context build,
// before generation starts. Maps to 503: a dependency outage, not a client error.
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieval failed during %s: %v", e.Stage, e.Err)
	}

	return "retrieval failed"
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Is matches any RetrievalError regardless of fields.
func (e *RetrievalError) Is(target error) bool {
	_, ok := target.(*RetrievalError)
	return ok
}

// NewRetrievalError wraps err with the pipeline stage it happened in.
func NewRetrievalError(stage string, err error) *RetrievalError {
	return &RetrievalError{Stage: stage, Err: err}
}

// ErrProviderUnavailable is the sentinel for errors.Is checks against any ProviderUnavailableError.
var ErrProviderUnavailable = &ProviderUnavailableError{}

// ProviderUnavailableError means the chosen inference backend is unreachable or
// erroring before any tokens were streamed. Maps to 504.
type ProviderUnavailableError struct {
	Provider string
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s unavailable: %v", e.Provider, e.Err)
	}

	if e.Provider != "" {
		return fmt.Sprintf("provider %s unavailable", e.Provider)
	}

	return "provider unavailable"
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// Is matches any ProviderUnavailableError regardless of fields.
func (e *ProviderUnavailableError) Is(target error) bool {
	_, ok := target.(*ProviderUnavailableError)
	return ok
}

// NewProviderUnavailableError wraps err with the provider that failed.
func NewProviderUnavailableError(provider string, err error) *ProviderUnavailableError {
	return &ProviderUnavailableError{Provider: provider, Err: err}
}

// ErrNotFound is the sentinel for errors.Is checks against any NotFoundError.
var ErrNotFound = &NotFoundError{}

// NotFoundError means a requested resource does not exist. Maps to 404.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}

	return "resource not found"
}

// Is matches any NotFoundError regardless of fields.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resource string) *NotFoundError {
	return &NotFoundError{Resource: resource}
}
