// Package services defines the business logic for chat histories, projects,
// users and streamed completions. This file centralizes the service-level
// error values so that callers can check them with errors.Is.
//
// Errors form a small taxonomy: every specific error wraps exactly one of
// ErrValidation, ErrNotFound, ErrConstraint or ErrStorageUnavailable.
// Translation into HTTP status codes happens in the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-chat-history/internal/store"
)

// Error kinds.
var (
	// ErrValidation is returned for input rejected before any write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a chat, message, project or user is
	// missing or not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrConstraint is returned when a write would duplicate a unique key.
	ErrConstraint = store.ErrConstraint

	// ErrStorageUnavailable is returned by writes while persistence is
	// disabled.
	ErrStorageUnavailable = store.ErrUnavailable
)

// Specific errors.
var (
	ErrChatNotFound    = fmt.Errorf("chat %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	ErrProjectNotFound = fmt.Errorf("project %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)

	ErrInvalidTimestamp = fmt.Errorf("%w: timestamp is not a valid date", ErrValidation)
	ErrEmptyDescription = fmt.Errorf("%w: description is empty", ErrValidation)
	ErrEmptyName        = fmt.Errorf("%w: name is empty", ErrValidation)
	ErrMissingUser      = fmt.Errorf("%w: user id is required", ErrValidation)
	ErrNoMessages       = fmt.Errorf("%w: messages are required", ErrValidation)

	// ErrProjectExists is returned when the composite project id or the
	// project id is already taken.
	ErrProjectExists = fmt.Errorf("project already exists: %w", ErrConstraint)

	// ErrURLIDTaken is returned when a save names a url id another chat uses.
	ErrURLIDTaken = fmt.Errorf("url id already in use: %w", ErrConstraint)
)
