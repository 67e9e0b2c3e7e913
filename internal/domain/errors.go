package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the parent of every "entity absent" condition.
	ErrNotFound = errors.New("not found")
	// ErrQuizNotFound indicates the quiz does not exist or is not visible to the caller.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrAttemptNotFound indicates the attempt does not exist or belongs to someone else.
	ErrAttemptNotFound = fmt.Errorf("attempt %w", ErrNotFound)
	// ErrQuizExists is returned when creating a quiz whose id is taken.
	ErrQuizExists = errors.New("quiz already exists")
	// ErrAttemptLimitExceeded is returned when a user has used all attempts of a quiz.
	ErrAttemptLimitExceeded = errors.New("maximum attempts reached")
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence is the parent of every PersistenceError.
	ErrPersistence = errors.New("persistence failed")
)

// ValidationError reports a malformed submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError wraps a failed store write. It is fatal for the request.
type PersistenceError struct {
	Op     string
	QuizID string
	UserID string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s (quiz=%s user=%s): %v", e.Op, e.QuizID, e.UserID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
