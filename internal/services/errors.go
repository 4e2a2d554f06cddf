package services

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every *InputError. It is the only planner
// error that reaches callers.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrNoGoal          = errors.New("no goal has been set")

	// ErrInProgress rejects a goal submission or split that is already running.
	ErrInProgress = errors.New("operation already in progress")
)

// InputError rejects empty goal or task text with a user-facing message.
type InputError struct {
	Field   string
	Message string
}

func (e *InputError) Error() string { return e.Message }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

// Source tells whether a result came from the model or the static template.
type Source string

const (
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

type FailureKind string

const (
	FailureConfigurationAbsent FailureKind = "configuration_absent"
	FailureUpstream            FailureKind = "upstream_failure"
	FailureMalformedResponse   FailureKind = "malformed_response"
)

// FailureReason explains why a fallback was used. It is diagnostic only and
// never changes the shape of the returned plan or subtasks.
type FailureReason struct {
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Message    string      `json:"message"`
}

func (r *FailureReason) Error() string {
	if r.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", r.Kind, r.StatusCode, r.Message)
	}
	return fmt.Sprintf("%s: %s", r.Kind, r.Message)
}

func (r *FailureReason) kindLabel() string {
	if r == nil {
		return ""
	}
	return string(r.Kind)
}
