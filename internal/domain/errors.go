package domain

import "errors"

var (
	// ErrConflict is returned when a participant already holds an incomplete activity.
	ErrConflict = errors.New("participant already has an active trip")
	// ErrAlreadyCompleted is returned when completion is attempted on a completed activity.
	ErrAlreadyCompleted = errors.New("activity already completed")
	// ErrMissingTask means no handler is registered for the activity type.
	ErrMissingTask = errors.New("missing task handler")
	// ErrGuardHeld is returned when another completion is running for the participant.
	ErrGuardHeld = errors.New("completion already in progress for participant")
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrInvalidActivity is returned when start input fails validation.
	ErrInvalidActivity = errors.New("invalid activity")
)
