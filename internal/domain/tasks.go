package domain

import "context"

// TaskHandler finalizes one activity type: loot, xp, messages.
type TaskHandler interface {
	Run(ctx context.Context, activity Activity) error
}

// TaskHandlerFunc adapts a function to TaskHandler.
type TaskHandlerFunc func(ctx context.Context, activity Activity) error

// Run calls f.
func (f TaskHandlerFunc) Run(ctx context.Context, activity Activity) error {
	return f(ctx, activity)
}

// TaskRegistry resolves the handler for an activity type.
type TaskRegistry interface {
	Lookup(activityType string) (TaskHandler, bool)
}

// FailureRecorder receives activities whose handler failed after completion was claimed.
type FailureRecorder interface {
	Record(ctx context.Context, activity Activity, reason string) error
}
