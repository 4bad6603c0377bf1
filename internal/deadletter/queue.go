// Package deadletter retries trip completions whose task handler failed.
//
// A completion is claimed in the store before its handler runs, so a failing
// handler cannot simply be re-triggered by the scheduler. The failed activity
// is recorded on a Queue instead; the Manager redelivers it with exponential
// backoff and quarantines it for operators once the retry budget is spent.
package deadletter

import (
	"context"
	"errors"
	"time"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

// ErrEntryNotFound is returned when an entry id is unknown to the queue.
var ErrEntryNotFound = errors.New("dead-letter entry not found")

// Entry is a failed completion waiting for redelivery.
type Entry struct {
	ID            int64
	Activity      domain.Activity
	Reason        string
	RetryCount    int
	NextRetryAt   time.Time
	LastAttemptAt *time.Time
	QuarantinedAt *time.Time
	CreatedAt     time.Time
}

// Queue stores failed completions. Record satisfies domain.FailureRecorder.
type Queue interface {
	Record(ctx context.Context, activity domain.Activity, reason string) error
	Due(ctx context.Context, now time.Time, limit int) ([]Entry, error)
	Reschedule(ctx context.Context, id int64, next time.Time, reason string) error
	Quarantine(ctx context.Context, id int64, reason string) error
	Resolve(ctx context.Context, id int64) error
	Backlog(ctx context.Context) (int, error)
}

var _ domain.FailureRecorder = (Queue)(nil)
