package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xmasacrex/club-rpg/internal/deadletter"
	"github.com/xmasacrex/club-rpg/internal/domain"
)

// TaskDLQ is the task_dlq table: completions whose handler failed.
type TaskDLQ struct {
	pool *pgxpool.Pool
}

// NewTaskDLQ constructs a TaskDLQ.
func NewTaskDLQ(pool *pgxpool.Pool) *TaskDLQ {
	return &TaskDLQ{pool: pool}
}

var _ deadletter.Queue = (*TaskDLQ)(nil)

// Record inserts a failed completion, or refreshes the reason of an existing one.
func (q *TaskDLQ) Record(ctx context.Context, activity domain.Activity, reason string) error {
	const stmt = `INSERT INTO task_dlq (activity_id, reason) VALUES ($1, $2)
        ON CONFLICT (activity_id) DO UPDATE SET reason = EXCLUDED.reason`
	_, err := q.pool.Exec(ctx, stmt, activity.ID, reason)
	return err
}

// Due returns entries ready for redelivery, oldest first.
func (q *TaskDLQ) Due(ctx context.Context, now time.Time, limit int) ([]deadletter.Entry, error) {
	const query = `SELECT d.dlq_id, d.reason, d.retry_count, d.next_retry_at, d.last_attempt_at, d.quarantined_at, d.created_at, ` + activityColumns + `
        FROM task_dlq d
        JOIN activity a ON a.activity_id = d.activity_id
        WHERE d.quarantined_at IS NULL AND d.next_retry_at <= $1
        ORDER BY d.created_at, d.dlq_id
        LIMIT $2`

	rows, err := q.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]deadletter.Entry, 0)
	for rows.Next() {
		var (
			e          deadletter.Entry
			durationMS int64
			data       []byte
		)
		a := &e.Activity
		if err := rows.Scan(&e.ID, &e.Reason, &e.RetryCount, &e.NextRetryAt, &e.LastAttemptAt, &e.QuarantinedAt, &e.CreatedAt,
			&a.ID, &a.UserID, &a.Participants, &a.Type, &a.ChannelID, &a.StartedAt, &durationMS, &a.FinishAt, &a.Completed, &data); err != nil {
			return nil, err
		}
		a.Duration = time.Duration(durationMS) * time.Millisecond
		if len(data) > 0 {
			a.Data = data
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reschedule bumps the retry count and pushes the next attempt to next.
func (q *TaskDLQ) Reschedule(ctx context.Context, id int64, next time.Time, reason string) error {
	const stmt = `UPDATE task_dlq
           SET retry_count = retry_count + 1,
               last_attempt_at = NOW(),
               next_retry_at = $1,
               reason = $2
         WHERE dlq_id = $3`
	return q.execOne(ctx, stmt, next, reason, id)
}

// Quarantine parks an entry for operators.
func (q *TaskDLQ) Quarantine(ctx context.Context, id int64, reason string) error {
	return q.execOne(ctx, `UPDATE task_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`, reason, id)
}

// Resolve deletes a redelivered entry.
func (q *TaskDLQ) Resolve(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM task_dlq WHERE dlq_id = $1`, id)
}

// Backlog counts entries still waiting for redelivery.
func (q *TaskDLQ) Backlog(ctx context.Context) (int, error) {
	var count int
	err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_dlq WHERE quarantined_at IS NULL`).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

func (q *TaskDLQ) execOne(ctx context.Context, stmt string, args ...any) error {
	tag, err := q.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return deadletter.ErrEntryNotFound
	}
	return nil
}
