package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xmasacrex/club-rpg/internal/command"
	"github.com/xmasacrex/club-rpg/internal/domain"
	"github.com/xmasacrex/club-rpg/internal/observability"
	platformevents "github.com/xmasacrex/club-rpg/internal/platform/events"
)

const uniqueViolation = "23505"

const activityColumns = `a.activity_id::text, a.user_id, a.participants, a.type, a.channel_id, a.started_at, a.duration_ms, a.finish_at, a.completed, a.data`

// Repository provides Postgres-backed persistence for trips, their outbox
// events and command usage statistics.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ domain.ActivityStore = (*Repository)(nil)

// Create persists the activity, claims every participant and records the
// activity.started event inside a single transaction. A participant that
// already has an incomplete trip violates activity_participant_active_uq and
// is reported as domain.ErrConflict.
func (r *Repository) Create(ctx context.Context, activity domain.Activity) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	participants := activity.ParticipantIDs()
	const insertActivity = `INSERT INTO activity (activity_id, user_id, participants, type, channel_id, started_at, duration_ms, finish_at, data)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if _, err = tx.Exec(ctx, insertActivity,
		activity.ID,
		activity.UserID,
		participants,
		activity.Type,
		activity.ChannelID,
		activity.StartedAt,
		activity.Duration.Milliseconds(),
		activity.FinishAt,
		nullJSON(activity.Data),
	); err != nil {
		return err
	}

	for _, userID := range participants {
		if _, err = tx.Exec(ctx, `INSERT INTO activity_participant (activity_id, user_id) VALUES ($1,$2)`, activity.ID, userID); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				err = fmt.Errorf("%w: %s", domain.ErrConflict, userID)
			}
			return err
		}
	}

	if err = r.insertOutbox(ctx, tx, activity, platformevents.TypeActivityStarted, platformevents.ActivityStarted{
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		Participants: participants,
		ActivityType: activity.Type,
		ChannelID:    activity.ChannelID,
		StartedAt:    activity.StartedAt,
		FinishAt:     activity.FinishAt,
		DurationSec:  int64(activity.Duration / time.Second),
	}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityStarted(activity.StartedAt)
	return nil
}

// MarkCompleted flips completed from false to true. It reports false when the
// activity is missing or was already completed, so concurrent callers cannot
// both claim it.
func (r *Repository) MarkCompleted(ctx context.Context, activityID string) (claimed bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil || !claimed {
			tx.Rollback(ctx)
		}
	}()

	const claim = `UPDATE activity a SET completed = true, completed_at = NOW()
        WHERE a.activity_id = $1 AND NOT a.completed
        RETURNING ` + activityColumns + `, a.completed_at`
	var completedAt time.Time
	activity, err := scanActivity(tx.QueryRow(ctx, claim, activityID), &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err = tx.Exec(ctx, `UPDATE activity_participant SET completed = true WHERE activity_id = $1`, activityID); err != nil {
		return false, err
	}

	if err = r.insertOutbox(ctx, tx, activity, platformevents.TypeActivityCompleted, platformevents.ActivityCompleted{
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		Participants: activity.ParticipantIDs(),
		ActivityType: activity.Type,
		CompletedAt:  completedAt,
	}); err != nil {
		return false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return false, err
	}
	claimed = true
	observability.RecordActivityCompleted(completedAt)
	return true, nil
}

// DeleteIncompleteByUser removes the incomplete trip userID takes part in and
// records activity.cancelled. It returns nil when there is none.
func (r *Repository) DeleteIncompleteByUser(ctx context.Context, userID string) (deleted *domain.Activity, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil || deleted == nil {
			tx.Rollback(ctx)
		}
	}()

	const query = `SELECT ` + activityColumns + `
        FROM activity a
        JOIN activity_participant p ON p.activity_id = a.activity_id
        WHERE p.user_id = $1 AND NOT p.completed
        FOR UPDATE OF a`
	activity, err := scanActivity(tx.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM activity WHERE activity_id = $1`, activity.ID); err != nil {
		return nil, err
	}

	if err = r.insertOutbox(ctx, tx, activity, platformevents.TypeActivityCancelled, platformevents.ActivityCancelled{
		ActivityID:   activity.ID,
		UserID:       activity.UserID,
		Participants: activity.ParticipantIDs(),
		ActivityType: activity.Type,
		CancelledAt:  time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Get retrieves an activity by ID. Missing activities return nil, nil.
func (r *Repository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activity a WHERE a.activity_id = $1`
	activity, err := scanActivity(r.pool.QueryRow(ctx, query, activityID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// FindIncompleteByUser returns the incomplete trip userID takes part in.
func (r *Repository) FindIncompleteByUser(ctx context.Context, userID string) (*domain.Activity, error) {
	const query = `SELECT ` + activityColumns + `
        FROM activity a
        JOIN activity_participant p ON p.activity_id = a.activity_id
        WHERE p.user_id = $1 AND NOT p.completed`
	activity, err := scanActivity(r.pool.QueryRow(ctx, query, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListIncomplete returns every trip not completed yet.
func (r *Repository) ListIncomplete(ctx context.Context) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activity a WHERE NOT a.completed ORDER BY a.finish_at, a.activity_id`
	return r.queryActivities(ctx, query)
}

// ListDue returns incomplete trips whose finish time is at or before now.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Activity, error) {
	const query = `SELECT ` + activityColumns + `
        FROM activity a
        WHERE NOT a.completed AND a.finish_at <= $1
        ORDER BY a.finish_at, a.activity_id
        LIMIT $2`
	return r.queryActivities(ctx, query, now, limit)
}

// ListByUser returns trips userID took part in, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []any{userID, limit}
	query := `SELECT ` + activityColumns + ` FROM activity a WHERE $1 = ANY(a.participants)`
	if cursor != nil {
		query += ` AND (a.started_at, a.activity_id) < ($3, $4::uuid)`
		args = append(args, cursor.StartedAt, cursor.ID)
	}
	query += ` ORDER BY a.started_at DESC, a.activity_id DESC LIMIT $2`

	results, err := r.queryActivities(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if limit > 0 && len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{StartedAt: last.StartedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// RecordUsage stores one command_usage row.
func (r *Repository) RecordUsage(ctx context.Context, usage command.Usage) error {
	const stmt = `INSERT INTO command_usage (user_id, guild_id, channel_id, command, args, is_continue, inhibited, failed, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	at := usage.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, stmt,
		usage.UserID,
		nullIfEmpty(usage.GuildID),
		usage.ChannelID,
		usage.Command,
		nullJSON(usage.Args),
		usage.IsContinue,
		usage.Inhibited,
		usage.Failed,
		at,
	)
	return err
}

func (r *Repository) queryActivities(ctx context.Context, query string, args ...any) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanActivity(row pgx.Row, extra ...any) (domain.Activity, error) {
	var (
		a          domain.Activity
		durationMS int64
		data       []byte
	)
	dest := append([]any{
		&a.ID, &a.UserID, &a.Participants, &a.Type, &a.ChannelID,
		&a.StartedAt, &durationMS, &a.FinishAt, &a.Completed, &data,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Activity{}, err
	}
	a.Duration = time.Duration(durationMS) * time.Millisecond
	if len(data) > 0 {
		a.Data = json.RawMessage(data)
	}
	return a, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, activity domain.Activity, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"activity",
		activity.ID,
		eventType,
		meta.Topic,
		meta.Topic+"-value",
		activity.UserID,
		body,
		fmt.Sprintf("%s:%s", activity.ID, eventType),
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic string
}

// Every lifecycle event is keyed by the primary participant so a user's
// events stay ordered within one partition.
var eventCatalog = map[string]EventMetadata{
	platformevents.TypeActivityStarted:   {Topic: "activity_started"},
	platformevents.TypeActivityCompleted: {Topic: "activity_completed"},
	platformevents.TypeActivityCancelled: {Topic: "activity_cancelled"},
}
