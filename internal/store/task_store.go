// Package store holds the Postgres persistence layer. Every method wraps
// driver errors in the shared taxonomy; callers branch on error codes,
// not on sql sentinel values.
package store

import (
	"context"
	"database/sql"
	"time"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

const recentSentWindow = 7 * 24 * time.Hour

type TaskStore struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewTaskStore(db *sql.DB, clk clock.Clock) *TaskStore {
	if clk == nil {
		clk = clock.System()
	}
	return &TaskStore{DB: db, Clock: clk}
}

func (s *TaskStore) Insert(ctx context.Context, task *models.DeliveryTask) error {
	task.CreatedAt = s.Clock.Now()
	query := `
        INSERT INTO delivery_tasks
        (id, user_id, source_id, channel, recipient, subject, body, scheduled_for, status, attempts, max_attempts, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err := s.DB.ExecContext(ctx, query,
		task.ID, task.UserID, task.SourceID, task.Channel, task.Recipient,
		task.Subject, task.Body, task.ScheduledFor, task.Status,
		task.Attempts, task.MaxAttempts, task.CreatedAt,
	)
	if err != nil {
		return errs.NewStorageError("insert task", err)
	}
	return nil
}

// DueTasks returns pending tasks whose scheduled time has passed,
// oldest first, capped at limit.
func (s *TaskStore) DueTasks(ctx context.Context, now time.Time, limit int) ([]models.DeliveryTask, error) {
	query := `
        SELECT id, user_id, source_id, channel, recipient, subject, body,
               scheduled_for, status, attempts, max_attempts, last_attempt_at, error_message, created_at
        FROM delivery_tasks
        WHERE status = $1 AND scheduled_for <= $2
        ORDER BY scheduled_for ASC
        LIMIT $3
    `
	rows, err := s.DB.QueryContext(ctx, query, models.TaskPending, now, limit)
	if err != nil {
		return nil, errs.NewStorageError("query due tasks", err)
	}
	defer rows.Close()

	var tasks []models.DeliveryTask
	for rows.Next() {
		var t models.DeliveryTask
		var lastAttempt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.SourceID, &t.Channel, &t.Recipient, &t.Subject, &t.Body,
			&t.ScheduledFor, &t.Status, &t.Attempts, &t.MaxAttempts, &lastAttempt, &errMsg, &t.CreatedAt,
		); err != nil {
			return nil, errs.NewStorageError("scan due task", err)
		}
		if lastAttempt.Valid {
			t.LastAttemptAt = &lastAttempt.Time
		}
		t.ErrorMessage = errMsg.String
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageError("iterate due tasks", err)
	}
	return tasks, nil
}

// MarkProcessing claims a pending task. The conditional update is the
// exclusivity point: exactly one caller sees claimed=true per task.
func (s *TaskStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE delivery_tasks SET status = $1 WHERE id = $2 AND status = $3`,
		models.TaskProcessing, id, models.TaskPending,
	)
	if err != nil {
		return false, errs.NewStorageError("claim task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.NewStorageError("claim task", err)
	}
	return n == 1, nil
}

func (s *TaskStore) MarkSent(ctx context.Context, id string, attempts int, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE delivery_tasks SET status = $1, attempts = $2, last_attempt_at = $3, error_message = NULL WHERE id = $4`,
		models.TaskSent, attempts, at, id,
	)
	if err != nil {
		return errs.NewStorageError("mark task sent", err)
	}
	return nil
}

// Reschedule returns a task to PENDING with a new due time after a
// transient failure.
func (s *TaskStore) Reschedule(ctx context.Context, id string, attempts int, errorMessage string, nextAt, attemptedAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE delivery_tasks
         SET status = $1, attempts = $2, error_message = $3, scheduled_for = $4, last_attempt_at = $5
         WHERE id = $6`,
		models.TaskPending, attempts, errorMessage, nextAt, attemptedAt, id,
	)
	if err != nil {
		return errs.NewStorageError("reschedule task", err)
	}
	return nil
}

func (s *TaskStore) MarkFailed(ctx context.Context, id string, attempts int, errorMessage string, attemptedAt time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE delivery_tasks SET status = $1, attempts = $2, error_message = $3, last_attempt_at = $4 WHERE id = $5`,
		models.TaskFailed, attempts, errorMessage, attemptedAt, id,
	)
	if err != nil {
		return errs.NewStorageError("mark task failed", err)
	}
	return nil
}

// CancelForSource cancels every pending or in-flight task for a source
// event and returns how many were cancelled. Terminal tasks are left
// alone.
func (s *TaskStore) CancelForSource(ctx context.Context, sourceID string) (int, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE delivery_tasks SET status = $1 WHERE source_id = $2 AND status IN ($3, $4)`,
		models.TaskCancelled, sourceID, models.TaskPending, models.TaskProcessing,
	)
	if err != nil {
		return 0, errs.NewStorageError("cancel tasks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.NewStorageError("cancel tasks", err)
	}
	return int(n), nil
}

// Statistics aggregates the task table by status and channel, plus a
// count of tasks sent in the last seven days. A non-empty userID
// restricts the aggregates to that user's tasks.
func (s *TaskStore) Statistics(ctx context.Context, now time.Time, userID string) (*models.QueueStatistics, error) {
	stats := &models.QueueStatistics{
		ByStatus:  make(map[models.TaskStatus]int),
		ByChannel: make(map[models.Channel]int),
	}

	userFilter := ""
	args := []interface{}{}
	if userID != "" {
		userFilter = ` WHERE user_id = $1`
		args = append(args, userID)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM delivery_tasks`+userFilter+` GROUP BY status`, args...)
	if err != nil {
		return nil, errs.NewStorageError("task stats by status", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status models.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errs.NewStorageError("task stats by status", err)
		}
		stats.ByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageError("task stats by status", err)
	}

	channelRows, err := s.DB.QueryContext(ctx,
		`SELECT channel, COUNT(*) FROM delivery_tasks`+userFilter+` GROUP BY channel`, args...)
	if err != nil {
		return nil, errs.NewStorageError("task stats by channel", err)
	}
	defer channelRows.Close()
	for channelRows.Next() {
		var channel models.Channel
		var count int
		if err := channelRows.Scan(&channel, &count); err != nil {
			return nil, errs.NewStorageError("task stats by channel", err)
		}
		stats.ByChannel[channel] = count
	}
	if err := channelRows.Err(); err != nil {
		return nil, errs.NewStorageError("task stats by channel", err)
	}

	recentQuery := `SELECT COUNT(*) FROM delivery_tasks WHERE status = $1 AND last_attempt_at >= $2`
	recentArgs := []interface{}{models.TaskSent, now.Add(-recentSentWindow)}
	if userID != "" {
		recentQuery += ` AND user_id = $3`
		recentArgs = append(recentArgs, userID)
	}
	err = s.DB.QueryRowContext(ctx, recentQuery, recentArgs...).Scan(&stats.RecentlySent)
	if err != nil {
		return nil, errs.NewStorageError("task stats recent", err)
	}

	return stats, nil
}
