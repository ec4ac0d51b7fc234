package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTaskStore(t *testing.T) (*TaskStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTaskStore(db, clock.Fixed{T: testNow}), mock
}

func TestTaskStore_MarkProcessing_Claimed(t *testing.T) {
	s, mock := newTaskStore(t)

	mock.ExpectExec(`UPDATE delivery_tasks SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs(models.TaskProcessing, "task-1", models.TaskPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := s.MarkProcessing(context.Background(), "task-1")

	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskStore_MarkProcessing_AlreadyTaken(t *testing.T) {
	s, mock := newTaskStore(t)

	// another worker moved the task out of PENDING first
	mock.ExpectExec(`UPDATE delivery_tasks SET status = \$1 WHERE id = \$2 AND status = \$3`).
		WithArgs(models.TaskProcessing, "task-1", models.TaskPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := s.MarkProcessing(context.Background(), "task-1")

	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestTaskStore_DueTasks_OrderedOldestFirst(t *testing.T) {
	s, mock := newTaskStore(t)

	cols := []string{
		"id", "user_id", "source_id", "channel", "recipient", "subject", "body",
		"scheduled_for", "status", "attempts", "max_attempts", "last_attempt_at", "error_message", "created_at",
	}
	rows := sqlmock.NewRows(cols).
		AddRow("task-old", "u1", "evt-1", models.ChannelEmail, "a@example.com", "s", "b",
			testNow.Add(-time.Hour), models.TaskPending, 0, 3, nil, nil, testNow.Add(-2*time.Hour)).
		AddRow("task-new", "u1", "evt-1", models.ChannelPush, "arn:x", "s", "b",
			testNow.Add(-time.Minute), models.TaskPending, 1, 3, testNow.Add(-time.Hour), "timeout", testNow.Add(-2*time.Hour))

	mock.ExpectQuery(`(?s)SELECT .+ FROM delivery_tasks\s+WHERE status = \$1 AND scheduled_for <= \$2\s+ORDER BY scheduled_for ASC\s+LIMIT \$3`).
		WithArgs(models.TaskPending, testNow, 50).
		WillReturnRows(rows)

	tasks, err := s.DueTasks(context.Background(), testNow, 50)

	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "task-old", tasks[0].ID)
	assert.Nil(t, tasks[0].LastAttemptAt)
	require.NotNil(t, tasks[1].LastAttemptAt)
	assert.Equal(t, "timeout", tasks[1].ErrorMessage)
}

func TestTaskStore_CancelForSource_PendingAndProcessing(t *testing.T) {
	s, mock := newTaskStore(t)

	mock.ExpectExec(`UPDATE delivery_tasks SET status = \$1 WHERE source_id = \$2 AND status IN \(\$3, \$4\)`).
		WithArgs(models.TaskCancelled, "evt-1", models.TaskPending, models.TaskProcessing).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.CancelForSource(context.Background(), "evt-1")

	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestTaskStore_Statistics(t *testing.T) {
	s, mock := newTaskStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM delivery_tasks GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(models.TaskPending, 4).
			AddRow(models.TaskSent, 10))
	mock.ExpectQuery(`SELECT channel, COUNT\(\*\) FROM delivery_tasks GROUP BY channel`).
		WillReturnRows(sqlmock.NewRows([]string{"channel", "count"}).
			AddRow(models.ChannelEmail, 8).
			AddRow(models.ChannelPush, 6))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM delivery_tasks WHERE status = \$1 AND last_attempt_at >= \$2`).
		WithArgs(models.TaskSent, testNow.Add(-recentSentWindow)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	stats, err := s.Statistics(context.Background(), testNow, "")

	require.NoError(t, err)
	assert.Equal(t, 4, stats.ByStatus[models.TaskPending])
	assert.Equal(t, 10, stats.ByStatus[models.TaskSent])
	assert.Equal(t, 8, stats.ByChannel[models.ChannelEmail])
	assert.Equal(t, 7, stats.RecentlySent)
}

func TestTaskStore_Statistics_FiltersByUser(t *testing.T) {
	s, mock := newTaskStore(t)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM delivery_tasks WHERE user_id = \$1 GROUP BY status`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow(models.TaskPending, 2))
	mock.ExpectQuery(`SELECT channel, COUNT\(\*\) FROM delivery_tasks WHERE user_id = \$1 GROUP BY channel`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"channel", "count"}).
			AddRow(models.ChannelEmail, 2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM delivery_tasks WHERE status = \$1 AND last_attempt_at >= \$2 AND user_id = \$3`).
		WithArgs(models.TaskSent, testNow.Add(-recentSentWindow), "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	stats, err := s.Statistics(context.Background(), testNow, "user-1")

	require.NoError(t, err)
	assert.Equal(t, 2, stats.ByStatus[models.TaskPending])
	assert.Equal(t, 2, stats.ByChannel[models.ChannelEmail])
	assert.Equal(t, 1, stats.RecentlySent)
}

func TestTaskStore_Insert_WrapsDriverError(t *testing.T) {
	s, mock := newTaskStore(t)

	mock.ExpectExec(`INSERT INTO delivery_tasks`).
		WillReturnError(assert.AnError)

	err := s.Insert(context.Background(), &models.DeliveryTask{ID: "task-1"})

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeStorageFailed, errs.Code(err))
	assert.True(t, errs.IsRetryable(err))
}
