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

func newCampaignStore(t *testing.T) (*CampaignStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCampaignStore(db, clock.Fixed{T: testNow}), mock
}

func TestCampaignStore_GetByID_DecodesJSONColumns(t *testing.T) {
	s, mock := newCampaignStore(t)

	recipients := `[{"email":"a@example.com","name":"Alice","variables":{"plan":"pro"}}]`
	variables := `{"company":"Acme"}`
	settings := `{"track_opens":true,"track_clicks":true,"batch_size":25,"send_delay_ms":500}`

	cols := []string{
		"id", "name", "template_id", "subject", "status", "recipients", "variables", "settings",
		"last_processed_index", "scheduled_at", "sent_at", "completed_at", "created_at", "updated_at",
	}
	mock.ExpectQuery(`(?s)SELECT .+ FROM campaigns\s+WHERE id = \$1`).
		WithArgs("camp-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"camp-1", "March promo", "tpl-1", "Hello {{name}}", models.CampaignPaused,
			[]byte(recipients), []byte(variables), []byte(settings),
			25, nil, testNow.Add(-time.Hour), nil, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour),
		))

	c, err := s.GetByID(context.Background(), "camp-1")

	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, c.Status)
	require.Len(t, c.Recipients, 1)
	assert.Equal(t, "Alice", c.Recipients[0].Name)
	assert.Equal(t, "pro", c.Recipients[0].Variables["plan"])
	assert.Equal(t, "Acme", c.Variables["company"])
	assert.Equal(t, 25, c.Settings.BatchSize)
	assert.Equal(t, 25, c.LastProcessedIndex)
	require.NotNil(t, c.SentAt)
	assert.Nil(t, c.CompletedAt)
}

func TestCampaignStore_GetByID_NotFound(t *testing.T) {
	s, mock := newCampaignStore(t)

	mock.ExpectQuery(`(?s)SELECT .+ FROM campaigns\s+WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetByID(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeCampaignNotFound, errs.Code(err))
}

func TestCampaignStore_TransitionStatus(t *testing.T) {
	s, mock := newCampaignStore(t)

	mock.ExpectExec(`UPDATE campaigns SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status = \$4`).
		WithArgs(models.CampaignPaused, testNow, "camp-1", models.CampaignSending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	won, err := s.TransitionStatus(context.Background(), "camp-1", models.CampaignSending, models.CampaignPaused)

	require.NoError(t, err)
	assert.True(t, won)
}

func TestCampaignStore_TransitionStatus_LostRace(t *testing.T) {
	s, mock := newCampaignStore(t)

	mock.ExpectExec(`UPDATE campaigns SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status = \$4`).
		WithArgs(models.CampaignSending, testNow, "camp-1", models.CampaignDraft).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := s.TransitionStatus(context.Background(), "camp-1", models.CampaignDraft, models.CampaignSending)

	require.NoError(t, err)
	assert.False(t, won)
}

func TestCampaignStore_ListScheduledDue(t *testing.T) {
	s, mock := newCampaignStore(t)

	mock.ExpectQuery(`SELECT id FROM campaigns WHERE status = \$1 AND scheduled_at IS NOT NULL AND scheduled_at <= \$2`).
		WithArgs(models.CampaignScheduled, testNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("camp-1").AddRow("camp-2"))

	ids, err := s.ListScheduledDue(context.Background(), testNow)

	require.NoError(t, err)
	assert.Equal(t, []string{"camp-1", "camp-2"}, ids)
}
