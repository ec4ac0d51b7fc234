package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// CampaignStore persists campaigns. Recipients, variables and settings
// live in JSONB columns so the recipient list travels with the campaign.
type CampaignStore struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewCampaignStore(db *sql.DB, clk clock.Clock) *CampaignStore {
	if clk == nil {
		clk = clock.System()
	}
	return &CampaignStore{DB: db, Clock: clk}
}

func (s *CampaignStore) Insert(ctx context.Context, c *models.Campaign) error {
	now := s.Clock.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	recipients, err := json.Marshal(c.Recipients)
	if err != nil {
		return errs.NewStorageError("encode recipients", err)
	}
	variables, err := json.Marshal(c.Variables)
	if err != nil {
		return errs.NewStorageError("encode variables", err)
	}
	settings, err := json.Marshal(c.Settings)
	if err != nil {
		return errs.NewStorageError("encode settings", err)
	}

	query := `
        INSERT INTO campaigns
        (id, name, template_id, subject, status, recipients, variables, settings,
         last_processed_index, scheduled_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err = s.DB.ExecContext(ctx, query,
		c.ID, c.Name, c.TemplateID, c.Subject, c.Status,
		recipients, variables, settings,
		c.LastProcessedIndex, c.ScheduledAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errs.NewStorageError("insert campaign", err)
	}
	return nil
}

func (s *CampaignStore) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	query := `
        SELECT id, name, template_id, subject, status, recipients, variables, settings,
               last_processed_index, scheduled_at, sent_at, completed_at, created_at, updated_at
        FROM campaigns
        WHERE id = $1
    `
	var c models.Campaign
	var recipients, variables, settings []byte
	var scheduledAt, sentAt, completedAt sql.NullTime

	err := s.DB.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.TemplateID, &c.Subject, &c.Status,
		&recipients, &variables, &settings,
		&c.LastProcessedIndex, &scheduledAt, &sentAt, &completedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NewCampaignNotFoundError(id)
	}
	if err != nil {
		return nil, errs.NewStorageError("get campaign", err)
	}

	if err := json.Unmarshal(recipients, &c.Recipients); err != nil {
		return nil, errs.NewStorageError("decode recipients", err)
	}
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &c.Variables); err != nil {
			return nil, errs.NewStorageError("decode variables", err)
		}
	}
	if err := json.Unmarshal(settings, &c.Settings); err != nil {
		return nil, errs.NewStorageError("decode settings", err)
	}
	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return &c, nil
}

// TransitionStatus moves a campaign from one status to another. The
// conditional update makes concurrent transitions race-safe: the caller
// learns whether its transition won.
func (s *CampaignStore) TransitionStatus(ctx context.Context, id string, from, to models.CampaignStatus) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE campaigns SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		to, s.Clock.Now(), id, from,
	)
	if err != nil {
		return false, errs.NewStorageError("transition campaign", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.NewStorageError("transition campaign", err)
	}
	return n == 1, nil
}

// GetStatus reads only the status column, for pause checks between batches.
func (s *CampaignStore) GetStatus(ctx context.Context, id string) (models.CampaignStatus, error) {
	var status models.CampaignStatus
	err := s.DB.QueryRowContext(ctx, `SELECT status FROM campaigns WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", errs.NewCampaignNotFoundError(id)
	}
	if err != nil {
		return "", errs.NewStorageError("get campaign status", err)
	}
	return status, nil
}

// SaveCursor records how many recipients have been settled, so a paused
// campaign resumes after the last completed batch.
func (s *CampaignStore) SaveCursor(ctx context.Context, id string, lastProcessedIndex int) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE campaigns SET last_processed_index = $1, updated_at = $2 WHERE id = $3`,
		lastProcessedIndex, s.Clock.Now(), id,
	)
	if err != nil {
		return errs.NewStorageError("save campaign cursor", err)
	}
	return nil
}

func (s *CampaignStore) MarkStarted(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE campaigns SET sent_at = $1, updated_at = $2 WHERE id = $3 AND sent_at IS NULL`,
		at, s.Clock.Now(), id,
	)
	if err != nil {
		return errs.NewStorageError("mark campaign started", err)
	}
	return nil
}

func (s *CampaignStore) MarkCompleted(ctx context.Context, id string, status models.CampaignStatus, at time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE campaigns SET status = $1, completed_at = $2, updated_at = $3 WHERE id = $4`,
		status, at, s.Clock.Now(), id,
	)
	if err != nil {
		return errs.NewStorageError("mark campaign completed", err)
	}
	return nil
}

// ListScheduledDue returns scheduled campaigns whose launch time has
// arrived, for the cron launcher.
func (s *CampaignStore) ListScheduledDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id FROM campaigns WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2 ORDER BY scheduled_at ASC`,
		models.CampaignScheduled, now,
	)
	if err != nil {
		return nil, errs.NewStorageError("list scheduled campaigns", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errs.NewStorageError("scan scheduled campaign", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageError("list scheduled campaigns", err)
	}
	return ids, nil
}
