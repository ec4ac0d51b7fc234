package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// LogStore is the append-only per-recipient audit trail for campaigns.
type LogStore struct {
	DB    *sql.DB
	Clock clock.Clock
}

func NewLogStore(db *sql.DB, clk clock.Clock) *LogStore {
	if clk == nil {
		clk = clock.System()
	}
	return &LogStore{DB: db, Clock: clk}
}

func (s *LogStore) Append(ctx context.Context, entry *models.CampaignLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = s.Clock.Now()

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return errs.NewStorageError("encode log metadata", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO campaign_logs (id, campaign_id, recipient_email, status, metadata, created_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.CampaignID, entry.RecipientEmail, entry.Status, metadata, entry.CreatedAt,
	)
	if err != nil {
		return errs.NewStorageError("append campaign log", err)
	}
	return nil
}

func (s *LogStore) ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]models.CampaignLogEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, campaign_id, recipient_email, status, metadata, created_at
         FROM campaign_logs
         WHERE campaign_id = $1
         ORDER BY created_at ASC
         LIMIT $2 OFFSET $3`,
		campaignID, limit, offset,
	)
	if err != nil {
		return nil, errs.NewStorageError("list campaign logs", err)
	}
	defer rows.Close()

	var entries []models.CampaignLogEntry
	for rows.Next() {
		var e models.CampaignLogEntry
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.CampaignID, &e.RecipientEmail, &e.Status, &metadata, &e.CreatedAt); err != nil {
			return nil, errs.NewStorageError("scan campaign log", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, errs.NewStorageError("decode log metadata", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewStorageError("list campaign logs", err)
	}
	return entries, nil
}

// CountByStatus returns sent and failed totals for a campaign.
func (s *LogStore) CountByStatus(ctx context.Context, campaignID string) (sent, failed int, err error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM campaign_logs WHERE campaign_id = $1 GROUP BY status`,
		campaignID,
	)
	if err != nil {
		return 0, 0, errs.NewStorageError("count campaign logs", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status models.LogStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, errs.NewStorageError("count campaign logs", err)
		}
		switch status {
		case models.LogSent:
			sent = count
		case models.LogFailed:
			failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return 0, 0, errs.NewStorageError("count campaign logs", err)
	}
	return sent, failed, nil
}
