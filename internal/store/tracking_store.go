package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// TrackingStore records open and click events.
type TrackingStore struct {
	DB *sql.DB
}

func NewTrackingStore(db *sql.DB) *TrackingStore {
	return &TrackingStore{DB: db}
}

func (s *TrackingStore) Insert(ctx context.Context, event *models.TrackingEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	var originalURL interface{}
	if event.OriginalURL != "" {
		originalURL = event.OriginalURL
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tracking_events (id, campaign_id, recipient_email, event_type, original_url, timestamp)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.CampaignID, event.RecipientEmail, event.EventType, originalURL, event.Timestamp,
	)
	if err != nil {
		return errs.NewStorageError("insert tracking event", err)
	}
	return nil
}

// EngagementCounts holds total and per-recipient-deduplicated counts
// for one event type.
type EngagementCounts struct {
	Total  int
	Unique int
}

func (s *TrackingStore) CountsForCampaign(ctx context.Context, campaignID string, eventType models.TrackingEventType) (EngagementCounts, error) {
	var c EngagementCounts
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT recipient_email)
         FROM tracking_events
         WHERE campaign_id = $1 AND event_type = $2`,
		campaignID, eventType,
	).Scan(&c.Total, &c.Unique)
	if err != nil {
		return EngagementCounts{}, errs.NewStorageError("count tracking events", err)
	}
	return c, nil
}
