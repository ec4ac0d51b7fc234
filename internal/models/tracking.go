package models

import "time"

// TrackingEventType enumerates the recorded email engagement events.
type TrackingEventType string

const (
	EventOpen  TrackingEventType = "OPEN"
	EventClick TrackingEventType = "CLICK"
)

// TrackingEvent is one recorded open or click for a campaign recipient.
type TrackingEvent struct {
	ID             string            `db:"id" json:"id"`
	CampaignID     string            `db:"campaign_id" json:"campaignId"`
	RecipientEmail string            `db:"recipient_email" json:"recipientEmail"`
	EventType      TrackingEventType `db:"event_type" json:"eventType"`
	OriginalURL    string            `db:"original_url" json:"originalUrl,omitempty"`
	Timestamp      time.Time         `db:"timestamp" json:"timestamp"`
}
