package models

import "time"

// CampaignStatus is the lifecycle state of a bulk-send job.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignScheduled CampaignStatus = "SCHEDULED"
	CampaignSending   CampaignStatus = "SENDING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignSent      CampaignStatus = "SENT"
	CampaignFailed    CampaignStatus = "FAILED"
)

// Recipient is one addressee of a campaign, with per-recipient variables
// that override the campaign-level ones during rendering.
type Recipient struct {
	Email     string                 `json:"email"`
	Name      string                 `json:"name,omitempty"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

// CampaignSettings controls tracking and batch pacing for one campaign.
type CampaignSettings struct {
	TrackOpens  bool `json:"track_opens"`
	TrackClicks bool `json:"track_clicks"`
	BatchSize   int  `json:"batch_size"`
	SendDelayMs int  `json:"send_delay_ms"`
}

// Campaign is a bulk email send job. LastProcessedIndex is the resume
// cursor: the number of recipients already settled by completed batches.
type Campaign struct {
	ID                 string                 `db:"id" json:"id"`
	Name               string                 `db:"name" json:"name"`
	TemplateID         string                 `db:"template_id" json:"templateId"`
	Subject            string                 `db:"subject" json:"subject"`
	Status             CampaignStatus         `db:"status" json:"status"`
	Recipients         []Recipient            `db:"recipients" json:"recipients"`
	Variables          map[string]interface{} `db:"variables" json:"variables,omitempty"`
	Settings           CampaignSettings       `db:"settings" json:"settings"`
	LastProcessedIndex int                    `db:"last_processed_index" json:"lastProcessedIndex"`
	ScheduledAt        *time.Time             `db:"scheduled_at" json:"scheduledAt,omitempty"`
	SentAt             *time.Time             `db:"sent_at" json:"sentAt,omitempty"`
	CompletedAt        *time.Time             `db:"completed_at" json:"completedAt,omitempty"`
	CreatedAt          time.Time              `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time              `db:"updated_at" json:"updatedAt"`
}

// LogStatus is the per-recipient outcome recorded in the audit trail.
type LogStatus string

const (
	LogSent   LogStatus = "SENT"
	LogFailed LogStatus = "FAILED"
)

// CampaignLogEntry is one append-only per-recipient send outcome.
type CampaignLogEntry struct {
	ID             string                 `db:"id" json:"id"`
	CampaignID     string                 `db:"campaign_id" json:"campaignId"`
	RecipientEmail string                 `db:"recipient_email" json:"recipientEmail"`
	Status         LogStatus              `db:"status" json:"status"`
	Metadata       map[string]interface{} `db:"metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time              `db:"created_at" json:"createdAt"`
}

// CampaignStats aggregates log entries and tracking events for a campaign.
// All rates are percentages in [0, 100] and zero when the denominator is zero.
type CampaignStats struct {
	TotalRecipients  int     `json:"totalRecipients"`
	Sent             int     `json:"sent"`
	Failed           int     `json:"failed"`
	Opens            int     `json:"opens"`
	Clicks           int     `json:"clicks"`
	UniqueOpens      int     `json:"uniqueOpens"`
	UniqueClicks     int     `json:"uniqueClicks"`
	DeliveryRate     float64 `json:"deliveryRate"`
	OpenRate         float64 `json:"openRate"`
	ClickRate        float64 `json:"clickRate"`
	ClickThroughRate float64 `json:"clickThroughRate"`
}
