package models

import "time"

// Channel identifies the transport a delivery task targets.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// AllChannels lists every supported channel in preference order.
var AllChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp}

// TaskStatus is the lifecycle state of a delivery task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskSent       TaskStatus = "SENT"
	TaskFailed     TaskStatus = "FAILED"
	TaskCancelled  TaskStatus = "CANCELLED"
)

// DeliveryTask is one channel-specific attempt to deliver one notification.
// Tasks are never deleted, only moved to a terminal status.
type DeliveryTask struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"userId"`
	SourceID      string     `db:"source_id" json:"sourceId"`
	Channel       Channel    `db:"channel" json:"channel"`
	Recipient     string     `db:"recipient" json:"recipient"`
	Subject       string     `db:"subject" json:"subject"`
	Body          string     `db:"body" json:"body"`
	ScheduledFor  time.Time  `db:"scheduled_for" json:"scheduledFor"`
	Status        TaskStatus `db:"status" json:"status"`
	Attempts      int        `db:"attempts" json:"attempts"`
	MaxAttempts   int        `db:"max_attempts" json:"maxAttempts"`
	LastAttemptAt *time.Time `db:"last_attempt_at" json:"lastAttemptAt,omitempty"`
	ErrorMessage  string     `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
}

// Terminal reports whether the task has reached a final status.
func (t *DeliveryTask) Terminal() bool {
	switch t.Status {
	case TaskSent, TaskFailed, TaskCancelled:
		return true
	}
	return false
}
