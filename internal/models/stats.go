package models

// QueueStatistics summarizes the delivery task table.
type QueueStatistics struct {
	ByStatus     map[TaskStatus]int `json:"byStatus"`
	ByChannel    map[Channel]int    `json:"byChannel"`
	RecentlySent int                `json:"recentlySent"`
}
