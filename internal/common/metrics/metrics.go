// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tasks_processed_total",
			Help: "Total number of delivery tasks processed by the queue engine",
		},
		[]string{"channel", "status"},
	)

	TaskSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "queue_task_send_duration_seconds",
			Help: "Duration of individual channel sends in seconds",
		},
		[]string{"channel"},
	)

	QueueTicksSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_ticks_skipped_total",
			Help: "Number of scheduler ticks skipped because the tick lock was held",
		},
	)

	CampaignRecipients = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_recipients_total",
			Help: "Total number of campaign recipients processed",
		},
		[]string{"status"},
	)

	CampaignBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "campaign_batch_duration_seconds",
			Help: "Duration of campaign batch settlement in seconds",
		},
	)
)
