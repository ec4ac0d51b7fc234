// Package queue implements the reminder delivery engine: scheduling
// tasks from source events, processing due tasks against the channel
// registry, retrying transient failures and cancelling on event changes.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"delivery-pipeline/internal/channel"
	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/common/metrics"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/render"
	"delivery-pipeline/internal/retry"
)

const tickLockKey = "queue:tick"

// TaskRepository is the slice of the task store the engine uses.
type TaskRepository interface {
	Insert(ctx context.Context, task *models.DeliveryTask) error
	DueTasks(ctx context.Context, now time.Time, limit int) ([]models.DeliveryTask, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, attempts int, at time.Time) error
	Reschedule(ctx context.Context, id string, attempts int, errorMessage string, nextAt, attemptedAt time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, errorMessage string, attemptedAt time.Time) error
	CancelForSource(ctx context.Context, sourceID string) (int, error)
	Statistics(ctx context.Context, now time.Time, userID string) (*models.QueueStatistics, error)
}

// PreferenceSource resolves a user's notification preferences,
// returning defaults for users who never saved any.
type PreferenceSource interface {
	Get(ctx context.Context, userID string) (models.Preferences, error)
}

// Locker serializes ticks across worker instances. A nil Locker is
// valid: the per-task conditional claim alone prevents double sends.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Report summarizes one processing tick.
type Report struct {
	Processed   int `json:"processed"`
	Sent        int `json:"sent"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
}

type Config struct {
	BatchLimit  int
	MaxAttempts int
	LockTTL     time.Duration
}

type Engine struct {
	tasks    TaskRepository
	prefs    PreferenceSource
	registry *channel.Registry
	renderer *render.Renderer
	policy   retry.Policy
	locker   Locker
	clock    clock.Clock
	logger   logger.Logger
	cfg      Config
}

func NewEngine(tasks TaskRepository, prefs PreferenceSource, registry *channel.Registry, renderer *render.Renderer, policy retry.Policy, locker Locker, clk clock.Clock, log logger.Logger, cfg Config) *Engine {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &Engine{
		tasks:    tasks,
		prefs:    prefs,
		registry: registry,
		renderer: renderer,
		policy:   policy,
		locker:   locker,
		clock:    clk,
		logger:   log,
		cfg:      cfg,
	}
}

// ScheduleReminders creates one pending task per enabled channel per
// reminder offset for the event. A non-empty customMinutes overrides
// the user's default offsets. Offsets whose fire time is already in
// the past are skipped, not clamped to now.
func (e *Engine) ScheduleReminders(ctx context.Context, event models.SourceEvent, customMinutes []int) ([]models.DeliveryTask, error) {
	prefs, err := e.prefs.Get(ctx, event.UserID)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		e.logger.Warn("invalid timezone in preferences, using UTC", map[string]interface{}{
			"userId":   event.UserID,
			"timezone": prefs.Timezone,
		})
		loc = time.UTC
	}

	start, err := event.StartsAt(loc)
	if err != nil {
		return nil, errs.NewValidationError(err.Error())
	}

	offsets := prefs.DefaultReminderMinutes
	if len(customMinutes) > 0 {
		offsets = customMinutes
	}

	now := e.clock.Now()
	var created []models.DeliveryTask
	for _, minutes := range offsets {
		fireAt := start.Add(-time.Duration(minutes) * time.Minute)
		if !fireAt.After(now) {
			e.logger.Debug("reminder time already passed, skipping", map[string]interface{}{
				"eventId":         event.ID,
				"reminderMinutes": minutes,
			})
			continue
		}

		for _, ch := range prefs.EnabledChannels() {
			recipient := recipientFor(ch, prefs, event.UserID)
			if recipient == "" {
				continue
			}
			subject, body := e.renderer.Render(ch, event, minutes)
			task := models.DeliveryTask{
				ID:           uuid.New().String(),
				UserID:       event.UserID,
				SourceID:     event.ID,
				Channel:      ch,
				Recipient:    recipient,
				Subject:      subject,
				Body:         body,
				ScheduledFor: fireAt,
				Status:       models.TaskPending,
				MaxAttempts:  e.cfg.MaxAttempts,
			}
			if err := e.tasks.Insert(ctx, &task); err != nil {
				return created, err
			}
			created = append(created, task)
		}
	}

	e.logger.Info("reminders scheduled", map[string]interface{}{
		"eventId": event.ID,
		"userId":  event.UserID,
		"count":   len(created),
	})
	return created, nil
}

// recipientFor maps a channel to the address the send goes to. Email
// and SMS require an address in preferences; push and in-app address
// the user directly.
func recipientFor(ch models.Channel, prefs models.Preferences, userID string) string {
	switch ch {
	case models.ChannelEmail:
		return prefs.NotificationEmail
	case models.ChannelSMS:
		return prefs.PhoneNumber
	default:
		return userID
	}
}

// Tick runs one processing pass. When a locker is configured and the
// lock is held elsewhere the tick is skipped entirely.
func (e *Engine) Tick(ctx context.Context) (*Report, error) {
	if e.locker != nil {
		acquired, err := e.locker.Acquire(ctx, tickLockKey, e.cfg.LockTTL)
		if err != nil {
			// Safe without the lock: the conditional claim in
			// MarkProcessing still guarantees single delivery.
			e.logger.Warn("tick lock unavailable, proceeding unlocked", map[string]interface{}{
				"error": err,
			})
		} else if !acquired {
			metrics.QueueTicksSkipped.Inc()
			return &Report{}, nil
		} else {
			defer func() {
				if err := e.locker.Release(context.WithoutCancel(ctx), tickLockKey); err != nil {
					e.logger.Warn("tick lock release failed", map[string]interface{}{"error": err})
				}
			}()
		}
	}
	return e.processDue(ctx)
}

func (e *Engine) processDue(ctx context.Context) (*Report, error) {
	now := e.clock.Now()
	due, err := e.tasks.DueTasks(ctx, now, e.cfg.BatchLimit)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for i := range due {
		task := due[i]
		claimed, err := e.tasks.MarkProcessing(ctx, task.ID)
		if err != nil {
			e.logger.Error("task claim failed", map[string]interface{}{
				"taskId": task.ID,
				"error":  err,
			})
			continue
		}
		if !claimed {
			continue
		}
		report.Processed++
		e.processClaimed(ctx, &task, report)
	}

	if report.Processed > 0 {
		e.logger.Info("tick complete", map[string]interface{}{
			"processed":   report.Processed,
			"sent":        report.Sent,
			"rescheduled": report.Rescheduled,
			"failed":      report.Failed,
		})
	}
	return report, nil
}

func (e *Engine) processClaimed(ctx context.Context, task *models.DeliveryTask, report *Report) {
	attemptedAt := e.clock.Now()
	attempts := task.Attempts + 1

	sender, err := e.registry.Get(task.Channel)
	if err == nil {
		started := time.Now()
		_, err = sender.Send(ctx, channel.Message{
			TaskID:  task.ID,
			UserID:  task.UserID,
			To:      task.Recipient,
			Subject: task.Subject,
			Body:    task.Body,
		})
		metrics.TaskSendDuration.WithLabelValues(string(task.Channel)).Observe(time.Since(started).Seconds())
	}

	if err == nil {
		if err := e.tasks.MarkSent(ctx, task.ID, attempts, attemptedAt); err != nil {
			e.logger.Error("mark sent failed", map[string]interface{}{"taskId": task.ID, "error": err})
			return
		}
		report.Sent++
		metrics.TasksProcessed.WithLabelValues(string(task.Channel), string(models.TaskSent)).Inc()
		return
	}

	if !errs.IsRetryable(err) {
		if markErr := e.tasks.MarkFailed(ctx, task.ID, attempts, err.Error(), attemptedAt); markErr != nil {
			e.logger.Error("mark failed failed", map[string]interface{}{"taskId": task.ID, "error": markErr})
			return
		}
		report.Failed++
		metrics.TasksProcessed.WithLabelValues(string(task.Channel), string(models.TaskFailed)).Inc()
		e.logger.Warn("task failed permanently", map[string]interface{}{
			"taskId":  task.ID,
			"channel": string(task.Channel),
			"error":   err,
		})
		return
	}

	decision := e.policy.Next(task.Attempts, task.MaxAttempts, attemptedAt)
	if decision.Terminal {
		if markErr := e.tasks.MarkFailed(ctx, task.ID, decision.Attempts, err.Error(), attemptedAt); markErr != nil {
			e.logger.Error("mark failed failed", map[string]interface{}{"taskId": task.ID, "error": markErr})
			return
		}
		report.Failed++
		metrics.TasksProcessed.WithLabelValues(string(task.Channel), string(models.TaskFailed)).Inc()
		e.logger.Warn("task exhausted retries", map[string]interface{}{
			"taskId":   task.ID,
			"attempts": decision.Attempts,
			"error":    err,
		})
		return
	}

	if markErr := e.tasks.Reschedule(ctx, task.ID, decision.Attempts, err.Error(), decision.NextScheduledFor, attemptedAt); markErr != nil {
		e.logger.Error("reschedule failed", map[string]interface{}{"taskId": task.ID, "error": markErr})
		return
	}
	report.Rescheduled++
	metrics.TasksProcessed.WithLabelValues(string(task.Channel), string(models.TaskPending)).Inc()
}

// CancelForSource cancels every pending or in-flight task for an
// event, returning how many were cancelled.
func (e *Engine) CancelForSource(ctx context.Context, sourceID string) (int, error) {
	n, err := e.tasks.CancelForSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	e.logger.Info("tasks cancelled", map[string]interface{}{
		"sourceId": sourceID,
		"count":    n,
	})
	return n, nil
}

// Statistics aggregates the task table, optionally scoped to one user.
func (e *Engine) Statistics(ctx context.Context, userID string) (*models.QueueStatistics, error) {
	return e.tasks.Statistics(ctx, e.clock.Now(), userID)
}
