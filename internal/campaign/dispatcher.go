// Package campaign implements the bulk email dispatcher: validation,
// batched concurrent sends with pacing, pause and resume, per-recipient
// logging and engagement statistics.
package campaign

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"delivery-pipeline/internal/channel"
	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/common/metrics"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/render"
	"delivery-pipeline/internal/store"
	"delivery-pipeline/internal/tracking"
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CampaignRepository is the slice of the campaign store the dispatcher uses.
type CampaignRepository interface {
	Insert(ctx context.Context, c *models.Campaign) error
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	TransitionStatus(ctx context.Context, id string, from, to models.CampaignStatus) (bool, error)
	GetStatus(ctx context.Context, id string) (models.CampaignStatus, error)
	SaveCursor(ctx context.Context, id string, lastProcessedIndex int) error
	MarkStarted(ctx context.Context, id string, at time.Time) error
	MarkCompleted(ctx context.Context, id string, status models.CampaignStatus, at time.Time) error
	ListScheduledDue(ctx context.Context, now time.Time) ([]string, error)
}

type TemplateSource interface {
	GetByID(ctx context.Context, id string) (*models.EmailTemplate, error)
}

type LogRepository interface {
	Append(ctx context.Context, entry *models.CampaignLogEntry) error
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]models.CampaignLogEntry, error)
	CountByStatus(ctx context.Context, campaignID string) (sent, failed int, err error)
}

type EngagementSource interface {
	CountsForCampaign(ctx context.Context, campaignID string, eventType models.TrackingEventType) (store.EngagementCounts, error)
}

// Defaults fills in settings a campaign does not specify.
type Defaults struct {
	BatchSize   int
	SendDelayMs int
}

type Dispatcher struct {
	campaigns CampaignRepository
	templates TemplateSource
	logs      LogRepository
	tracking  EngagementSource
	sender    channel.Sender
	injector  tracking.Injector
	clock     clock.Clock
	logger    logger.Logger
	defaults  Defaults

	// sleep is the inter-batch pacing seam; tests replace it.
	sleep func(time.Duration)
}

func NewDispatcher(campaigns CampaignRepository, templates TemplateSource, logs LogRepository, engagement EngagementSource, sender channel.Sender, injector tracking.Injector, clk clock.Clock, log logger.Logger, defaults Defaults) *Dispatcher {
	if clk == nil {
		clk = clock.System()
	}
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 50
	}
	if defaults.SendDelayMs < 0 {
		defaults.SendDelayMs = 0
	}
	return &Dispatcher{
		campaigns: campaigns,
		templates: templates,
		logs:      logs,
		tracking:  engagement,
		sender:    sender,
		injector:  injector,
		clock:     clk,
		logger:    log,
		defaults:  defaults,
		sleep:     time.Sleep,
	}
}

// ==========================
// Creation and validation
// ==========================

// Create validates and persists a new campaign. Campaigns with a launch
// time start SCHEDULED, others DRAFT.
func (d *Dispatcher) Create(ctx context.Context, c *models.Campaign) error {
	if err := d.Validate(ctx, c); err != nil {
		return err
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Settings.BatchSize <= 0 {
		c.Settings.BatchSize = d.defaults.BatchSize
	}
	if c.Settings.SendDelayMs <= 0 {
		c.Settings.SendDelayMs = d.defaults.SendDelayMs
	}
	c.Status = models.CampaignDraft
	if c.ScheduledAt != nil {
		c.Status = models.CampaignScheduled
	}
	return d.campaigns.Insert(ctx, c)
}

// Validate collects every problem with a campaign into one error rather
// than stopping at the first.
func (d *Dispatcher) Validate(ctx context.Context, c *models.Campaign) error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name is required")
	}
	if strings.TrimSpace(c.Subject) == "" {
		problems = append(problems, "subject is required")
	}
	if c.TemplateID == "" {
		problems = append(problems, "templateId is required")
	} else if _, err := d.templates.GetByID(ctx, c.TemplateID); err != nil {
		if errs.Code(err) == errs.ErrCodeTemplateNotFound {
			problems = append(problems, fmt.Sprintf("template %s does not exist", c.TemplateID))
		} else {
			return err
		}
	}
	if len(c.Recipients) == 0 {
		problems = append(problems, "at least one recipient is required")
	}
	for i, r := range c.Recipients {
		if !emailRe.MatchString(r.Email) {
			problems = append(problems, fmt.Sprintf("recipient %d has invalid email %q", i+1, r.Email))
		}
	}

	if len(problems) > 0 {
		return errs.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

// ==========================
// Sending
// ==========================

// Send launches a campaign. It returns once every batch has settled or
// the campaign was paused; callers that want fire-and-forget run it in
// a goroutine.
func (d *Dispatcher) Send(ctx context.Context, id string) error {
	c, err := d.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}

	from := c.Status
	if from != models.CampaignDraft && from != models.CampaignScheduled {
		return errs.NewInvalidTransitionError(string(from), string(models.CampaignSending))
	}
	won, err := d.campaigns.TransitionStatus(ctx, id, from, models.CampaignSending)
	if err != nil {
		return err
	}
	if !won {
		return errs.NewInvalidTransitionError(string(from), string(models.CampaignSending))
	}
	if err := d.campaigns.MarkStarted(ctx, id, d.clock.Now()); err != nil {
		return err
	}

	d.logger.Info("campaign sending", map[string]interface{}{
		"campaignId": id,
		"recipients": len(c.Recipients),
	})
	return d.processSending(ctx, id)
}

// Pause stops a sending campaign after its current batch settles.
func (d *Dispatcher) Pause(ctx context.Context, id string) error {
	won, err := d.campaigns.TransitionStatus(ctx, id, models.CampaignSending, models.CampaignPaused)
	if err != nil {
		return err
	}
	if !won {
		status, statusErr := d.campaigns.GetStatus(ctx, id)
		if statusErr != nil {
			return statusErr
		}
		return errs.NewInvalidTransitionError(string(status), string(models.CampaignPaused))
	}
	d.logger.Info("campaign paused", map[string]interface{}{"campaignId": id})
	return nil
}

// Resume continues a paused campaign from the saved cursor. Recipients
// settled before the pause are not sent again.
func (d *Dispatcher) Resume(ctx context.Context, id string) error {
	won, err := d.campaigns.TransitionStatus(ctx, id, models.CampaignPaused, models.CampaignSending)
	if err != nil {
		return err
	}
	if !won {
		status, statusErr := d.campaigns.GetStatus(ctx, id)
		if statusErr != nil {
			return statusErr
		}
		return errs.NewInvalidTransitionError(string(status), string(models.CampaignSending))
	}
	d.logger.Info("campaign resumed", map[string]interface{}{"campaignId": id})
	return d.processSending(ctx, id)
}

// LaunchDue starts every scheduled campaign whose launch time has
// arrived. The cron tick in the worker binary calls this.
func (d *Dispatcher) LaunchDue(ctx context.Context) error {
	ids, err := d.campaigns.ListScheduledDue(ctx, d.clock.Now())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := d.Send(ctx, id); err != nil {
			d.logger.Error("scheduled campaign launch failed", map[string]interface{}{
				"campaignId": id,
				"error":      err,
			})
		}
	}
	return nil
}

func (d *Dispatcher) processSending(ctx context.Context, id string) error {
	c, err := d.campaigns.GetByID(ctx, id)
	if err != nil {
		return err
	}
	tpl, err := d.templates.GetByID(ctx, c.TemplateID)
	if err != nil {
		d.logger.Error("campaign template missing at send time", map[string]interface{}{
			"campaignId": id,
			"templateId": c.TemplateID,
			"error":      err,
		})
		return d.campaigns.MarkCompleted(ctx, id, models.CampaignFailed, d.clock.Now())
	}

	batchSize := c.Settings.BatchSize
	if batchSize <= 0 {
		batchSize = d.defaults.BatchSize
	}
	delay := time.Duration(c.Settings.SendDelayMs) * time.Millisecond

	anyFailed := false
	total := len(c.Recipients)
	for start := c.LastProcessedIndex; start < total; start += batchSize {
		status, err := d.campaigns.GetStatus(ctx, id)
		if err != nil {
			return err
		}
		if status == models.CampaignPaused {
			d.logger.Info("campaign pause honored between batches", map[string]interface{}{
				"campaignId": id,
				"cursor":     start,
			})
			return nil
		}

		end := start + batchSize
		if end > total {
			end = total
		}

		batchStarted := time.Now()
		failures := d.settleBatch(ctx, c, tpl, c.Recipients[start:end])
		metrics.CampaignBatchDuration.Observe(time.Since(batchStarted).Seconds())
		if failures > 0 {
			anyFailed = true
		}

		if err := d.campaigns.SaveCursor(ctx, id, end); err != nil {
			return err
		}

		if end < total && delay > 0 {
			d.sleep(delay)
		}
	}

	final := models.CampaignSent
	if anyFailed {
		final = models.CampaignFailed
	}
	if err := d.campaigns.MarkCompleted(ctx, id, final, d.clock.Now()); err != nil {
		return err
	}
	d.logger.Info("campaign completed", map[string]interface{}{
		"campaignId": id,
		"status":     string(final),
	})
	return nil
}

// settleBatch sends one batch concurrently and logs every outcome. It
// returns the number of failed recipients.
func (d *Dispatcher) settleBatch(ctx context.Context, c *models.Campaign, tpl *models.EmailTemplate, batch []models.Recipient) int {
	type outcome struct {
		messageID string
		err       error
	}
	outcomes := make([]outcome, len(batch))

	var wg sync.WaitGroup
	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			messageID, err := d.sendSingleEmail(ctx, c, tpl, batch[i])
			outcomes[i] = outcome{messageID: messageID, err: err}
		}(i)
	}
	wg.Wait()

	failed := 0
	for i, r := range batch {
		entry := &models.CampaignLogEntry{
			CampaignID:     c.ID,
			RecipientEmail: r.Email,
		}
		if outcomes[i].err != nil {
			failed++
			entry.Status = models.LogFailed
			entry.Metadata = map[string]interface{}{"error": outcomes[i].err.Error()}
			metrics.CampaignRecipients.WithLabelValues(string(models.LogFailed)).Inc()
		} else {
			entry.Status = models.LogSent
			entry.Metadata = map[string]interface{}{"messageId": outcomes[i].messageID}
			metrics.CampaignRecipients.WithLabelValues(string(models.LogSent)).Inc()
		}
		if err := d.logs.Append(ctx, entry); err != nil {
			d.logger.Error("campaign log append failed", map[string]interface{}{
				"campaignId": c.ID,
				"recipient":  r.Email,
				"error":      err,
			})
		}
	}
	return failed
}

// sendSingleEmail renders and sends one recipient's email. Recipient
// variables override campaign variables; the implicit recipient fields
// always win.
func (d *Dispatcher) sendSingleEmail(ctx context.Context, c *models.Campaign, tpl *models.EmailTemplate, r models.Recipient) (string, error) {
	data := make(map[string]interface{}, len(c.Variables)+len(r.Variables)+4)
	for k, v := range c.Variables {
		data[k] = v
	}
	for k, v := range r.Variables {
		data[k] = v
	}
	displayName := r.Name
	if displayName == "" {
		displayName = r.Email
	}
	data["recipient_email"] = r.Email
	data["recipient_name"] = displayName
	data["email"] = r.Email
	data["name"] = displayName

	subject := render.Template(c.Subject, data)
	html := render.Template(tpl.HTMLContent, data)

	if c.Settings.TrackClicks {
		html = d.injector.RewriteClicks(html, c.ID, r.Email)
	}
	if c.Settings.TrackOpens {
		html = d.injector.InjectOpenPixel(html, c.ID, r.Email)
	}

	return d.sender.Send(ctx, channel.Message{
		To:       r.Email,
		Subject:  subject,
		Body:     subject,
		HTMLBody: html,
	})
}

// ==========================
// Reporting
// ==========================

func (d *Dispatcher) Get(ctx context.Context, id string) (*models.Campaign, error) {
	return d.campaigns.GetByID(ctx, id)
}

// Stats aggregates send outcomes and engagement for a campaign. Every
// rate is 0 when its denominator is 0.
func (d *Dispatcher) Stats(ctx context.Context, id string) (*models.CampaignStats, error) {
	c, err := d.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sent, failed, err := d.logs.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	opens, err := d.tracking.CountsForCampaign(ctx, id, models.EventOpen)
	if err != nil {
		return nil, err
	}
	clicks, err := d.tracking.CountsForCampaign(ctx, id, models.EventClick)
	if err != nil {
		return nil, err
	}

	stats := &models.CampaignStats{
		TotalRecipients: len(c.Recipients),
		Sent:            sent,
		Failed:          failed,
		Opens:           opens.Total,
		Clicks:          clicks.Total,
		UniqueOpens:     opens.Unique,
		UniqueClicks:    clicks.Unique,
	}
	stats.DeliveryRate = percentage(sent, stats.TotalRecipients)
	stats.OpenRate = percentage(opens.Unique, sent)
	stats.ClickRate = percentage(clicks.Unique, sent)
	stats.ClickThroughRate = percentage(clicks.Unique, opens.Unique)
	return stats, nil
}

func (d *Dispatcher) Logs(ctx context.Context, id string, limit, offset int) ([]models.CampaignLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return d.logs.ListByCampaign(ctx, id, limit, offset)
}

func percentage(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator) * 100
}
