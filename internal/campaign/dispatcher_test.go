package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-pipeline/internal/channel"
	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/store"
	"delivery-pipeline/internal/tracking"
)

var dispatchNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// ==========================
// Fakes
// ==========================

type fakeCampaignRepo struct {
	campaigns    map[string]*models.Campaign
	onSaveCursor func(cursor int)
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{campaigns: make(map[string]*models.Campaign)}
}

func (r *fakeCampaignRepo) Insert(_ context.Context, c *models.Campaign) error {
	copied := *c
	r.campaigns[c.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return nil, errs.NewCampaignNotFoundError(id)
	}
	copied := *c
	return &copied, nil
}

func (r *fakeCampaignRepo) TransitionStatus(_ context.Context, id string, from, to models.CampaignStatus) (bool, error) {
	c, ok := r.campaigns[id]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) GetStatus(_ context.Context, id string) (models.CampaignStatus, error) {
	c, ok := r.campaigns[id]
	if !ok {
		return "", errs.NewCampaignNotFoundError(id)
	}
	return c.Status, nil
}

func (r *fakeCampaignRepo) SaveCursor(_ context.Context, id string, cursor int) error {
	r.campaigns[id].LastProcessedIndex = cursor
	if r.onSaveCursor != nil {
		r.onSaveCursor(cursor)
	}
	return nil
}

func (r *fakeCampaignRepo) MarkStarted(_ context.Context, id string, at time.Time) error {
	c := r.campaigns[id]
	if c.SentAt == nil {
		c.SentAt = &at
	}
	return nil
}

func (r *fakeCampaignRepo) MarkCompleted(_ context.Context, id string, status models.CampaignStatus, at time.Time) error {
	c := r.campaigns[id]
	c.Status = status
	c.CompletedAt = &at
	return nil
}

func (r *fakeCampaignRepo) ListScheduledDue(_ context.Context, now time.Time) ([]string, error) {
	var ids []string
	for id, c := range r.campaigns {
		if c.Status == models.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type fakeTemplates struct {
	templates map[string]*models.EmailTemplate
}

func (f *fakeTemplates) GetByID(_ context.Context, id string) (*models.EmailTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, errs.NewTemplateNotFoundError(id)
	}
	return t, nil
}

type fakeLogRepo struct {
	entries []models.CampaignLogEntry
}

func (f *fakeLogRepo) Append(_ context.Context, entry *models.CampaignLogEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLogRepo) ListByCampaign(_ context.Context, campaignID string, limit, offset int) ([]models.CampaignLogEntry, error) {
	var out []models.CampaignLogEntry
	for _, e := range f.entries {
		if e.CampaignID == campaignID {
			out = append(out, e)
		}
	}
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeLogRepo) CountByStatus(_ context.Context, campaignID string) (int, int, error) {
	sent, failed := 0, 0
	for _, e := range f.entries {
		if e.CampaignID != campaignID {
			continue
		}
		if e.Status == models.LogSent {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed, nil
}

type fakeEngagement struct {
	opens  store.EngagementCounts
	clicks store.EngagementCounts
}

func (f *fakeEngagement) CountsForCampaign(_ context.Context, _ string, eventType models.TrackingEventType) (store.EngagementCounts, error) {
	if eventType == models.EventOpen {
		return f.opens, nil
	}
	return f.clicks, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []channel.Message
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg channel.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[msg.To]; ok {
		return "", err
	}
	s.sent = append(s.sent, msg)
	return "msg-" + msg.To, nil
}

// ==========================
// Fixture
// ==========================

type fixture struct {
	dispatcher *Dispatcher
	campaigns  *fakeCampaignRepo
	logs       *fakeLogRepo
	sender     *recordingSender
	engagement *fakeEngagement
	sleeps     []time.Duration
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		campaigns:  newFakeCampaignRepo(),
		logs:       &fakeLogRepo{},
		sender:     &recordingSender{},
		engagement: &fakeEngagement{},
	}
	templates := &fakeTemplates{templates: map[string]*models.EmailTemplate{
		"tpl-1": {ID: "tpl-1", Subject: "s", HTMLContent: `<html><body><p>Hello {{name}}, your plan is {{plan}}.</p><a href="https://example.com">Site</a></body></html>`},
	}}
	injector := tracking.NewInjector("https://mail.example.com", clock.Fixed{T: dispatchNow})
	f.dispatcher = NewDispatcher(f.campaigns, templates, f.logs, f.engagement, f.sender, injector,
		clock.Fixed{T: dispatchNow}, logger.NewTestLogger(t), Defaults{BatchSize: 50, SendDelayMs: 1000})
	f.dispatcher.sleep = func(d time.Duration) { f.sleeps = append(f.sleeps, d) }
	return f
}

func makeRecipients(n int) []models.Recipient {
	recipients := make([]models.Recipient, n)
	for i := range recipients {
		recipients[i] = models.Recipient{
			Email: fmt.Sprintf("r%03d@example.com", i),
			Name:  fmt.Sprintf("Recipient %d", i),
		}
	}
	return recipients
}

func (f *fixture) seedCampaign(id string, status models.CampaignStatus, recipients []models.Recipient, settings models.CampaignSettings) {
	f.campaigns.campaigns[id] = &models.Campaign{
		ID:         id,
		Name:       "Promo",
		TemplateID: "tpl-1",
		Subject:    "Hi {{name}}",
		Status:     status,
		Recipients: recipients,
		Settings:   settings,
	}
}

// ==========================
// Validation and creation
// ==========================

func TestValidate_CollectsAllProblems(t *testing.T) {
	f := newFixture(t)

	err := f.dispatcher.Validate(context.Background(), &models.Campaign{
		TemplateID: "missing-tpl",
		Recipients: []models.Recipient{{Email: "not-an-email"}},
	})

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeCampaignValidationFailed, errs.Code(err))
	details := errs.Normalize(err).Details
	assert.Contains(t, details, "name is required")
	assert.Contains(t, details, "subject is required")
	assert.Contains(t, details, "template missing-tpl does not exist")
	assert.Contains(t, details, `recipient 1 has invalid email "not-an-email"`)
}

func TestCreate_AppliesDefaultsAndStatus(t *testing.T) {
	f := newFixture(t)

	c := &models.Campaign{
		Name:       "Promo",
		TemplateID: "tpl-1",
		Subject:    "Hi",
		Recipients: makeRecipients(3),
	}
	require.NoError(t, f.dispatcher.Create(context.Background(), c))
	assert.Equal(t, models.CampaignDraft, c.Status)
	assert.Equal(t, 50, c.Settings.BatchSize)
	assert.Equal(t, 1000, c.Settings.SendDelayMs)

	launch := dispatchNow.Add(time.Hour)
	scheduled := &models.Campaign{
		Name:        "Later",
		TemplateID:  "tpl-1",
		Subject:     "Hi",
		Recipients:  makeRecipients(1),
		ScheduledAt: &launch,
	}
	require.NoError(t, f.dispatcher.Create(context.Background(), scheduled))
	assert.Equal(t, models.CampaignScheduled, scheduled.Status)
}

// ==========================
// Sending
// ==========================

func TestSend_BatchesAndCompletes(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignDraft, makeRecipients(120),
		models.CampaignSettings{BatchSize: 50, SendDelayMs: 1000})

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	// every recipient settled exactly once
	assert.Len(t, f.sender.sent, 120)
	seen := make(map[string]int)
	for _, msg := range f.sender.sent {
		seen[msg.To]++
	}
	for to, n := range seen {
		assert.Equal(t, 1, n, "recipient %s sent more than once", to)
	}

	// ceil(120/50) = 3 batches, delay only between them
	assert.Equal(t, []time.Duration{time.Second, time.Second}, f.sleeps)

	c := f.campaigns.campaigns["camp-1"]
	assert.Equal(t, models.CampaignSent, c.Status)
	assert.Equal(t, 120, c.LastProcessedIndex)
	require.NotNil(t, c.SentAt)
	require.NotNil(t, c.CompletedAt)
	assert.Len(t, f.logs.entries, 120)
}

func TestSend_RendersVariablesPerRecipient(t *testing.T) {
	f := newFixture(t)
	recipients := []models.Recipient{
		{Email: "alice@example.com", Name: "Alice", Variables: map[string]interface{}{"plan": "pro"}},
		{Email: "bob@example.com", Name: "Bob"},
	}
	f.campaigns.campaigns["camp-1"] = &models.Campaign{
		ID:         "camp-1",
		Name:       "Promo",
		TemplateID: "tpl-1",
		Subject:    "Hi {{name}}",
		Status:     models.CampaignDraft,
		Recipients: recipients,
		Variables:  map[string]interface{}{"plan": "basic"},
		Settings:   models.CampaignSettings{BatchSize: 10},
	}

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	byTo := make(map[string]channel.Message)
	for _, msg := range f.sender.sent {
		byTo[msg.To] = msg
	}
	assert.Equal(t, "Hi Alice", byTo["alice@example.com"].Subject)
	// recipient variable beats the campaign-level one
	assert.Contains(t, byTo["alice@example.com"].HTMLBody, "your plan is pro")
	assert.Contains(t, byTo["bob@example.com"].HTMLBody, "your plan is basic")
}

func TestSend_ImplicitRecipientVariables(t *testing.T) {
	f := newFixture(t)
	recipients := []models.Recipient{
		{Email: "alice@example.com", Name: "Alice"},
		{Email: "bob@example.com"},
	}
	f.campaigns.campaigns["camp-1"] = &models.Campaign{
		ID:         "camp-1",
		Name:       "Promo",
		TemplateID: "tpl-1",
		Subject:    "Hello {{recipient_name}} <{{recipient_email}}>",
		Status:     models.CampaignDraft,
		Recipients: recipients,
		Settings:   models.CampaignSettings{BatchSize: 10},
	}

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	byTo := make(map[string]channel.Message)
	for _, msg := range f.sender.sent {
		byTo[msg.To] = msg
	}
	assert.Equal(t, "Hello Alice <alice@example.com>", byTo["alice@example.com"].Subject)
	// a missing name falls back to the email address
	assert.Equal(t, "Hello bob@example.com <bob@example.com>", byTo["bob@example.com"].Subject)
}

func TestSend_InjectsTrackingWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignDraft, makeRecipients(1),
		models.CampaignSettings{BatchSize: 10, TrackOpens: true, TrackClicks: true})

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	require.Len(t, f.sender.sent, 1)
	html := f.sender.sent[0].HTMLBody
	assert.Contains(t, html, "/tracking/pixel?data=")
	assert.Contains(t, html, "/tracking/click?data=")
	assert.NotContains(t, html, `href="https://example.com"`)
}

func TestSend_AnyFailureMarksCampaignFailed(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = map[string]error{
		"r001@example.com": errs.NewPermanentSendError("EMAIL", "rejected"),
	}
	f.seedCampaign("camp-1", models.CampaignDraft, makeRecipients(5),
		models.CampaignSettings{BatchSize: 10})

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	assert.Equal(t, models.CampaignFailed, f.campaigns.campaigns["camp-1"].Status)

	sent, failed := 0, 0
	for _, e := range f.logs.entries {
		switch e.Status {
		case models.LogSent:
			sent++
		case models.LogFailed:
			failed++
			assert.Equal(t, "r001@example.com", e.RecipientEmail)
			assert.Contains(t, e.Metadata["error"], "rejected")
		}
	}
	assert.Equal(t, 4, sent)
	assert.Equal(t, 1, failed)
}

func TestSend_RejectsWrongStatus(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignSent, makeRecipients(1), models.CampaignSettings{})

	err := f.dispatcher.Send(context.Background(), "camp-1")

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeInvalidStateTransition, errs.Code(err))
}

// ==========================
// Pause and resume
// ==========================

func TestPause_HonoredBetweenBatches(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignDraft, makeRecipients(120),
		models.CampaignSettings{BatchSize: 50, SendDelayMs: 100})

	// a pause request lands while the first batch is settling
	f.campaigns.onSaveCursor = func(cursor int) {
		if cursor == 50 {
			f.campaigns.campaigns["camp-1"].Status = models.CampaignPaused
		}
	}

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	c := f.campaigns.campaigns["camp-1"]
	assert.Equal(t, models.CampaignPaused, c.Status)
	assert.Equal(t, 50, c.LastProcessedIndex)
	assert.Len(t, f.sender.sent, 50, "only the completed batch was sent")
	assert.Nil(t, c.CompletedAt)
}

func TestResume_ContinuesFromCursorWithoutDuplicates(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignPaused, makeRecipients(120),
		models.CampaignSettings{BatchSize: 50, SendDelayMs: 100})
	f.campaigns.campaigns["camp-1"].LastProcessedIndex = 50

	require.NoError(t, f.dispatcher.Resume(context.Background(), "camp-1"))

	assert.Len(t, f.sender.sent, 70, "recipients settled before the pause are not resent")
	for _, msg := range f.sender.sent {
		assert.GreaterOrEqual(t, msg.To, "r050@example.com")
	}
	c := f.campaigns.campaigns["camp-1"]
	assert.Equal(t, models.CampaignSent, c.Status)
	assert.Equal(t, 120, c.LastProcessedIndex)
}

func TestPause_RequiresSendingStatus(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignDraft, makeRecipients(1), models.CampaignSettings{})

	err := f.dispatcher.Pause(context.Background(), "camp-1")

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeInvalidStateTransition, errs.Code(err))
}

// ==========================
// Scheduled launch and stats
// ==========================

func TestLaunchDue_StartsOnlyDueCampaigns(t *testing.T) {
	f := newFixture(t)
	past := dispatchNow.Add(-time.Minute)
	future := dispatchNow.Add(time.Hour)

	f.seedCampaign("due", models.CampaignScheduled, makeRecipients(2), models.CampaignSettings{BatchSize: 10})
	f.campaigns.campaigns["due"].ScheduledAt = &past
	f.seedCampaign("later", models.CampaignScheduled, makeRecipients(2), models.CampaignSettings{BatchSize: 10})
	f.campaigns.campaigns["later"].ScheduledAt = &future

	require.NoError(t, f.dispatcher.LaunchDue(context.Background()))

	assert.Equal(t, models.CampaignSent, f.campaigns.campaigns["due"].Status)
	assert.Equal(t, models.CampaignScheduled, f.campaigns.campaigns["later"].Status)
}

func TestStats_RatesWithZeroDenominators(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignDraft, makeRecipients(10), models.CampaignSettings{})

	stats, err := f.dispatcher.Stats(context.Background(), "camp-1")

	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalRecipients)
	assert.Zero(t, stats.DeliveryRate)
	assert.Zero(t, stats.OpenRate)
	assert.Zero(t, stats.ClickThroughRate)
}

func TestStats_ComputesRates(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignSent, makeRecipients(10), models.CampaignSettings{})
	for i := 0; i < 8; i++ {
		f.logs.entries = append(f.logs.entries, models.CampaignLogEntry{
			CampaignID: "camp-1", Status: models.LogSent,
		})
	}
	f.logs.entries = append(f.logs.entries, models.CampaignLogEntry{CampaignID: "camp-1", Status: models.LogFailed})
	f.engagement.opens = store.EngagementCounts{Total: 6, Unique: 4}
	f.engagement.clicks = store.EngagementCounts{Total: 3, Unique: 2}

	stats, err := f.dispatcher.Stats(context.Background(), "camp-1")

	require.NoError(t, err)
	assert.Equal(t, 8, stats.Sent)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 80.0, stats.DeliveryRate, 0.001)
	assert.InDelta(t, 50.0, stats.OpenRate, 0.001)
	assert.InDelta(t, 25.0, stats.ClickRate, 0.001)
	assert.InDelta(t, 50.0, stats.ClickThroughRate, 0.001)
}

// sanity check for the subject templating used by the dispatcher
func TestSubjectTemplating(t *testing.T) {
	f := newFixture(t)
	f.seedCampaign("camp-1", models.CampaignDraft,
		[]models.Recipient{{Email: "a@example.com"}}, models.CampaignSettings{BatchSize: 10})

	require.NoError(t, f.dispatcher.Send(context.Background(), "camp-1"))

	require.Len(t, f.sender.sent, 1)
	assert.False(t, strings.Contains(f.sender.sent[0].Subject, "{{"), "unmatched placeholders are stripped")
}
