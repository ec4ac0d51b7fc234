package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"delivery-pipeline/internal/common/clock"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/models"
	"delivery-pipeline/internal/tracking"
)

// transparent 1x1 GIF served by the open-tracking pixel
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingSink records engagement events.
type TrackingSink interface {
	Insert(ctx context.Context, event *models.TrackingEvent) error
}

type TrackingHandler struct {
	events TrackingSink
	clock  clock.Clock
	logger logger.Logger
}

func NewTrackingHandler(events TrackingSink, clk clock.Clock, log logger.Logger) *TrackingHandler {
	if clk == nil {
		clk = clock.System()
	}
	return &TrackingHandler{events: events, clock: clk, logger: log}
}

func (h *TrackingHandler) Routes(r chi.Router) {
	r.Get("/tracking/pixel", h.Pixel)
	r.Get("/tracking/click", h.Click)
}

// Pixel records an open and always serves the image: a bad or missing
// token must not break the email rendering that requested it.
func (h *TrackingHandler) Pixel(w http.ResponseWriter, r *http.Request) {
	if token, err := tracking.DecodeToken(r.URL.Query().Get("data")); err == nil {
		event := &models.TrackingEvent{
			CampaignID:     token.CampaignID,
			RecipientEmail: token.Email,
			EventType:      models.EventOpen,
			Timestamp:      h.clock.Now(),
		}
		if err := h.events.Insert(r.Context(), event); err != nil {
			h.logger.Error("open event not recorded", map[string]interface{}{
				"campaignId": token.CampaignID,
				"error":      err,
			})
		}
	} else {
		h.logger.Warn("invalid pixel token", map[string]interface{}{"error": err})
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pixelGIF)
}

// Click records the event and redirects to the original destination.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	token, err := tracking.DecodeToken(r.URL.Query().Get("data"))
	if err != nil || token.OriginalURL == "" {
		errs.WriteHTTP(w, errs.NewValidationError("invalid tracking token"))
		return
	}

	event := &models.TrackingEvent{
		CampaignID:     token.CampaignID,
		RecipientEmail: token.Email,
		EventType:      models.EventClick,
		OriginalURL:    token.OriginalURL,
		Timestamp:      h.clock.Now(),
	}
	if err := h.events.Insert(r.Context(), event); err != nil {
		h.logger.Error("click event not recorded", map[string]interface{}{
			"campaignId": token.CampaignID,
			"error":      err,
		})
	}

	http.Redirect(w, r, token.OriginalURL, http.StatusFound)
}
