// Package handler exposes the pipeline over HTTP: campaign management,
// reminder scheduling and the tracking endpoints emails point back at.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"delivery-pipeline/internal/campaign"
	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/common/logger"
	"delivery-pipeline/internal/common/validation"
	"delivery-pipeline/internal/models"
)

var campaignCreateSchema = validation.JSONSchema{
	Type: "object",
	Properties: map[string]validation.Property{
		"name":       {Type: "string", MinLength: validation.IntPtr(1)},
		"templateId": {Type: "string", MinLength: validation.IntPtr(1)},
		"subject":    {Type: "string", MinLength: validation.IntPtr(1)},
		"recipients": {
			Type:     "array",
			MinItems: validation.IntPtr(1),
			Items: &validation.Property{
				Type: "object",
				Properties: map[string]validation.Property{
					"email":     {Type: "string", MinLength: validation.IntPtr(1)},
					"name":      {Type: "string"},
					"variables": {Type: "object"},
				},
				Required: []string{"email"},
			},
		},
		"variables":   {Type: "object"},
		"scheduledAt": {Type: "string"},
		"settings": {
			Type: "object",
			Properties: map[string]validation.Property{
				"track_opens":   {Type: "boolean"},
				"track_clicks":  {Type: "boolean"},
				"batch_size":    {Type: "integer", Minimum: validation.Float64Ptr(1)},
				"send_delay_ms": {Type: "integer", Minimum: validation.Float64Ptr(0)},
			},
		},
	},
	Required: []string{"name", "templateId", "subject", "recipients"},
}

type CampaignHandler struct {
	dispatcher *campaign.Dispatcher
	logger     logger.Logger
}

func NewCampaignHandler(dispatcher *campaign.Dispatcher, log logger.Logger) *CampaignHandler {
	return &CampaignHandler{dispatcher: dispatcher, logger: log}
}

func (h *CampaignHandler) Routes(r chi.Router) {
	r.Post("/campaigns", h.Create)
	r.Get("/campaigns/{id}", h.Get)
	r.Post("/campaigns/{id}/send", h.Send)
	r.Post("/campaigns/{id}/pause", h.Pause)
	r.Post("/campaigns/{id}/resume", h.Resume)
	r.Get("/campaigns/{id}/stats", h.Stats)
	r.Get("/campaigns/{id}/logs", h.Logs)
	r.Post("/campaigns/import", h.ImportRecipients)
}

func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		errs.WriteHTTP(w, errs.NewValidationError("invalid JSON body: "+err.Error()))
		return
	}

	result, err := validation.ValidateDocument(doc, campaignCreateSchema)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	if !result.Valid {
		var problems []string
		for _, v := range result.Errors {
			problems = append(problems, v.Field+": "+v.Message)
		}
		errs.WriteHTTP(w, errs.NewValidationError(strings.Join(problems, "; ")))
		return
	}

	c, err := decodeCampaign(doc)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}

	if err := h.dispatcher.Create(r.Context(), c); err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func decodeCampaign(doc map[string]interface{}) (*models.Campaign, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.NewValidationError(err.Error())
	}
	var payload struct {
		Name        string                  `json:"name"`
		TemplateID  string                  `json:"templateId"`
		Subject     string                  `json:"subject"`
		Recipients  []models.Recipient      `json:"recipients"`
		Variables   map[string]interface{}  `json:"variables"`
		Settings    models.CampaignSettings `json:"settings"`
		ScheduledAt string                  `json:"scheduledAt"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, errs.NewValidationError(err.Error())
	}

	c := &models.Campaign{
		Name:       payload.Name,
		TemplateID: payload.TemplateID,
		Subject:    payload.Subject,
		Recipients: payload.Recipients,
		Variables:  payload.Variables,
		Settings:   payload.Settings,
	}
	if payload.ScheduledAt != "" {
		at, err := time.Parse(time.RFC3339, payload.ScheduledAt)
		if err != nil {
			return nil, errs.NewValidationError("scheduledAt must be RFC3339: " + err.Error())
		}
		c.ScheduledAt = &at
	}
	return c, nil
}

func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.dispatcher.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Send launches the campaign in the background; batch settlement can
// outlive the request by minutes.
func (h *CampaignHandler) Send(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	if c.Status != models.CampaignDraft && c.Status != models.CampaignScheduled {
		errs.WriteHTTP(w, errs.NewInvalidTransitionError(string(c.Status), string(models.CampaignSending)))
		return
	}

	go func() {
		if err := h.dispatcher.Send(context.Background(), id); err != nil {
			h.logger.Error("campaign send failed", map[string]interface{}{
				"campaignId": id,
				"error":      err,
			})
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(models.CampaignSending)})
}

func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dispatcher.Pause(r.Context(), id); err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(models.CampaignPaused)})
}

func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.dispatcher.Get(r.Context(), id)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	if c.Status != models.CampaignPaused {
		errs.WriteHTTP(w, errs.NewInvalidTransitionError(string(c.Status), string(models.CampaignSending)))
		return
	}

	go func() {
		if err := h.dispatcher.Resume(context.Background(), id); err != nil {
			h.logger.Error("campaign resume failed", map[string]interface{}{
				"campaignId": id,
				"error":      err,
			})
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(models.CampaignSending)})
}

func (h *CampaignHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dispatcher.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *CampaignHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.dispatcher.Logs(r.Context(), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": entries})
}

// ImportRecipients accepts a CSV body and returns parsed recipients
// with per-line errors for rejected rows.
func (h *CampaignHandler) ImportRecipients(w http.ResponseWriter, r *http.Request) {
	result, err := campaign.ImportRecipients(r.Body)
	if err != nil {
		if result != nil && len(result.Errors) > 0 {
			writeJSON(w, http.StatusBadRequest, result)
			return
		}
		errs.WriteHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
