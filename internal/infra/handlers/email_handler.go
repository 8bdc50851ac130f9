package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nourx/mailer/api/rest"
	"github.com/nourx/mailer/internal/app"
	"github.com/nourx/mailer/internal/domain"
)

type EmailHandler struct {
	service *app.EmailService
}

func (h *EmailHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req rest.EnqueueEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		Error(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email, err := h.service.EnqueueEmail(r.Context(), app.EnqueueRequest{
		ToEmail:      req.ToEmail,
		ToName:       req.ToName,
		TemplateName: req.TemplateName,
		Variables:    req.Variables,
		Subject:      req.Subject,
		HTMLContent:  req.HTMLContent,
		TextContent:  req.TextContent,
		ScheduledAt:  req.ScheduledAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			Error(w, r, http.StatusNotFound, "Unknown email template")
			return
		}
		if errors.Is(err, domain.ErrInvalidEmail) {
			Error(w, r, http.StatusBadRequest, err.Error())
			return
		}
		Error(w, r, http.StatusInternalServerError, "Failed to enqueue email")
		return
	}

	JSON(w, r, http.StatusCreated, rest.ToEmailResponse(email))
}

func (h *EmailHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(domain.EmailStatusSent)
	}

	limit, ok := queryUint(w, r, "limit", 10)
	if !ok {
		return
	}
	offset, ok := queryUint(w, r, "offset", 0)
	if !ok {
		return
	}

	emails, err := h.service.ListEmails(r.Context(), status, limit, offset)
	if err != nil {
		Error(w, r, http.StatusInternalServerError, "Failed to retrieve emails")
		return
	}

	emailResponses := rest.ToEmailResponses(emails)
	JSON(w, r, http.StatusOK, rest.EmailListResponse{
		Emails: emailResponses,
		Count:  len(emailResponses),
	})
}

func (h *EmailHandler) Stats(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			Error(w, r, http.StatusBadRequest, "Invalid since parameter, expected RFC3339")
			return
		}
		since = parsed
	}

	stats, err := h.service.GetEmailStats(r.Context(), since)
	if err != nil {
		Error(w, r, http.StatusInternalServerError, "Failed to retrieve email stats")
		return
	}

	JSON(w, r, http.StatusOK, stats)
}

func queryUint(w http.ResponseWriter, r *http.Request, name string, def uint) (uint, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}

	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		Error(w, r, http.StatusBadRequest, "Invalid "+name+" parameter")
		return 0, false
	}
	return uint(parsed), true
}

func RegisterEmailHandler(mux *http.ServeMux, service *app.EmailService) {
	h := &EmailHandler{service: service}

	mux.HandleFunc("POST /emails", h.Enqueue)
	mux.HandleFunc("GET /emails", h.List)
	mux.HandleFunc("GET /emails/stats", h.Stats)
}
