package rest

import (
	"time"

	"github.com/nourx/mailer/internal/domain"
)

type EmailResponse struct {
	ID            string  `json:"id"`
	TemplateID    *string `json:"templateId,omitempty"`
	ToEmail       string  `json:"toEmail"`
	ToName        *string `json:"toName,omitempty"`
	Subject       string  `json:"subject"`
	Status        string  `json:"status"`
	Attempts      int     `json:"attempts"`
	LastAttemptAt *string `json:"lastAttemptAt,omitempty"`
	ErrorMessage  *string `json:"errorMessage,omitempty"`
	ScheduledAt   *string `json:"scheduledAt,omitempty"`
	CreatedAt     string  `json:"createdAt"`
}

type EmailListResponse struct {
	Emails []EmailResponse `json:"emails"`
	Count  int             `json:"count"`
}

func ToEmailResponse(email domain.EmailMessage) EmailResponse {
	resp := EmailResponse{
		ID:        email.ID.String(),
		ToEmail:   email.ToEmail,
		Subject:   email.Subject,
		Status:    string(email.Status),
		Attempts:  email.Attempts,
		CreatedAt: email.CreatedAt.Format(time.RFC3339),
	}

	if email.TemplateID.Valid {
		templateID := email.TemplateID.UUID.String()
		resp.TemplateID = &templateID
	}

	if email.ToName.Valid {
		resp.ToName = &email.ToName.String
	}

	if email.LastAttemptAt.Valid {
		lastAttemptAt := email.LastAttemptAt.Time.Format(time.RFC3339)
		resp.LastAttemptAt = &lastAttemptAt
	}

	if email.ErrorMessage.Valid {
		resp.ErrorMessage = &email.ErrorMessage.String
	}

	if email.ScheduledAt.Valid {
		scheduledAt := email.ScheduledAt.Time.Format(time.RFC3339)
		resp.ScheduledAt = &scheduledAt
	}

	return resp
}

func ToEmailResponses(emails []domain.EmailMessage) []EmailResponse {
	responses := make([]EmailResponse, len(emails))
	for i, email := range emails {
		responses[i] = ToEmailResponse(email)
	}
	return responses
}
