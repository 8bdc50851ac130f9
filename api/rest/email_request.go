package rest

import (
	"errors"
	"strings"
	"time"
)

type EnqueueEmailRequest struct {
	ToEmail      string            `json:"toEmail"`
	ToName       string            `json:"toName,omitempty"`
	TemplateName string            `json:"templateName,omitempty"`
	Variables    map[string]string `json:"variables,omitempty"`
	Subject      string            `json:"subject,omitempty"`
	HTMLContent  string            `json:"htmlContent,omitempty"`
	TextContent  string            `json:"textContent,omitempty"`
	ScheduledAt  *time.Time        `json:"scheduledAt,omitempty"`
}

// Validate enforces that a request names either a template or carries fully
// rendered content.
func (r EnqueueEmailRequest) Validate() error {
	if strings.TrimSpace(r.ToEmail) == "" {
		return errors.New("toEmail is required")
	}
	if !strings.Contains(r.ToEmail, "@") {
		return errors.New("toEmail is not a valid address")
	}

	if r.TemplateName == "" {
		if r.Subject == "" || r.HTMLContent == "" {
			return errors.New("either templateName or subject and htmlContent are required")
		}
	}
	return nil
}
