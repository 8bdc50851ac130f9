package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nourx/mailer/internal/domain"
)

// LockCache is the slice of the cache facility the service needs: the
// per-message send guard and the lock-protected result write.
type LockCache interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
	AcquireLockAndSet(ctx context.Context, lockKey, dataKey, value string, ttl, lockTimeout time.Duration) (bool, error)
}

type EmailServiceConfig struct {
	MaxRetries int
	LockTTL    time.Duration
	ResultTTL  time.Duration
}

// EmailService owns every status transition of an outbox row. Nothing else
// mutates email_outbox.
type EmailService struct {
	emailRepo    domain.EmailRepository
	templateRepo domain.TemplateRepository
	sender       domain.Sender
	cache        LockCache
	cfg          EmailServiceConfig
	logger       *slog.Logger
}

func NewEmailService(
	emailRepo domain.EmailRepository,
	templateRepo domain.TemplateRepository,
	sender domain.Sender,
	cache LockCache,
	cfg EmailServiceConfig,
	logger *slog.Logger,
) *EmailService {
	return &EmailService{
		emailRepo:    emailRepo,
		templateRepo: templateRepo,
		sender:       sender,
		cache:        cache,
		cfg:          cfg,
		logger:       logger.With(slog.String("component", "email_service")),
	}
}

// EnqueueRequest describes one message to queue. Either TemplateName plus
// Variables or pre-rendered Subject/HTMLContent must be set.
type EnqueueRequest struct {
	ToEmail      string
	ToName       string
	TemplateName string
	Variables    map[string]string
	Subject      string
	HTMLContent  string
	TextContent  string
	ScheduledAt  *time.Time
}

// Validate guards the service surface directly; in-process callers do not
// pass through the HTTP DTO checks.
func (r EnqueueRequest) Validate() error {
	if strings.TrimSpace(r.ToEmail) == "" {
		return fmt.Errorf("%w: recipient address is required", domain.ErrInvalidEmail)
	}
	if !strings.Contains(r.ToEmail, "@") {
		return fmt.Errorf("%w: recipient address %q is malformed", domain.ErrInvalidEmail, r.ToEmail)
	}
	if r.TemplateName == "" && (r.Subject == "" || r.HTMLContent == "") {
		return fmt.Errorf("%w: either a template name or subject and html content are required", domain.ErrInvalidEmail)
	}
	return nil
}

// EnqueueEmail renders the message and inserts the outbox row. Content is
// frozen here; the worker never re-renders.
func (s *EmailService) EnqueueEmail(ctx context.Context, req EnqueueRequest) (domain.EmailMessage, error) {
	if err := req.Validate(); err != nil {
		return domain.EmailMessage{}, err
	}

	email := domain.EmailMessage{
		ToEmail:     req.ToEmail,
		Subject:     req.Subject,
		HTMLContent: req.HTMLContent,
	}

	if req.ToName != "" {
		email.ToName = sql.NullString{String: req.ToName, Valid: true}
	}
	if req.TextContent != "" {
		email.TextContent = sql.NullString{String: req.TextContent, Valid: true}
	}
	if req.ScheduledAt != nil {
		email.ScheduledAt = sql.NullTime{Time: *req.ScheduledAt, Valid: true}
	}

	if req.TemplateName != "" {
		tmpl, err := s.templateRepo.GetActiveByName(ctx, req.TemplateName)
		if err != nil {
			return domain.EmailMessage{}, err
		}

		subject, htmlContent, textContent, err := RenderTemplate(tmpl, req.Variables)
		if err != nil {
			return domain.EmailMessage{}, err
		}

		email.TemplateID = uuid.NullUUID{UUID: tmpl.ID, Valid: true}
		email.Subject = subject
		email.HTMLContent = htmlContent
		if textContent != "" {
			email.TextContent = sql.NullString{String: textContent, Valid: true}
		}
	}

	if err := s.emailRepo.Insert(ctx, &email); err != nil {
		return domain.EmailMessage{}, err
	}

	s.logger.Info("email enqueued",
		"email_id", email.ID,
		"recipient", email.ToEmail,
		"template", req.TemplateName)

	return email, nil
}

func (s *EmailService) GetPendingEmails(ctx context.Context, batchSize uint) ([]domain.EmailMessage, error) {
	return s.emailRepo.FindPending(ctx, batchSize)
}

func (s *EmailService) GetRetryableEmails(ctx context.Context, batchSize uint) ([]domain.EmailMessage, error) {
	return s.emailRepo.FindRetryable(ctx, s.cfg.MaxRetries, batchSize)
}

// ProcessQueuedEmail performs one delivery attempt for the given row. The
// returned flag reports delivery success and is for logging only; transport
// failures are absorbed into row state, not returned as errors.
func (s *EmailService) ProcessQueuedEmail(ctx context.Context, id uuid.UUID) (bool, error) {
	email, err := s.emailRepo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	switch email.Status {
	case domain.EmailStatusSent:
		return false, domain.ErrEmailAlreadySent
	case domain.EmailStatusFailed:
		s.logger.Warn("skipping email in terminal failed state", "email_id", id)
		return false, nil
	}

	lockKey := sendLockKey(id)
	acquired, err := s.cache.AcquireLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		// A cache outage must not stop mail. Proceed unguarded and accept
		// the at-least-once risk.
		s.logger.Warn("send lock unavailable, proceeding without it", "email_id", id, "error", err)
		acquired = false
	} else if !acquired {
		s.logger.Info("send lock held elsewhere, skipping", "email_id", id)
		return false, nil
	}

	if acquired {
		defer func() {
			if err := s.cache.ReleaseLock(ctx, lockKey); err != nil {
				s.logger.Warn("failed to release send lock", "email_id", id, "error", err)
			}
		}()
	}

	rendered := domain.RenderedEmail{
		ToEmail:     email.ToEmail,
		ToName:      email.ToName.String,
		Subject:     email.Subject,
		HTMLContent: email.HTMLContent,
		TextContent: email.TextContent.String,
	}

	if sendErr := s.sender.Send(ctx, rendered); sendErr != nil {
		return false, s.handleSendFailure(ctx, email, sendErr)
	}

	return true, s.handleSendSuccess(ctx, email)
}

func (s *EmailService) handleSendFailure(ctx context.Context, email domain.EmailMessage, sendErr error) error {
	if err := s.emailRepo.MarkAttemptFailed(ctx, email.ID, sendErr.Error()); err != nil {
		s.logger.Error("failed to record attempt", "email_id", email.ID, "error", err)
		return err
	}

	attempts := email.Attempts + 1
	s.logger.Warn("email send failed",
		"email_id", email.ID,
		"recipient", email.ToEmail,
		"attempts", attempts,
		"error", sendErr)

	if attempts >= s.cfg.MaxRetries {
		if err := s.emailRepo.MarkFailed(ctx, email.ID); err != nil {
			s.logger.Error("failed to mark email failed", "email_id", email.ID, "error", err)
			return err
		}
		s.logger.Warn("email retries exhausted, marked failed",
			"email_id", email.ID,
			"recipient", email.ToEmail,
			"attempts", attempts)
	}

	return nil
}

func (s *EmailService) handleSendSuccess(ctx context.Context, email domain.EmailMessage) error {
	if err := s.emailRepo.MarkSent(ctx, email.ID); err != nil {
		s.logger.Error("failed to mark email sent", "email_id", email.ID, "error", err)
		return err
	}

	s.logger.Info("email sent",
		"email_id", email.ID,
		"recipient", email.ToEmail,
		"attempts", email.Attempts)

	s.cacheSendResult(ctx, email.ID)
	return nil
}

type sendResult struct {
	EmailID string `json:"emailId"`
	SentAt  string `json:"sentAt"`
}

// cacheSendResult records the delivery in the cache so other processes can
// answer "was this sent?" without hitting the outbox table. Best effort.
func (s *EmailService) cacheSendResult(ctx context.Context, id uuid.UUID) {
	payload, err := json.Marshal(sendResult{
		EmailID: id.String(),
		SentAt:  time.Now().Format(time.RFC3339),
	})
	if err != nil {
		s.logger.Error("failed to marshal send result", "email_id", id, "error", err)
		return
	}

	written, err := s.cache.AcquireLockAndSet(ctx,
		resultLockKey(id),
		resultKey(id),
		string(payload),
		s.cfg.ResultTTL,
		10*time.Second,
	)
	if err != nil {
		s.logger.Warn("failed to cache send result", "email_id", id, "error", err)
		return
	}
	if !written {
		s.logger.Info("send result already being written", "email_id", id)
	}
}

func (s *EmailService) GetEmailStats(ctx context.Context, since time.Time) (domain.EmailStats, error) {
	return s.emailRepo.CountByStatus(ctx, since)
}

func (s *EmailService) CleanupOldEmails(ctx context.Context, retentionDays int) (int64, error) {
	deleted, err := s.emailRepo.DeleteOlderThan(ctx, retentionDays)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.logger.Info("purged old emails", "deleted", deleted, "retention_days", retentionDays)
	}
	return deleted, nil
}

func (s *EmailService) ListEmails(ctx context.Context, status string, limit, offset uint) ([]domain.EmailMessage, error) {
	return s.emailRepo.ListByStatus(ctx, status, limit, offset)
}

func (s *EmailService) MaxRetries() int {
	return s.cfg.MaxRetries
}

func sendLockKey(id uuid.UUID) string {
	return fmt.Sprintf("email:send:lock:%s", id)
}

func resultLockKey(id uuid.UUID) string {
	return fmt.Sprintf("email:result:lock:%s", id)
}

func resultKey(id uuid.UUID) string {
	return fmt.Sprintf("email:result:%s", id)
}
