package domain

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type EmailStatus string

const (
	EmailStatusPending EmailStatus = "pending"
	EmailStatusSent    EmailStatus = "sent"
	EmailStatusFailed  EmailStatus = "failed"
)

var (
	ErrEmailNotFound    = errors.New("email not found")
	ErrEmailAlreadySent = errors.New("email already sent")
	ErrTemplateNotFound = errors.New("email template not found")
	ErrInvalidEmail     = errors.New("invalid email request")
)

// EmailMessage is one row of the email_outbox table. Content is fully
// rendered at enqueue time; TemplateID is kept for audit only.
type EmailMessage struct {
	ID            uuid.UUID      `db:"id"`
	TemplateID    uuid.NullUUID  `db:"template_id"`
	ToEmail       string         `db:"to_email"`
	ToName        sql.NullString `db:"to_name"`
	Subject       string         `db:"subject"`
	HTMLContent   string         `db:"html_content"`
	TextContent   sql.NullString `db:"text_content"`
	Status        EmailStatus    `db:"status"`
	Attempts      int            `db:"attempts"`
	LastAttemptAt sql.NullTime   `db:"last_attempt_at"`
	ErrorMessage  sql.NullString `db:"error_message"`
	ScheduledAt   sql.NullTime   `db:"scheduled_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

type EmailTemplate struct {
	ID          uuid.UUID      `db:"id"`
	Name        string         `db:"name"`
	Subject     string         `db:"subject"`
	HTMLContent string         `db:"html_content"`
	TextContent sql.NullString `db:"text_content"`
	Variables   pq.StringArray `db:"variables"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

// RenderedEmail is what the delivery client actually puts on the wire.
type RenderedEmail struct {
	ToEmail     string
	ToName      string
	Subject     string
	HTMLContent string
	TextContent string
}

// EmailStats aggregates outbox counts for observability endpoints.
type EmailStats struct {
	Pending int64 `json:"pending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}

type EmailRepository interface {
	Insert(ctx context.Context, email *EmailMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (EmailMessage, error)
	FindPending(ctx context.Context, limit uint) ([]EmailMessage, error)
	FindRetryable(ctx context.Context, maxAttempts int, limit uint) ([]EmailMessage, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error)
	CountByStatus(ctx context.Context, since time.Time) (EmailStats, error)
	ListByStatus(ctx context.Context, status string, limit, offset uint) ([]EmailMessage, error)
}

type TemplateRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (EmailTemplate, error)
	GetActiveByName(ctx context.Context, name string) (EmailTemplate, error)
}

// Sender performs exactly one delivery attempt per call. Retrying is the
// outbox's job, never the transport's.
type Sender interface {
	Send(ctx context.Context, email RenderedEmail) error
	TestConnection(ctx context.Context) error
}
