package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/nourx/mailer/internal/adapters/db"
	"github.com/nourx/mailer/internal/domain"
)

const outboxTable = "email_outbox"

type EmailRepository struct {
	db *db.Client
}

func NewEmailRepository(db *db.Client) *EmailRepository {
	return &EmailRepository{db: db}
}

// Insert persists a new outbox row and fills in the generated id and
// creation time. Rows always start pending with zero attempts.
func (r *EmailRepository) Insert(ctx context.Context, email *domain.EmailMessage) error {
	now := time.Now()

	record := goqu.Record{
		"to_email":     email.ToEmail,
		"to_name":      email.ToName,
		"subject":      email.Subject,
		"html_content": email.HTMLContent,
		"text_content": email.TextContent,
		"status":       domain.EmailStatusPending,
		"attempts":     0,
		"scheduled_at": email.ScheduledAt,
		"created_at":   now,
	}
	if email.TemplateID.Valid {
		record["template_id"] = email.TemplateID
	}

	ds := goqu.Insert(outboxTable).Rows(record)

	id, err := r.db.InsertReturningID(ctx, ds)
	if err != nil {
		return fmt.Errorf("error inserting email for %s: %w", email.ToEmail, err)
	}

	email.ID = id
	email.Status = domain.EmailStatusPending
	email.Attempts = 0
	email.CreatedAt = now
	return nil
}

func (r *EmailRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.EmailMessage, error) {
	ds := goqu.From(outboxTable).Where(goqu.C("id").Eq(id))

	var email domain.EmailMessage
	if err := r.db.QueryRow(ctx, &email, ds); err != nil {
		if errors.Is(err, db.ErrNoRows) {
			return domain.EmailMessage{}, domain.ErrEmailNotFound
		}
		return domain.EmailMessage{}, fmt.Errorf("error getting email %s: %w", id, err)
	}
	return email, nil
}

// FindPending returns due pending rows oldest-first so early messages are
// never starved under sustained load.
func (r *EmailRepository) FindPending(ctx context.Context, limit uint) ([]domain.EmailMessage, error) {
	ds := goqu.From(outboxTable).
		Where(
			goqu.C("status").Eq(domain.EmailStatusPending),
			goqu.Or(
				goqu.C("scheduled_at").IsNull(),
				goqu.C("scheduled_at").Lte(time.Now()),
			),
		).
		Order(goqu.C("created_at").Asc()).
		Limit(limit)

	var emails []domain.EmailMessage
	if err := r.db.Select(ctx, &emails, ds); err != nil {
		return nil, fmt.Errorf("error finding pending emails: %w", err)
	}
	return emails, nil
}

// FindRetryable returns rows that failed at least once and still have
// attempts left, oldest attempt first. Rows with zero attempts belong to
// FindPending.
func (r *EmailRepository) FindRetryable(ctx context.Context, maxAttempts int, limit uint) ([]domain.EmailMessage, error) {
	ds := goqu.From(outboxTable).
		Where(
			goqu.C("status").Eq(domain.EmailStatusPending),
			goqu.C("attempts").Gt(0),
			goqu.C("attempts").Lt(maxAttempts),
		).
		Order(goqu.C("last_attempt_at").Asc()).
		Limit(limit)

	var emails []domain.EmailMessage
	if err := r.db.Select(ctx, &emails, ds); err != nil {
		return nil, fmt.Errorf("error finding retryable emails: %w", err)
	}
	return emails, nil
}

// MarkSent is guarded by the pending status so a sent row can never be
// transitioned twice.
func (r *EmailRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	ds := goqu.Update(outboxTable).
		Set(goqu.Record{"status": domain.EmailStatusSent}).
		Where(goqu.Ex{
			"id":     id,
			"status": domain.EmailStatusPending,
		})

	result, err := r.db.Update(ctx, ds)
	if err != nil {
		return fmt.Errorf("error marking email %s sent: %w", id, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrEmailNotFound
	}
	return nil
}

// MarkAttemptFailed records one failed attempt. The status stays pending;
// promotion to failed is the service's call.
func (r *EmailRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	ds := goqu.Update(outboxTable).
		Set(goqu.Record{
			"attempts":        goqu.L("attempts + 1"),
			"last_attempt_at": time.Now(),
			"error_message":   errorMessage,
		}).
		Where(goqu.Ex{"id": id})

	if _, err := r.db.Update(ctx, ds); err != nil {
		return fmt.Errorf("error recording failed attempt for email %s: %w", id, err)
	}
	return nil
}

func (r *EmailRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	ds := goqu.Update(outboxTable).
		Set(goqu.Record{"status": domain.EmailStatusFailed}).
		Where(goqu.Ex{
			"id":     id,
			"status": domain.EmailStatusPending,
		})

	if _, err := r.db.Update(ctx, ds); err != nil {
		return fmt.Errorf("error marking email %s failed: %w", id, err)
	}
	return nil
}

// DeleteOlderThan purges rows past the retention horizon regardless of
// status and reports how many were removed.
func (r *EmailRepository) DeleteOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	ds := goqu.Delete(outboxTable).Where(goqu.C("created_at").Lt(cutoff))

	result, err := r.db.Delete(ctx, ds)
	if err != nil {
		return 0, fmt.Errorf("error deleting emails older than %d days: %w", retentionDays, err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func (r *EmailRepository) CountByStatus(ctx context.Context, since time.Time) (domain.EmailStats, error) {
	ds := goqu.From(outboxTable).
		Select(goqu.C("status"), goqu.COUNT(goqu.Star()).As("count")).
		Where(goqu.C("created_at").Gte(since)).
		GroupBy(goqu.C("status"))

	var rows []struct {
		Status domain.EmailStatus `db:"status"`
		Count  int64              `db:"count"`
	}
	if err := r.db.Select(ctx, &rows, ds); err != nil {
		return domain.EmailStats{}, fmt.Errorf("error counting emails by status: %w", err)
	}

	var stats domain.EmailStats
	for _, row := range rows {
		switch row.Status {
		case domain.EmailStatusPending:
			stats.Pending = row.Count
		case domain.EmailStatusSent:
			stats.Sent = row.Count
		case domain.EmailStatusFailed:
			stats.Failed = row.Count
		}
		stats.Total += row.Count
	}
	return stats, nil
}

func (r *EmailRepository) ListByStatus(ctx context.Context, status string, limit, offset uint) ([]domain.EmailMessage, error) {
	ds := goqu.From(outboxTable).
		Where(goqu.C("status").Eq(status)).
		Order(goqu.C("created_at").Desc()).
		Limit(limit).
		Offset(offset)

	var emails []domain.EmailMessage
	if err := r.db.Select(ctx, &emails, ds); err != nil {
		return nil, fmt.Errorf("error listing emails by status %s: %w", status, err)
	}
	return emails, nil
}
