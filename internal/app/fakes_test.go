//go:build unit

package app_test

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nourx/mailer/internal/domain"
)

type fakeEmailRepo struct {
	mu        sync.Mutex
	emails    map[uuid.UUID]*domain.EmailMessage
	insertErr error
}

func newFakeEmailRepo() *fakeEmailRepo {
	return &fakeEmailRepo{emails: map[uuid.UUID]*domain.EmailMessage{}}
}

func (r *fakeEmailRepo) Insert(_ context.Context, email *domain.EmailMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return r.insertErr
	}

	email.ID = uuid.New()
	email.Status = domain.EmailStatusPending
	email.Attempts = 0
	email.CreatedAt = time.Now()

	stored := *email
	r.emails[email.ID] = &stored
	return nil
}

func (r *fakeEmailRepo) GetByID(_ context.Context, id uuid.UUID) (domain.EmailMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emails[id]
	if !ok {
		return domain.EmailMessage{}, domain.ErrEmailNotFound
	}
	return *email, nil
}

func (r *fakeEmailRepo) FindPending(_ context.Context, limit uint) ([]domain.EmailMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var result []domain.EmailMessage
	for _, email := range r.emails {
		if email.Status != domain.EmailStatusPending {
			continue
		}
		if email.ScheduledAt.Valid && email.ScheduledAt.Time.After(now) {
			continue
		}
		result = append(result, *email)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if uint(len(result)) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeEmailRepo) FindRetryable(_ context.Context, maxAttempts int, limit uint) ([]domain.EmailMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.EmailMessage
	for _, email := range r.emails {
		if email.Status != domain.EmailStatusPending {
			continue
		}
		if email.Attempts == 0 || email.Attempts >= maxAttempts {
			continue
		}
		result = append(result, *email)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastAttemptAt.Time.Before(result[j].LastAttemptAt.Time)
	})
	if uint(len(result)) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeEmailRepo) MarkSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emails[id]
	if !ok || email.Status != domain.EmailStatusPending {
		return domain.ErrEmailNotFound
	}
	email.Status = domain.EmailStatusSent
	return nil
}

func (r *fakeEmailRepo) MarkAttemptFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emails[id]
	if !ok {
		return domain.ErrEmailNotFound
	}
	email.Attempts++
	email.LastAttemptAt = sql.NullTime{Time: time.Now(), Valid: true}
	email.ErrorMessage = sql.NullString{String: errorMessage, Valid: true}
	return nil
}

func (r *fakeEmailRepo) MarkFailed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email, ok := r.emails[id]
	if !ok {
		return domain.ErrEmailNotFound
	}
	if email.Status == domain.EmailStatusPending {
		email.Status = domain.EmailStatusFailed
	}
	return nil
}

func (r *fakeEmailRepo) DeleteOlderThan(_ context.Context, retentionDays int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var deleted int64
	for id, email := range r.emails {
		if email.CreatedAt.Before(cutoff) {
			delete(r.emails, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeEmailRepo) CountByStatus(_ context.Context, since time.Time) (domain.EmailStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats domain.EmailStats
	for _, email := range r.emails {
		if email.CreatedAt.Before(since) {
			continue
		}
		switch email.Status {
		case domain.EmailStatusPending:
			stats.Pending++
		case domain.EmailStatusSent:
			stats.Sent++
		case domain.EmailStatusFailed:
			stats.Failed++
		}
		stats.Total++
	}
	return stats, nil
}

func (r *fakeEmailRepo) ListByStatus(_ context.Context, status string, limit, offset uint) ([]domain.EmailMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.EmailMessage
	for _, email := range r.emails {
		if string(email.Status) == status {
			result = append(result, *email)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if uint(len(result)) <= offset {
		return nil, nil
	}
	result = result[offset:]
	if uint(len(result)) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeEmailRepo) get(id uuid.UUID) domain.EmailMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.emails[id]
}

func (r *fakeEmailRepo) put(email domain.EmailMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := email
	r.emails[email.ID] = &stored
}

type fakeTemplateRepo struct {
	templates map[string]domain.EmailTemplate
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id uuid.UUID) (domain.EmailTemplate, error) {
	for _, tmpl := range r.templates {
		if tmpl.ID == id {
			return tmpl, nil
		}
	}
	return domain.EmailTemplate{}, domain.ErrTemplateNotFound
}

func (r *fakeTemplateRepo) GetActiveByName(_ context.Context, name string) (domain.EmailTemplate, error) {
	tmpl, ok := r.templates[name]
	if !ok || !tmpl.IsActive {
		return domain.EmailTemplate{}, domain.ErrTemplateNotFound
	}
	return tmpl, nil
}

type fakeSender struct {
	mu       sync.Mutex
	sent     []domain.RenderedEmail
	failures int
	connErr  error
}

func (s *fakeSender) Send(_ context.Context, email domain.RenderedEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--
		return errors.New("smtp: 451 temporary failure")
	}
	s.sent = append(s.sent, email)
	return nil
}

func (s *fakeSender) TestConnection(_ context.Context) error {
	return s.connErr
}

func (s *fakeSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeLockCache struct {
	mu         sync.Mutex
	locks      map[string]bool
	data       map[string]string
	acquireErr error
}

func newFakeLockCache() *fakeLockCache {
	return &fakeLockCache{locks: map[string]bool{}, data: map[string]string{}}
}

func (c *fakeLockCache) AcquireLock(_ context.Context, lockKey string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.acquireErr != nil {
		return false, c.acquireErr
	}
	if c.locks[lockKey] {
		return false, nil
	}
	c.locks[lockKey] = true
	return true, nil
}

func (c *fakeLockCache) ReleaseLock(_ context.Context, lockKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.locks, lockKey)
	return nil
}

func (c *fakeLockCache) AcquireLockAndSet(ctx context.Context, lockKey, dataKey, value string, _, lockTimeout time.Duration) (bool, error) {
	acquired, err := c.AcquireLock(ctx, lockKey, lockTimeout)
	if err != nil || !acquired {
		return false, err
	}
	defer c.ReleaseLock(ctx, lockKey) //nolint:errcheck

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[dataKey] = value
	return true, nil
}

func (c *fakeLockCache) holdLock(lockKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locks[lockKey] = true
}
