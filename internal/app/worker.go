package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nourx/mailer/internal/domain"
)

type WorkerConfig struct {
	ProcessInterval time.Duration
	CleanupInterval time.Duration
	BatchSize       uint
	RetentionDays   int
}

// Worker drives periodic outbox processing without external scheduling
// infrastructure: one scheduler for delivery batches, a second, much slower
// one for retention cleanup.
type Worker struct {
	service *EmailService
	sender  domain.Sender
	cfg     WorkerConfig
	logger  *slog.Logger

	processScheduler *Scheduler
	cleanupScheduler *Scheduler

	mu      sync.RWMutex
	running bool
}

func NewWorker(service *EmailService, sender domain.Sender, cfg WorkerConfig, logger *slog.Logger) *Worker {
	w := &Worker{
		service: service,
		sender:  sender,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "email_worker")),
	}

	w.processScheduler = NewScheduler(cfg.ProcessInterval, w.processBatches, logger)
	w.cleanupScheduler = NewScheduler(cfg.CleanupInterval, w.runCleanup, logger)

	return w
}

// Start verifies the mail transport before arming anything: a worker that
// cannot deliver must fail at boot, not queue silently. The first batch runs
// immediately, then both schedulers take over.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	if err := w.sender.TestConnection(ctx); err != nil {
		return fmt.Errorf("mail transport self-test failed: %w", err)
	}

	w.processScheduler.Start()
	w.cleanupScheduler.Start()
	w.running = true

	w.logger.Info("email worker started",
		"process_interval", w.cfg.ProcessInterval,
		"cleanup_interval", w.cfg.CleanupInterval,
		"batch_size", w.cfg.BatchSize)

	return nil
}

// Stop disarms both schedulers and waits for any in-flight tick to finish.
// A row mid-send is never interrupted.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}

	w.processScheduler.Stop()
	w.cleanupScheduler.Stop()
	w.running = false

	w.logger.Info("email worker stopped")
}

func (w *Worker) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

type WorkerStats struct {
	Running           bool              `json:"running"`
	ProcessIntervalMS int64             `json:"processIntervalMs"`
	CleanupIntervalMS int64             `json:"cleanupIntervalMs"`
	BatchSize         uint              `json:"batchSize"`
	MaxRetries        int               `json:"maxRetries"`
	Emails            domain.EmailStats `json:"emails"`
}

func (w *Worker) Stats(ctx context.Context, since time.Time) (WorkerStats, error) {
	stats, err := w.service.GetEmailStats(ctx, since)
	if err != nil {
		return WorkerStats{}, err
	}

	return WorkerStats{
		Running:           w.IsRunning(),
		ProcessIntervalMS: w.cfg.ProcessInterval.Milliseconds(),
		CleanupIntervalMS: w.cfg.CleanupInterval.Milliseconds(),
		BatchSize:         w.cfg.BatchSize,
		MaxRetries:        w.service.MaxRetries(),
		Emails:            stats,
	}, nil
}

// processBatches is one tick: a batch of fresh pending rows, then a batch of
// retryable rows, strictly one row at a time. Both batches are fetched up
// front so a row that fails in the pending batch is not retried again within
// the same tick.
func (w *Worker) processBatches(ctx context.Context) error {
	pending, err := w.service.GetPendingEmails(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetching pending batch: %w", err)
	}

	retryable, err := w.service.GetRetryableEmails(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("fetching retryable batch: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(pending))
	for _, email := range pending {
		seen[email.ID] = struct{}{}
	}

	processed := w.processBatch(ctx, pending)

	for _, email := range retryable {
		if _, ok := seen[email.ID]; ok {
			continue
		}
		if w.processOne(ctx, email.ID) {
			processed++
		}
	}

	if len(pending)+len(retryable) > 0 {
		w.logger.Info("tick complete",
			"pending", len(pending),
			"retryable", len(retryable),
			"delivered", processed)
	}
	return nil
}

func (w *Worker) processBatch(ctx context.Context, batch []domain.EmailMessage) int {
	delivered := 0
	for _, email := range batch {
		if w.processOne(ctx, email.ID) {
			delivered++
		}
	}
	return delivered
}

func (w *Worker) processOne(ctx context.Context, id uuid.UUID) bool {
	sent, err := w.service.ProcessQueuedEmail(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrEmailAlreadySent) {
			return false
		}
		w.logger.Error("error processing email", "email_id", id, "error", err)
		return false
	}
	return sent
}

func (w *Worker) runCleanup(ctx context.Context) error {
	deleted, err := w.service.CleanupOldEmails(ctx, w.cfg.RetentionDays)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	w.logger.Info("cleanup pass complete", "deleted", deleted, "retention_days", w.cfg.RetentionDays)
	return nil
}
