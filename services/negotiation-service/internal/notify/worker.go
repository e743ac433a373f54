package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/apptnegotiate/libs/db"
	otelx "github.com/md-rashed-zaman/apptnegotiate/libs/otel"
	"github.com/md-rashed-zaman/apptnegotiate/services/negotiation-service/internal/outbox"
)

// Worker drains the outbox directly when no Kafka brokers are configured, so
// single-node deployments still deliver notifications in-process. Intents are
// marked published whether or not delivery succeeded: they are attempted once
// and dropped, never retried.
type Worker struct {
	pool       *db.Pool
	repo       *outbox.Repository
	dispatcher *Dispatcher
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
}

func NewWorker(pool *db.Pool, repo *outbox.Repository, dispatcher *Dispatcher, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				w.logger.Error("notification drain failed", "err", err)
			}
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := w.repo.FetchUnpublished(ctx, tx, w.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return tx.Commit(ctx)
	}

	var ids []int64
	for _, rcd := range records {
		intentCtx := otelx.ContextWithTraceContext(ctx, rcd.Traceparent, rcd.Tracestate)
		w.dispatcher.Handle(intentCtx, rcd.EventType, rcd.Payload)
		ids = append(ids, rcd.ID)
	}

	if err := w.repo.MarkPublished(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
