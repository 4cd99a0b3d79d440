package messaging

import (
	"context"
	"database/sql"
	"log"
	"time"

	"janasamparka/internal/metrics"
	"janasamparka/internal/repository"

	"github.com/google/uuid"
)

const (
	workerInterval     = 1 * time.Second
	batchSize          = 50
	cleanupInterval    = 1 * time.Hour
	publishedRetention = 24 * time.Hour
)

// Publisher is the broker side of the outbox.
type Publisher interface {
	Publish(ctx context.Context, messageID, routingKey string, body []byte) error
}

// OutboxStore is implemented by *repository.OutboxRepository.
type OutboxStore interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]repository.OutboxMessage, error)
	MarkAsPublished(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
	MarkAsFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, errMsg string) error
	DeletePublished(ctx context.Context, olderThan time.Duration) (int64, error)
	GetStats(ctx context.Context) (map[string]int, error)
}

// OutboxWorker relays complaint events committed to the outbox table to the
// broker. Delivery is at least once; the outbox id travels as the message id
// so the consumer can drop repeats.
type OutboxWorker struct {
	outbox    OutboxStore
	publisher Publisher
}

func NewOutboxWorker(outbox OutboxStore, publisher Publisher) *OutboxWorker {
	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
	}
}

// Run publishes pending messages until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) error {
	log.Println("outbox: started")
	defer log.Println("outbox: stopped")

	ticker := time.NewTicker(workerInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.processPendingMessages(ctx)
		case <-cleanup.C:
			w.cleanup(ctx)
		}
	}
}

func (w *OutboxWorker) processPendingMessages(ctx context.Context) {
	tx, err := w.outbox.BeginTx(ctx)
	if err != nil {
		log.Printf("outbox: begin: %v", err)
		return
	}
	defer tx.Rollback()

	messages, err := w.outbox.ClaimPending(ctx, tx, batchSize)
	if err != nil {
		log.Printf("outbox: claim pending: %v", err)
		return
	}
	if len(messages) == 0 {
		return
	}

	for _, msg := range messages {
		if err := w.publisher.Publish(ctx, msg.ID.String(), msg.RoutingKey, msg.Payload); err != nil {
			log.Printf("outbox: publish %s: %v", msg.ID, err)
			metrics.OutboxPublished.WithLabelValues(metrics.ResultError).Inc()
			if err := w.outbox.MarkAsFailed(ctx, tx, msg.ID, err.Error()); err != nil {
				log.Printf("outbox: mark failed %s: %v", msg.ID, err)
			}
			continue
		}

		metrics.OutboxPublished.WithLabelValues(metrics.ResultOK).Inc()
		if err := w.outbox.MarkAsPublished(ctx, tx, msg.ID); err != nil {
			log.Printf("outbox: mark published %s: %v", msg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("outbox: commit: %v", err)
	}
}

func (w *OutboxWorker) cleanup(ctx context.Context) {
	deleted, err := w.outbox.DeletePublished(ctx, publishedRetention)
	if err != nil {
		log.Printf("outbox: cleanup: %v", err)
	} else if deleted > 0 {
		log.Printf("outbox: cleaned %d old messages", deleted)
	}
}

func (w *OutboxWorker) GetStats(ctx context.Context) (map[string]int, error) {
	return w.outbox.GetStats(ctx)
}
