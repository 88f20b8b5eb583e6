package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/imaginify/internal/checkout"
	"github.com/illegalcall/imaginify/internal/config"
	"github.com/illegalcall/imaginify/internal/models"
)

// Finalizer records a confirmed payment and grants its credits.
type Finalizer interface {
	FinalizeTransaction(ctx context.Context, t models.Transaction) (*models.Transaction, error)
}

type Worker struct {
	cfg       *config.Config
	finalizer Finalizer
	redis     *redis.Client
	consumer  sarama.ConsumerGroup
	ready     chan struct{}
	readyOnce sync.Once
	logger    *slog.Logger

	notifySignals func(chan<- os.Signal)
}

func NewWorker(cfg *config.Config, finalizer Finalizer, redisClient *redis.Client, consumer sarama.ConsumerGroup, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Initializing payment worker")
	return &Worker{
		cfg:           cfg,
		finalizer:     finalizer,
		redis:         redisClient,
		consumer:      consumer,
		ready:         make(chan struct{}),
		logger:        logger,
		notifySignals: notifyShutdown,
	}
}

func notifyShutdown(c chan<- os.Signal) {
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
}

// Start consumes payment confirmations until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	topics := []string{w.cfg.Kafka.Topic}
	w.logger.Info("Starting worker", "topics", topics, "group", w.cfg.Kafka.Group)

	sigChan := make(chan os.Signal, 1)
	w.notifySignals(sigChan)
	defer signal.Stop(sigChan)

	go func() {
		for err := range w.consumer.Errors() {
			w.logger.Error("Kafka consumer error received", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := w.consumer.Consume(ctx, topics, w); err != nil {
				w.logger.Error("Error from consumer.Consume", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
			// rebalance: Consume returns and a new session begins
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.Kafka.RetryBackoff):
			}
		}
	}()

	stopping := false
	select {
	case <-w.ready:
		w.logger.Info("🚀 Worker ready; consuming payment confirmations")
	case sig := <-sigChan:
		w.logger.Info("Received shutdown signal before first session", "signal", sig)
		stopping = true
	case <-ctx.Done():
	}

	if !stopping {
		select {
		case sig := <-sigChan:
			w.logger.Info("Received shutdown signal", "signal", sig)
		case <-ctx.Done():
			w.logger.Info("Context cancelled; shutting down worker")
		}
	}

	cancel()
	<-done
	w.logger.Info("🛑 Worker stopped")
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (w *Worker) Setup(sarama.ConsumerGroupSession) error {
	w.readyOnce.Do(func() { close(w.ready) })
	return nil
}

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (w *Worker) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages one at a time. A message is marked once it
// is finalized or can never succeed; a transient failure ends the claim
// unmarked so the group redelivers it from the last committed offset.
func (w *Worker) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := w.processMessage(session.Context(), message); err != nil {
			if retryable(err) {
				w.logger.Warn("Payment confirmation left for redelivery", "offset", message.Offset, "partition", message.Partition, "error", err)
				return err
			}
			w.logger.Error("Dropping payment confirmation", "offset", message.Offset, "partition", message.Partition, "error", err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

func (w *Worker) processMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var event models.PaymentCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("%w: failed to parse payment event: %w", models.ErrInvalidInput, err)
	}
	if event.SessionID == "" {
		return fmt.Errorf("%w: payment event without session id", models.ErrInvalidInput)
	}

	err := w.finalizeWithRetry(ctx, event)
	switch {
	case err == nil:
		w.setStatus(ctx, event.SessionID, models.PaymentCompleted)
	case !retryable(err):
		w.setStatus(ctx, event.SessionID, models.PaymentFailed)
	}
	// transient failures keep the pending status until redelivery settles it
	return err
}

func (w *Worker) finalizeWithRetry(ctx context.Context, event models.PaymentCompletedEvent) error {
	tx := checkout.TransactionFromEvent(event)
	attempts := w.cfg.Kafka.RetryMax
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err = w.finalizer.FinalizeTransaction(ctx, tx)
		switch {
		case err == nil:
			w.logger.Info("Payment finalized", "sessionID", event.SessionID, "attempt", attempt)
			return nil
		case errors.Is(err, models.ErrAlreadyFinalized):
			w.logger.Info("Payment was already finalized", "sessionID", event.SessionID)
			return nil
		case !retryable(err):
			return err
		}

		w.logger.Warn("Finalize attempt failed", "sessionID", event.SessionID, "attempt", attempt, "error", err)
		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.Kafka.RetryBackoff):
			}
		}
	}
	return err
}

// retryable reports whether a later attempt could succeed.
func retryable(err error) bool {
	return !errors.Is(err, models.ErrNotFound) && !errors.Is(err, models.ErrInvalidInput)
}

func (w *Worker) setStatus(ctx context.Context, sessionID, status string) {
	if err := w.redis.Set(ctx, models.PaymentStatusKey(sessionID), status, w.cfg.Redis.StatusTTL).Err(); err != nil {
		w.logger.Error("Failed to update payment status", "sessionID", sessionID, "status", status, "error", err)
	}
}
