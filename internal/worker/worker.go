package worker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"stockpoint/internal/config"
	"stockpoint/internal/fulfillment"
	"stockpoint/internal/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// OrderEvent is the inbound order lifecycle message the worker consumes.
type OrderEvent struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	OrderID   int64     `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventOrderReduceStock  = "order.reduce_stock"
	EventOrderRestoreStock = "order.restore_stock"
)

type Worker struct {
	config *config.Config
	logger *logger.Logger
	reader *kafka.Reader
	hooks  *fulfillment.Hooks
}

func New(cfg *config.Config, logger *logger.Logger, hooks *fulfillment.Hooks) *Worker {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(cfg.KafkaBrokers, ","),
		GroupID:        "stockpoint-worker",
		Topic:          cfg.OrderTopic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
	})

	return &Worker{
		config: cfg,
		logger: logger,
		reader: reader,
		hooks:  hooks,
	}
}

func (w *Worker) Start() {
	w.logger.Info("Worker started, listening for order events...")

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		message, err := w.reader.ReadMessage(ctx)
		cancel()

		if err != nil {
			if err == context.DeadlineExceeded {
				continue
			}
			w.logger.Error("Failed to read message", zap.Error(err))
			continue
		}

		var event OrderEvent
		if err := json.Unmarshal(message.Value, &event); err != nil {
			w.logger.Error("Failed to parse order event", zap.Error(err))
			continue
		}

		if err := w.process(event); err != nil {
			w.logger.Error("Failed to process order event",
				zap.String("event_id", event.EventID),
				zap.String("type", event.Type),
				zap.Int64("order_id", event.OrderID),
				zap.Error(err),
			)
		}
	}
}

func (w *Worker) process(event OrderEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch event.Type {
	case EventOrderReduceStock:
		return w.hooks.ReduceStock(ctx, event.OrderID)
	case EventOrderRestoreStock:
		return w.hooks.RestoreStock(ctx, event.OrderID)
	default:
		w.logger.Debug("Ignoring event", zap.String("type", event.Type))
		return nil
	}
}

func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.reader.Close()
}
