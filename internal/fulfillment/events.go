package fulfillment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"stockpoint/internal/logger"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// StockChangedEvent is the domain event fired after an order operation has
// touched the ledger and the aggregates have been recomputed.
type StockChangedEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	OrderID    int64     `json:"order_id"`
	LocationID int64     `json:"location_id"`
	Operation  string    `json:"operation"`
	ProductIDs []int64   `json:"product_ids"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher is the seam hooks publish through; nil-safe at call sites.
type EventPublisher interface {
	PublishStockChanged(ctx context.Context, ev StockChangedEvent) error
}

// KafkaPublisher writes stock events to the stock topic.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger *logger.Logger
}

func NewKafkaPublisher(brokers, topic string, logger *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) PublishStockChanged(ctx context.Context, ev StockChangedEvent) error {
	if ev.EventID == "" {
		ev.EventID = uuid.New().String()
	}
	if ev.Type == "" {
		ev.Type = "stock.changed"
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Type),
		Value: value,
	})
	if err != nil {
		p.logger.Error("failed to publish stock event",
			zap.String("event_id", ev.EventID),
			zap.Int64("order_id", ev.OrderID),
			zap.Error(err),
		)
	}
	return err
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
