package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ClockEventMessage は打刻1件をイベントバスに流す形
type ClockEventMessage struct {
	EventULID string    `json:"event_ulid"`
	UserID    int64     `json:"user_id"`
	Type      string    `json:"type"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ClockedAt time.Time `json:"clocked_at"`
}

type Publisher interface {
	PublishClockEvent(ctx context.Context, msg ClockEventMessage) error
	Close() error
}

// messageWriter は *kafka.Writer のうち使う部分
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w   messageWriter
	log *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		WriteTimeout: 5 * time.Second,
	}
	return newKafkaPublisher(w, log)
}

func newKafkaPublisher(w messageWriter, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{w: w, log: log.With(zap.String("component", "kafka-publisher"))}
}

// PublishClockEvent: key を user_id にして同一ユーザの順序を保つ
func (p *KafkaPublisher) PublishClockEvent(ctx context.Context, msg ClockEventMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal clock event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.UserID, 10)),
		Value: body,
		Time:  msg.ClockedAt,
	})
	if err != nil {
		return fmt.Errorf("write clock event: %w", err)
	}
	p.log.Debug("clock event published", zap.String("event_ulid", msg.EventULID))
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// NopPublisher: kafka.enabled=false のとき
type NopPublisher struct{}

func (NopPublisher) PublishClockEvent(context.Context, ClockEventMessage) error { return nil }
func (NopPublisher) Close() error                                              { return nil }
