// Package broker publishes fired alerts as JSON events to a Kafka topic.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rewired-gh/coinpulse/internal/models"
)

// Writer is the part of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the payload written for each fired alert.
type Event struct {
	AlertID   string               `json:"alert_id"`
	Coin      string               `json:"coin"`
	Type      models.AlertType     `json:"type"`
	Condition models.Condition     `json:"condition"`
	Threshold float64              `json:"threshold"`
	Price     float64              `json:"price"`
	Source    models.TriggerSource `json:"source"`
	Timestamp time.Time            `json:"timestamp"`
}

// Publisher sends trigger events, keyed by coin so one coin's events stay ordered.
type Publisher struct {
	writer Writer
}

// NewWriter builds a kafka writer for topic on the given brokers.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// Notify writes one message per trigger in a single batch.
func (p *Publisher) Notify(ctx context.Context, triggers []models.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(triggers))
	for _, tr := range triggers {
		value, err := json.Marshal(Event{
			AlertID:   tr.Alert.ID,
			Coin:      tr.Alert.Coin,
			Type:      tr.Alert.Type,
			Condition: tr.Alert.Condition,
			Threshold: tr.Alert.Threshold,
			Price:     tr.Price,
			Source:    tr.Source,
			Timestamp: tr.At,
		})
		if err != nil {
			return fmt.Errorf("failed to encode trigger %s: %w", tr.Alert.ID, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(tr.Alert.Coin), Value: value, Time: tr.At})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d trigger(s): %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
