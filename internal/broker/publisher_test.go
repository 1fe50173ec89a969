package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rewired-gh/coinpulse/internal/models"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestPublisherNotify(t *testing.T) {
	w := &captureWriter{}
	p := NewPublisher(w)
	at := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	err := p.Notify(context.Background(), []models.Trigger{
		{Alert: models.Alert{ID: "a1", Coin: "BTC", Type: models.AlertRealTime, Condition: models.Above, Threshold: 100}, Price: 101, Source: models.SourceTick, At: at},
		{Alert: models.Alert{ID: "a2", Coin: "ETH", Type: models.AlertPredicted, Condition: models.Below, Threshold: 5}, Price: 4, Source: models.SourceForecast, At: at},
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if len(w.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "BTC" {
		t.Errorf("key = %q", w.msgs[0].Key)
	}

	var ev Event
	if err := json.Unmarshal(w.msgs[1].Value, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.AlertID != "a2" || ev.Source != models.SourceForecast || ev.Price != 4 || !ev.Timestamp.Equal(at) {
		t.Errorf("event = %+v", ev)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Error("Close not forwarded")
	}
}

func TestPublisherNotifyErrors(t *testing.T) {
	w := &captureWriter{err: errors.New("leader not available")}
	p := NewPublisher(w)
	if err := p.Notify(context.Background(), nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
	err := p.Notify(context.Background(), []models.Trigger{{Alert: models.Alert{ID: "a1", Coin: "BTC"}}})
	if !errors.Is(err, w.err) {
		t.Errorf("error = %v, want wrapped writer error", err)
	}
}
