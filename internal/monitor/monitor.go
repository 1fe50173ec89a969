// Package monitor evaluates stored price alerts against live ticks and
// forecasts and dispatches the ones that fire.
package monitor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/metrics"
	"github.com/rewired-gh/coinpulse/internal/models"
)

// Store is the slice of storage the monitor reads and writes.
type Store interface {
	ListActive(coin string, typ models.AlertType) ([]models.Alert, error)
	MarkTriggered(id string, at time.Time) error
}

type Config struct {
	// Cooldown suppresses a re-armed alert that crosses again too soon.
	Cooldown time.Duration
	// NotifyTimeout bounds a single notifier dispatch.
	NotifyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Cooldown:      5 * time.Minute,
		NotifyTimeout: 30 * time.Second,
	}
}

// armState is the last evaluation of one alert. It is reset when the alert's
// threshold or condition changes.
type armState struct {
	matched   bool
	threshold float64
	condition models.Condition
}

type Monitor struct {
	store    Store
	notifier Notifier
	config   Config
	now      func() time.Time

	mu       sync.Mutex
	states   map[string]armState
	notified map[string]time.Time
}

// New creates a monitor. notifier may be nil, in which case triggers are only
// recorded in storage.
func New(store Store, notifier Notifier, config Config) *Monitor {
	return &Monitor{
		store:    store,
		notifier: notifier,
		config:   config,
		now:      time.Now,
		states:   make(map[string]armState),
		notified: make(map[string]time.Time),
	}
}

// Observe adapts the monitor to a stream observer.
func (m *Monitor) Observe(u models.PriceUpdate) {
	m.ProcessTick(context.Background(), u.Coin, u.Price)
}

// ProcessTick evaluates the coin's active real-time alerts against a live price.
func (m *Monitor) ProcessTick(ctx context.Context, coin string, price float64) []models.Trigger {
	return m.process(ctx, coin, models.AlertRealTime, models.SourceTick, price)
}

// ProcessForecast evaluates the coin's active predicted alerts against the
// next-day forecast price.
func (m *Monitor) ProcessForecast(ctx context.Context, coin string, price float64) []models.Trigger {
	return m.process(ctx, coin, models.AlertPredicted, models.SourceForecast, price)
}

func (m *Monitor) process(ctx context.Context, coin string, typ models.AlertType, source models.TriggerSource, price float64) []models.Trigger {
	coin = strings.ToUpper(coin)
	alerts, err := m.store.ListActive(coin, typ)
	if err != nil {
		logger.Warn("[monitor] failed to load %s alerts for %s: %v", typ, coin, err)
		return nil
	}

	triggers := m.evaluate(alerts, price, source)
	if len(triggers) == 0 {
		return nil
	}

	for _, tr := range triggers {
		if err := m.store.MarkTriggered(tr.Alert.ID, tr.At); err != nil {
			logger.Warn("[monitor] failed to record trigger for %s: %v", tr.Alert.ID, err)
		}
		metrics.AlertsTriggered.WithLabelValues(coin, string(source)).Inc()
		logger.Info("[monitor] alert %s fired: %s %s %s at %.2f (threshold %.2f)",
			tr.Alert.ID, coin, tr.Alert.Type, tr.Alert.Condition, price, tr.Alert.Threshold)
	}

	m.dispatch(ctx, triggers)
	return triggers
}

// evaluate applies the edge rule: an alert fires when its condition goes from
// false to true, and re-arms once the condition is false again.
func (m *Monitor) evaluate(alerts []models.Alert, price float64, source models.TriggerSource) []models.Trigger {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var triggers []models.Trigger
	for _, a := range alerts {
		matched := a.Matches(price)
		prev, seen := m.states[a.ID]
		if seen && (prev.threshold != a.Threshold || prev.condition != a.Condition) {
			seen = false
		}
		m.states[a.ID] = armState{matched: matched, threshold: a.Threshold, condition: a.Condition}

		if !matched || (seen && prev.matched) {
			continue
		}
		if sentAt, ok := m.notified[a.ID]; ok && now.Sub(sentAt) < m.config.Cooldown {
			logger.Debug("[monitor] alert %s crossed again within cooldown", a.ID)
			continue
		}
		m.notified[a.ID] = now
		triggers = append(triggers, models.Trigger{Alert: a, Price: price, Source: source, At: now})
	}
	return triggers
}

func (m *Monitor) dispatch(ctx context.Context, triggers []models.Trigger) {
	if m.notifier == nil {
		return
	}
	if m.config.NotifyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.NotifyTimeout)
		defer cancel()
	}
	if err := m.notifier.Notify(ctx, triggers); err != nil {
		logger.Error("[monitor] failed to deliver %d trigger(s): %v", len(triggers), err)
	}
}

// Forget drops evaluation state for an alert, e.g. after it is deleted.
func (m *Monitor) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	delete(m.notified, id)
}
