package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/coinpulse/internal/alerts"
	"github.com/rewired-gh/coinpulse/internal/config"
	"github.com/rewired-gh/coinpulse/internal/market"
	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/stream"
)

type fakeSource struct {
	observers []stream.Observer
}

func (f *fakeSource) OnPriceUpdate(observer stream.Observer) *stream.Subscription {
	f.observers = append(f.observers, observer)
	return stream.NewSubscription(nil)
}

func (f *fakeSource) push(u models.PriceUpdate) {
	for _, o := range f.observers {
		o(u)
	}
}

func TestNormalizeCoin(t *testing.T) {
	if got := normalizeCoin("  btc "); got != "BTC" {
		t.Errorf("normalizeCoin = %q, want BTC", got)
	}
}

func TestPrintAlerts(t *testing.T) {
	var buf bytes.Buffer
	printAlerts(&buf, alerts.State{Coin: "BTC"})
	if !strings.Contains(buf.String(), "No alerts for BTC") {
		t.Errorf("empty list output = %q", buf.String())
	}

	buf.Reset()
	printAlerts(&buf, alerts.State{Coin: "BTC", Alerts: []models.Alert{
		{ID: "a1", Type: models.AlertRealTime, Condition: models.Above, Threshold: 65000, Active: true},
		{ID: "a2", Type: models.AlertPredicted, Condition: models.Below, Threshold: 1234.5},
	}})
	out := buf.String()
	for _, want := range []string{"a1", "$65,000.00", "active", "a2", "$1,234.50", "paused", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDashboardApply(t *testing.T) {
	cfg = &config.Config{Dashboard: config.DashboardConfig{Highlight: time.Second}}
	var buf bytes.Buffer
	d := &dashboard{out: &buf}
	defer d.close()

	stats := market.Stats{
		Coin:     "BTC",
		Current:  100,
		NextDay:  &market.Forecast{Price: 110, ChangeAmount: 10, ChangePercentage: 10},
		SevenDay: &market.Forecast{Price: 120, ChangeAmount: 20, ChangePercentage: 20},
	}
	d.apply(nil, stats)
	if d.current == nil || d.nextDay == nil || d.sevenDay == nil {
		t.Fatal("expected all three cards")
	}
	if n := strings.Count(buf.String(), "\n"); n != 3 {
		t.Errorf("printed %d lines, want 3", n)
	}

	stats.Current = 105
	stats.NextDay = nil
	stats.SevenDay = nil
	d.apply(nil, stats)
	if d.nextDay != nil || d.sevenDay != nil {
		t.Error("forecast cards should be dropped when the forecast disappears")
	}
	if got := d.current.State().DisplayPrice; got != 105 {
		t.Errorf("current card price = %v, want 105", got)
	}
	if d.current.State().JustUpdated {
		t.Error("a refresh must not highlight the card")
	}
}

func TestDashboardTracksLowercaseExport(t *testing.T) {
	cfg = &config.Config{Dashboard: config.DashboardConfig{Highlight: time.Second}}
	stats, err := market.Calculate(&models.CryptoData{
		Coin:            "btc",
		HistoricalPrice: []models.PricePoint{{Date: "2024-03-01", Price: 100}, {Date: "2024-03-02", Price: 105}},
	})
	if err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{}
	d := &dashboard{out: &bytes.Buffer{}}
	defer d.close()
	d.apply(src, stats)

	src.push(models.PriceUpdate{Coin: "BTC", Price: 110, Previous: 105, HasPrevious: true})
	st := d.current.State()
	if st.DisplayPrice != 110 || !st.JustUpdated {
		t.Errorf("card did not follow the tick: %+v", st)
	}
}

func TestEditDraftKeepsUnchangedFields(t *testing.T) {
	existing := models.Alert{ID: "a1", Coin: "DOGE", Type: models.AlertRealTime, Condition: models.Above, Threshold: 0.125}
	changed := func(name string) bool { return name == "condition" }

	draft := editDraft(models.AlertDraft{Condition: "below"}, existing, changed)
	if draft.Type != "real-time" || draft.Condition != "below" {
		t.Errorf("draft = %+v", draft)
	}
	spec, err := draft.Validate(false)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if spec.Threshold != 0.125 {
		t.Errorf("threshold = %v, want 0.125 unchanged", spec.Threshold)
	}
}
