package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/storage"
)

type fakeStore struct {
	alerts    []models.Alert
	triggered map[string]time.Time
	listErr   error
}

func (f *fakeStore) ListActive(coin string, typ models.AlertType) ([]models.Alert, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Alert
	for _, a := range f.alerts {
		if a.Active && a.Coin == coin && a.Type == typ {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkTriggered(id string, at time.Time) error {
	if f.triggered == nil {
		f.triggered = make(map[string]time.Time)
	}
	f.triggered[id] = at
	return nil
}

type recordingNotifier struct {
	batches [][]models.Trigger
	err     error
}

func (r *recordingNotifier) Notify(ctx context.Context, triggers []models.Trigger) error {
	r.batches = append(r.batches, triggers)
	return r.err
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(alerts []models.Alert, cooldown time.Duration) (*Monitor, *fakeStore, *recordingNotifier, *fakeClock) {
	store := &fakeStore{alerts: alerts}
	notifier := &recordingNotifier{}
	clock := &fakeClock{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	m := New(store, notifier, Config{Cooldown: cooldown})
	m.now = clock.now
	return m, store, notifier, clock
}

func realTime(id string, cond models.Condition, threshold float64) models.Alert {
	return models.Alert{ID: id, Coin: "BTC", Type: models.AlertRealTime, Condition: cond, Threshold: threshold, Active: true}
}

func TestProcessTick_EdgeTriggered(t *testing.T) {
	m, store, notifier, _ := newTestMonitor([]models.Alert{realTime("a1", models.Above, 100)}, 0)
	ctx := context.Background()

	prices := []float64{95, 101, 105, 100, 102}
	wantFire := []bool{false, true, false, false, true}
	for i, p := range prices {
		got := m.ProcessTick(ctx, "btc", p)
		if fired := len(got) == 1; fired != wantFire[i] {
			t.Errorf("tick %v: fired = %v, want %v", p, fired, wantFire[i])
		}
	}
	if len(notifier.batches) != 2 {
		t.Errorf("notifier called %d times, want 2", len(notifier.batches))
	}
	if _, ok := store.triggered["a1"]; !ok {
		t.Error("trigger not recorded in store")
	}
	if tr := notifier.batches[0][0]; tr.Price != 101 || tr.Source != models.SourceTick {
		t.Errorf("first trigger = %+v", tr)
	}
}

func TestProcessTick_FirstEvaluationFiresWhenAlreadyTrue(t *testing.T) {
	m, _, _, _ := newTestMonitor([]models.Alert{realTime("a1", models.Below, 100)}, 0)
	if got := m.ProcessTick(context.Background(), "BTC", 90); len(got) != 1 {
		t.Errorf("got %d triggers, want 1", len(got))
	}
}

func TestProcessTick_Cooldown(t *testing.T) {
	m, _, _, clock := newTestMonitor([]models.Alert{realTime("a1", models.Above, 100)}, time.Minute)
	ctx := context.Background()

	m.ProcessTick(ctx, "BTC", 101)
	m.ProcessTick(ctx, "BTC", 99)
	clock.advance(30 * time.Second)
	if got := m.ProcessTick(ctx, "BTC", 101); len(got) != 0 {
		t.Error("re-cross inside cooldown should be suppressed")
	}
	m.ProcessTick(ctx, "BTC", 99)
	clock.advance(time.Minute)
	if got := m.ProcessTick(ctx, "BTC", 101); len(got) != 1 {
		t.Error("re-cross after cooldown should fire")
	}
}

func TestProcessTick_EditRearms(t *testing.T) {
	alerts := []models.Alert{realTime("a1", models.Above, 100)}
	m, store, _, _ := newTestMonitor(alerts, 0)
	ctx := context.Background()

	m.ProcessTick(ctx, "BTC", 150)
	store.alerts[0].Threshold = 120
	if got := m.ProcessTick(ctx, "BTC", 151); len(got) != 1 {
		t.Error("edited alert should be evaluated afresh")
	}
}

func TestProcessTick_IgnoresOtherTypesAndCoins(t *testing.T) {
	alerts := []models.Alert{
		{ID: "p1", Coin: "BTC", Type: models.AlertPredicted, Condition: models.Above, Threshold: 1, Active: true},
		{ID: "e1", Coin: "ETH", Type: models.AlertRealTime, Condition: models.Above, Threshold: 1, Active: true},
		{ID: "off", Coin: "BTC", Type: models.AlertRealTime, Condition: models.Above, Threshold: 1, Active: false},
	}
	m, _, notifier, _ := newTestMonitor(alerts, 0)
	if got := m.ProcessTick(context.Background(), "BTC", 1000); len(got) != 0 {
		t.Errorf("unexpected triggers: %+v", got)
	}
	if len(notifier.batches) != 0 {
		t.Error("notifier should not be called without triggers")
	}

	got := m.ProcessForecast(context.Background(), "BTC", 1000)
	if len(got) != 1 || got[0].Alert.ID != "p1" || got[0].Source != models.SourceForecast {
		t.Errorf("forecast triggers = %+v", got)
	}
}

func TestProcessTick_StoreErrorIsSwallowed(t *testing.T) {
	m, store, notifier, _ := newTestMonitor([]models.Alert{realTime("a1", models.Above, 1)}, 0)
	store.listErr = errors.New("db locked")
	if got := m.ProcessTick(context.Background(), "BTC", 10); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
	if len(notifier.batches) != 0 {
		t.Error("nothing should be dispatched")
	}
}

func TestNotifiers_JoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("telegram down")}
	ns := Notifiers{bad, ok}

	err := ns.Notify(context.Background(), []models.Trigger{{Price: 1}})
	if err == nil || err.Error() != "telegram down" {
		t.Errorf("err = %v", err)
	}
	if len(ok.batches) != 1 {
		t.Error("healthy notifier skipped after a failure")
	}
}

func TestMonitor_WithSQLiteStore(t *testing.T) {
	s, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer s.Close()

	a, err := s.CreateAlert(models.AlertSpec{Coin: "ETH", Type: models.AlertRealTime, Condition: models.Below, Threshold: 3000})
	if err != nil {
		t.Fatal(err)
	}
	m := New(s, nil, DefaultConfig())
	if got := m.ProcessTick(context.Background(), "eth", 2999.5); len(got) != 1 {
		t.Fatalf("got %d triggers, want 1", len(got))
	}
	stored, _ := s.GetAlert(a.ID)
	if stored.LastTriggeredAt == nil {
		t.Error("last_triggered_at not set")
	}
}
