package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/rewired-gh/coinpulse/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	// deterministic, strictly increasing timestamps
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}
	return s
}

func spec(coin string, typ models.AlertType, cond models.Condition, threshold float64) models.AlertSpec {
	return models.AlertSpec{Coin: coin, Type: typ, Condition: cond, Threshold: threshold}
}

func TestStorage_CreateAndGetAlert(t *testing.T) {
	s := newTestStorage(t)
	a, err := s.CreateAlert(spec("btc", models.AlertRealTime, models.Above, 70000))
	if err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	if a.ID == "" || a.Coin != "BTC" || !a.Active {
		t.Errorf("created alert = %+v", a)
	}

	got, err := s.GetAlert(a.ID)
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Threshold != 70000 || got.Type != models.AlertRealTime || got.Condition != models.Above {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(a.CreatedAt) || got.LastTriggeredAt != nil {
		t.Errorf("timestamps not round-tripped: %+v", got)
	}
}

func TestStorage_NotFound(t *testing.T) {
	s := newTestStorage(t)
	checks := map[string]error{}
	_, checks["get"] = s.GetAlert("missing")
	_, checks["update"] = s.UpdateAlert("missing", spec("", models.AlertPredicted, models.Below, 1))
	checks["active"] = s.SetActive("missing", false)
	checks["delete"] = s.DeleteAlert("missing")
	checks["triggered"] = s.MarkTriggered("missing", time.Now())
	for op, err := range checks {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: error = %v, want ErrNotFound", op, err)
		}
	}
}

func TestStorage_ListAlertsByCoin(t *testing.T) {
	s := newTestStorage(t)
	first, _ := s.CreateAlert(spec("BTC", models.AlertRealTime, models.Above, 1))
	_, _ = s.CreateAlert(spec("ETH", models.AlertRealTime, models.Above, 2))
	second, _ := s.CreateAlert(spec("BTC", models.AlertPredicted, models.Below, 3))

	btc, err := s.ListAlerts("btc")
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if len(btc) != 2 || btc[0].ID != first.ID || btc[1].ID != second.ID {
		t.Errorf("btc alerts = %+v", btc)
	}
	all, _ := s.ListAlerts("")
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
	none, _ := s.ListAlerts("DOGE")
	if none == nil || len(none) != 0 {
		t.Errorf("unknown coin should give an empty, non-nil list: %#v", none)
	}
}

func TestStorage_UpdateToggleDelete(t *testing.T) {
	s := newTestStorage(t)
	a, _ := s.CreateAlert(spec("BTC", models.AlertRealTime, models.Above, 100))

	updated, err := s.UpdateAlert(a.ID, spec("ETH", models.AlertPredicted, models.Below, 50.5))
	if err != nil {
		t.Fatalf("UpdateAlert: %v", err)
	}
	if updated.Coin != "BTC" || updated.Type != models.AlertPredicted || updated.Threshold != 50.5 {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.UpdatedAt.After(a.UpdatedAt) {
		t.Error("updated_at not advanced")
	}

	if err := s.SetActive(a.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if got, _ := s.GetAlert(a.ID); got.Active {
		t.Error("alert still active")
	}

	if err := s.DeleteAlert(a.ID); err != nil {
		t.Fatalf("DeleteAlert: %v", err)
	}
	if _, err := s.GetAlert(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted alert still readable: %v", err)
	}
}

func TestStorage_ListActiveAndMarkTriggered(t *testing.T) {
	s := newTestStorage(t)
	rt, _ := s.CreateAlert(spec("BTC", models.AlertRealTime, models.Above, 1))
	off, _ := s.CreateAlert(spec("BTC", models.AlertRealTime, models.Below, 2))
	_, _ = s.CreateAlert(spec("BTC", models.AlertPredicted, models.Above, 3))
	_, _ = s.CreateAlert(spec("ETH", models.AlertRealTime, models.Above, 4))
	_ = s.SetActive(off.ID, false)

	active, err := s.ListActive("BTC", models.AlertRealTime)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 || active[0].ID != rt.ID {
		t.Errorf("active = %+v", active)
	}
	if every, _ := s.ListActive("", models.AlertRealTime); len(every) != 2 {
		t.Errorf("active across coins = %d, want 2", len(every))
	}

	at := time.Date(2024, 3, 2, 8, 30, 0, 0, time.UTC)
	if err := s.MarkTriggered(rt.ID, at); err != nil {
		t.Fatalf("MarkTriggered: %v", err)
	}
	got, _ := s.GetAlert(rt.ID)
	if got.LastTriggeredAt == nil || !got.LastTriggeredAt.Equal(at) {
		t.Errorf("last_triggered_at = %v", got.LastTriggeredAt)
	}
}
