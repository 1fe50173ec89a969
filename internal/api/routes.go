// Package api serves the alert backend and the exported coin data over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/market"
	"github.com/rewired-gh/coinpulse/internal/metrics"
	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/storage"
)

// AlertStore is the persistence the routes need. *storage.Storage implements it.
type AlertStore interface {
	CreateAlert(spec models.AlertSpec) (*models.Alert, error)
	GetAlert(id string) (*models.Alert, error)
	ListAlerts(coin string) ([]models.Alert, error)
	UpdateAlert(id string, spec models.AlertSpec) (*models.Alert, error)
	SetActive(id string, active bool) error
	DeleteAlert(id string) error
}

type Routes struct {
	store    AlertStore
	dataDir  string
	coins    []string
	onDelete func(id string)
}

// NewRoutes creates the handlers. If coins is empty, the coins with an export
// file in dataDir are listed instead.
func NewRoutes(store AlertStore, dataDir string, coins []string) *Routes {
	return &Routes{store: store, dataDir: dataDir, coins: coins}
}

// OnDelete registers a hook run after an alert is deleted.
func (rt *Routes) OnDelete(fn func(id string)) {
	rt.onDelete = fn
}

func (rt *Routes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("GET /api/coins", rt.listCoins)
	mux.HandleFunc("GET /api/crypto/{coin}", rt.cryptoData)
	mux.HandleFunc("GET /api/alerts", rt.listAlerts)
	mux.HandleFunc("POST /api/alerts", rt.createAlert)
	mux.HandleFunc("PUT /api/alerts/{id}", rt.editAlert)
	mux.HandleFunc("PATCH /api/alerts/{id}/active", rt.setActive)
	mux.HandleFunc("DELETE /api/alerts/{id}", rt.deleteAlert)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the full instrumented handler.
func (rt *Routes) Handler() http.Handler {
	mux := http.NewServeMux()
	rt.Register(mux)
	return metrics.Middleware(mux)
}

func (rt *Routes) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Routes) listCoins(w http.ResponseWriter, _ *http.Request) {
	if len(rt.coins) > 0 {
		writeJSON(w, http.StatusOK, rt.coins)
		return
	}
	coins, err := market.ExportedCoins(rt.dataDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list coins")
		return
	}
	writeJSON(w, http.StatusOK, coins)
}

func (rt *Routes) cryptoData(w http.ResponseWriter, r *http.Request) {
	data, err := market.LoadExport(rt.dataDir, r.PathValue("coin"))
	if errors.Is(err, market.ErrDataUnavailable) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		logger.Error("[api] failed to load export: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (rt *Routes) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := rt.store.ListAlerts(r.URL.Query().Get("coin"))
	if err != nil {
		rt.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

type alertBody struct {
	Coin      string   `json:"coin"`
	Type      string   `json:"type"`
	Condition string   `json:"condition"`
	Threshold *float64 `json:"threshold"`
}

func (b alertBody) draft() models.AlertDraft {
	d := models.AlertDraft{Coin: b.Coin, Type: b.Type, Condition: b.Condition}
	if b.Threshold != nil {
		d.Threshold = strconv.FormatFloat(*b.Threshold, 'f', -1, 64)
	}
	return d
}

func (rt *Routes) createAlert(w http.ResponseWriter, r *http.Request) {
	var body alertBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	spec, err := body.draft().Validate(true)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := rt.store.CreateAlert(spec)
	if err != nil {
		rt.storeError(w, err)
		return
	}
	logger.Info("[api] created alert %s for %s", alert.ID, alert.Coin)
	writeJSON(w, http.StatusCreated, alert)
}

func (rt *Routes) editAlert(w http.ResponseWriter, r *http.Request) {
	var body alertBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	spec, err := body.draft().Validate(false)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	alert, err := rt.store.UpdateAlert(r.PathValue("id"), spec)
	if err != nil {
		rt.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (rt *Routes) setActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"active\": true|false}")
		return
	}
	if err := rt.store.SetActive(r.PathValue("id"), *body.Active); err != nil {
		rt.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Routes) deleteAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := rt.store.DeleteAlert(id); err != nil {
		rt.storeError(w, err)
		return
	}
	if rt.onDelete != nil {
		rt.onDelete(id)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Routes) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	logger.Error("[api] storage failure: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": strings.TrimSpace(msg)})
}
