// Package alerts talks to the alert backend and keeps a per-coin alert list
// with the optimistic and non-optimistic update rules the UI relies on.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rewired-gh/coinpulse/internal/metrics"
	"github.com/rewired-gh/coinpulse/internal/models"
)

// API is the backend surface the Registry needs. *Client implements it.
type API interface {
	List(ctx context.Context, coin string) ([]models.Alert, error)
	Create(ctx context.Context, draft models.AlertDraft) (*models.Alert, error)
	ToggleActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	Edit(ctx context.Context, id string, draft models.AlertDraft) (*models.Alert, error)
}

// Client is an HTTP client for the alert backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client. A zero timeout leaves the transport default in place.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type alertRequest struct {
	Coin      string           `json:"coin,omitempty"`
	Type      models.AlertType `json:"type"`
	Condition models.Condition `json:"condition"`
	Threshold float64          `json:"threshold"`
}

// List fetches every alert for coin.
func (c *Client) List(ctx context.Context, coin string) ([]models.Alert, error) {
	var alerts []models.Alert
	path := "/api/alerts?coin=" + url.QueryEscape(strings.ToUpper(coin))
	if err := c.do(ctx, "list", http.MethodGet, path, nil, &alerts); err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	return alerts, nil
}

// Create validates the draft locally and submits it only if it is well formed.
func (c *Client) Create(ctx context.Context, draft models.AlertDraft) (*models.Alert, error) {
	spec, err := draft.Validate(true)
	if err != nil {
		verr := &Error{Op: "create", Kind: KindValidation, Err: err}
		record("create", verr)
		return nil, verr
	}
	req := alertRequest{Coin: spec.Coin, Type: spec.Type, Condition: spec.Condition, Threshold: spec.Threshold}
	var alert models.Alert
	if err := c.do(ctx, "create", http.MethodPost, "/api/alerts", req, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

// ToggleActive sets an alert's active flag.
func (c *Client) ToggleActive(ctx context.Context, id string, active bool) error {
	body := struct {
		Active bool `json:"active"`
	}{active}
	return c.do(ctx, "toggle", http.MethodPatch, "/api/alerts/"+url.PathEscape(id)+"/active", body, nil)
}

// Delete removes an alert.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete", http.MethodDelete, "/api/alerts/"+url.PathEscape(id), nil, nil)
}

// Edit replaces type, condition and threshold of an alert.
func (c *Client) Edit(ctx context.Context, id string, draft models.AlertDraft) (*models.Alert, error) {
	spec, err := draft.Validate(false)
	if err != nil {
		verr := &Error{Op: "edit", Kind: KindValidation, Err: err}
		record("edit", verr)
		return nil, verr
	}
	req := alertRequest{Type: spec.Type, Condition: spec.Condition, Threshold: spec.Threshold}
	var alert models.Alert
	if err := c.do(ctx, "edit", http.MethodPut, "/api/alerts/"+url.PathEscape(id), req, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) (err error) {
	defer func() { record(op, err) }()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &Error{Op: op, Kind: KindValidation, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &Error{Op: op, Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Err: errors.New(readMessage(resp.Body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Kind: KindNetwork, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// readMessage pulls the backend's {"error": "..."} body, falling back to raw text.
func readMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return "request failed"
}

func record(op string, err error) {
	result := "ok"
	if kind, failed := KindOf(err); failed {
		result = strings.ReplaceAll(kind.String(), " ", "_")
	}
	metrics.AlertOperations.WithLabelValues(op, result).Inc()
}
