package alerts

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/models"
)

// State is the render-ready view of a coin's alert list.
type State struct {
	Coin    string
	Alerts  []models.Alert
	Loading bool
	Pending []string
	Err     error
}

// Registry caches the alert list for one coin and applies mutations with the
// following rules: toggle is optimistic with a per-alert rollback, delete only
// removes after the backend acknowledges, create and edit refetch on success.
type Registry struct {
	api  API
	coin string

	mu      sync.Mutex
	alerts  []models.Alert
	loading bool
	pending map[string]int
	lastErr error
}

func NewRegistry(api API, coin string) *Registry {
	return &Registry{
		api:     api,
		coin:    strings.ToUpper(coin),
		pending: make(map[string]int),
	}
}

// Refresh refetches the list. On failure the cached list stays as it was.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	alerts, err := r.api.List(ctx, r.coin)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loading = false
	r.lastErr = err
	if err != nil {
		logger.Warn("[alerts] failed to list alerts for %s: %v", r.coin, err)
		return err
	}
	r.alerts = alerts
	return nil
}

// Create submits a new alert for the registry's coin. The draft's coin is ignored.
func (r *Registry) Create(ctx context.Context, draft models.AlertDraft) (*models.Alert, error) {
	draft.Coin = r.coin
	alert, err := r.api.Create(ctx, draft)
	if err != nil {
		r.setErr(err)
		return nil, err
	}
	// a failed refetch keeps the stale list; the create itself succeeded
	_ = r.Refresh(ctx)
	return alert, nil
}

// Toggle flips an alert's active flag immediately and reverts that single flag
// if the backend rejects the change.
func (r *Registry) Toggle(ctx context.Context, id string) error {
	r.mu.Lock()
	idx := r.indexOf(id)
	if idx < 0 {
		r.mu.Unlock()
		return &Error{Op: "toggle", Kind: KindNotFound, Err: errUnknownAlert(id)}
	}
	prior := r.alerts[idx].Active
	r.alerts[idx].Active = !prior
	r.pending[id]++
	r.mu.Unlock()

	err := r.api.ToggleActive(ctx, id, !prior)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.done(id)
	r.lastErr = err
	if err != nil {
		if i := r.indexOf(id); i >= 0 {
			r.alerts[i].Active = prior
		}
		logger.Warn("[alerts] toggle of %s failed, reverted to active=%v: %v", id, prior, err)
		return err
	}
	return nil
}

// Delete removes the alert locally only after the backend confirms.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	r.pending[id]++
	r.mu.Unlock()

	err := r.api.Delete(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.done(id)
	r.lastErr = err
	if err != nil {
		logger.Warn("[alerts] delete of %s failed: %v", id, err)
		return err
	}
	if i := r.indexOf(id); i >= 0 {
		r.alerts = append(r.alerts[:i:i], r.alerts[i+1:]...)
	}
	return nil
}

// Edit updates an alert and reconciles by refetching the whole list.
// A failed edit leaves the cached list untouched.
func (r *Registry) Edit(ctx context.Context, id string, draft models.AlertDraft) (*models.Alert, error) {
	r.mu.Lock()
	r.pending[id]++
	r.mu.Unlock()

	alert, err := r.api.Edit(ctx, id, draft)

	r.mu.Lock()
	r.done(id)
	r.mu.Unlock()

	if err != nil {
		r.setErr(err)
		return nil, err
	}
	_ = r.Refresh(ctx)
	return alert, nil
}

// CancelEdit closes an edit without saving; the list is still refetched.
func (r *Registry) CancelEdit(ctx context.Context) error {
	return r.Refresh(ctx)
}

// Pending reports whether an operation on id is in flight.
func (r *Registry) Pending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending[id] > 0
}

// Get returns a copy of a cached alert.
func (r *Registry) Get(id string) (models.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(id); i >= 0 {
		return r.alerts[i], true
	}
	return models.Alert{}, false
}

// State returns a copy safe to hand to a renderer.
func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]string, 0, len(r.pending))
	for id := range r.pending {
		pending = append(pending, id)
	}
	sort.Strings(pending)
	return State{
		Coin:    r.coin,
		Alerts:  append([]models.Alert(nil), r.alerts...),
		Loading: r.loading,
		Pending: pending,
		Err:     r.lastErr,
	}
}

// done ends one in-flight operation on id. Callers hold r.mu.
func (r *Registry) done(id string) {
	r.pending[id]--
	if r.pending[id] <= 0 {
		delete(r.pending, id)
	}
}

func (r *Registry) setErr(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

func (r *Registry) indexOf(id string) int {
	for i := range r.alerts {
		if r.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

type errUnknownAlert string

func (e errUnknownAlert) Error() string {
	return "alert " + string(e) + " is not in the list"
}
