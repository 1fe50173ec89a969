package stream

import (
	"sync"

	"github.com/rewired-gh/coinpulse/internal/metrics"
)

// Subscription is the handle returned for a registered observer.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel function in a handle whose Close runs it once.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Close unregisters the observer. Safe to call more than once.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Manager shares one Client between consumers. The connection is opened by the
// first Acquire and torn down only when the last Lease is released.
type Manager struct {
	client *Client

	mu     sync.Mutex
	leases int
}

func NewManager(client *Client) *Manager {
	return &Manager{client: client}
}

// Acquire registers a consumer and connects if it is the first.
func (m *Manager) Acquire() *Lease {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases++
	metrics.StreamLeases.Set(float64(m.leases))
	if m.leases == 1 {
		m.client.Connect()
	}
	return &Lease{manager: m}
}

// Leases returns the number of unreleased leases.
func (m *Manager) Leases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leases
}

// Client exposes the shared client for status checks.
func (m *Manager) Client() *Client {
	return m.client
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leases == 0 {
		return
	}
	m.leases--
	metrics.StreamLeases.Set(float64(m.leases))
	if m.leases == 0 {
		m.client.Disconnect()
	}
}

// Lease is one consumer's hold on the shared connection. Subscriptions made
// through a lease are closed when it is released.
type Lease struct {
	manager *Manager

	mu       sync.Mutex
	subs     []*Subscription
	released bool
}

// OnPriceUpdate registers an observer bound to the lease's lifetime.
// After Release it returns an inert subscription.
func (l *Lease) OnPriceUpdate(observer Observer) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return NewSubscription(nil)
	}
	sub := l.manager.client.OnPriceUpdate(observer)
	l.subs = append(l.subs, sub)
	return sub
}

// Release closes the lease's subscriptions and gives up its hold on the connection.
// It may be called from one of the lease's own observers.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	l.manager.release()
}
