// Package stream maintains the push-channel connection that delivers price ticks
// and fans deduplicated updates out to observers.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rewired-gh/coinpulse/internal/logger"
	"github.com/rewired-gh/coinpulse/internal/metrics"
	"github.com/rewired-gh/coinpulse/internal/models"
)

// Observer receives deduplicated price updates. Observers run on the connection's
// reader goroutine, one at a time, in registration order.
type Observer func(models.PriceUpdate)

// Options configures the connection and its retry policy.
type Options struct {
	URL               string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	Header            http.Header
}

// DefaultOptions mirrors the push channel's stock retry policy: 5 attempts, 1s apart.
func DefaultOptions(url string) Options {
	return Options{
		URL:               url,
		ReconnectAttempts: 5,
		ReconnectDelay:    time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
	}
}

type registration struct {
	id       uint64
	observer Observer
}

// Client owns one push-channel connection.
type Client struct {
	opts   Options
	dialer *websocket.Dialer

	mu         sync.Mutex
	observers  []registration
	nextID     uint64
	lastPrices map[string]float64
	cancel     context.CancelFunc
	done       chan struct{}
	connected  bool

	// dispatching is set while observers run on the reader goroutine
	dispatching bool
}

// NewClient creates a client. Nothing is dialed until Connect.
func NewClient(opts Options) *Client {
	if opts.ReconnectAttempts < 0 {
		opts.ReconnectAttempts = 0
	}
	return &Client{
		opts:       opts,
		dialer:     websocket.DefaultDialer,
		lastPrices: make(map[string]float64),
	}
}

// Connect starts the connection loop if it is not already running.
// Connection failures are logged and retried in the background; they are never returned.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

// Disconnect tears the connection down and forgets every last-known price.
// It waits for the reader to stop, except when called from an observer: the
// reader is then the caller itself and exits once the observer returns.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	inDispatch := c.dispatching
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		if !inDispatch {
			<-done
		}
	}

	c.mu.Lock()
	c.lastPrices = make(map[string]float64)
	c.mu.Unlock()
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// OnPriceUpdate registers an observer. Each call returns its own handle, so the
// same function registered twice is notified twice until both handles are closed.
func (c *Client) OnPriceUpdate(observer Observer) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.observers = append(c.observers, registration{id: id, observer: observer})
	return NewSubscription(func() { c.remove(id) })
}

// Remove disposes a subscription. Unknown or already closed handles are ignored.
func (c *Client) Remove(sub *Subscription) {
	if sub != nil {
		sub.Close()
	}
}

// Observers returns the number of registered observers.
func (c *Client) Observers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observers)
}

func (c *Client) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.observers {
		if r.id == id {
			c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
			return
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
	if v {
		metrics.StreamConnected.Set(1)
	} else {
		metrics.StreamConnected.Set(0)
	}
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	failures := 0
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
		if err == nil {
			failures = 0
			logger.Info("[stream] connected to %s", c.opts.URL)
			c.setConnected(true)
			err = c.readLoop(ctx, conn)
			c.setConnected(false)
		}
		if ctx.Err() != nil {
			logger.Info("[stream] disconnected from %s", c.opts.URL)
			return
		}
		logger.Warn("[stream] connection error: %v", err)

		if failures >= c.opts.ReconnectAttempts {
			logger.Error("[stream] giving up after %d reconnection attempts", failures)
			c.mu.Lock()
			if c.done == done {
				c.cancel, c.done = nil, nil
			}
			c.mu.Unlock()
			return
		}
		failures++
		metrics.StreamReconnects.Inc()
		logger.Info("[stream] reconnecting (attempt %d/%d) in %v", failures, c.opts.ReconnectAttempts, c.opts.ReconnectDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	defer conn.Close()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	if c.opts.ReadTimeout > 0 {
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		})
	}
	if c.opts.PingInterval > 0 {
		go c.keepalive(conn, stop)
	}

	for {
		if c.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		}
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if messageType == websocket.TextMessage {
			c.handleMessage(message)
		}
	}
}

func (c *Client) keepalive(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				logger.Debug("[stream] ping error: %v", err)
				return
			}
		case <-stop:
			return
		}
	}
}

func (c *Client) handleMessage(message []byte) {
	var tick models.PriceTick
	if err := json.Unmarshal(message, &tick); err != nil {
		logger.Debug("[stream] ignoring malformed message: %v", err)
		return
	}
	tick.Coin = strings.ToUpper(strings.TrimSpace(tick.Coin))
	if !tick.Valid() {
		return
	}
	c.deliver(tick)
}

// deliver applies the dedup rule and notifies observers outside the lock.
func (c *Client) deliver(tick models.PriceTick) {
	metrics.TicksReceived.WithLabelValues(tick.Coin).Inc()

	c.mu.Lock()
	prev, seen := c.lastPrices[tick.Coin]
	if seen && prev == tick.Price {
		c.mu.Unlock()
		metrics.TicksSuppressed.WithLabelValues(tick.Coin).Inc()
		return
	}
	c.lastPrices[tick.Coin] = tick.Price
	observers := make([]Observer, len(c.observers))
	for i, r := range c.observers {
		observers[i] = r.observer
	}
	c.dispatching = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.dispatching = false
		c.mu.Unlock()
	}()
	update := models.PriceUpdate{Coin: tick.Coin, Price: tick.Price, Previous: prev, HasPrevious: seen}
	for _, observer := range observers {
		observer(update)
	}
}
