// Package view binds price trackers to the tick stream and exposes render-ready
// card state.
package view

import (
	"sync"
	"time"

	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/stream"
	"github.com/rewired-gh/coinpulse/internal/tracker"
)

// DefaultHighlight is how long a card stays flagged after a live update.
const DefaultHighlight = 2 * time.Second

// Source is anything that can deliver price updates. *stream.Client and
// *stream.Lease both satisfy it.
type Source interface {
	OnPriceUpdate(observer stream.Observer) *stream.Subscription
}

// State is what a renderer needs for one card.
type State struct {
	Title            string
	Coin             string
	Role             tracker.Role
	DisplayPrice     float64
	ChangePercentage float64
	ChangeAmount     float64
	JustUpdated      bool
}

type Options struct {
	Title     string
	Highlight time.Duration
}

// Card owns one tracker and its subscription. All methods are safe for
// concurrent use; recomputation runs on the stream's dispatch goroutine.
type Card struct {
	title     string
	highlight time.Duration

	mu          sync.Mutex
	tracker     *tracker.Tracker
	sub         *stream.Subscription
	justUpdated bool
	timer       *time.Timer
	generation  uint64
	closed      bool
	listeners   []func(State)
}

// NewCard creates a card and subscribes it to src. A nil src yields a static card.
func NewCard(src Source, coin string, role tracker.Role, snap tracker.Snapshot, opts Options) *Card {
	if opts.Highlight <= 0 {
		opts.Highlight = DefaultHighlight
	}
	c := &Card{
		title:     opts.Title,
		highlight: opts.Highlight,
		tracker:   tracker.New(coin, role, snap),
	}
	if src != nil {
		c.sub = src.OnPriceUpdate(c.onPrice)
	}
	return c
}

// OnChange registers fn to be called with the new state after every change.
func (c *Card) OnChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// State returns the current renderable state.
func (c *Card) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Update re-anchors the card on a fresh snapshot. The highlight is left alone.
func (c *Card) Update(snap tracker.Snapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.tracker.Reanchor(snap)
	st, listeners := c.stateLocked(), c.listeners
	c.mu.Unlock()
	notify(listeners, st)
}

// Close unsubscribes from the stream and cancels a pending highlight expiry.
func (c *Card) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	sub.Close()
}

func (c *Card) onPrice(u models.PriceUpdate) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, ok := c.tracker.Apply(u.Coin, u.Price); !ok {
		c.mu.Unlock()
		return
	}
	c.justUpdated = true
	c.generation++
	gen := c.generation
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.highlight, func() { c.expire(gen) })
	st, listeners := c.stateLocked(), c.listeners
	c.mu.Unlock()
	notify(listeners, st)
}

func (c *Card) expire(gen uint64) {
	c.mu.Lock()
	// a newer tick rescheduled the timer
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.justUpdated = false
	c.timer = nil
	st, listeners := c.stateLocked(), c.listeners
	c.mu.Unlock()
	notify(listeners, st)
}

func (c *Card) stateLocked() State {
	m := c.tracker.Metric()
	return State{
		Title:            c.title,
		Coin:             c.tracker.Coin(),
		Role:             c.tracker.Role(),
		DisplayPrice:     m.DisplayPrice,
		ChangePercentage: m.ChangePercentage,
		ChangeAmount:     m.ChangeAmount,
		JustUpdated:      c.justUpdated,
	}
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}
