// Package tracker keeps a metric card's reference baseline and recomputes its
// change figures as live prices arrive.
package tracker

import "fmt"

// Role is what a card displays. It selects the recomputation formula.
type Role int

const (
	RoleCurrent Role = iota
	RoleForecast
)

func (r Role) String() string {
	switch r {
	case RoleCurrent:
		return "current"
	case RoleForecast:
		return "forecast"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Snapshot is a server-computed card input. ChangeAmount is optional.
type Snapshot struct {
	Price            float64
	ChangePercentage float64
	ChangeAmount     *float64
}

// Amount is a convenience for filling Snapshot.ChangeAmount.
func Amount(v float64) *float64 {
	return &v
}

// Baseline is the reference a card's deltas are anchored to.
type Baseline struct {
	AnchorPrice      float64
	AnchorIsForecast bool
}

// Metric is the derived, displayable state of a card.
type Metric struct {
	DisplayPrice     float64
	ChangePercentage float64
	ChangeAmount     float64
}

// AnchorFor derives the price the snapshot's change was measured from.
func AnchorFor(s Snapshot) float64 {
	switch {
	case s.ChangeAmount != nil:
		return s.Price - *s.ChangeAmount
	case s.ChangePercentage != 0:
		return s.Price / (1 + s.ChangePercentage/100)
	default:
		return s.Price
	}
}

// Tracker is owned by exactly one card and is not safe for concurrent use.
type Tracker struct {
	coin     string
	role     Role
	snapshot Snapshot
	baseline Baseline
	metric   Metric
}

func New(coin string, role Role, snapshot Snapshot) *Tracker {
	t := &Tracker{coin: coin, role: role}
	t.Reanchor(snapshot)
	return t
}

// Reanchor replaces the snapshot and derives a new baseline from it.
// It is the only way the baseline changes.
func (t *Tracker) Reanchor(s Snapshot) {
	t.snapshot = s
	anchor := AnchorFor(s)
	t.baseline = Baseline{AnchorPrice: anchor, AnchorIsForecast: t.role == RoleForecast}

	amount := s.Price - anchor
	if s.ChangeAmount != nil {
		amount = *s.ChangeAmount
	}
	t.metric = Metric{DisplayPrice: s.Price, ChangePercentage: s.ChangePercentage, ChangeAmount: amount}
}

// Apply recomputes the metric for a live price. Prices for other coins are
// ignored and reported as not applied.
func (t *Tracker) Apply(coin string, price float64) (Metric, bool) {
	if coin != t.coin {
		return t.metric, false
	}

	switch t.role {
	case RoleForecast:
		forecast := t.snapshot.Price
		amount := forecast - price
		t.metric = Metric{
			DisplayPrice:     forecast,
			ChangeAmount:     amount,
			ChangePercentage: percentOf(amount, price),
		}
	default:
		amount := price - t.baseline.AnchorPrice
		t.metric = Metric{
			DisplayPrice:     price,
			ChangeAmount:     amount,
			ChangePercentage: percentOf(amount, t.baseline.AnchorPrice),
		}
	}
	return t.metric, true
}

func percentOf(amount, base float64) float64 {
	if base == 0 {
		return 0
	}
	return amount / base * 100
}

func (t *Tracker) Coin() string       { return t.coin }
func (t *Tracker) Role() Role         { return t.role }
func (t *Tracker) Baseline() Baseline { return t.baseline }
func (t *Tracker) Metric() Metric     { return t.metric }
