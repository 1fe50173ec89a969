// Package models defines the core domain entities: ticks, alerts, and coin data series.
package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType selects which price an alert watches.
type AlertType string

const (
	AlertRealTime  AlertType = "real-time"
	AlertPredicted AlertType = "predicted"
)

// Condition is the direction of a threshold crossing.
type Condition string

const (
	Above Condition = "above"
	Below Condition = "below"
)

// Alert is a user-defined threshold alert owned by the backend once persisted.
type Alert struct {
	ID              string     `json:"id"`
	Coin            string     `json:"coin"`
	Type            AlertType  `json:"type"`
	Condition       Condition  `json:"condition"`
	Threshold       float64    `json:"threshold"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
}

// Matches reports whether price satisfies the alert condition.
func (a *Alert) Matches(price float64) bool {
	switch a.Condition {
	case Above:
		return price > a.Threshold
	case Below:
		return price < a.Threshold
	}
	return false
}

// AlertDraft is unvalidated alert input as typed into a form.
type AlertDraft struct {
	Coin      string `json:"coin"`
	Type      string `json:"type"`
	Condition string `json:"condition"`
	Threshold string `json:"threshold"`
}

// ValidationError reports malformed alert input. It is never sent to the backend.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ParseThreshold parses a threshold that must be a finite positive number.
func ParseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "threshold", Reason: "must not be empty"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Field: "threshold", Reason: fmt.Sprintf("%q is not a number", s)}
	}
	if !d.IsPositive() {
		return 0, &ValidationError{Field: "threshold", Reason: "must be greater than zero"}
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) || f <= 0 {
		return 0, &ValidationError{Field: "threshold", Reason: fmt.Sprintf("%q is out of range", s)}
	}
	return f, nil
}

// DefaultThreshold renders price the way the alert form pre-fills it.
func DefaultThreshold(price float64) string {
	return decimal.NewFromFloat(price).StringFixed(2)
}

// ParseAlertType accepts "real-time" or "predicted".
func ParseAlertType(s string) (AlertType, error) {
	switch t := AlertType(strings.ToLower(strings.TrimSpace(s))); t {
	case AlertRealTime, AlertPredicted:
		return t, nil
	}
	return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("%q is not real-time or predicted", s)}
}

// ParseCondition accepts "above" or "below".
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(strings.ToLower(strings.TrimSpace(s))); c {
	case Above, Below:
		return c, nil
	}
	return "", &ValidationError{Field: "condition", Reason: fmt.Sprintf("%q is not above or below", s)}
}

// AlertSpec is the validated form of an AlertDraft.
type AlertSpec struct {
	Coin      string
	Type      AlertType
	Condition Condition
	Threshold float64
}

// Validate checks every draft field. Coin is required only when requireCoin is set,
// since edits never move an alert to another coin.
func (d AlertDraft) Validate(requireCoin bool) (AlertSpec, error) {
	coin := strings.ToUpper(strings.TrimSpace(d.Coin))
	if requireCoin && coin == "" {
		return AlertSpec{}, &ValidationError{Field: "coin", Reason: "must not be empty"}
	}
	typ, err := ParseAlertType(d.Type)
	if err != nil {
		return AlertSpec{}, err
	}
	cond, err := ParseCondition(d.Condition)
	if err != nil {
		return AlertSpec{}, err
	}
	threshold, err := ParseThreshold(d.Threshold)
	if err != nil {
		return AlertSpec{}, err
	}
	return AlertSpec{Coin: coin, Type: typ, Condition: cond, Threshold: threshold}, nil
}

// TriggerSource says which price crossed an alert threshold.
type TriggerSource string

const (
	SourceTick     TriggerSource = "tick"
	SourceForecast TriggerSource = "forecast"
)

// Trigger is an alert whose condition has just become true.
type Trigger struct {
	Alert  Alert         `json:"alert"`
	Price  float64       `json:"price"`
	Source TriggerSource `json:"source"`
	At     time.Time     `json:"at"`
}
