package models

import (
	"errors"
	"testing"
)

func TestAlertDraftValidate(t *testing.T) {
	tests := []struct {
		name      string
		draft     AlertDraft
		wantErr   bool
		wantField string
	}{
		{
			name:  "valid draft",
			draft: AlertDraft{Coin: "btc", Type: "real-time", Condition: "above", Threshold: "65000.50"},
		},
		{
			name:      "empty coin",
			draft:     AlertDraft{Type: "real-time", Condition: "above", Threshold: "1"},
			wantErr:   true,
			wantField: "coin",
		},
		{
			name:      "unknown type",
			draft:     AlertDraft{Coin: "BTC", Type: "hourly", Condition: "above", Threshold: "1"},
			wantErr:   true,
			wantField: "type",
		},
		{
			name:      "unknown condition",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "equal", Threshold: "1"},
			wantErr:   true,
			wantField: "condition",
		},
		{
			name:      "non-numeric threshold",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "below", Threshold: "abc"},
			wantErr:   true,
			wantField: "threshold",
		},
		{
			name:      "zero threshold",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "below", Threshold: "0"},
			wantErr:   true,
			wantField: "threshold",
		},
		{
			name:      "negative threshold",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "below", Threshold: "-3"},
			wantErr:   true,
			wantField: "threshold",
		},
		{
			name:      "infinity is not a number",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "below", Threshold: "Inf"},
			wantErr:   true,
			wantField: "threshold",
		},
		{
			name:      "threshold overflows float64",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "below", Threshold: "1e400"},
			wantErr:   true,
			wantField: "threshold",
		},
		{
			name:      "threshold underflows to zero",
			draft:     AlertDraft{Coin: "BTC", Type: "predicted", Condition: "below", Threshold: "1e-400"},
			wantErr:   true,
			wantField: "threshold",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.draft.Validate(true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestAlertDraftValidateNormalizes(t *testing.T) {
	spec, err := AlertDraft{Coin: " eth ", Type: "Predicted", Condition: "BELOW", Threshold: " 3200.5 "}.Validate(true)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if spec.Coin != "ETH" || spec.Type != AlertPredicted || spec.Condition != Below || spec.Threshold != 3200.5 {
		t.Errorf("unexpected spec: %+v", spec)
	}
}

func TestAlertMatches(t *testing.T) {
	above := Alert{Condition: Above, Threshold: 100}
	below := Alert{Condition: Below, Threshold: 100}

	if !above.Matches(100.01) || above.Matches(100) {
		t.Error("above alert must match strictly greater prices")
	}
	if !below.Matches(99.99) || below.Matches(100) {
		t.Error("below alert must match strictly lower prices")
	}
}

func TestDefaultThreshold(t *testing.T) {
	if got := DefaultThreshold(64123.456); got != "64123.46" {
		t.Errorf("DefaultThreshold = %q, want 64123.46", got)
	}
}

func TestCryptoDataValidate(t *testing.T) {
	good := CryptoData{Coin: "BTC", HistoricalPrice: []PricePoint{{Date: "2024-05-01", Price: 1}}}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	empty := CryptoData{Coin: "BTC"}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty historical series")
	}

	badDate := CryptoData{Coin: "BTC", HistoricalPrice: []PricePoint{{Date: "May 1", Price: 1}}}
	if err := badDate.Validate(); err == nil {
		t.Error("expected error for unparseable date")
	}
}
