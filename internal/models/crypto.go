package models

import (
	"errors"
	"strings"
	"time"
)

// PriceTick is one inbound price update from the push channel.
type PriceTick struct {
	Coin  string  `json:"coin"`
	Price float64 `json:"price"`
}

// Valid reports whether the tick carries a coin and a positive price.
func (t PriceTick) Valid() bool {
	return t.Coin != "" && t.Price > 0
}

// PriceUpdate is what observers receive after deduplication.
// HasPrevious is false for the first tick of a coin in a session.
type PriceUpdate struct {
	Coin        string
	Price       float64
	Previous    float64
	HasPrevious bool
}

// PricePoint is one dated price.
type PricePoint struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// SentimentPoint is one dated positive sentiment ratio.
type SentimentPoint struct {
	Date      string  `json:"date"`
	Sentiment float64 `json:"sentiment"`
}

// ModelBenchmarks are the accuracy metrics of the forecasting model.
type ModelBenchmarks struct {
	MAE  float64 `json:"mae"`
	MAPE float64 `json:"mape"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// CryptoData is the historical and predicted series for one coin.
type CryptoData struct {
	Coin                   string           `json:"coin"`
	HistoricalPrice        []PricePoint     `json:"historical_price"`
	PredictedPrice         []PricePoint     `json:"predicted_price"`
	PositiveSentimentRatio []SentimentPoint `json:"positive_sentiment_ratio"`
	ModelBenchmarks        *ModelBenchmarks `json:"model_benchmarks,omitempty"`
	Date                   string           `json:"date,omitempty"`
}

// Validate checks that the data can seed a dashboard.
func (d *CryptoData) Validate() error {
	if strings.TrimSpace(d.Coin) == "" {
		return errors.New("coin must not be empty")
	}
	if len(d.HistoricalPrice) == 0 {
		return errors.New("historical price series must not be empty")
	}
	for _, p := range d.HistoricalPrice {
		if _, err := ParseDate(p.Date); err != nil {
			return err
		}
	}
	return nil
}

// ParseDate accepts plain ISO dates and full RFC 3339 timestamps.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errors.New("invalid date " + s)
	}
	return t, nil
}
