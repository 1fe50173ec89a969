package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/coinpulse/internal/models"
)

// TimeRange is a dashboard window anchored on the latest historical date.
type TimeRange string

const (
	Range7Days  TimeRange = "7days"
	Range30Days TimeRange = "30days"
	Range1Year  TimeRange = "1year"
)

// ParseTimeRange accepts the three window names, case-insensitively.
func ParseTimeRange(s string) (TimeRange, error) {
	switch r := TimeRange(strings.ToLower(strings.TrimSpace(s))); r {
	case Range7Days, Range30Days, Range1Year:
		return r, nil
	}
	return "", fmt.Errorf("unknown time range %q (want 7days, 30days or 1year)", s)
}

// Start returns the first date included in the window ending at latest.
func (r TimeRange) Start(latest time.Time) time.Time {
	switch r {
	case Range30Days:
		return latest.AddDate(0, 0, -30)
	case Range1Year:
		return latest.AddDate(0, 0, -365)
	default:
		return latest.AddDate(0, 0, -7)
	}
}

// Filter returns a copy of data keeping only points dated on or after the
// window start. The window is anchored on the latest historical date, not on
// today, and applies to all three series.
func Filter(data *models.CryptoData, r TimeRange) *models.CryptoData {
	out := *data
	var latest time.Time
	for _, p := range data.HistoricalPrice {
		if t, err := models.ParseDate(p.Date); err == nil && t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return &out
	}
	start := r.Start(latest).Format("2006-01-02")

	out.HistoricalPrice = filterPrices(data.HistoricalPrice, start)
	out.PredictedPrice = filterPrices(data.PredictedPrice, start)
	out.PositiveSentimentRatio = nil
	for _, s := range data.PositiveSentimentRatio {
		if dayOf(s.Date) >= start {
			out.PositiveSentimentRatio = append(out.PositiveSentimentRatio, s)
		}
	}
	return &out
}

func filterPrices(points []models.PricePoint, start string) []models.PricePoint {
	var out []models.PricePoint
	for _, p := range points {
		if dayOf(p.Date) >= start {
			out = append(out, p)
		}
	}
	return out
}

// dayOf truncates an ISO timestamp to its date so string comparison orders by day.
func dayOf(s string) string {
	if len(s) > 10 {
		return s[:10]
	}
	return s
}
