package market

import (
	"sort"
	"strings"

	"github.com/rewired-gh/coinpulse/internal/models"
	"github.com/rewired-gh/coinpulse/internal/tracker"
)

// Forecast is a predicted price and its distance from the current price.
type Forecast struct {
	Date             string
	Price            float64
	ChangeAmount     float64
	ChangePercentage float64
}

// Stats are the headline figures of the dashboard.
type Stats struct {
	Coin             string
	Initial          float64
	Current          float64
	ChangeAmount     float64
	ChangePercentage float64
	NextDay          *Forecast
	SevenDay         *Forecast
}

// Calculate derives the stats from a (possibly filtered) data set. Current
// change is measured from the first historical point; forecasts are measured
// from the current price.
func Calculate(data *models.CryptoData) (Stats, error) {
	if len(data.HistoricalPrice) == 0 {
		return Stats{}, ErrDataUnavailable
	}
	hist := sortedByDate(data.HistoricalPrice)
	pred := sortedByDate(data.PredictedPrice)

	s := Stats{
		Coin:    strings.ToUpper(data.Coin),
		Initial: hist[0].Price,
		Current: hist[len(hist)-1].Price,
	}
	s.ChangeAmount = s.Current - s.Initial
	s.ChangePercentage = percent(s.ChangeAmount, s.Initial)

	if len(pred) > 0 {
		s.NextDay = forecastFrom(pred[0], s.Current)
		idx := 6
		if idx > len(pred)-1 {
			idx = len(pred) - 1
		}
		s.SevenDay = forecastFrom(pred[idx], s.Current)
	}
	return s, nil
}

// CurrentSnapshot seeds a current-price card.
func (s Stats) CurrentSnapshot() tracker.Snapshot {
	return tracker.Snapshot{
		Price:            s.Current,
		ChangePercentage: s.ChangePercentage,
		ChangeAmount:     tracker.Amount(s.ChangeAmount),
	}
}

// Snapshot seeds a forecast card.
func (f *Forecast) Snapshot() tracker.Snapshot {
	return tracker.Snapshot{
		Price:            f.Price,
		ChangePercentage: f.ChangePercentage,
		ChangeAmount:     tracker.Amount(f.ChangeAmount),
	}
}

func forecastFrom(p models.PricePoint, current float64) *Forecast {
	amount := p.Price - current
	return &Forecast{
		Date:             p.Date,
		Price:            p.Price,
		ChangeAmount:     amount,
		ChangePercentage: percent(amount, current),
	}
}

func sortedByDate(points []models.PricePoint) []models.PricePoint {
	out := append([]models.PricePoint(nil), points...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func percent(amount, base float64) float64 {
	if base == 0 {
		return 0
	}
	return amount / base * 100
}
