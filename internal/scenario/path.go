package scenario

import (
	"math"
	"math/rand"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// pathParams are the aggregated analog statistics a projection is seeded
// from. Drift is per-step; Kurtosis uses the normal baseline of 3.
type pathParams struct {
	Drift    float64
	Vol      float64
	Skew     float64
	Kurtosis float64
}

// synthesizePath extends the history with a skew/kurtosis-adjusted random
// walk of exactly `steps` ticks. Timestamps continue the history's spacing;
// every generated tick satisfies low <= open,close <= high. The walk is
// fully determined by the rng, so a fixed seed reproduces the path.
func synthesizePath(rng *rand.Rand, history []domain.Tick, ticker string, steps int, p pathParams) []domain.Tick {
	lastClose := domain.LastClose(history)
	if lastClose <= 0 {
		lastClose = 1
	}

	interval := time.Minute
	start := time.Now().UTC().Truncate(time.Minute)
	var volume float64 = 1_000
	if n := len(history); n > 0 {
		start = history[n-1].Timestamp
		volume = history[n-1].Volume
		if n > 1 {
			if d := history[n-1].Timestamp.Sub(history[n-2].Timestamp); d > 0 {
				interval = d
			}
		}
	}

	out := make([]domain.Tick, steps)
	price := lastClose
	for i := 0; i < steps; i++ {
		open := price

		shock := p.Drift
		if p.Vol > 0 {
			noise := rng.NormFloat64() * p.Vol
			if p.Kurtosis > 3 {
				tail := math.Abs(rng.NormFloat64()) * (p.Kurtosis - 3) * 0.1
				noise *= 1 + tail
			}
			if p.Skew != 0 {
				noise += sign(noise) * math.Abs(p.Skew) * p.Vol * 0.2
			}
			shock += noise
		}
		price = math.Max(0.01, price*(1+shock))
		closePx := price

		span := math.Abs(rng.NormFloat64()) * p.Vol
		high := math.Max(open, closePx) * (1 + span)
		low := math.Min(open, closePx) * math.Max(0, 1-span)

		out[i] = domain.Tick{
			Timestamp: start.Add(time.Duration(i+1) * interval),
			Ticker:    ticker,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		}
	}
	return out
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
