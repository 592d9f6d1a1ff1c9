package domain

import "time"

// Tick is a single timestamped OHLCV observation for a ticker. Ticks are
// immutable once produced; a PriceSeries is an ordered sequence of them with
// strictly increasing timestamps per ticker.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Ticker    string    `json:"ticker"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Valid reports whether the tick satisfies the OHLC ordering constraints
// low <= open,close <= high and carries a ticker and timestamp.
func (t Tick) Valid() bool {
	if t.Ticker == "" || t.Timestamp.IsZero() {
		return false
	}
	if t.Low > t.Open || t.Low > t.Close || t.Low > t.High {
		return false
	}
	if t.High < t.Open || t.High < t.Close {
		return false
	}
	return true
}

// LastClose returns the close of the final tick in the series, or 0 when the
// series is empty.
func LastClose(series []Tick) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1].Close
}

// Closes extracts the close column from a series.
func Closes(series []Tick) []float64 {
	out := make([]float64, len(series))
	for i, t := range series {
		out[i] = t.Close
	}
	return out
}
