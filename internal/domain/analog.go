package domain

import "time"

// AnalogEvent is a historical occurrence used as a statistical reference for
// projecting a new scenario's impact. The reference fields are immutable and
// loaded once per process; Similarity is a query-scoped derived value in
// [0,1], never stored.
type AnalogEvent struct {
	ID         string   `json:"id"`
	Ticker     string   `json:"ticker"`
	Date       string   `json:"date"` // ISO-8601 day, e.g. "2022-06-15"
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
	Drift      float64  `json:"drift"`
	Vol        float64  `json:"vol"`
	Skew       float64  `json:"skew"`
	Kurtosis   float64  `json:"kurtosis"`
	SampleSize float64  `json:"sample_size,omitempty"`

	Similarity float64 `json:"similarity,omitempty"`
}

// Weight returns the aggregation weight for this analog: the historical
// sample size when present, otherwise 1.
func (a AnalogEvent) Weight() float64 {
	if a.SampleSize > 0 {
		return a.SampleSize
	}
	return 1
}

// DateTime parses the Date field. A zero time is returned for malformed
// dates so they sort last in recency tie-breaks.
func (a AnalogEvent) DateTime() time.Time {
	t, err := time.Parse("2006-01-02", a.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ImpactResult is produced fresh per scenario request and never mutated
// after return.
type ImpactResult struct {
	Ticker         string        `json:"ticker"`
	Score          float64       `json:"score"`
	BaselinePrice  float64       `json:"baseline_price"`
	ProjectedPrice float64       `json:"projected_price"`
	CurrentPrice   float64       `json:"current_price"`
	Projection     []Tick        `json:"projection"`
	Analogs        []AnalogEvent `json:"analogs"`
	Orders         []Order       `json:"orders"`
}

// ScenarioResponse is the payload returned by a scenario request.
type ScenarioResponse struct {
	Scenario    string         `json:"scenario"`
	GeneratedAt time.Time      `json:"generated_at"`
	Impacts     []ImpactResult `json:"impacts"`
	Partial     bool           `json:"partial,omitempty"`
}
