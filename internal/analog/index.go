// Package analog implements the searchable index of historical analog
// events used by the scenario projector for similarity lookup.
package analog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

//go:embed dataset.json
var embeddedDataset []byte

// Config holds index parameters. The similarity floor and cross-ticker
// bleed threshold are configuration, not fixed behavior.
type Config struct {
	DatasetPath    string  // empty: use the embedded dataset
	MinSimilarity  float64 // results below the floor are dropped
	BleedThreshold float64 // cross-ticker matches need at least this score
}

// Index is an immutable, process-lifetime set of analog events. Query is
// safe for concurrent use.
type Index struct {
	cfg     Config
	entries []entry
	tickers map[string]bool
	newest  time.Time // most recent event date; recency reference
}

type entry struct {
	event  domain.AnalogEvent
	tokens []string        // tokenized summary + category + ticker
	tagSet map[string]bool // lowercased exact tags
	date   time.Time
}

// Load builds an Index from the configured dataset (embedded by default).
func Load(cfg Config) (*Index, error) {
	data := embeddedDataset
	if cfg.DatasetPath != "" {
		b, err := os.ReadFile(cfg.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("analog: read dataset: %w", err)
		}
		data = b
	}

	var events []domain.AnalogEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("analog: parse dataset: %w", err)
	}
	return New(cfg, events), nil
}

// New builds an Index over the given events. Exposed separately from Load so
// tests can construct small fixtures.
func New(cfg Config, events []domain.AnalogEvent) *Index {
	idx := &Index{cfg: cfg, tickers: make(map[string]bool)}
	for _, ev := range events {
		e := entry{
			event:  ev,
			tokens: Tokenize(ev.Summary + " " + ev.Category + " " + ev.Ticker),
			tagSet: make(map[string]bool, len(ev.Tags)),
			date:   ev.DateTime(),
		}
		for _, tag := range ev.Tags {
			e.tagSet[strings.ToLower(tag)] = true
		}
		idx.entries = append(idx.entries, e)
		idx.tickers[strings.ToUpper(ev.Ticker)] = true
		if e.date.After(idx.newest) {
			idx.newest = e.date
		}
	}
	return idx
}

// Size returns the number of indexed events.
func (idx *Index) Size() int { return len(idx.entries) }

// HasTicker reports whether any analog exists for the ticker.
func (idx *Index) HasTicker(ticker string) bool {
	return idx.tickers[strings.ToUpper(ticker)]
}

// Query scores every candidate against the free text and returns up to
// limit events for the ticker, sorted by similarity descending with ties
// broken by more recent date, then id. Candidates for other tickers are
// admitted only above the bleed threshold. An empty result (not an error)
// is returned when nothing clears the similarity floor.
func (idx *Index) Query(ticker, freeText string, limit int) []domain.AnalogEvent {
	queryTokens := Tokenize(freeText)
	if len(queryTokens) == 0 || limit <= 0 {
		return []domain.AnalogEvent{}
	}
	want := strings.ToUpper(ticker)

	type scored struct {
		event domain.AnalogEvent
		date  time.Time
	}
	var out []scored
	for _, e := range idx.entries {
		score := idx.score(queryTokens, e)
		if score < idx.cfg.MinSimilarity || score == 0 {
			continue
		}
		if !strings.EqualFold(e.event.Ticker, want) && score < idx.cfg.BleedThreshold {
			continue
		}
		ev := e.event // copy; Similarity is query-scoped
		ev.Similarity = score
		out = append(out, scored{event: ev, date: e.date})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].event.Similarity != out[j].event.Similarity {
			return out[i].event.Similarity > out[j].event.Similarity
		}
		if !out[i].date.Equal(out[j].date) {
			return out[i].date.After(out[j].date)
		}
		return out[i].event.ID < out[j].event.ID
	})

	if len(out) > limit {
		out = out[:limit]
	}
	events := make([]domain.AnalogEvent, len(out))
	for i, s := range out {
		events[i] = s.event
	}
	return events
}

// score combines lexical overlap with an exact-tag bonus and a small
// recency prior, clamped to [0,1]. The tag bonus is strictly additive over
// a fixed-token base, so adding a matching tag can never lower the score.
func (idx *Index) score(queryTokens []string, e entry) float64 {
	if len(e.tokens) == 0 {
		return 0
	}
	querySet := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		querySet[t] = true
	}
	docSet := make(map[string]bool, len(e.tokens))
	for _, t := range e.tokens {
		docSet[t] = true
	}

	var overlap int
	for t := range querySet {
		if docSet[t] {
			overlap++
		}
	}
	if overlap == 0 && !anyTagMatch(querySet, e.tagSet) {
		return 0
	}

	base := float64(overlap) / math.Sqrt(float64(len(querySet))*float64(len(docSet)))

	var freq int
	for _, t := range e.tokens {
		if querySet[t] {
			freq++
		}
	}
	base += 0.2 * float64(freq) / float64(len(e.tokens))

	var tagHits float64
	for t := range querySet {
		if e.tagSet[t] {
			tagHits++
		}
	}
	base += 0.1 * tagHits

	// Slight preference for recent analogs, measured against the newest
	// event in the dataset so scores never depend on the wall clock.
	if !e.date.IsZero() && !idx.newest.IsZero() {
		years := idx.newest.Sub(e.date).Hours() / (24 * 365.25)
		if years < 0 {
			years = 0
		}
		base += 0.05 * math.Exp(-years/10)
	}

	return clamp01(base)
}

func anyTagMatch(querySet map[string]bool, tagSet map[string]bool) bool {
	for t := range querySet {
		if tagSet[t] {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"in": true, "into": true, "is": true, "it": true, "of": true,
	"on": true, "or": true, "that": true, "the": true, "to": true,
	"with": true,
}

// Tokenize lowercases, splits on non-alphanumerics, and drops stop words.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}
