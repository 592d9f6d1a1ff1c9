package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/alanyoungcy/markettwin/internal/domain"
	"github.com/alanyoungcy/markettwin/internal/provider"
)

// Evaluation compares a projected price path against realized closes for one
// ticker over a shared horizon.
type Evaluation struct {
	Ticker  string  `json:"ticker"`
	Steps   int     `json:"steps"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	HitRate float64 `json:"hit_rate"`
}

// Evaluate scores an impact's projection against the most recent realized
// closes from prices. The comparison is step-aligned: projection step i is
// judged against the i-th realized close after the baseline. HitRate is the
// fraction of steps where the projected and realized per-step returns share
// a sign; flat steps on either side count as misses.
func Evaluate(ctx context.Context, prices provider.PriceSeries, impact domain.ImpactResult) (Evaluation, error) {
	n := len(impact.Projection)
	if n == 0 {
		return Evaluation{}, fmt.Errorf("sim: evaluate %s: empty projection", impact.Ticker)
	}
	realized, err := prices.History(ctx, impact.Ticker, n+1)
	if err != nil {
		return Evaluation{}, fmt.Errorf("sim: evaluate %s: %w", impact.Ticker, err)
	}
	if len(realized) < 2 {
		return Evaluation{}, fmt.Errorf("sim: evaluate %s: %w", impact.Ticker, domain.ErrUnknownTicker)
	}
	if len(realized) < n+1 {
		n = len(realized) - 1
	}

	base := realized[0].Close
	var sumAbs, sumSq float64
	hits := 0
	prevProj, prevReal := base, base
	for i := 0; i < n; i++ {
		proj := impact.Projection[i].Close
		real := realized[i+1].Close
		diff := proj - real
		sumAbs += math.Abs(diff)
		sumSq += diff * diff
		if sameSign(proj-prevProj, real-prevReal) {
			hits++
		}
		prevProj, prevReal = proj, real
	}

	return Evaluation{
		Ticker:  impact.Ticker,
		Steps:   n,
		MAE:     sumAbs / float64(n),
		RMSE:    math.Sqrt(sumSq / float64(n)),
		HitRate: float64(hits) / float64(n),
	}, nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
