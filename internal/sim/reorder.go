package sim

import (
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// reorderBuffer absorbs late and out-of-order upstream ticks in realtime
// mode. Ticks are held until the buffer exceeds its depth, then released
// strictly in timestamp order. Duplicate (ticker, timestamp) pairs and
// ticks older than what has already been released are rejected.
type reorderBuffer struct {
	depth        int
	pending      []domain.Tick // sorted ascending by timestamp
	lastReleased map[string]time.Time
}

func newReorderBuffer(depth int) *reorderBuffer {
	if depth < 1 {
		depth = 1
	}
	return &reorderBuffer{
		depth:        depth,
		lastReleased: make(map[string]time.Time),
	}
}

// Push inserts a tick in timestamp order.
func (b *reorderBuffer) Push(t domain.Tick) error {
	if last, ok := b.lastReleased[t.Ticker]; ok && !t.Timestamp.After(last) {
		if t.Timestamp.Equal(last) {
			return fmt.Errorf("%s@%s: %w", t.Ticker, t.Timestamp.Format(time.RFC3339), domain.ErrDuplicateTick)
		}
		return fmt.Errorf("%w: stale tick %s@%s", domain.ErrInvalidOrder, t.Ticker, t.Timestamp.Format(time.RFC3339))
	}
	for _, p := range b.pending {
		if p.Ticker == t.Ticker && p.Timestamp.Equal(t.Timestamp) {
			return fmt.Errorf("%s@%s: %w", t.Ticker, t.Timestamp.Format(time.RFC3339), domain.ErrDuplicateTick)
		}
	}

	i := sort.Search(len(b.pending), func(i int) bool {
		return b.pending[i].Timestamp.After(t.Timestamp)
	})
	b.pending = append(b.pending, domain.Tick{})
	copy(b.pending[i+1:], b.pending[i:])
	b.pending[i] = t
	return nil
}

// Release pops ticks from the front while the buffer holds more than its
// depth, so the consumer sees them in strict timestamp order while late
// arrivals still have a window to slot in.
func (b *reorderBuffer) Release() []domain.Tick {
	if len(b.pending) <= b.depth {
		return nil
	}
	n := len(b.pending) - b.depth
	return b.pop(n)
}

// Flush drains everything still pending, in order.
func (b *reorderBuffer) Flush() []domain.Tick {
	return b.pop(len(b.pending))
}

func (b *reorderBuffer) pop(n int) []domain.Tick {
	if n <= 0 {
		return nil
	}
	out := make([]domain.Tick, n)
	copy(out, b.pending[:n])
	b.pending = append(b.pending[:0], b.pending[n:]...)
	for _, t := range out {
		b.lastReleased[t.Ticker] = t.Timestamp
	}
	return out
}
