package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

func tickAt(ticker string, sec int) domain.Tick {
	ts := time.Date(2024, 1, 2, 9, 30, sec, 0, time.UTC)
	return domain.Tick{
		Timestamp: ts,
		Ticker:    ticker,
		Open:      100, High: 101, Low: 99, Close: 100,
		Volume: 1000,
	}
}

func TestReorderBufferReleasesOldestFirst(t *testing.T) {
	buf := newReorderBuffer(2)

	// Arrivals out of order: 3, 1, 2.
	for _, sec := range []int{3, 1, 2} {
		if err := buf.Push(tickAt("SPY", sec)); err != nil {
			t.Fatalf("Push(%d) = %v, want nil", sec, err)
		}
	}

	// Three pending against depth 2: exactly the earliest comes out.
	released := buf.Release()
	if len(released) != 1 {
		t.Fatalf("Release() returned %d ticks, want 1", len(released))
	}
	if got := released[0].Timestamp.Second(); got != 1 {
		t.Errorf("released tick second = %d, want 1", got)
	}

	rest := buf.Flush()
	if len(rest) != 2 {
		t.Fatalf("Flush() returned %d ticks, want 2", len(rest))
	}
	if rest[0].Timestamp.Second() != 2 || rest[1].Timestamp.Second() != 3 {
		t.Errorf("Flush() order = [%d %d], want [2 3]",
			rest[0].Timestamp.Second(), rest[1].Timestamp.Second())
	}
}

func TestReorderBufferHoldsUpToDepth(t *testing.T) {
	buf := newReorderBuffer(3)
	for sec := 1; sec <= 3; sec++ {
		if err := buf.Push(tickAt("SPY", sec)); err != nil {
			t.Fatalf("Push(%d) = %v", sec, err)
		}
		if got := buf.Release(); got != nil {
			t.Fatalf("Release() = %v before depth exceeded, want nil", got)
		}
	}
}

func TestReorderBufferRejectsDuplicatePending(t *testing.T) {
	buf := newReorderBuffer(4)
	if err := buf.Push(tickAt("SPY", 1)); err != nil {
		t.Fatalf("first Push = %v", err)
	}
	err := buf.Push(tickAt("SPY", 1))
	if !errors.Is(err, domain.ErrDuplicateTick) {
		t.Errorf("duplicate Push error = %v, want ErrDuplicateTick", err)
	}

	// Same timestamp on a different ticker is fine.
	if err := buf.Push(tickAt("TLT", 1)); err != nil {
		t.Errorf("Push different ticker = %v, want nil", err)
	}
}

func TestReorderBufferRejectsReleasedTimestamps(t *testing.T) {
	buf := newReorderBuffer(1)
	for _, sec := range []int{5, 6} {
		if err := buf.Push(tickAt("SPY", sec)); err != nil {
			t.Fatalf("Push(%d) = %v", sec, err)
		}
	}
	if got := len(buf.Release()); got != 1 {
		t.Fatalf("Release() returned %d ticks, want 1", got)
	}

	// Re-sending the released timestamp is a duplicate.
	if err := buf.Push(tickAt("SPY", 5)); !errors.Is(err, domain.ErrDuplicateTick) {
		t.Errorf("re-push released timestamp error = %v, want ErrDuplicateTick", err)
	}
	// Anything older than the watermark is stale.
	if err := buf.Push(tickAt("SPY", 4)); !errors.Is(err, domain.ErrInvalidOrder) {
		t.Errorf("stale push error = %v, want ErrInvalidOrder", err)
	}
}

func TestReorderBufferFlushEmpty(t *testing.T) {
	buf := newReorderBuffer(2)
	if got := buf.Flush(); got != nil {
		t.Errorf("Flush() on empty buffer = %v, want nil", got)
	}
}

func TestReorderBufferMinimumDepth(t *testing.T) {
	buf := newReorderBuffer(0)
	if err := buf.Push(tickAt("SPY", 1)); err != nil {
		t.Fatalf("Push = %v", err)
	}
	if err := buf.Push(tickAt("SPY", 2)); err != nil {
		t.Fatalf("Push = %v", err)
	}
	if got := len(buf.Release()); got != 1 {
		t.Errorf("Release() returned %d ticks with clamped depth, want 1", got)
	}
}
