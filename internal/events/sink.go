// Package events provides the bounded event sink shared by the simulation
// loop, the scenario projector, and the API layer: a fixed-capacity ring of
// recent events plus a non-blocking broadcast to live subscribers.
package events

import (
	"sync"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// Sink is a fixed-capacity ring buffer with fan-out. Writers never block: a
// full ring evicts its oldest entry, and a subscriber that cannot keep up
// has messages dropped rather than stalling the producer.
type Sink struct {
	mu       sync.Mutex
	buf      []domain.Event
	head     int // read position (oldest entry)
	count    int
	capacity int

	subs   map[int]chan domain.Event
	nextID int

	totalPublished int64
	totalDropped   int64
}

// NewSink creates a Sink with the given capacity. Capacity below 1 is
// clamped to 1.
func NewSink(capacity int) *Sink {
	if capacity < 1 {
		capacity = 1
	}
	return &Sink{
		buf:      make([]domain.Event, capacity),
		capacity: capacity,
		subs:     make(map[int]chan domain.Event),
	}
}

// Publish appends an event, evicting the oldest entry when the ring is full,
// and broadcasts it to all live subscribers without blocking.
func (s *Sink) Publish(e domain.Event) {
	s.mu.Lock()
	tail := (s.head + s.count) % s.capacity
	s.buf[tail] = e
	if s.count == s.capacity {
		// Full: the slot just written was the oldest entry.
		s.head = (s.head + 1) % s.capacity
	} else {
		s.count++
	}
	s.totalPublished++

	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber: drop for this channel only.
			s.totalDropped++
		}
	}
	s.mu.Unlock()
}

// Recent returns the most recent n events in arrival order (oldest of the
// returned window first). n larger than the retained count returns
// everything retained.
func (s *Sink) Recent(n int) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return []domain.Event{}
	}
	if n > s.count {
		n = s.count
	}
	out := make([]domain.Event, n)
	start := (s.head + s.count - n) % s.capacity
	for i := 0; i < n; i++ {
		out[i] = s.buf[(start+i)%s.capacity]
	}
	return out
}

// Subscribe registers a live subscriber and returns its channel together
// with a cancel function. The channel is buffered with the given size;
// events published while the buffer is full are dropped for this subscriber.
func (s *Sink) Subscribe(buffer int) (<-chan domain.Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Event, buffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Len returns the number of retained events.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Cap returns the ring capacity.
func (s *Sink) Cap() int { return s.capacity }

// Stats reports lifetime publish and subscriber-drop counts.
func (s *Sink) Stats() (published, dropped int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPublished, s.totalDropped
}
