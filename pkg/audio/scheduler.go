package audio

import (
	"fmt"
	"sync"
	"time"
)

// Scheduler places inbound segments back to back on a [Clock] so that
// playback is gapless regardless of network arrival jitter.
//
// The only state is the playback cursor: the clock position where the next
// segment must begin. A segment that arrives late (cursor already in the
// past) starts immediately; one that arrives early queues right behind its
// predecessor. Segments are never reordered and never overlap.
//
// All methods are safe for concurrent use, though a session drives the
// scheduler from a single goroutine.
type Scheduler struct {
	clock Clock
	sink  Sink

	mu     sync.Mutex
	cursor time.Duration
}

// NewScheduler creates a Scheduler whose cursor starts at clock.Now().
func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		cursor: clock.Now(),
	}
}

// Schedule hands seg to the sink at max(clock.Now(), cursor) and advances
// the cursor by the segment's duration. It returns the chosen start time.
//
// If the sink rejects the segment the cursor is left untouched and the error
// is returned; the segment is considered dropped.
func (s *Scheduler) Schedule(seg Segment) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := max(s.clock.Now(), s.cursor)
	if err := s.sink.Play(start, seg); err != nil {
		return start, fmt.Errorf("audio: schedule segment at %s: %w", start, err)
	}
	s.cursor = start + seg.Duration()
	return start, nil
}

// Cursor returns the clock position at which the next segment would start if
// it arrived now and the clock had not passed it.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Reset moves the cursor to the clock's current time, discarding any lead
// built up by queued segments. Segments already handed to the sink are not
// recalled.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor = s.clock.Now()
}
