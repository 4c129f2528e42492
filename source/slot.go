package source

import (
	"context"
	"image"
	"sync"
	"time"
)

// Stats are the counters of a Slot
type Stats struct {
	// Published is the number of frames published
	Published uint64
	// Dropped is the number of frames overwritten before anyone read them
	Dropped uint64
}

// Slot is a single frame mailbox.  Publishing overwrites the previous frame,
// reading does not consume it so a reader decides from the sequence number
// whether the frame is new to it.
type Slot struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  Frame
	read   bool
	stats  Stats
	closed bool
}

// NewSlot returns an empty slot
func NewSlot() *Slot {
	s := &Slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Publish stores img as the latest frame and returns its sequence number.
// Publishing to a closed slot is a no-op returning zero.
func (s *Slot) Publish(img image.Image, ts time.Time) uint64 {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	if s.stats.Published > 0 && !s.read {
		s.stats.Dropped++
	}

	s.stats.Published++
	s.frame = Frame{Image: img, Seq: s.stats.Published, Timestamp: ts}
	s.read = false

	s.cond.Broadcast()

	return s.frame.Seq
}

// Latest returns the most recent frame
func (s *Slot) Latest() (Frame, bool) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stats.Published == 0 {
		return Frame{}, false
	}

	s.read = true
	return s.frame, true
}

// Wait blocks until a frame newer than after is published, the slot is
// closed or ctx is done
func (s *Slot) Wait(ctx context.Context, after uint64) (Frame, bool) {

	// wake the waiter when ctx ends
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.frame.Seq <= after && !s.closed && ctx.Err() == nil {
		s.cond.Wait()
	}

	if s.frame.Seq <= after {
		return Frame{}, false
	}

	s.read = true
	return s.frame, true
}

// Stats returns the slot counters
func (s *Slot) Stats() Stats {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stats
}

// Close wakes all waiters, later publishes are ignored
func (s *Slot) Close() error {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.cond.Broadcast()

	return nil
}
