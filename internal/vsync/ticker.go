package vsync

import (
	"context"
	"sync"
	"time"
)

// Poster hands work to the UI loop.
type Poster interface {
	Post(fn func()) bool
}

// TickerSource is a TimingSource driven by a time.Ticker at a fixed refresh
// rate. Frame callbacks run on the loop it was given.
type TickerSource struct {
	hz   float64
	loop Poster

	mu        sync.Mutex
	callbacks []func(int64)
	frames    uint64
}

func NewTickerSource(hz float64, loop Poster) *TickerSource {
	return &TickerSource{hz: hz, loop: loop}
}

func (s *TickerSource) RefreshRateHz() float64 { return s.hz }

func (s *TickerSource) PostFrameCallback(cb func(frameTimeNanos int64)) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.mu.Unlock()
}

// Frames is the number of ticks that delivered at least one callback.
func (s *TickerSource) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Run ticks until ctx is done.
func (s *TickerSource) Run(ctx context.Context) error {
	if !(s.hz > 0) {
		return ErrInvalidRate
	}
	ticker := time.NewTicker(time.Duration(PeriodFromRate(s.hz)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			ts := now.UnixNano()
			if s.loop == nil {
				s.Tick(ts)
				continue
			}
			if !s.loop.Post(func() { s.Tick(ts) }) {
				return nil
			}
		}
	}
}

// Tick delivers every callback registered so far with frame time ts.
// Callbacks registered while Tick runs wait for the next one.
func (s *TickerSource) Tick(ts int64) {
	s.mu.Lock()
	pending := s.callbacks
	s.callbacks = nil
	if len(pending) > 0 {
		s.frames++
	}
	s.mu.Unlock()
	for _, cb := range pending {
		cb(ts)
	}
}
