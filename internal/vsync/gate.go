// Package vsync paces a renderer to the display refresh. A Gate turns
// one-shot "wake me on the next vsync" requests into exactly one
// (frame start, frame deadline) answer each.
//
// A Gate is owned by the session that owns the renderer; there is no process
// wide instance.
package vsync

import (
	"errors"
	"math"
	"sync"
)

// Cookie identifies one outstanding request. It is opaque to the gate.
type Cookie int64

// Sink receives vsync answers.
type Sink interface {
	OnVsync(frameStartNanos, frameDeadlineNanos int64, cookie Cookie)
}

// TimingSource is the host's per-frame callback mechanism. Each callback
// posted is invoked at most once, with the frame timestamp in nanoseconds.
type TimingSource interface {
	RefreshRateHz() float64
	PostFrameCallback(cb func(frameTimeNanos int64))
}

var (
	ErrRequestPending = errors.New("vsync: request already outstanding")
	ErrNotBound       = errors.New("vsync: no sink bound")
	ErrClosed         = errors.New("vsync: gate closed")
	ErrInvalidRate    = errors.New("vsync: refresh rate must be positive")
)

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

type Stats struct {
	PeriodNanos int64
	Requested   uint64
	Answered    uint64
	Discarded   uint64
}

type Gate struct {
	Logger logger

	source TimingSource
	period int64

	mu        sync.Mutex
	sink      Sink
	epoch     uint64
	pending   bool
	cookie    Cookie
	closed    bool
	requested uint64
	answered  uint64
	discarded uint64
}

// PeriodFromRate converts a refresh rate to a frame period in whole
// nanoseconds, rounded to nearest.
func PeriodFromRate(hz float64) int64 {
	return int64(math.Round(1e9 / hz))
}

// New samples the source's refresh rate once; the period is not re-read for
// later frames.
func New(source TimingSource) (*Gate, error) {
	hz := source.RefreshRateHz()
	if !(hz > 0) || math.IsInf(hz, 0) {
		return nil, ErrInvalidRate
	}
	return &Gate{source: source, period: PeriodFromRate(hz)}, nil
}

func (g *Gate) PeriodNanos() int64 { return g.period }

// Bind routes future answers to s. Any answer still in flight for a
// previous sink is discarded.
func (g *Gate) Bind(s Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.epoch++
	g.pending = false
	g.sink = s
}

// Unbind drops the sink. An answer in flight is discarded rather than
// delivered to a renderer that no longer owns a surface.
func (g *Gate) Unbind() {
	g.Bind(nil)
}

// RequestVsync asks for the next frame. Only one request may be outstanding;
// a second one is a protocol violation and is rejected, never merged.
func (g *Gate) RequestVsync(cookie Cookie) error {
	g.mu.Lock()
	switch {
	case g.closed:
		g.mu.Unlock()
		return ErrClosed
	case g.sink == nil:
		g.mu.Unlock()
		return ErrNotBound
	case g.pending:
		outstanding := g.cookie
		g.mu.Unlock()
		g.logError("request %d while %d outstanding", cookie, outstanding)
		return ErrRequestPending
	}
	g.pending = true
	g.cookie = cookie
	g.requested++
	epoch := g.epoch
	g.mu.Unlock()

	g.source.PostFrameCallback(func(frameTimeNanos int64) {
		g.onFrame(epoch, frameTimeNanos)
	})
	return nil
}

func (g *Gate) onFrame(epoch uint64, frameTimeNanos int64) {
	g.mu.Lock()
	if g.closed || epoch != g.epoch || !g.pending {
		g.discarded++
		g.mu.Unlock()
		g.logInfo("discarding stale vsync at %d", frameTimeNanos)
		return
	}
	g.pending = false
	sink, cookie := g.sink, g.cookie
	g.answered++
	g.mu.Unlock()

	sink.OnVsync(frameTimeNanos, frameTimeNanos+g.period, cookie)
}

// Close stops all future answers.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.epoch++
	g.pending = false
	g.sink = nil
}

func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		PeriodNanos: g.period,
		Requested:   g.requested,
		Answered:    g.answered,
		Discarded:   g.discarded,
	}
}

func (g *Gate) logInfo(format string, args ...interface{}) {
	if g.Logger != nil {
		g.Logger.Infof("vsync", format, args...)
	}
}

func (g *Gate) logError(format string, args ...interface{}) {
	if g.Logger != nil {
		g.Logger.Errorf("vsync", format, args...)
	}
}
