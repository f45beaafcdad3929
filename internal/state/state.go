package state

import "sync"

// Phase is the attachment phase of the presentation target: whether a
// surface exists and whether a renderer is bound to it.
type Phase int

const (
	IDLE Phase = iota
	SURFACE_ONLY
	RENDERER_ONLY
	LIVE
)

func (p Phase) String() string {
	switch p {
	case IDLE:
		return "idle"
	case SURFACE_ONLY:
		return "surface-only"
	case RENDERER_ONLY:
		return "renderer-only"
	case LIVE:
		return "live"
	default:
		return "unknown"
	}
}

// HasSurface reports whether the phase implies an available surface.
func (p Phase) HasSurface() bool { return p == SURFACE_ONLY || p == LIVE }

// HasRenderer reports whether the phase implies a bound renderer.
func (p Phase) HasRenderer() bool { return p == RENDERER_ONLY || p == LIVE }

type SurfaceInfo struct {
	Available bool
	Width     int
	Height    int
	Alpha     float64
	Format    string // pixel format of the surface buffers
}

type FrameInfo struct {
	Rendered  uint64 // frames the renderer queued
	Presented uint64
	Empty     uint64 // triggers that found no ready buffer
	Recycled  uint64 // ready buffers superseded before display
	LastSeq   uint64
}

type VsyncInfo struct {
	PeriodNanos int64
	Ticks       uint64 // timing source frames
	Requested   uint64
	Answered    uint64
	Discarded   uint64
}

type State struct {
	Phase    Phase
	Renderer string
	Surface  SurfaceInfo
	Frames   FrameInfo
	Vsync    VsyncInfo
}

type Store struct {
	mu    sync.RWMutex
	state State
}

func NewStore() *Store {
	return &Store{state: State{Phase: IDLE}}
}

func (store *Store) Snapshot() State {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.state
}

func (store *Store) SetPhase(phase Phase) {
	store.mu.Lock()
	store.state.Phase = phase
	store.mu.Unlock()
}

func (store *Store) SetRenderer(name string) {
	store.mu.Lock()
	store.state.Renderer = name
	store.mu.Unlock()
}

func (store *Store) UpdateSurface(surface SurfaceInfo) {
	store.mu.Lock()
	store.state.Surface = surface
	store.mu.Unlock()
}

func (store *Store) UpdateFrames(frames FrameInfo) {
	store.mu.Lock()
	store.state.Frames = frames
	store.mu.Unlock()
}

func (store *Store) UpdateVsync(vsync VsyncInfo) {
	store.mu.Lock()
	store.state.Vsync = vsync
	store.mu.Unlock()
}
