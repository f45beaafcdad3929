// Package attach binds at most one external renderer to a presentation
// target and drives the renderer's start/stop calls from the cross product of
// "surface exists" and "renderer attached".
//
//	                 surface available
//	      Idle ---------------------------> SurfaceOnly
//	       |  ^                              |  ^
//	attach |  | detach                attach |  | detach (stop, alpha 0)
//	       v  |                              v  |
//	  RendererOnly ------------------------> Live (start)
//	               <------------------------
//	                 surface unavailable (stop)
//
// A Binding is not safe for concurrent use; it belongs to the UI loop.
package attach

import (
	"fmt"

	"github.com/rook-computer/fbembed/internal/state"
	"github.com/rook-computer/fbembed/internal/surface"
)

// FirstFrameListener is told once the renderer has put its first frame on
// screen.
type FirstFrameListener interface {
	OnFirstFrameDisplayed()
}

// Renderer is the external engine's surface contract.
type Renderer interface {
	StartRenderingToSurface(h *surface.Handle)
	StopRenderingToSurface()
	SurfaceResized(width, height int)
	AddFirstFrameListener(l FirstFrameListener)
	RemoveFirstFrameListener(l FirstFrameListener)
}

// Poster hands work to the goroutine that owns the binding.
type Poster interface {
	Post(fn func()) bool
}

type Hooks struct {
	// Attached runs after a renderer is bound, before it may be started.
	Attached func(r Renderer)
	// Detached runs after a renderer was stopped and unbound.
	Detached     func(r Renderer)
	PhaseChanged func(from, to state.Phase)
	// VisibilityChanged runs after the target alpha was set to 1 on the first
	// frame or to 0 on detach, so the host can repaint the target.
	VisibilityChanged func(visible bool)
}

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

type Binding struct {
	Logger logger
	Hooks  Hooks
	// Loop receives first-frame signals, which may arrive on any goroutine.
	// When nil they are handled inline.
	Loop Poster

	target   *surface.Target
	renderer Renderer
	listener *firstFrame
	handle   *surface.Handle
	started  bool
	phase    state.Phase

	// stopSkipped is set when the surface went away after the host window,
	// so the renderer still owes a stop before it may start again.
	stopSkipped bool
}

// New creates a binding and registers it as the target's surface listener.
func New(target *surface.Target) *Binding {
	b := &Binding{target: target, handle: target.Handle()}
	target.SetListener(b)
	b.phase = b.computePhase()
	return b
}

func (b *Binding) Phase() state.Phase      { return b.phase }
func (b *Binding) Renderer() Renderer      { return b.renderer }
func (b *Binding) Rendering() bool         { return b.started }
func (b *Binding) Target() *surface.Target { return b.target }

// Attach binds r. A renderer already bound is stopped and unbound first.
func (b *Binding) Attach(r Renderer) {
	if r == nil {
		panic("attach: nil renderer")
	}
	if b.renderer != nil {
		b.logInfo("already bound to %s, detaching it before binding %s", name(b.renderer), name(r))
		b.unbind()
	}
	b.renderer = r
	b.listener = &firstFrame{binding: b, renderer: r}
	r.AddFirstFrameListener(b.listener)
	if b.Hooks.Attached != nil {
		b.Hooks.Attached(r)
	}
	if b.handle != nil {
		b.logInfo("surface available, connecting %s", name(r))
		b.start()
	}
	b.updatePhase()
}

// Detach stops and unbinds the current renderer, hiding the target so a
// stale or blank buffer is never exposed.
func (b *Binding) Detach() {
	if b.renderer == nil {
		b.logInfo("detach requested with no renderer bound")
		return
	}
	b.unbind()
	b.target.SetAlpha(0)
	b.updatePhase()
	b.visibilityChanged(false)
}

// SurfaceAvailable implements surface.Listener.
func (b *Binding) SurfaceAvailable(h *surface.Handle) {
	b.handle = h
	if b.renderer != nil {
		b.start()
	}
	b.updatePhase()
}

// SurfaceResized implements surface.Listener.
func (b *Binding) SurfaceResized(width, height int) {
	if b.started {
		b.logInfo("surface size changed to %dx%d", width, height)
		b.renderer.SurfaceResized(width, height)
	}
}

// SurfaceUnavailable implements surface.Listener. The stop call is deferred
// when the host window is already gone; it is issued before the renderer is
// started again or unbound.
func (b *Binding) SurfaceUnavailable() {
	if b.started {
		if b.target.WindowAttached() {
			b.stop()
		} else {
			b.logInfo("window already torn down, deferring stop for %s", name(b.renderer))
			b.started = false
			b.stopSkipped = true
		}
	}
	b.handle = nil
	b.updatePhase()
}

func (b *Binding) unbind() {
	old := b.renderer
	if b.started {
		b.stop()
	}
	b.flushSkippedStop()
	if b.listener != nil {
		old.RemoveFirstFrameListener(b.listener)
		b.listener = nil
	}
	b.renderer = nil
	if b.Hooks.Detached != nil {
		b.Hooks.Detached(old)
	}
}

func (b *Binding) start() {
	if b.renderer == nil || b.handle == nil {
		panic("attach: start requires a renderer and a surface")
	}
	if b.started {
		panic(fmt.Sprintf("attach: %s already rendering", name(b.renderer)))
	}
	b.flushSkippedStop()
	b.renderer.StartRenderingToSurface(b.handle)
	b.started = true
}

func (b *Binding) stop() {
	if !b.started {
		panic("attach: stop without a matching start")
	}
	b.started = false
	b.logInfo("disconnecting %s from %s", name(b.renderer), b.handle)
	b.renderer.StopRenderingToSurface()
}

func (b *Binding) flushSkippedStop() {
	if !b.stopSkipped {
		return
	}
	b.stopSkipped = false
	b.logInfo("issuing deferred stop for %s", name(b.renderer))
	b.renderer.StopRenderingToSurface()
}

func (b *Binding) firstFrameDisplayed(l *firstFrame) {
	if b.listener != l {
		return
	}
	b.logInfo("first frame displayed, revealing target")
	b.target.SetAlpha(1)
	l.renderer.RemoveFirstFrameListener(l)
	b.listener = nil
	b.visibilityChanged(true)
}

func (b *Binding) visibilityChanged(visible bool) {
	if b.Hooks.VisibilityChanged != nil {
		b.Hooks.VisibilityChanged(visible)
	}
}

func (b *Binding) computePhase() state.Phase {
	switch {
	case b.handle != nil && b.renderer != nil:
		return state.LIVE
	case b.handle != nil:
		return state.SURFACE_ONLY
	case b.renderer != nil:
		return state.RENDERER_ONLY
	default:
		return state.IDLE
	}
}

func (b *Binding) updatePhase() {
	next := b.computePhase()
	if next == b.phase {
		return
	}
	prev := b.phase
	b.phase = next
	b.logInfo("%s -> %s", prev, next)
	if b.Hooks.PhaseChanged != nil {
		b.Hooks.PhaseChanged(prev, next)
	}
}

func (b *Binding) logInfo(format string, args ...interface{}) {
	if b.Logger != nil {
		b.Logger.Infof("attach", format, args...)
	}
}

type firstFrame struct {
	binding  *Binding
	renderer Renderer
}

func (f *firstFrame) OnFirstFrameDisplayed() {
	if f.binding.Loop == nil {
		f.binding.firstFrameDisplayed(f)
		return
	}
	f.binding.Loop.Post(func() { f.binding.firstFrameDisplayed(f) })
}

func name(r Renderer) string {
	if s, ok := r.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", r)
}

// Name returns a display name for r.
func Name(r Renderer) string { return name(r) }
