// Package present moves completed frames from a target's buffer pool onto
// the display.
package present

import (
	"image"
	"image/color"
	"image/draw"
	"sync/atomic"

	"github.com/rook-computer/fbembed/internal/bufpool"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/render/layout"
	"github.com/rook-computer/fbembed/internal/surface"
	xdraw "golang.org/x/image/draw"
)

// Poster hands work to the UI loop.
type Poster interface {
	Post(fn func()) bool
}

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

type Stats struct {
	Presented uint64
	Empty     uint64 // triggers with nothing ready
	Stale     uint64 // triggers after the surface went away
	Hidden    uint64 // triggers while the target was fully transparent
	LastSeq   uint64
}

type Presenter struct {
	Logger logger
	// Border outlines the target after each frame. It defaults to on for
	// overlay targets.
	Border bool

	target  *surface.Target
	display render.Display
	loop    Poster

	// loop-owned
	visible bool
	scratch *image.RGBA

	presented atomic.Uint64
	empty     atomic.Uint64
	stale     atomic.Uint64
	hidden    atomic.Uint64
	lastSeq   atomic.Uint64
	posted    atomic.Bool
}

// New creates a presenter for target and installs it as the target's
// image-available listener.
func New(target *surface.Target, display render.Display, loop Poster) *Presenter {
	p := &Presenter{target: target, display: display, loop: loop, Border: target.Overlay()}
	target.SetImageAvailableListener(p.OnImageAvailable)
	return p
}

// OnImageAvailable may be called from any goroutine. Bursts of notifications
// collapse into a single present on the loop, since each present takes the
// newest frame anyway.
func (p *Presenter) OnImageAvailable() {
	if !p.posted.CompareAndSwap(false, true) {
		return
	}
	if !p.loop.Post(p.run) {
		p.posted.Store(false)
	}
}

func (p *Presenter) run() {
	p.posted.Store(false)
	p.Present()
}

// Present shows the newest ready frame, if any. It must run on the loop and
// reports whether a frame was drawn. While the target is fully transparent
// frames are left ready, so the first one can be shown once it is revealed.
func (p *Presenter) Present() bool {
	h := p.target.Handle()
	if h == nil {
		p.stale.Add(1)
		return false
	}
	if p.target.Alpha() <= 0 {
		p.hide()
		p.hidden.Add(1)
		return false
	}
	buf, ok := h.Pool.AcquireLatest()
	if !ok {
		p.empty.Add(1)
		return false
	}
	p.draw(buf)
	p.visible = true
	if err := h.Pool.Release(buf); err != nil {
		p.logError("release frame %d: %v", buf.Seq(), err)
	}
	p.presented.Add(1)
	p.lastSeq.Store(buf.Seq())
	return true
}

// Stats is safe to call from any goroutine.
func (p *Presenter) Stats() Stats {
	return Stats{
		Presented: p.presented.Load(),
		Empty:     p.empty.Load(),
		Stale:     p.stale.Load(),
		Hidden:    p.hidden.Load(),
		LastSeq:   p.lastSeq.Load(),
	}
}

func (p *Presenter) draw(buf *bufpool.Buffer) {
	canvas := p.display.Canvas()
	rect := p.target.Rect().Intersect(canvas.Bounds())
	if rect.Empty() {
		return
	}
	src := bufpool.ToRGBA(buf, p.scratch)
	if src != buf.Image {
		p.scratch = src
	}
	dst := layout.FitAspect(p.target.Rect(), src.Bounds().Dx(), src.Bounds().Dy()).Intersect(canvas.Bounds())
	if dst != rect || p.target.Alpha() < 1 {
		render.Clear(p.display, rect)
	}

	switch alpha := p.target.Alpha(); {
	case alpha >= 1 && dst.Size() == src.Bounds().Size():
		draw.Draw(canvas, dst, src, src.Bounds().Min, draw.Src)
	case alpha >= 1:
		xdraw.NearestNeighbor.Scale(canvas, dst, src, src.Bounds(), xdraw.Src, nil)
	default:
		scaled := image.NewRGBA(dst)
		xdraw.NearestNeighbor.Scale(scaled, dst, src, src.Bounds(), xdraw.Src, nil)
		mask := image.NewUniform(color.Alpha{A: uint8(alpha * 0xFF)})
		draw.DrawMask(canvas, dst, scaled, dst.Min, mask, image.Point{}, draw.Over)
	}

	if p.Border {
		drawBorder(canvas, rect, render.OverlayBorder)
	}
	if err := p.display.Flush(rect); err != nil {
		p.logError("flush: %v", err)
	}
}

// hide clears whatever this target last put on the display.
func (p *Presenter) hide() {
	if !p.visible {
		return
	}
	p.visible = false
	rect := p.target.Rect().Intersect(p.display.Canvas().Bounds())
	if rect.Empty() {
		return
	}
	render.Clear(p.display, rect)
	if err := p.display.Flush(rect); err != nil {
		p.logError("flush: %v", err)
	}
}

// drawBorder strokes a one pixel outline just inside rect.
func drawBorder(dst draw.Image, rect image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+1),
		image.Rect(rect.Min.X, rect.Max.Y-1, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+1, rect.Max.Y),
		image.Rect(rect.Max.X-1, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, edge := range edges {
		draw.Draw(dst, edge.Intersect(rect), src, image.Point{}, draw.Src)
	}
}

func (p *Presenter) logError(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Errorf("present", format, args...)
	}
}
