// Package overlay manages host-drawn layers stacked above the renderer's
// target, such as the status HUD. Layers are reused from frame to frame.
//
// A Pool is not safe for concurrent use; it belongs to the UI loop.
package overlay

import (
	"image"

	"github.com/google/uuid"
	"github.com/rook-computer/fbembed/internal/present"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/surface"
)

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

// Layer is one overlay target with its own buffers and presenter.
type Layer struct {
	ID        uuid.UUID
	Target    *surface.Target
	Presenter *present.Presenter

	inUse bool
}

func (l *Layer) InUse() bool { return l.inUse }

type Pool struct {
	Logger logger
	// Border outlines each layer; see present.Presenter.Border.
	Border bool

	display     render.Display
	loop        present.Poster
	bufferCount int
	layers      []*Layer
}

func NewPool(display render.Display, loop present.Poster, bufferCount int) *Pool {
	return &Pool{display: display, loop: loop, bufferCount: bufferCount, Border: true}
}

// GetLayer returns a layer placed at rect, reusing one not handed out since
// the last RecycleLayers before allocating a new one.
func (p *Pool) GetLayer(rect image.Rectangle) *Layer {
	var layer *Layer
	for _, l := range p.layers {
		if !l.inUse {
			layer = l
			break
		}
	}
	if layer == nil {
		layer = p.newLayer()
	}
	layer.inUse = true
	layer.Target.OnAttachedToDisplay()
	layer.Target.Layout(rect)
	return layer
}

// RecycleLayers marks every layer reusable. Call it at the start of a frame.
func (p *Pool) RecycleLayers() {
	for _, l := range p.layers {
		l.inUse = false
	}
}

// UnusedLayers lists the layers not handed out since the last RecycleLayers.
func (p *Pool) UnusedLayers() []*Layer {
	var unused []*Layer
	for _, l := range p.layers {
		if !l.inUse {
			unused = append(unused, l)
		}
	}
	return unused
}

// HideUnused releases the storage of every unused layer and clears its area.
func (p *Pool) HideUnused() {
	for _, l := range p.UnusedLayers() {
		if !l.Target.Available() {
			continue
		}
		rect := l.Target.Rect()
		l.Target.OnDetachedFromDisplay()
		render.Clear(p.display, rect)
		if err := p.display.Flush(rect); err != nil {
			p.logError("flush hidden layer %s: %v", l.ID, err)
		}
	}
}

func (p *Pool) Len() int { return len(p.layers) }

// Close detaches every layer.
func (p *Pool) Close() {
	for _, l := range p.layers {
		l.Target.OnDetachedFromDisplay()
	}
	p.layers = nil
}

func (p *Pool) newLayer() *Layer {
	target := surface.NewTarget(surface.Options{BufferCount: p.bufferCount, Overlay: true})
	presenter := present.New(target, p.display, p.loop)
	presenter.Border = p.Border
	if p.Logger != nil {
		target.Logger = p.Logger
		presenter.Logger = p.Logger
	}
	l := &Layer{ID: uuid.New(), Target: target, Presenter: presenter}
	p.layers = append(p.layers, l)
	p.logInfo("allocated layer %s", l.ID)
	return l
}

func (p *Pool) logInfo(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Infof("overlay", format, args...)
	}
}

func (p *Pool) logError(format string, args ...interface{}) {
	if p.Logger != nil {
		p.Logger.Errorf("overlay", format, args...)
	}
}
