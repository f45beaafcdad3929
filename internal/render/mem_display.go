package render

import (
	"bytes"
	"image"
	"image/png"
)

// MemDisplay is an in-memory Display used by the simulator and tests.
type MemDisplay struct {
	canvas  *image.RGBA
	flushes int
	dirty   image.Rectangle
}

func NewMemDisplay(width, height int) *MemDisplay {
	d := &MemDisplay{canvas: image.NewRGBA(image.Rect(0, 0, width, height))}
	Clear(d, d.canvas.Bounds())
	return d
}

func (d *MemDisplay) Canvas() *image.RGBA { return d.canvas }

func (d *MemDisplay) Flush(dirty image.Rectangle) error {
	d.flushes++
	d.dirty = d.dirty.Union(dirty.Intersect(d.canvas.Bounds()))
	return nil
}

func (d *MemDisplay) Close() error { return nil }

// Flushes returns the number of Flush calls so far.
func (d *MemDisplay) Flushes() int { return d.flushes }

// Dirty is the union of every flushed region.
func (d *MemDisplay) Dirty() image.Rectangle { return d.dirty }

// PNG encodes the current canvas.
func (d *MemDisplay) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
