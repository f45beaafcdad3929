package render

import (
	"image"
	"image/draw"
)

// Display is the host-side drawable that presentation targets are composited
// onto. Drawing happens on an off-screen canvas; Flush pushes a dirty region
// to the device.
type Display interface {
	Canvas() *image.RGBA
	Flush(dirty image.Rectangle) error
	Close() error
}

// Clear paints rect with the background color.
func Clear(d Display, rect image.Rectangle) {
	canvas := d.Canvas()
	draw.Draw(canvas, rect.Intersect(canvas.Bounds()), &image.Uniform{C: Background}, image.Point{}, draw.Src)
}
