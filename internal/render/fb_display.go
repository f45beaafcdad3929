package render

import (
	"image"
	"image/color"
	"sync/atomic"

	fb "github.com/gonutz/framebuffer"
)

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

// FBDisplay composites onto a logical canvas and blits it to a Linux
// framebuffer device with nearest-neighbor scaling.
type FBDisplay struct {
	Logger logger

	dev     *fb.Device
	canvas  *image.RGBA
	open    atomic.Bool
	flushes atomic.Uint64
}

// OpenFBDisplay opens the framebuffer at path (usually /dev/fb0) with a
// logical canvas of width x height pixels. Zero sizes use the device size.
func OpenFBDisplay(path string, width, height int, log logger) (*FBDisplay, error) {
	dev, err := fb.Open(path)
	if err != nil {
		return nil, err
	}
	bounds := dev.Bounds()
	if width <= 0 || height <= 0 {
		width, height = bounds.Dx(), bounds.Dy()
	}
	d := &FBDisplay{Logger: log, dev: dev, canvas: image.NewRGBA(image.Rect(0, 0, width, height))}
	d.open.Store(true)
	if log != nil {
		log.Infof("fb", "framebuffer %s open, bounds=%dx%d canvas=%dx%d", path, bounds.Dx(), bounds.Dy(), width, height)
	}
	Clear(d, d.canvas.Bounds())
	return d, d.Flush(d.canvas.Bounds())
}

func (d *FBDisplay) Canvas() *image.RGBA { return d.canvas }

func (d *FBDisplay) Flushes() uint64 { return d.flushes.Load() }

// Flush copies the canvas region dirty to the device.
func (d *FBDisplay) Flush(dirty image.Rectangle) error {
	if !d.open.Load() {
		return nil
	}
	d.flushes.Add(1)
	blitToFB(d.dev, d.canvas, dirty.Intersect(d.canvas.Bounds()))
	return nil
}

func (d *FBDisplay) Close() error {
	if !d.open.CompareAndSwap(true, false) {
		return nil
	}
	d.dev.Close()
	return nil
}

// blitToFB writes the device pixels covered by the canvas rectangle src,
// sampling the canvas nearest-neighbor.
func blitToFB(dev *fb.Device, canvas *image.RGBA, src image.Rectangle) {
	if dev == nil || src.Empty() {
		return
	}
	dst := scaleRect(src, canvas.Bounds(), dev.Bounds())
	fbWidth := dev.Bounds().Dx()
	fbHeight := dev.Bounds().Dy()
	canvasWidth := canvas.Bounds().Dx()
	canvasHeight := canvas.Bounds().Dy()
	for y := dst.Min.Y; y < dst.Max.Y; y++ {
		sy := ((y - dev.Bounds().Min.Y) * canvasHeight) / fbHeight
		for x := dst.Min.X; x < dst.Max.X; x++ {
			sx := ((x - dev.Bounds().Min.X) * canvasWidth) / fbWidth
			pixel := canvas.RGBAAt(sx, sy)
			dev.Set(x, y, color.RGBA{R: pixel.R, G: pixel.G, B: pixel.B, A: 0xFF})
		}
	}
}

// scaleRect maps r from the from space onto the to space, rounding outward so
// every destination pixel touched by r is covered.
func scaleRect(r, from, to image.Rectangle) image.Rectangle {
	if from.Empty() {
		return image.Rectangle{}
	}
	fw, fh := from.Dx(), from.Dy()
	tw, th := to.Dx(), to.Dy()
	minX := to.Min.X + ((r.Min.X-from.Min.X)*tw)/fw
	minY := to.Min.Y + ((r.Min.Y-from.Min.Y)*th)/fh
	maxX := to.Min.X + ((r.Max.X-from.Min.X)*tw+fw-1)/fw
	maxY := to.Min.Y + ((r.Max.Y-from.Min.Y)*th+fh-1)/fh
	return image.Rect(minX, minY, maxX, maxY).Intersect(to)
}
