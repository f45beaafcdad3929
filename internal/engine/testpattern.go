// Package engine provides a self-contained rendering engine that paints a
// moving test pattern. It stands in for an external engine: it is driven only
// through the surface contract and paces itself with vsync answers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/rook-computer/fbembed/internal/attach"
	"github.com/rook-computer/fbembed/internal/bufpool"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/render/layout"
	"github.com/rook-computer/fbembed/internal/surface"
	"github.com/rook-computer/fbembed/internal/vsync"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

// Requester is the part of the vsync gate the engine talks to.
type Requester interface {
	RequestVsync(cookie vsync.Cookie) error
}

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

type Config struct {
	Name string
	// LabelSizePt is the frame label font size; 0 uses 24pt.
	LabelSizePt float64
	// StampSizePx is the QR frame stamp size; 0 disables the stamp.
	StampSizePx int
}

type frameRequest struct {
	session  uint64
	handle   *surface.Handle
	start    int64
	deadline int64
	cookie   vsync.Cookie
}

// TestPattern implements attach.Renderer and vsync.Sink. Frames are painted
// on the goroutine running Run, never on the caller of OnVsync.
type TestPattern struct {
	Logger logger

	name  string
	gate  Requester
	face  font.Face
	stamp int
	work  chan frameRequest

	mu         sync.Mutex
	session    uint64
	handle     *surface.Handle
	rendering  bool
	cookie     vsync.Cookie
	listeners  []attach.FirstFrameListener
	firstFrame bool
	frames     uint64
}

func New(gate Requester, cfg Config) (*TestPattern, error) {
	fnt, err := truetype.Parse(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse label font: %w", err)
	}
	size := cfg.LabelSizePt
	if size <= 0 {
		size = 24
	}
	name := cfg.Name
	if name == "" {
		name = "testpattern"
	}
	return &TestPattern{
		name:  name,
		gate:  gate,
		face:  truetype.NewFace(fnt, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull}),
		stamp: cfg.StampSizePx,
		work:  make(chan frameRequest, 1),
	}, nil
}

func (e *TestPattern) String() string { return e.name }

// Frames is the number of frames queued so far.
func (e *TestPattern) Frames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Run paints requested frames until ctx is done.
func (e *TestPattern) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-e.work:
			e.renderFrame(req)
		}
	}
}

func (e *TestPattern) StartRenderingToSurface(h *surface.Handle) {
	e.mu.Lock()
	e.session++
	e.handle = h
	e.rendering = true
	e.firstFrame = false
	session := e.session
	e.mu.Unlock()
	e.logInfo("rendering to %s", h)
	e.requestNext(session)
}

func (e *TestPattern) StopRenderingToSurface() {
	e.mu.Lock()
	e.session++
	e.handle = nil
	e.rendering = false
	e.mu.Unlock()
	e.logInfo("stopped rendering")
}

func (e *TestPattern) SurfaceResized(width, height int) {
	e.logInfo("surface resized to %dx%d", width, height)
}

func (e *TestPattern) AddFirstFrameListener(l attach.FirstFrameListener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

func (e *TestPattern) RemoveFirstFrameListener(l attach.FirstFrameListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.listeners {
		if existing == l {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// OnVsync implements vsync.Sink. The newest request replaces one the raster
// goroutine has not picked up yet.
func (e *TestPattern) OnVsync(frameStartNanos, frameDeadlineNanos int64, cookie vsync.Cookie) {
	e.mu.Lock()
	if !e.rendering {
		e.mu.Unlock()
		return
	}
	req := frameRequest{session: e.session, handle: e.handle, start: frameStartNanos, deadline: frameDeadlineNanos, cookie: cookie}
	e.mu.Unlock()

	for {
		select {
		case e.work <- req:
			return
		default:
		}
		select {
		case <-e.work:
		default:
		}
	}
}

func (e *TestPattern) renderFrame(req frameRequest) {
	if !e.current(req.session) {
		return
	}
	pool := req.handle.Pool
	buf, ok := pool.Dequeue()
	if !ok {
		e.requestNext(req.session)
		return
	}
	e.mu.Lock()
	seq := e.frames + 1
	e.mu.Unlock()
	e.paint(buf, seq, req.start)

	if err := pool.Queue(buf); err != nil {
		if !errors.Is(err, bufpool.ErrStale) && !errors.Is(err, bufpool.ErrClosed) {
			e.logError("queue frame: %v", err)
		}
		e.requestNext(req.session)
		return
	}

	e.mu.Lock()
	e.frames++
	var notify []attach.FirstFrameListener
	if !e.firstFrame && e.session == req.session {
		e.firstFrame = true
		notify = append(notify, e.listeners...)
	}
	e.mu.Unlock()
	for _, l := range notify {
		l.OnFirstFrameDisplayed()
	}
	e.requestNext(req.session)
}

func (e *TestPattern) current(session uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rendering && e.session == session
}

func (e *TestPattern) requestNext(session uint64) {
	e.mu.Lock()
	if !e.rendering || e.session != session {
		e.mu.Unlock()
		return
	}
	e.cookie++
	cookie := e.cookie
	e.mu.Unlock()

	err := e.gate.RequestVsync(cookie)
	switch {
	case err == nil:
	case errors.Is(err, vsync.ErrRequestPending):
		// the outstanding answer will drive the next frame
	default:
		e.logError("request vsync: %v", err)
	}
}

func (e *TestPattern) paint(buf *bufpool.Buffer, seq uint64, frameStart int64) {
	img := buf.Image
	bounds := img.Bounds()
	// Colors are stored in the pool's byte order; white text and the QR
	// stamp read the same in either order.
	fill := func(c color.RGBA) *image.Uniform {
		return image.NewUniform(bufpool.StoredColor(buf.Format, c))
	}
	shade := uint8(seq % 64)
	draw.Draw(img, bounds, fill(color.RGBA{R: 0x10 + shade, G: 0x30, B: 0x60, A: 0xFF}), image.Point{}, draw.Src)

	barWidth := bounds.Dx() / 16
	if barWidth < 1 {
		barWidth = 1
	}
	x := int(seq*4) % bounds.Dx()
	bar := image.Rect(x, bounds.Min.Y, x+barWidth, bounds.Max.Y).Intersect(bounds)
	draw.Draw(img, bar, fill(render.Foreground), image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: img, Src: image.NewUniform(color.White), Face: e.face}
	drawer.Dot = fixed.P(bounds.Min.X+12, bounds.Min.Y+12+e.face.Metrics().Ascent.Ceil())
	drawer.DrawString(fmt.Sprintf("%s frame %d", e.name, seq))

	if e.stamp <= 0 {
		return
	}
	stamp, err := render.FrameStamp(seq, frameStart, e.stamp)
	if err != nil || stamp == nil {
		return
	}
	dst := layout.AnchorBottomRight(layout.Inset(bounds, 8), stamp.Bounds().Dx(), stamp.Bounds().Dy())
	draw.Draw(img, dst, stamp, stamp.Bounds().Min, draw.Src)
}

func (e *TestPattern) logInfo(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Infof("engine", format, args...)
	}
}

func (e *TestPattern) logError(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Errorf("engine", format, args...)
	}
}
