// Package surface tracks the drawable region a renderer paints into and
// whether host backing storage currently exists for it.
//
// A Target is not safe for concurrent use; it belongs to the UI loop.
package surface

import (
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/google/uuid"
	"github.com/rook-computer/fbembed/internal/bufpool"
)

const DefaultBufferCount = bufpool.MinCapacity

// Handle is the opaque surface handed to a renderer. It only exists while the
// target is attached to a display and has a non-zero size.
type Handle struct {
	ID     uuid.UUID
	Width  int
	Height int
	Pool   *bufpool.Pool
}

func (h *Handle) String() string {
	return fmt.Sprintf("surface %s (%dx%d %s)", h.ID, h.Width, h.Height, h.Pool.Format())
}

// Listener receives surface lifecycle changes.
type Listener interface {
	SurfaceAvailable(h *Handle)
	SurfaceResized(width, height int)
	SurfaceUnavailable()
}

type logger interface {
	Infof(string, string, ...interface{})
	Errorf(string, string, ...interface{})
}

type Options struct {
	// BufferCount is the pool capacity; values below 2 are raised to 2.
	BufferCount int
	// Overlay targets are visible from the start and get a debug border.
	Overlay bool
	// Format of the backing buffers; bufpool.DefaultFormat when unset.
	Format gputypes.TextureFormat
}

type Target struct {
	Logger logger

	rect        image.Rectangle
	alpha       float64
	overlay     bool
	bufferCount int
	format      gputypes.TextureFormat

	handle   *Handle
	listener Listener
	onImage  func()

	attached  bool // attached to a display
	token     bool // host window still valid
	observing bool // waiting for the first non-zero layout
}

func NewTarget(opts Options) *Target {
	count := opts.BufferCount
	if count < bufpool.MinCapacity {
		count = DefaultBufferCount
	}
	format := opts.Format
	if format == gputypes.TextureFormatUndefined {
		format = bufpool.DefaultFormat
	}
	t := &Target{overlay: opts.Overlay, bufferCount: count, format: format}
	if opts.Overlay {
		t.alpha = 1
	}
	return t
}

func (t *Target) SetListener(l Listener) { t.listener = l }

// SetImageAvailableListener installs fn on the current pool and on every pool
// allocated later.
func (t *Target) SetImageAvailableListener(fn func()) {
	t.onImage = fn
	if t.handle != nil {
		t.handle.Pool.SetImageAvailableListener(fn)
	}
}

func (t *Target) Rect() image.Rectangle { return t.rect }
func (t *Target) Width() int            { return t.rect.Dx() }
func (t *Target) Height() int           { return t.rect.Dy() }
func (t *Target) Overlay() bool         { return t.overlay }
func (t *Target) Alpha() float64        { return t.alpha }
func (t *Target) Handle() *Handle       { return t.handle }
func (t *Target) Available() bool       { return t.handle != nil }

// WindowAttached reports whether the host window backing this target is
// still valid.
func (t *Target) WindowAttached() bool { return t.token }

func (t *Target) SetAlpha(alpha float64) {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	t.alpha = alpha
}

// OnAttachedToDisplay starts watching layout. Storage is allocated on the
// first layout where both sides are non-zero.
func (t *Target) OnAttachedToDisplay() {
	if t.attached {
		return
	}
	t.attached = true
	t.token = true
	t.observing = true
	t.maybeAllocate()
}

// Layout records the target's placement on the display.
func (t *Target) Layout(rect image.Rectangle) {
	rect = rect.Canon()
	t.rect = rect
	if !t.attached {
		return
	}
	if t.observing {
		t.maybeAllocate()
		return
	}
	if t.handle == nil {
		return
	}
	if rect.Empty() {
		// A surface never outlives a zero size; wait for the next valid layout.
		t.release()
		t.observing = true
		return
	}
	if rect.Dx() == t.handle.Width && rect.Dy() == t.handle.Height {
		return
	}
	if err := t.handle.Pool.Resize(rect.Dx(), rect.Dy()); err != nil {
		t.logError("resize to %dx%d failed: %v", rect.Dx(), rect.Dy(), err)
		return
	}
	t.handle.Width = rect.Dx()
	t.handle.Height = rect.Dy()
	t.logInfo("%s resized", t.handle)
	if t.listener != nil {
		t.listener.SurfaceResized(rect.Dx(), rect.Dy())
	}
}

// OnDetachedFromDisplay releases storage and cancels a pending layout watch.
func (t *Target) OnDetachedFromDisplay() {
	if !t.attached {
		return
	}
	t.observing = false
	t.release()
	t.attached = false
	t.token = false
}

// InvalidateWindow records that the host already tore the window down, ahead
// of the detach notification.
func (t *Target) InvalidateWindow() { t.token = false }

func (t *Target) maybeAllocate() {
	if t.rect.Dx() <= 0 || t.rect.Dy() <= 0 {
		return
	}
	pool, err := bufpool.NewWithFormat(t.rect.Dx(), t.rect.Dy(), t.bufferCount, t.format)
	if err != nil {
		t.logError("allocate %dx%d: %v", t.rect.Dx(), t.rect.Dy(), err)
		return
	}
	t.observing = false
	if t.onImage != nil {
		pool.SetImageAvailableListener(t.onImage)
	}
	t.handle = &Handle{ID: uuid.New(), Width: t.rect.Dx(), Height: t.rect.Dy(), Pool: pool}
	t.logInfo("%s available", t.handle)
	if t.listener != nil {
		t.listener.SurfaceAvailable(t.handle)
	}
}

func (t *Target) release() {
	if t.handle == nil {
		return
	}
	h := t.handle
	if t.listener != nil {
		t.listener.SurfaceUnavailable()
	}
	t.handle = nil
	h.Pool.Close()
	t.logInfo("%s released", h)
}

func (t *Target) logInfo(format string, args ...interface{}) {
	if t.Logger != nil {
		t.Logger.Infof("surface", format, args...)
	}
}

func (t *Target) logError(format string, args ...interface{}) {
	if t.Logger != nil {
		t.Logger.Errorf("surface", format, args...)
	}
}
