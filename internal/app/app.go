package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/rook-computer/fbembed/internal/attach"
	"github.com/rook-computer/fbembed/internal/engine"
	"github.com/rook-computer/fbembed/internal/overlay"
	"github.com/rook-computer/fbembed/internal/present"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/render/layout"
	"github.com/rook-computer/fbembed/internal/state"
	"github.com/rook-computer/fbembed/internal/surface"
	"github.com/rook-computer/fbembed/internal/system"
	"github.com/rook-computer/fbembed/internal/uiloop"
	"github.com/rook-computer/fbembed/internal/vsync"
	"golang.org/x/sync/errgroup"
)

const defaultStatusInterval = 250 * time.Millisecond

var errExitRequested = errors.New("app: exit requested")

type Options struct {
	RefreshHz     float64
	BufferCount   int
	HUD           bool
	HUDSizePt     float64
	OverlayBorder bool
	StampSizePx   int
	// PixelFormat of the renderer's buffers; bufpool.DefaultFormat when unset.
	PixelFormat gputypes.TextureFormat
	// AutoAttach attaches the window and the test pattern renderer on Run.
	AutoAttach bool
	// StatusInterval is how often the store and HUD are refreshed.
	StatusInterval time.Duration
}

// App is one embedding session: a presentation target on a display, the
// renderer bound to it and the vsync gate pacing that renderer. All
// presentation state lives on the UI loop; the exported methods are safe to
// call from any goroutine.
type App struct {
	Store  *state.Store
	Logger Logger

	opts      Options
	display   render.Display
	loop      *uiloop.Loop
	source    *vsync.TickerSource
	gate      *vsync.Gate
	target    *surface.Target
	binding   *attach.Binding
	presenter *present.Presenter
	engine    *engine.TestPattern
	overlays  *overlay.Pool
	hud       *render.HUD

	contentRect image.Rectangle
	statusRect  image.Rectangle
	windowRect  image.Rectangle

	exitOnce atomic.Bool
	exitCh   chan error
}

func New(display render.Display, opts Options, logger Logger) (*App, error) {
	if logger == nil {
		logger = NoopLogger{}
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = defaultStatusInterval
	}
	if opts.HUDSizePt <= 0 {
		opts.HUDSizePt = 14
	}

	app := &App{
		Store:   state.NewStore(),
		Logger:  logger,
		opts:    opts,
		display: display,
		loop:    uiloop.New(),
		exitCh:  make(chan error, 1),
	}

	app.source = vsync.NewTickerSource(opts.RefreshHz, app.loop)
	gate, err := vsync.New(app.source)
	if err != nil {
		return nil, fmt.Errorf("vsync gate: %w", err)
	}
	gate.Logger = logger
	app.gate = gate

	app.engine, err = engine.New(gate, engine.Config{StampSizePx: opts.StampSizePx})
	if err != nil {
		return nil, err
	}
	app.engine.Logger = logger

	app.target = surface.NewTarget(surface.Options{BufferCount: opts.BufferCount, Format: opts.PixelFormat})
	app.target.Logger = logger
	app.presenter = present.New(app.target, display, app.loop)
	app.presenter.Logger = logger

	app.binding = attach.New(app.target)
	app.binding.Logger = logger
	app.binding.Loop = app.loop
	app.binding.Hooks = attach.Hooks{
		Attached:     app.onRendererAttached,
		Detached:     app.onRendererDetached,
		PhaseChanged: func(_, to state.Phase) { app.Store.SetPhase(to) },

		// Frames queued while hidden are still ready; show the newest now.
		VisibilityChanged: func(bool) { app.presenter.Present() },
	}

	app.overlays = overlay.NewPool(display, app.loop, opts.BufferCount)
	app.overlays.Logger = logger
	app.overlays.Border = opts.OverlayBorder

	bounds := display.Canvas().Bounds()
	app.contentRect = bounds
	if opts.HUD {
		hud, err := render.NewHUD(opts.HUDSizePt)
		if err != nil {
			logger.Errorf("app", "hud font: %v", err)
		}
		app.hud = hud
		app.statusRect, app.contentRect = layout.SplitHorizontal(bounds, hud.Height())
	}
	app.windowRect = app.contentRect
	app.Store.UpdateVsync(state.VsyncInfo{PeriodNanos: gate.PeriodNanos()})
	return app, nil
}

// Exit requests the app to stop running. Only the first call counts.
func (app *App) Exit(err error) {
	if !app.exitOnce.CompareAndSwap(false, true) {
		return
	}
	select {
	case app.exitCh <- err:
	default:
	}
}

// Run drives the session until ctx is done or Exit is called, then tears
// the renderer and surface down.
func (app *App) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return app.loop.Run(groupCtx) })
	group.Go(func() error { return app.source.Run(groupCtx) })
	group.Go(func() error { return app.engine.Run(groupCtx) })
	group.Go(func() error { return app.refreshLoop(groupCtx) })

	var exitErr error
	group.Go(func() error {
		select {
		case <-groupCtx.Done():
			return nil
		case exitErr = <-app.exitCh:
			return errExitRequested
		}
	})

	if app.opts.AutoAttach {
		app.loop.Post(func() {
			app.attachWindow(app.windowRect)
			app.binding.Attach(app.engine)
		})
	}

	err := group.Wait()
	app.shutdown()

	switch {
	case errors.Is(err, errExitRequested):
		return exitErr
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

// shutdown runs after the loop has stopped, so it owns presentation state.
func (app *App) shutdown() {
	if app.binding.Renderer() != nil {
		app.binding.Detach()
	}
	app.target.OnDetachedFromDisplay()
	app.overlays.Close()
	app.gate.Close()
	app.Logger.Infof("app", "session stopped")
}

func (app *App) AttachRenderer(ctx context.Context) error {
	return app.loop.Invoke(ctx, func() { app.binding.Attach(app.engine) })
}

func (app *App) DetachRenderer(ctx context.Context) error {
	return app.loop.Invoke(ctx, app.binding.Detach)
}

// AttachWindow attaches the target to the display at its last window size.
func (app *App) AttachWindow(ctx context.Context) error {
	return app.loop.Invoke(ctx, func() { app.attachWindow(app.windowRect) })
}

// DetachWindow removes the target from the display.
func (app *App) DetachWindow(ctx context.Context) error {
	return app.loop.Invoke(ctx, app.detachWindow)
}

// TearDownWindow simulates the host destroying the window before the target
// learns it is detached; the renderer is not asked to stop.
func (app *App) TearDownWindow(ctx context.Context) error {
	return app.loop.Invoke(ctx, func() {
		app.target.InvalidateWindow()
		app.detachWindow()
	})
}

// ResizeWindow places the target in the top-left of the content area. A
// zero size keeps the target attached without storage.
func (app *App) ResizeWindow(ctx context.Context, width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("invalid window size %dx%d", width, height)
	}
	return app.loop.Invoke(ctx, func() {
		old := app.target.Rect()
		app.windowRect = layout.AnchorTopLeft(app.contentRect, width, height)
		app.target.Layout(app.windowRect)
		app.clear(old)
	})
}

// ToggleRenderer attaches the renderer when none is bound and detaches it
// otherwise.
func (app *App) ToggleRenderer(ctx context.Context) error {
	return app.loop.Invoke(ctx, func() {
		if app.binding.Phase().HasRenderer() {
			app.binding.Detach()
			return
		}
		app.binding.Attach(app.engine)
	})
}

func (app *App) ToggleWindow(ctx context.Context) error {
	return app.loop.Invoke(ctx, func() {
		if app.target.WindowAttached() {
			app.detachWindow()
			return
		}
		app.attachWindow(app.windowRect)
	})
}

// ControlKeys are the keys HandleKey acts on.
var ControlKeys = []system.Key{system.KeyF2, system.KeyF3, system.KeyF4}

// HandleKey maps the console controls: F2 toggles the renderer, F3 toggles
// the window and F4 exits.
func (app *App) HandleKey(ctx context.Context, k system.Key) error {
	switch k {
	case system.KeyF2:
		return app.ToggleRenderer(ctx)
	case system.KeyF3:
		return app.ToggleWindow(ctx)
	case system.KeyF4:
		app.Logger.Infof("app", "%s pressed: exiting", k)
		app.Exit(nil)
		return nil
	}
	return fmt.Errorf("no action bound to %s", k)
}

// Snapshot returns the last published status.
func (app *App) Snapshot() state.State { return app.Store.Snapshot() }

// Refresh publishes fresh status and waits for it.
func (app *App) Refresh(ctx context.Context) (state.State, error) {
	if err := app.loop.Invoke(ctx, app.refresh); err != nil {
		return state.State{}, err
	}
	return app.Store.Snapshot(), nil
}

// SnapshotPNG encodes the display canvas as PNG.
func (app *App) SnapshotPNG(ctx context.Context) ([]byte, error) {
	var frame *image.RGBA
	if err := app.loop.Invoke(ctx, func() {
		canvas := app.display.Canvas()
		frame = image.NewRGBA(canvas.Bounds())
		draw.Draw(frame, frame.Bounds(), canvas, canvas.Bounds().Min, draw.Src)
	}); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func (app *App) attachWindow(rect image.Rectangle) {
	app.target.OnAttachedToDisplay()
	app.target.Layout(rect)
}

func (app *App) detachWindow() {
	rect := app.target.Rect()
	app.target.OnDetachedFromDisplay()
	app.clear(rect)
}

func (app *App) clear(rect image.Rectangle) {
	if rect.Empty() {
		return
	}
	render.Clear(app.display, rect)
	if err := app.display.Flush(rect); err != nil {
		app.Logger.Errorf("app", "flush: %v", err)
	}
}

func (app *App) onRendererAttached(r attach.Renderer) {
	if sink, ok := r.(vsync.Sink); ok {
		app.gate.Bind(sink)
	}
	app.Store.SetRenderer(attach.Name(r))
}

func (app *App) onRendererDetached(attach.Renderer) {
	app.gate.Unbind()
	app.Store.SetRenderer("")
}

func (app *App) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(app.opts.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			app.loop.Post(app.refresh)
		}
	}
}

// refresh publishes status to the store and redraws the HUD. Loop only.
func (app *App) refresh() {
	surfaceInfo := state.SurfaceInfo{Alpha: app.target.Alpha()}
	var recycled uint64
	if h := app.target.Handle(); h != nil {
		surfaceInfo.Available = true
		surfaceInfo.Width = h.Width
		surfaceInfo.Height = h.Height
		ps := h.Pool.Stats()
		surfaceInfo.Format = ps.Format.String()
		recycled = ps.Recycled
	}
	app.Store.UpdateSurface(surfaceInfo)

	ps := app.presenter.Stats()
	app.Store.UpdateFrames(state.FrameInfo{
		Rendered:  app.engine.Frames(),
		Presented: ps.Presented,
		Empty:     ps.Empty,
		Recycled:  recycled,
		LastSeq:   ps.LastSeq,
	})

	gs := app.gate.Stats()
	app.Store.UpdateVsync(state.VsyncInfo{
		PeriodNanos: gs.PeriodNanos,
		Ticks:       app.source.Frames(),
		Requested:   gs.Requested,
		Answered:    gs.Answered,
		Discarded:   gs.Discarded,
	})

	app.drawOverlays()
}

func (app *App) drawOverlays() {
	app.overlays.RecycleLayers()
	if app.hud != nil && !app.statusRect.Empty() {
		layer := app.overlays.GetLayer(app.statusRect)
		if h := layer.Target.Handle(); h != nil {
			if buf, ok := h.Pool.Dequeue(); ok {
				app.hud.Draw(buf.Image, app.Store.Snapshot())
				if err := h.Pool.Queue(buf); err != nil {
					app.Logger.Errorf("app", "queue hud frame: %v", err)
				}
			}
		}
	}
	app.overlays.HideUnused()
}

// Logger interface and implementations
type Logger interface {
	Infof(component string, format string, args ...interface{})
	Errorf(component string, format string, args ...interface{})
}

type NoopLogger struct{}

func (NoopLogger) Infof(component, format string, args ...interface{})  {}
func (NoopLogger) Errorf(component, format string, args ...interface{}) {}

type FileLogger struct{ w io.Writer }

func NewFileLogger(w io.Writer) FileLogger { return FileLogger{w: w} }
func (l FileLogger) Infof(component string, format string, args ...interface{}) {
	writeLog(l.w, "INFO", component, format, args...)
}
func (l FileLogger) Errorf(component string, format string, args ...interface{}) {
	writeLog(l.w, "ERROR", component, format, args...)
}

func writeLog(w io.Writer, level, component, format string, args ...interface{}) {
	timestamp := time.Now().Format(time.RFC3339)
	msg := fmt.Sprintf(format, args...)
	_, _ = io.WriteString(w, timestamp+" ["+level+"] "+component+": "+msg+"\n")
}
