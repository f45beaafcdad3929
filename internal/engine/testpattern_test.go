package engine

import (
	"context"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rook-computer/fbembed/internal/bufpool"
	"github.com/rook-computer/fbembed/internal/render"
	"github.com/rook-computer/fbembed/internal/surface"
	"github.com/rook-computer/fbembed/internal/vsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct {
	mu      sync.Mutex
	cookies []vsync.Cookie
	err     error
}

func (g *fakeGate) RequestVsync(c vsync.Cookie) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.cookies = append(g.cookies, c)
	return nil
}

func (g *fakeGate) requests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cookies)
}

type countingListener struct {
	mu    sync.Mutex
	calls int
}

func (l *countingListener) OnFirstFrameDisplayed() {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
}

func (l *countingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newHandle(t *testing.T, w, h int) *surface.Handle {
	t.Helper()
	pool, err := bufpool.New(w, h, 3)
	require.NoError(t, err)
	return &surface.Handle{ID: uuid.New(), Width: w, Height: h, Pool: pool}
}

// step renders the frame OnVsync handed to the raster goroutine.
func step(t *testing.T, e *TestPattern) {
	t.Helper()
	select {
	case req := <-e.work:
		e.renderFrame(req)
	default:
		t.Fatal("no frame requested")
	}
}

func TestStartRequestsVsync(t *testing.T) {
	gate := &fakeGate{}
	e, err := New(gate, Config{})
	require.NoError(t, err)
	assert.Equal(t, "testpattern", e.String())

	e.StartRenderingToSurface(newHandle(t, 64, 48))
	assert.Equal(t, 1, gate.requests())
}

func TestFrameLoop(t *testing.T) {
	gate := &fakeGate{}
	e, err := New(gate, Config{StampSizePx: 32})
	require.NoError(t, err)
	first := &countingListener{}
	e.AddFirstFrameListener(first)

	h := newHandle(t, 160, 120)
	e.StartRenderingToSurface(h)

	for i := 0; i < 3; i++ {
		e.OnVsync(int64(i)*16_666_667, int64(i+1)*16_666_667, vsync.Cookie(i+1))
		step(t, e)
	}
	assert.Equal(t, uint64(3), e.Frames())
	assert.Equal(t, 4, gate.requests(), "one request per frame plus the initial one")
	assert.Equal(t, 1, first.count(), "first frame fires once")

	buf, ok := h.Pool.AcquireLatest()
	require.True(t, ok)
	assert.Equal(t, uint64(3), buf.Seq())
	assert.NotEqual(t, render.Background, buf.Image.RGBAAt(0, 0))
}

func TestStopIgnoresLateAnswers(t *testing.T) {
	gate := &fakeGate{}
	e, err := New(gate, Config{})
	require.NoError(t, err)
	h := newHandle(t, 32, 32)
	e.StartRenderingToSurface(h)

	e.OnVsync(0, 16, 1)
	e.StopRenderingToSurface()
	step(t, e)
	assert.Equal(t, uint64(0), e.Frames())
	assert.Equal(t, 1, gate.requests())

	e.OnVsync(16, 32, 2)
	assert.Empty(t, e.work)
}

func TestRestartFiresFirstFrameAgain(t *testing.T) {
	gate := &fakeGate{}
	e, err := New(gate, Config{})
	require.NoError(t, err)
	first := &countingListener{}
	e.AddFirstFrameListener(first)

	e.StartRenderingToSurface(newHandle(t, 32, 32))
	e.OnVsync(0, 16, 1)
	step(t, e)
	e.StopRenderingToSurface()

	e.StartRenderingToSurface(newHandle(t, 48, 32))
	e.OnVsync(32, 48, 2)
	step(t, e)
	assert.Equal(t, 2, first.count())

	e.RemoveFirstFrameListener(first)
	e.StopRenderingToSurface()
	e.StartRenderingToSurface(newHandle(t, 48, 32))
	e.OnVsync(64, 80, 3)
	step(t, e)
	assert.Equal(t, 2, first.count())
}

func TestPendingRequestIsNotAnError(t *testing.T) {
	gate := &fakeGate{err: vsync.ErrRequestPending}
	e, err := New(gate, Config{})
	require.NoError(t, err)
	e.StartRenderingToSurface(newHandle(t, 32, 32))
	assert.Equal(t, 0, gate.requests())
}

func TestNewestVsyncWins(t *testing.T) {
	e, err := New(&fakeGate{}, Config{})
	require.NoError(t, err)
	e.StartRenderingToSurface(newHandle(t, 32, 32))
	e.OnVsync(0, 16, 1)
	e.OnVsync(16, 32, 2)
	req := <-e.work
	assert.Equal(t, vsync.Cookie(2), req.cookie)
}

func TestRunStopsWithContext(t *testing.T) {
	e, err := New(&fakeGate{}, Config{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPaintHonoursPoolFormat(t *testing.T) {
	for _, format := range bufpool.Formats {
		t.Run(format.String(), func(t *testing.T) {
			e, err := New(&fakeGate{}, Config{})
			require.NoError(t, err)
			pool, err := bufpool.NewWithFormat(160, 120, 2, format)
			require.NoError(t, err)
			e.StartRenderingToSurface(&surface.Handle{ID: uuid.New(), Width: 160, Height: 120, Pool: pool})
			e.OnVsync(0, 16_666_667, 1)
			step(t, e)

			buf, ok := pool.AcquireLatest()
			require.True(t, ok)
			assert.Equal(t, format, buf.Format)
			img := bufpool.ToRGBA(buf, nil)
			// frame 1: bar starts at x=4, background shade 1
			assert.Equal(t, render.Foreground, img.RGBAAt(5, 118))
			assert.Equal(t, color.RGBA{R: 0x11, G: 0x30, B: 0x60, A: 0xFF}, img.RGBAAt(100, 118))
		})
	}
}
