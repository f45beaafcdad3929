package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/rook-computer/fbembed/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inlinePoster struct{}

func (inlinePoster) Post(fn func()) bool {
	fn()
	return true
}

func TestGetLayerAllocatesAndReuses(t *testing.T) {
	p := NewPool(render.NewMemDisplay(100, 100), inlinePoster{}, 2)

	a := p.GetLayer(image.Rect(0, 0, 50, 10))
	b := p.GetLayer(image.Rect(0, 90, 50, 100))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, p.Len())
	assert.Empty(t, p.UnusedLayers())
	assert.True(t, a.Target.Overlay())
	assert.True(t, a.Target.Available())

	p.RecycleLayers()
	assert.Len(t, p.UnusedLayers(), 2)

	c := p.GetLayer(image.Rect(10, 10, 30, 30))
	assert.Equal(t, a.ID, c.ID, "first unused layer is reused")
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, 20, c.Target.Width())
	require.Len(t, p.UnusedLayers(), 1)
	assert.Equal(t, b.ID, p.UnusedLayers()[0].ID)
}

func TestLayerFramesReachDisplay(t *testing.T) {
	display := render.NewMemDisplay(100, 100)
	p := NewPool(display, inlinePoster{}, 2)
	p.Border = false
	l := p.GetLayer(image.Rect(10, 10, 30, 30))

	pool := l.Target.Handle().Pool
	buf, ok := pool.Dequeue()
	require.True(t, ok)
	green := color.RGBA{G: 0xFF, A: 0xFF}
	draw.Draw(buf.Image, buf.Bounds(), image.NewUniform(green), image.Point{}, draw.Src)
	require.NoError(t, pool.Queue(buf))

	assert.Equal(t, green, display.Canvas().RGBAAt(10, 10))
	assert.Equal(t, uint64(1), l.Presenter.Stats().Presented)
}

func TestHideUnusedClearsLayer(t *testing.T) {
	display := render.NewMemDisplay(100, 100)
	p := NewPool(display, inlinePoster{}, 2)
	l := p.GetLayer(image.Rect(10, 10, 30, 30))
	draw.Draw(display.Canvas(), image.Rect(10, 10, 30, 30), image.NewUniform(color.White), image.Point{}, draw.Src)

	p.RecycleLayers()
	p.HideUnused()
	assert.False(t, l.Target.Available())
	assert.Equal(t, render.Background, display.Canvas().RGBAAt(15, 15))

	again := p.GetLayer(image.Rect(0, 0, 10, 10))
	assert.Equal(t, l.ID, again.ID)
	assert.True(t, again.Target.Available())
}

func TestClose(t *testing.T) {
	p := NewPool(render.NewMemDisplay(10, 10), inlinePoster{}, 2)
	l := p.GetLayer(image.Rect(0, 0, 5, 5))
	p.Close()
	assert.False(t, l.Target.Available())
	assert.Equal(t, 0, p.Len())
}
