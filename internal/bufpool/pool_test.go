package bufpool

import (
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cycle(t *testing.T, p *Pool) {
	t.Helper()
	b, ok := p.Dequeue()
	require.True(t, ok)
	require.NoError(t, p.Queue(b))
	got, ok := p.AcquireLatest()
	require.True(t, ok)
	require.NoError(t, p.Release(got))
}

func TestNewValidates(t *testing.T) {
	_, err := New(0, 10, 2)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = New(10, 10, 1)
	assert.ErrorIs(t, err, ErrCapacity)

	p, err := New(100, 200, 2)
	require.NoError(t, err)
	w, h := p.Size()
	assert.Equal(t, 100, w)
	assert.Equal(t, 200, h)
	b, ok := p.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 100, b.Bounds().Dx())
	assert.Equal(t, 200, b.Bounds().Dy())
	assert.Len(t, b.Image.Pix, 100*200*4)
}

func TestAcquireLatestEmpty(t *testing.T) {
	p, err := New(4, 4, 2)
	require.NoError(t, err)
	b, ok := p.AcquireLatest()
	assert.False(t, ok)
	assert.Nil(t, b)
}

func TestAcquireLatestReturnsNewestAndRecyclesOlder(t *testing.T) {
	p, err := New(4, 4, 3)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		cycle(t, p)
	}

	var bufs []*Buffer
	for i := 0; i < 3; i++ {
		b, ok := p.Dequeue()
		require.True(t, ok)
		bufs = append(bufs, b)
	}
	for _, b := range bufs {
		require.NoError(t, p.Queue(b))
	}
	assert.Equal(t, uint64(5), bufs[0].Seq())
	assert.Equal(t, uint64(6), bufs[1].Seq())
	assert.Equal(t, uint64(7), bufs[2].Seq())

	got, ok := p.AcquireLatest()
	require.True(t, ok)
	assert.Equal(t, uint64(7), got.Seq())

	st := p.Stats()
	assert.Equal(t, 2, st.Idle)
	assert.Equal(t, 1, st.Acquired)
	assert.Equal(t, 0, st.Ready)
	assert.Equal(t, uint64(2), st.Recycled)

	require.NoError(t, p.Release(got))
	assert.Equal(t, 3, p.Stats().Idle)
}

func TestAcquireLatestHighestSeqForAnyN(t *testing.T) {
	for n := 1; n <= 4; n++ {
		p, err := New(2, 2, 4)
		require.NoError(t, err)
		var last uint64
		for i := 0; i < n; i++ {
			b, ok := p.Dequeue()
			require.True(t, ok)
			require.NoError(t, p.Queue(b))
			last = b.Seq()
		}
		got, ok := p.AcquireLatest()
		require.True(t, ok)
		assert.Equal(t, last, got.Seq())
		st := p.Stats()
		assert.Equal(t, 4-1, st.Idle, "n=%d", n)
		assert.Equal(t, uint64(n-1), st.Recycled, "n=%d", n)
	}
}

func TestDequeueStealsOldestReady(t *testing.T) {
	p, err := New(2, 2, 2)
	require.NoError(t, err)
	a, _ := p.Dequeue()
	b, _ := p.Dequeue()
	require.NoError(t, p.Queue(a))
	require.NoError(t, p.Queue(b))

	c, ok := p.Dequeue()
	require.True(t, ok)
	assert.Same(t, a, c)
	assert.Equal(t, uint64(1), p.Stats().Recycled)

	_, ok = p.Dequeue()
	assert.True(t, ok)
	_, ok = p.Dequeue()
	assert.False(t, ok, "everything in flight")
}

func TestCancelReturnsBufferIdle(t *testing.T) {
	p, err := New(2, 2, 2)
	require.NoError(t, err)
	b, _ := p.Dequeue()
	require.NoError(t, p.Cancel(b))
	st := p.Stats()
	assert.Equal(t, 2, st.Idle)
	assert.Equal(t, 0, st.InFlight)
}

func TestListenerFiresOnQueue(t *testing.T) {
	p, err := New(2, 2, 2)
	require.NoError(t, err)
	var calls atomic.Int32
	p.SetImageAvailableListener(func() { calls.Add(1) })
	b, _ := p.Dequeue()
	require.NoError(t, p.Queue(b))
	assert.Equal(t, int32(1), calls.Load())
}

func TestContractViolationsPanic(t *testing.T) {
	p, err := New(2, 2, 2)
	require.NoError(t, err)
	b, _ := p.Dequeue()
	require.NoError(t, p.Queue(b))
	assert.Panics(t, func() { _ = p.Queue(b) })
	assert.Panics(t, func() { _ = p.Release(b) })
}

func TestResizeInvalidatesOutstanding(t *testing.T) {
	p, err := New(2, 2, 2)
	require.NoError(t, err)
	inflight, _ := p.Dequeue()
	ready, _ := p.Dequeue()
	require.NoError(t, p.Queue(ready))

	require.NoError(t, p.Resize(8, 6))
	assert.ErrorIs(t, p.Queue(inflight), ErrStale)
	_, ok := p.AcquireLatest()
	assert.False(t, ok, "resize drops ready frames")

	st := p.Stats()
	assert.Equal(t, 8, st.Width)
	assert.Equal(t, 6, st.Height)
	assert.Equal(t, 2, st.Idle)

	b, _ := p.Dequeue()
	assert.Equal(t, 8, b.Bounds().Dx())
	require.NoError(t, p.Queue(b))
	assert.Greater(t, b.Seq(), ready.Seq(), "sequence ids keep increasing across resizes")
}

func TestClose(t *testing.T) {
	p, err := New(2, 2, 2)
	require.NoError(t, err)
	b, _ := p.Dequeue()
	p.Close()
	assert.ErrorIs(t, p.Queue(b), ErrClosed)
	_, ok := p.Dequeue()
	assert.False(t, ok)
	assert.ErrorIs(t, p.Resize(4, 4), ErrClosed)
}

func TestFormatIsCarriedThroughResize(t *testing.T) {
	_, err := NewWithFormat(4, 4, 2, gputypes.TextureFormatR8Unorm)
	assert.ErrorIs(t, err, ErrFormat)

	p, err := NewWithFormat(4, 4, 2, gputypes.TextureFormatBGRA8Unorm)
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, p.Stats().Format)

	require.NoError(t, p.Resize(8, 8))
	b, ok := p.Dequeue()
	require.True(t, ok)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, b.Format)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, p.Format())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("bgra8unorm")
	require.NoError(t, err)
	assert.Equal(t, gputypes.TextureFormatBGRA8Unorm, f)
	f, err = ParseFormat("RGBA8Unorm")
	require.NoError(t, err)
	assert.Equal(t, DefaultFormat, f)
	_, err = ParseFormat("r8unorm")
	assert.ErrorIs(t, err, ErrFormat)
}

func TestToRGBASwizzlesBGRA(t *testing.T) {
	orange := color.RGBA{R: 0xFF, G: 0x80, B: 0x10, A: 0xFF}

	p, err := NewWithFormat(2, 2, 2, gputypes.TextureFormatBGRA8Unorm)
	require.NoError(t, err)
	b, ok := p.Dequeue()
	require.True(t, ok)
	b.Image.SetRGBA(1, 1, StoredColor(b.Format, orange))
	assert.Equal(t, []uint8{0x10, 0x80, 0xFF, 0xFF}, b.Image.Pix[b.Image.PixOffset(1, 1):b.Image.PixOffset(1, 1)+4])

	out := ToRGBA(b, nil)
	assert.NotSame(t, b.Image, out)
	assert.Equal(t, orange, out.RGBAAt(1, 1))

	again := ToRGBA(b, out)
	assert.Same(t, out, again, "matching scratch is reused")

	rgba, err := New(2, 2, 2)
	require.NoError(t, err)
	rb, ok := rgba.Dequeue()
	require.True(t, ok)
	assert.Same(t, rb.Image, ToRGBA(rb, image.NewRGBA(image.Rect(0, 0, 2, 2))))
}
