// Package bufpool implements a small fixed ring of off-screen RGBA buffers
// shared between a producer that renders frames and a presenter that displays
// them.
//
// A buffer moves idle -> in flight (Dequeue) -> ready (Queue) -> acquired
// (AcquireLatest) -> idle (Release). AcquireLatest always hands out the newest
// ready buffer and recycles every older one, so a slow consumer only ever sees
// the most recent frame.
package bufpool

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gogpu/gputypes"
)

// DefaultFormat matches the byte order of image.RGBA, so buffers in this
// format can be copied to the display without conversion.
const DefaultFormat = gputypes.TextureFormatRGBA8Unorm

// Formats lists the 32-bit layouts a pool can hold. Every buffer is backed by
// an *image.RGBA; for BGRA8Unorm the first and third bytes of each pixel hold
// blue and red.
var Formats = []gputypes.TextureFormat{
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatBGRA8Unorm,
}

// MinCapacity is the smallest ring that still allows one buffer to be written
// while another is on screen.
const MinCapacity = 2

var (
	ErrInvalidSize = errors.New("bufpool: width and height must be positive")
	ErrCapacity    = fmt.Errorf("bufpool: capacity must be at least %d", MinCapacity)
	ErrClosed      = errors.New("bufpool: pool closed")
	ErrStale       = errors.New("bufpool: buffer belongs to a previous allocation")
	ErrFormat      = errors.New("bufpool: unsupported pixel format")
)

type bufferState int

const (
	stateIdle bufferState = iota
	stateInFlight
	stateReady
	stateAcquired
)

func (s bufferState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateInFlight:
		return "in-flight"
	case stateReady:
		return "ready"
	case stateAcquired:
		return "acquired"
	default:
		return "unknown"
	}
}

// Buffer is one image-sized block of pixels owned by a Pool.
type Buffer struct {
	Image  *image.RGBA
	Format gputypes.TextureFormat

	seq   uint64
	gen   uint64
	state bufferState
}

// Seq is the sequence id stamped when the buffer was last queued.
func (b *Buffer) Seq() uint64 { return b.seq }

func (b *Buffer) Bounds() image.Rectangle { return b.Image.Bounds() }

type Stats struct {
	Format   gputypes.TextureFormat
	Width    int
	Height   int
	Capacity int
	Idle     int
	InFlight int
	Ready    int
	Acquired int
	Queued   uint64 // buffers marked ready over the pool lifetime
	Recycled uint64 // ready buffers dropped without being acquired
	LastSeq  uint64
}

type Pool struct {
	mu       sync.Mutex
	format   gputypes.TextureFormat
	width    int
	height   int
	capacity int
	gen      uint64

	idle     []*Buffer
	ready    []*Buffer // oldest first
	inFlight int
	acquired int

	nextSeq  uint64
	queued   uint64
	recycled uint64
	closed   bool

	listener func()
}

// New allocates capacity buffers of width x height pixels in DefaultFormat.
func New(width, height, capacity int) (*Pool, error) {
	return NewWithFormat(width, height, capacity, DefaultFormat)
}

func NewWithFormat(width, height, capacity int, format gputypes.TextureFormat) (*Pool, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidSize
	}
	if capacity < MinCapacity {
		return nil, ErrCapacity
	}
	if !SupportedFormat(format) {
		return nil, fmt.Errorf("%w: %s", ErrFormat, format)
	}
	p := &Pool{capacity: capacity, format: format}
	p.allocate(width, height)
	return p, nil
}

// SetImageAvailableListener registers fn to be called after every successful
// Queue. fn runs on the goroutine that queued the buffer.
func (p *Pool) SetImageAvailableListener(fn func()) {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
}

// Format is fixed for the life of the pool, across resizes.
func (p *Pool) Format() gputypes.TextureFormat { return p.format }

func (p *Pool) Size() (width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width, p.height
}

// Dequeue hands out a writable buffer. When every idle buffer is taken the
// oldest ready buffer is recycled for the writer. It returns false when no
// buffer can be handed out without waiting.
func (p *Pool) Dequeue() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, false
	}
	var b *Buffer
	switch {
	case len(p.idle) > 0:
		b = p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
	case len(p.ready) > 0:
		b = p.ready[0]
		p.ready = p.ready[1:]
		p.recycled++
	default:
		return nil, false
	}
	b.state = stateInFlight
	p.inFlight++
	return b, true
}

// Queue marks an in-flight buffer as ready and notifies the image-available
// listener. Buffers from before the last Resize are discarded with ErrStale.
func (p *Pool) Queue(b *Buffer) error {
	p.mu.Lock()
	if err := p.checkOwned(b); err != nil {
		p.mu.Unlock()
		return err
	}
	if b.state != stateInFlight {
		p.mu.Unlock()
		panic(fmt.Sprintf("bufpool: Queue of %s buffer", b.state))
	}
	p.nextSeq++
	b.seq = p.nextSeq
	b.state = stateReady
	p.inFlight--
	p.ready = append(p.ready, b)
	p.queued++
	listener := p.listener
	p.mu.Unlock()

	if listener != nil {
		listener()
	}
	return nil
}

// Cancel returns an in-flight buffer the writer decided not to complete.
func (p *Pool) Cancel(b *Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOwned(b); err != nil {
		return err
	}
	if b.state != stateInFlight {
		panic(fmt.Sprintf("bufpool: Cancel of %s buffer", b.state))
	}
	p.inFlight--
	p.toIdle(b)
	return nil
}

// AcquireLatest returns the most recently queued buffer and recycles every
// older ready buffer. It returns false when nothing is ready.
func (p *Pool) AcquireLatest() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.ready) == 0 {
		return nil, false
	}
	latest := p.ready[len(p.ready)-1]
	for _, stale := range p.ready[:len(p.ready)-1] {
		p.toIdle(stale)
		p.recycled++
	}
	p.ready = p.ready[:0]
	latest.state = stateAcquired
	p.acquired++
	return latest, true
}

// Release returns a displayed buffer to the idle ring.
func (p *Pool) Release(b *Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkOwned(b); err != nil {
		return err
	}
	if b.state != stateAcquired {
		panic(fmt.Sprintf("bufpool: Release of %s buffer", b.state))
	}
	p.acquired--
	p.toIdle(b)
	return nil
}

// Resize drops every buffer and allocates a fresh ring at the new size.
// Outstanding buffers from the old ring are rejected when handed back.
func (p *Pool) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidSize
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if width == p.width && height == p.height {
		return nil
	}
	p.allocate(width, height)
	return nil
}

// Close releases the backing memory. Later calls report ErrClosed or
// nothing available.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.gen++
	p.idle = nil
	p.ready = nil
	p.inFlight = 0
	p.acquired = 0
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Format:   p.format,
		Width:    p.width,
		Height:   p.height,
		Capacity: p.capacity,
		Idle:     len(p.idle),
		InFlight: p.inFlight,
		Ready:    len(p.ready),
		Acquired: p.acquired,
		Queued:   p.queued,
		Recycled: p.recycled,
		LastSeq:  p.nextSeq,
	}
}

// allocate must be called with p.mu held (or before p is shared).
func (p *Pool) allocate(width, height int) {
	p.gen++
	p.width = width
	p.height = height
	p.ready = nil
	p.inFlight = 0
	p.acquired = 0
	p.idle = make([]*Buffer, 0, p.capacity)
	for i := 0; i < p.capacity; i++ {
		p.idle = append(p.idle, &Buffer{
			Image:  image.NewRGBA(image.Rect(0, 0, width, height)),
			Format: p.format,
			gen:    p.gen,
		})
	}
}

func (p *Pool) checkOwned(b *Buffer) error {
	if b == nil {
		panic("bufpool: nil buffer")
	}
	if p.closed {
		return ErrClosed
	}
	if b.gen != p.gen {
		return ErrStale
	}
	return nil
}

func (p *Pool) toIdle(b *Buffer) {
	b.state = stateIdle
	p.idle = append(p.idle, b)
}
