// Package uiloop provides the single goroutine that owns all presentation
// state. Callbacks arriving on other goroutines post a task here instead of
// touching that state directly.
package uiloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

const defaultQueueSize = 256

var ErrStopped = errors.New("uiloop: loop stopped")

type Loop struct {
	tasks   chan func()
	done    chan struct{}
	stopped atomic.Bool
	once    sync.Once
	running atomic.Bool
}

func New() *Loop {
	return NewWithQueue(defaultQueueSize)
}

func NewWithQueue(size int) *Loop {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Loop{tasks: make(chan func(), size), done: make(chan struct{})}
}

// Run executes posted tasks in order until ctx is done. Tasks still queued
// when the loop stops are dropped.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("uiloop: already running")
	}
	defer l.stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post queues fn for the loop. It returns false once the loop has stopped.
// Post blocks only when the queue is full.
func (l *Loop) Post(fn func()) bool {
	if fn == nil || l.stopped.Load() {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Invoke runs fn on the loop and waits for it to finish.
func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
	})
}
