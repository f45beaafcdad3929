package web

import (
	"context"
	"errors"

	"github.com/rook-computer/fbembed/internal/state"
)

// SessionControl abstracts the embedding session driven by the API.
//
// The concrete implementation is *app.App.
type SessionControl interface {
	Refresh(ctx context.Context) (state.State, error)
	AttachRenderer(ctx context.Context) error
	DetachRenderer(ctx context.Context) error
	AttachWindow(ctx context.Context) error
	DetachWindow(ctx context.Context) error
	TearDownWindow(ctx context.Context) error
	ResizeWindow(ctx context.Context, width, height int) error
}

// Snapshotter renders the current display contents. Only some binaries
// expose it.
type Snapshotter interface {
	SnapshotPNG(ctx context.Context) ([]byte, error)
}

// apiLogger matches the logging shape used across the repo.
// It is intentionally tiny so callers can pass existing loggers without adapters.
type apiLogger interface {
	Infof(component string, format string, args ...interface{})
	Errorf(component string, format string, args ...interface{})
}

type APIV1Deps struct {
	Session  SessionControl
	Snapshot Snapshotter
	Logger   apiLogger
}

func (d APIV1Deps) withDefaults() APIV1Deps {
	out := d
	if out.Session == nil {
		out.Session = NoopSession{Err: errors.New("session not configured")}
	}
	if out.Logger == nil {
		out.Logger = noopLogger{}
	}
	return out
}

type noopLogger struct{}

func (noopLogger) Infof(string, string, ...interface{})  {}
func (noopLogger) Errorf(string, string, ...interface{}) {}

// NoopSession rejects every operation with Err.
type NoopSession struct{ Err error }

func (s NoopSession) Refresh(context.Context) (state.State, error) { return state.State{}, s.err() }
func (s NoopSession) AttachRenderer(context.Context) error         { return s.err() }
func (s NoopSession) DetachRenderer(context.Context) error         { return s.err() }
func (s NoopSession) AttachWindow(context.Context) error           { return s.err() }
func (s NoopSession) DetachWindow(context.Context) error           { return s.err() }
func (s NoopSession) TearDownWindow(context.Context) error         { return s.err() }
func (s NoopSession) ResizeWindow(context.Context, int, int) error { return s.err() }

func (s NoopSession) err() error {
	if s.Err != nil {
		return s.Err
	}
	return errors.New("session not configured")
}
