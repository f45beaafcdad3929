package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rook-computer/fbembed/internal/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	calls []string
	keys  []system.Key
}

func (s *recordingSession) HandleKey(_ context.Context, k system.Key) error {
	s.keys = append(s.keys, k)
	return nil
}

func (s *recordingSession) DetachRenderer(context.Context) error { return s.call("detach-renderer") }
func (s *recordingSession) DetachWindow(context.Context) error   { return s.call("detach-window") }
func (s *recordingSession) AttachWindow(context.Context) error   { return s.call("attach-window") }
func (s *recordingSession) AttachRenderer(context.Context) error { return s.call("attach-renderer") }

func (s *recordingSession) call(name string) error {
	s.calls = append(s.calls, name)
	return nil
}

func TestSimKeyEndpoint(t *testing.T) {
	session := &recordingSession{}
	mux := http.NewServeMux()
	registerSimEndpoints(mux, NewSimControl(session))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sim/key/f2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []system.Key{system.KeyF2}, session.keys)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sim/key/F9", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sim/key/F2", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSimReset(t *testing.T) {
	session := &recordingSession{}
	mux := http.NewServeMux()
	registerSimEndpoints(mux, NewSimControl(session))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sim/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"detach-renderer", "detach-window", "attach-window", "attach-renderer"}, session.calls)
}

func TestDisplayAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", displayAddr("[::]:8080"))
	assert.Equal(t, "127.0.0.1:9000", displayAddr(":9000"))
	assert.Equal(t, "192.168.1.5:80", displayAddr("192.168.1.5:80"))
	assert.Equal(t, "127.0.0.1:8080", displayAddr("garbage"))
}
