package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rook-computer/fbembed/internal/state"
	"github.com/rook-computer/fbembed/internal/uiloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	snap   state.State
	calls  []string
	width  int
	height int
	err    error
}

func (f *fakeSession) Refresh(context.Context) (state.State, error) { return f.snap, nil }

func (f *fakeSession) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeSession) AttachRenderer(context.Context) error {
	f.snap.Renderer = "testpattern"
	return f.record("attach-renderer")
}

func (f *fakeSession) DetachRenderer(context.Context) error { return f.record("detach-renderer") }
func (f *fakeSession) AttachWindow(context.Context) error   { return f.record("attach-window") }
func (f *fakeSession) DetachWindow(context.Context) error   { return f.record("detach-window") }
func (f *fakeSession) TearDownWindow(context.Context) error { return f.record("teardown-window") }

func (f *fakeSession) ResizeWindow(_ context.Context, w, h int) error {
	f.width, f.height = w, h
	return f.record("resize-window")
}

type fakeSnapshot struct{}

func (fakeSnapshot) SnapshotPNG(context.Context) ([]byte, error) { return []byte("\x89PNG"), nil }

func serve(t *testing.T, deps APIV1Deps, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewDefaultMux(deps).ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestStatus(t *testing.T) {
	session := &fakeSession{snap: state.State{
		Phase:    state.LIVE,
		Renderer: "testpattern",
		Surface:  state.SurfaceInfo{Available: true, Width: 640, Height: 480, Alpha: 1, Format: "RGBA8Unorm"},
		Frames:   state.FrameInfo{Rendered: 5, Presented: 4},
		Vsync:    state.VsyncInfo{PeriodNanos: 16_666_667, Ticks: 6},
	}}
	rec := serve(t, APIV1Deps{Session: session}, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	resp := decodeStatus(t, rec)
	assert.Equal(t, "live", resp.Phase)
	assert.Equal(t, "testpattern", resp.Renderer)
	assert.Equal(t, 640, resp.Surface.Width)
	assert.Equal(t, "RGBA8Unorm", resp.Surface.Format)
	assert.Equal(t, uint64(5), resp.Frames.Rendered)
	assert.Equal(t, int64(16_666_667), resp.Vsync.PeriodNanos)
	assert.Equal(t, uint64(6), resp.Vsync.Ticks)
}

func TestCommands(t *testing.T) {
	session := &fakeSession{}
	deps := APIV1Deps{Session: session}

	rec := serve(t, deps, http.MethodPost, "/api/v1/renderer/attach", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "testpattern", decodeStatus(t, rec).Renderer)

	for _, path := range []string{"/api/v1/renderer/detach", "/api/v1/window/attach", "/api/v1/window/detach", "/api/v1/window/detach?teardown=1"} {
		rec := serve(t, deps, http.MethodPost, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, []string{"attach-renderer", "detach-renderer", "attach-window", "detach-window", "teardown-window"}, session.calls)
}

func TestCommandsRequirePost(t *testing.T) {
	rec := serve(t, APIV1Deps{Session: &fakeSession{}}, http.MethodGet, "/api/v1/renderer/attach", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, APIV1Deps{Session: &fakeSession{}}, http.MethodPost, "/api/v1/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResize(t *testing.T) {
	session := &fakeSession{}
	rec := serve(t, APIV1Deps{Session: session}, http.MethodPost, "/api/v1/window/resize", `{"width":320,"height":200}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 320, session.width)
	assert.Equal(t, 200, session.height)

	rec = serve(t, APIV1Deps{Session: session}, http.MethodPost, "/api/v1/window/resize", `{"width":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, APIV1Deps{Session: session}, http.MethodPost, "/api/v1/window/resize", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionErrors(t *testing.T) {
	rec := serve(t, APIV1Deps{Session: &fakeSession{err: uiloop.ErrStopped}}, http.MethodPost, "/api/v1/window/attach", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(t, APIV1Deps{Session: &fakeSession{err: errors.New("boom")}}, http.MethodPost, "/api/v1/window/attach", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var apiErr apiError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&apiErr))
	assert.Equal(t, "session_error", apiErr.Error)
	assert.Equal(t, "boom", apiErr.Message)

	rec = serve(t, APIV1Deps{}, http.MethodGet, "/api/v1/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "unconfigured session")
}

func TestSnapshot(t *testing.T) {
	rec := serve(t, APIV1Deps{Session: &fakeSession{}}, http.MethodGet, "/api/v1/snapshot.png", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	rec = serve(t, APIV1Deps{Session: &fakeSession{}, Snapshot: fakeSnapshot{}}, http.MethodGet, "/api/v1/snapshot.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", rec.Body.String())
}

func TestRootRedirects(t *testing.T) {
	rec := serve(t, APIV1Deps{}, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/v1/status", rec.Header().Get("Location"))

	rec = serve(t, APIV1Deps{}, http.MethodGet, "/index.html", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDevCORS(t *testing.T) {
	handler := WithDevCORS(NewDefaultMux(APIV1Deps{Session: &fakeSession{}}))
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/status", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET,POST,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestHTTPServerLifecycle(t *testing.T) {
	server := NewHTTPServer(ServerConfig{ListenAddr: "127.0.0.1:0"})
	server.Handler = NewDefaultMux(APIV1Deps{Session: &fakeSession{}})
	require.NoError(t, server.Start(context.Background()))

	resp, err := http.Get("http://" + server.Addr + "/api/v1/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())
	assert.Error(t, server.Start(context.Background()))
}
