package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rook-computer/fbembed/internal/state"
	"github.com/rook-computer/fbembed/internal/uiloop"
)

const maxResizeBody = 1 << 10

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type statusResponse struct {
	Phase    string          `json:"phase"`
	Renderer string          `json:"renderer"`
	Surface  surfaceResponse `json:"surface"`
	Frames   framesResponse  `json:"frames"`
	Vsync    vsyncResponse   `json:"vsync"`
}

type surfaceResponse struct {
	Available bool    `json:"available"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Alpha     float64 `json:"alpha"`
	Format    string  `json:"format,omitempty"`
}

type framesResponse struct {
	Rendered  uint64 `json:"rendered"`
	Presented uint64 `json:"presented"`
	Empty     uint64 `json:"empty"`
	Recycled  uint64 `json:"recycled"`
	LastSeq   uint64 `json:"lastSeq"`
}

type vsyncResponse struct {
	PeriodNanos int64  `json:"periodNanos"`
	Ticks       uint64 `json:"ticks"`
	Requested   uint64 `json:"requested"`
	Answered    uint64 `json:"answered"`
	Discarded   uint64 `json:"discarded"`
}

type resizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func apiV1Router(deps APIV1Deps) http.Handler {
	deps = deps.withDefaults()
	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) { handleStatus(w, r, deps) })
	mux.HandleFunc("/renderer/attach", func(w http.ResponseWriter, r *http.Request) {
		handleCommand(w, r, deps, "renderer attach", func() error { return deps.Session.AttachRenderer(r.Context()) })
	})
	mux.HandleFunc("/renderer/detach", func(w http.ResponseWriter, r *http.Request) {
		handleCommand(w, r, deps, "renderer detach", func() error { return deps.Session.DetachRenderer(r.Context()) })
	})
	mux.HandleFunc("/window/attach", func(w http.ResponseWriter, r *http.Request) {
		handleCommand(w, r, deps, "window attach", func() error { return deps.Session.AttachWindow(r.Context()) })
	})
	mux.HandleFunc("/window/detach", func(w http.ResponseWriter, r *http.Request) {
		handleCommand(w, r, deps, "window detach", func() error {
			// ?teardown=1 simulates the host destroying the window first.
			if teardown, _ := strconv.ParseBool(r.URL.Query().Get("teardown")); teardown {
				return deps.Session.TearDownWindow(r.Context())
			}
			return deps.Session.DetachWindow(r.Context())
		})
	})
	mux.HandleFunc("/window/resize", func(w http.ResponseWriter, r *http.Request) { handleResize(w, r, deps) })
	mux.HandleFunc("/snapshot.png", func(w http.ResponseWriter, r *http.Request) { handleSnapshot(w, r, deps) })
	return mux
}

func handleStatus(w http.ResponseWriter, r *http.Request, deps APIV1Deps) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	snap, err := deps.Session.Refresh(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(snap))
}

// handleCommand runs a state-changing operation and answers with the
// resulting status.
func handleCommand(w http.ResponseWriter, r *http.Request, deps APIV1Deps, name string, op func() error) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	deps.Logger.Infof("web", "%s requested", name)
	if err := op(); err != nil {
		deps.Logger.Errorf("web", "%s failed: %v", name, err)
		writeSessionError(w, err)
		return
	}
	handleStatusAfter(w, r, deps)
}

func handleResize(w http.ResponseWriter, r *http.Request, deps APIV1Deps) {
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	var req resizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxResizeBody)).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "body must be {\"width\":N,\"height\":N}")
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeAPIError(w, http.StatusBadRequest, "bad_request", "width and height must not be negative")
		return
	}
	if err := deps.Session.ResizeWindow(r.Context(), req.Width, req.Height); err != nil {
		writeSessionError(w, err)
		return
	}
	handleStatusAfter(w, r, deps)
}

func handleStatusAfter(w http.ResponseWriter, r *http.Request, deps APIV1Deps) {
	snap, err := deps.Session.Refresh(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusResponse(snap))
}

func handleSnapshot(w http.ResponseWriter, r *http.Request, deps APIV1Deps) {
	if r.Method != http.MethodGet {
		writeAPIError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	if deps.Snapshot == nil {
		writeAPIError(w, http.StatusNotImplemented, "not_implemented", "snapshot not configured")
		return
	}
	data, err := deps.Snapshot.SnapshotPNG(r.Context())
	if err != nil {
		writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func toStatusResponse(snap state.State) statusResponse {
	return statusResponse{
		Phase:    snap.Phase.String(),
		Renderer: snap.Renderer,
		Surface: surfaceResponse{
			Available: snap.Surface.Available,
			Width:     snap.Surface.Width,
			Height:    snap.Surface.Height,
			Alpha:     snap.Surface.Alpha,
			Format:    snap.Surface.Format,
		},
		Frames: framesResponse{
			Rendered:  snap.Frames.Rendered,
			Presented: snap.Frames.Presented,
			Empty:     snap.Frames.Empty,
			Recycled:  snap.Frames.Recycled,
			LastSeq:   snap.Frames.LastSeq,
		},
		Vsync: vsyncResponse{
			PeriodNanos: snap.Vsync.PeriodNanos,
			Ticks:       snap.Vsync.Ticks,
			Requested:   snap.Vsync.Requested,
			Answered:    snap.Vsync.Answered,
			Discarded:   snap.Vsync.Discarded,
		},
	}
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, uiloop.ErrStopped) {
		writeAPIError(w, http.StatusServiceUnavailable, "session_stopped", err.Error())
		return
	}
	writeAPIError(w, http.StatusInternalServerError, "session_error", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Error: code, Message: message})
}
