package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rook-computer/fbembed/internal/system"
)

// simSession is the part of the app the simulator-only endpoints drive.
type simSession interface {
	HandleKey(ctx context.Context, k system.Key) error
	DetachRenderer(ctx context.Context) error
	DetachWindow(ctx context.Context) error
	AttachWindow(ctx context.Context) error
	AttachRenderer(ctx context.Context) error
}

// SimControl stands in for the console and keyboard the device binary has.
type SimControl struct {
	session simSession
}

func NewSimControl(session simSession) *SimControl {
	return &SimControl{session: session}
}

// PressKey behaves like pressing name on the device keyboard.
func (c *SimControl) PressKey(ctx context.Context, name string) error {
	k, err := system.ParseKey(name)
	if err != nil {
		return err
	}
	return c.session.HandleKey(ctx, k)
}

// Reset returns the session to its startup state: window attached and the
// test pattern rendering.
func (c *SimControl) Reset(ctx context.Context) error {
	steps := []func(context.Context) error{
		c.session.DetachRenderer,
		c.session.DetachWindow,
		c.session.AttachWindow,
		c.session.AttachRenderer,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func registerSimEndpoints(handler http.Handler, control *SimControl) {
	mux, ok := handler.(*http.ServeMux)
	if !ok {
		// Only supported when the simulator uses the default mux.
		return
	}

	mux.HandleFunc("/sim/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeSimError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if err := control.Reset(r.Context()); err != nil {
			writeSimError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeSimJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	mux.HandleFunc("/sim/key/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeSimError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		name := strings.TrimPrefix(r.URL.Path, "/sim/key/")
		name = strings.Trim(name, "/")
		if _, err := system.ParseKey(name); err != nil {
			writeSimError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := control.PressKey(r.Context(), name); err != nil {
			writeSimError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeSimJSON(w, http.StatusOK, map[string]any{"ok": true, "key": strings.ToUpper(name)})
	})
}

func writeSimJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSimError(w http.ResponseWriter, status int, message string) {
	writeSimJSON(w, status, map[string]any{"error": message})
}
