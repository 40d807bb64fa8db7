package ctl

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// startSocketServer runs an HTTP server on a Unix socket that records the
// method and path of every request.
func startSocketServer(t *testing.T, handler http.Handler) (string, *callLog) {
	t.Helper()

	// Short path for the macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "trovia-ctl-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	socketPath := filepath.Join(tmpDir, "d.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}

	log := &callLog{}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.Method + " " + r.URL.RequestURI())
		handler.ServeHTTP(w, r)
	})}
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	time.Sleep(20 * time.Millisecond)
	return socketPath, log
}

func TestVerbsAndPaths(t *testing.T) {
	socketPath, log := startSocketServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}))
	c := New(socketPath)
	ctx := context.Background()

	var out map[string]bool
	if err := c.Get(ctx, "/favorites", &out); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, "/favorites/r1", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Post(ctx, "/conversations/u2/read", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "/favorites/r1"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"GET /v1/favorites",
		"PUT /v1/favorites/r1",
		"POST /v1/conversations/u2/read",
		"DELETE /v1/favorites/r1",
	}
	calls := log.snapshot()
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i, w := range want {
		if calls[i] != w {
			t.Errorf("call %d = %q, want %q", i, calls[i], w)
		}
	}
}

func TestErrorBodyDecoded(t *testing.T) {
	socketPath, _ := startSocketServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":  "validation failed",
			"errors": []string{"content is required"},
		})
	}))
	c := New(socketPath)

	err := c.Post(context.Background(), "/messages", map[string]string{}, nil)
	if err == nil {
		t.Fatal("expected error from 422 response")
	}
	if !strings.Contains(err.Error(), "validation failed") || !strings.Contains(err.Error(), "content is required") {
		t.Errorf("err = %v, want decoded error body", err)
	}
}
