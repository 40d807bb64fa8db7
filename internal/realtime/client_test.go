package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testServer is a minimal realtime service: it acks every write, answers
// each subscribe with a canned snapshot, and lets the test push change
// frames to live subscriptions.
type testServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	subs     map[string]Query // sub id -> query
	snapshot []Document

	subscribed chan string
}

func newTestServer(t *testing.T, snapshot []Document) *testServer {
	t.Helper()
	ts := &testServer{
		subs:       make(map[string]Query),
		snapshot:   snapshot,
		subscribed: make(chan string, 8),
	}
	ts.srv = httptest.NewServer(http.HandlerFunc(ts.handle))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *testServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ts.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ts.mu.Lock()
	ts.conn = conn
	ts.mu.Unlock()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case "subscribe":
			ts.mu.Lock()
			ts.subs[f.Sub] = *f.Query
			snap := ts.snapshot
			ts.mu.Unlock()
			_ = ts.write(frame{Type: "snapshot", Sub: f.Sub, Docs: snap})
			ts.subscribed <- f.Sub
		case "unsubscribe":
			ts.mu.Lock()
			delete(ts.subs, f.Sub)
			ts.mu.Unlock()
		case "add", "set", "delete":
			_ = ts.write(frame{Type: "ack", ID: f.ID})
		}
	}
}

func (ts *testServer) write(f frame) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.conn.WriteJSON(f)
}

func (ts *testServer) pushChange(subID string, ch Change) {
	_ = ts.write(frame{Type: "change", Sub: subID, Changes: []Change{ch}})
}

func (ts *testServer) dropConn() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.conn != nil {
		_ = ts.conn.Close()
	}
}

func startClient(t *testing.T, ts *testServer) *Client {
	t.Helper()
	c := NewClient(ts.url(), nil, nil)
	c.Start(context.Background())
	t.Cleanup(c.Close)
	return c
}

func waitSub(t *testing.T, ts *testServer) string {
	t.Helper()
	select {
	case id := <-ts.subscribed:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscribe")
		return ""
	}
}

func TestWatchDeliversSnapshotThenChanges(t *testing.T) {
	ts := newTestServer(t, []Document{
		{ID: "m1", Collection: "messages", Data: map[string]any{"content": "hi"}},
	})
	c := startClient(t, ts)

	type delivery struct {
		snapshot []Document
		changes  []Change
	}
	got := make(chan delivery, 4)
	_, err := c.Watch(Query{Collection: "messages"}, func(snap []Document, changes []Change, err error) {
		if err != nil {
			t.Errorf("handler err: %v", err)
			return
		}
		got <- delivery{snapshot: snap, changes: changes}
	})
	if err != nil {
		t.Fatal(err)
	}
	subID := waitSub(t, ts)

	select {
	case d := <-got:
		if len(d.snapshot) != 1 || d.snapshot[0].ID != "m1" {
			t.Fatalf("first delivery = %+v, want snapshot [m1]", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}

	ts.pushChange(subID, Change{Type: Added, Doc: Document{ID: "m2", Collection: "messages"}})
	select {
	case d := <-got:
		if len(d.changes) != 1 || d.changes[0].Doc.ID != "m2" || d.changes[0].Type != Added {
			t.Fatalf("second delivery = %+v, want added m2", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestDetachStopsDeliveriesAndIsIdempotent(t *testing.T) {
	ts := newTestServer(t, nil)
	c := startClient(t, ts)

	fired := make(chan struct{}, 8)
	sub, err := c.Watch(Query{Collection: "messages"}, func([]Document, []Change, error) {
		fired <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	subID := waitSub(t, ts)
	<-fired // initial snapshot

	sub.Detach()
	sub.Detach() // must not panic or double-unsubscribe

	// The server no longer knows the sub, but even a straggler frame for
	// the old id must not reach the handler.
	ts.pushChange(subID, Change{Type: Added, Doc: Document{ID: "late"}})
	select {
	case <-fired:
		t.Fatal("handler fired after Detach returned")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWritesAreAcked(t *testing.T) {
	ts := newTestServer(t, nil)
	c := startClient(t, ts)

	// Wait until connected by issuing a subscribe first.
	if _, err := c.Watch(Query{Collection: "messages"}, func([]Document, []Change, error) {}); err != nil {
		t.Fatal(err)
	}
	waitSub(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := c.Add(ctx, "messages", map[string]any{"content": "hello", "createdAt": ServerTimestamp})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("Add returned empty doc id")
	}
	if err := c.Set(ctx, "readStatuses", "u1-u2", map[string]any{"lastRead": ServerTimestamp}, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(ctx, "messages", id); err != nil {
		t.Fatal(err)
	}
}

// TestConnHandlerSignalsDialAndDrop verifies the connection-state callback
// fires true on each successful dial and false when the link drops, so the
// daemon can surface an outage instead of reporting READY through it.
func TestConnHandlerSignalsDialAndDrop(t *testing.T) {
	ts := newTestServer(t, nil)

	states := make(chan bool, 8)
	c := NewClient(ts.url(), nil, nil)
	c.SetConnHandler(func(connected bool) { states <- connected })
	c.Start(context.Background())
	t.Cleanup(c.Close)

	waitState := func(want bool) {
		t.Helper()
		select {
		case got := <-states:
			if got != want {
				t.Fatalf("conn state = %v, want %v", got, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for conn state %v", want)
		}
	}

	waitState(true)
	ts.dropConn()
	waitState(false)
	// The backoff loop redials the still-running server.
	waitState(true)
}

func TestWriteFailsWhenNotConnected(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1", nil, nil) // never started
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := c.Add(ctx, "messages", nil); err == nil {
		t.Fatal("expected error when not connected")
	}
}
