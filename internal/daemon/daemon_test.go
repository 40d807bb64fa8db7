package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/minhbui/trovia/internal/api"
	"github.com/minhbui/trovia/internal/backend"
	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/config"
	"github.com/minhbui/trovia/internal/lock"
	"github.com/minhbui/trovia/internal/session"
	"github.com/minhbui/trovia/internal/status"
	"github.com/minhbui/trovia/internal/store"
	"go.uber.org/zap"
)

// socketClient returns an HTTP client that dials the given Unix socket.
func socketClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 2 * time.Second,
	}
}

func startTestDaemon(t *testing.T) (*http.Client, *store.DB, *status.Machine) {
	t.Helper()

	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "trovia-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	socketPath := filepath.Join(tmpDir, "d.sock")

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = lk.Release() })

	db, err := store.Open(filepath.Join(tmpDir, "trovia.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger := zap.NewNop()
	b := bus.New()
	machine := status.NewMachine(b)
	cfg := &config.Config{API: "http://127.0.0.1:1", Realtime: "ws://127.0.0.1:1"}
	adapter := backend.NewAdapter(cfg, session.NewMemStore(), db, b, machine, logger)

	p := Params{SessionName: "test", SocketPath: socketPath}
	srv, err := NewServer(
		p,
		logger,
		api.NewSessionService("test", machine, adapter, b, db),
		api.NewChatService(db, adapter, b),
		api.NewMessageService(adapter, b),
		api.NewNotifyService(db, adapter),
		api.NewProfileService(adapter),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	time.Sleep(50 * time.Millisecond)
	return socketClient(socketPath), db, machine
}

func getJSON(t *testing.T, client *http.Client, path string, out any) int {
	t.Helper()
	resp, err := client.Get("http://unix" + path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestDaemonLifecycle(t *testing.T) {
	client, db, machine := startTestDaemon(t)

	// Status starts at BOOTING until the lifecycle hook decides.
	var st struct {
		Session string `json:"session"`
		Status  string `json:"status"`
	}
	if code := getJSON(t, client, "/v1/status", &st); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if st.Session != "test" {
		t.Errorf("session = %q, want test", st.Session)
	}
	if st.Status != string(status.Booting) {
		t.Errorf("status = %q, want BOOTING", st.Status)
	}

	// Conversations come from the cache while logged out.
	var convs []map[string]any
	if code := getJSON(t, client, "/v1/conversations", &convs); code != http.StatusOK {
		t.Fatalf("conversations code = %d", code)
	}
	if len(convs) != 0 {
		t.Errorf("expected 0 conversations, got %d", len(convs))
	}

	if err := db.UpsertConversation(&store.Conversation{
		OtherID: "u-2", DisplayName: "Alice", LastContent: "hello", LastCreatedAt: 1000, UnreadCount: 2,
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessage(&store.Message{
		ID: "m1", SenderID: "u-2", RecipientID: "u-1", OtherID: "u-2", Content: "hello world", CreatedAt: 1000,
	}); err != nil {
		t.Fatal(err)
	}

	if code := getJSON(t, client, "/v1/conversations", &convs); code != http.StatusOK {
		t.Fatalf("conversations code = %d", code)
	}
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	if convs[0]["display_name"] != "Alice" || convs[0]["unread_count"] != float64(2) {
		t.Errorf("conversation = %+v", convs[0])
	}

	// Message history from cache.
	var msgs []map[string]any
	if code := getJSON(t, client, "/v1/conversations/u-2/messages", &msgs); code != http.StatusOK {
		t.Fatalf("messages code = %d", code)
	}
	if len(msgs) != 1 {
		t.Errorf("expected 1 message, got %d", len(msgs))
	}

	// Full-text search.
	var results []map[string]any
	if code := getJSON(t, client, "/v1/search?q=hello", &results); code != http.StatusOK {
		t.Fatalf("search code = %d", code)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 search result, got %d", len(results))
	}

	// Logged-out guards.
	resp, err := client.Post("http://unix/v1/messages", "application/json",
		nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("send while logged out = %d, want 401", resp.StatusCode)
	}
	if code := getJSON(t, client, "/v1/notifications", nil); code != http.StatusUnauthorized {
		t.Errorf("notifications while logged out = %d, want 401", code)
	}

	// Favorites routes are mounted; with the upstream unreachable the proxy
	// answers with a gateway error, never a missing route.
	favReq, err := http.NewRequest(http.MethodPut, "http://unix/v1/favorites/r1", nil)
	if err != nil {
		t.Fatal(err)
	}
	favResp, err := client.Do(favReq)
	if err != nil {
		t.Fatal(err)
	}
	_ = favResp.Body.Close()
	if favResp.StatusCode == http.StatusNotFound || favResp.StatusCode == http.StatusMethodNotAllowed {
		t.Errorf("PUT /v1/favorites/r1 = %d, route must be mounted", favResp.StatusCode)
	}

	// Metrics endpoint is mounted.
	if code := getJSON(t, client, "/metrics", nil); code != http.StatusOK {
		t.Errorf("metrics code = %d", code)
	}

	// Status endpoint tracks the machine.
	_ = machine.Transition(status.AuthRequired)
	if code := getJSON(t, client, "/v1/status", &st); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if st.Status != string(status.AuthRequired) {
		t.Errorf("status = %q, want AUTH_REQUIRED", st.Status)
	}
}

// Regression guard: the daemon must not stay in BOOTING forever when no
// credentials exist; the lifecycle hook transitions to AUTH_REQUIRED.
func TestStatusTransitionsToAuthRequired(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)

	// What registerLifecycle does when the adapter is not logged in.
	if err := machine.Transition(status.AuthRequired); err != nil {
		t.Fatal(err)
	}
	if machine.Current() != status.AuthRequired {
		t.Errorf("state = %s, want AUTH_REQUIRED", machine.Current())
	}
}
