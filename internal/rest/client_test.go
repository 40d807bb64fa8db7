package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/minhbui/trovia/internal/session"
)

func newTestClient(t *testing.T, srv *httptest.Server, st session.State) (*Client, *session.MemStore) {
	t.Helper()
	store := session.NewMemStore()
	if err := store.Save(st); err != nil {
		t.Fatal(err)
	}
	return New(srv.URL, store, nil), store
}

func TestBearerAttached(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: "tok-1", RefreshToken: "rt"})
	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/profile/u1"}); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want Bearer tok-1", got)
	}
}

func TestNoTokenProceedsUnauthenticated(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{})
	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/provinces"}); err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("Authorization = %q, want empty", got)
	}
}

func TestRefreshAndReplay(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Write([]byte(`{"access_token":"new-at","refresh_token":"new-rt"}`))
	})
	mux.HandleFunc("/favorites", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-at" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"token expired"}`))
			return
		}
		w.Write([]byte(`{"content":[],"page":0,"totalPages":0}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv, session.State{AccessToken: "stale", RefreshToken: "rt-1"})

	if _, err := c.ListFavorites(context.Background(), 0, 10); err != nil {
		t.Fatal(err)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	st, _ := store.Load()
	if st.AccessToken != "new-at" || st.RefreshToken != "new-rt" {
		t.Errorf("persisted tokens = %q/%q, want new-at/new-rt", st.AccessToken, st.RefreshToken)
	}
}

// TestSingleRefreshForConcurrentRequests issues requests while a refresh is
// pending and verifies exactly one refresh call is made, every request
// settles, and replays are submitted in arrival order.
func TestSingleRefreshForConcurrentRequests(t *testing.T) {
	var (
		refreshCalls   atomic.Int32
		refreshStarted = make(chan struct{})
		releaseRefresh = make(chan struct{})

		mu       sync.Mutex
		rejected = make(map[string]chan struct{})
		replays  []string
	)
	sawAuthFailure := func(path string) chan struct{} {
		mu.Lock()
		defer mu.Unlock()
		ch, ok := rejected[path]
		if !ok {
			ch = make(chan struct{})
			rejected[path] = ch
		}
		return ch
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		if refreshCalls.Add(1) == 1 {
			close(refreshStarted)
		}
		<-releaseRefresh
		w.Write([]byte(`{"access_token":"new-at"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-at" {
			ch := sawAuthFailure(r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			// Signal after the 401 is on its way out.
			defer close(ch)
			return
		}
		mu.Lock()
		replays = append(replays, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: "stale", RefreshToken: "rt-1"})

	paths := []string{"/jobs/0", "/jobs/1", "/jobs/2", "/jobs/3"}
	errs := make([]error, len(paths))
	var wg sync.WaitGroup

	// First request triggers the (blocked) refresh.
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: paths[0]})
	}()
	<-refreshStarted

	// The rest arrive one at a time while the refresh is pending.
	for i := 1; i < len(paths); i++ {
		i := i
		failed := sawAuthFailure(paths[i])
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: paths[i]})
		}()
		<-failed
		// Give the client a beat to park the call in the pending queue.
		time.Sleep(20 * time.Millisecond)
	}

	close(releaseRefresh)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d: %v", i, err)
		}
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(replays) != len(paths) {
		t.Fatalf("replays = %v, want all of %v", replays, paths)
	}
	for i, p := range paths {
		if replays[i] != p {
			t.Errorf("replay order = %v, want %v", replays, paths)
			break
		}
	}
}

// TestCancelledWhileQueuedIsNotReplayed parks a call behind a pending
// refresh, cancels it, and verifies the upstream never sees its replay.
func TestCancelledWhileQueuedIsNotReplayed(t *testing.T) {
	var (
		refreshStarted = make(chan struct{})
		releaseRefresh = make(chan struct{})
		parked         = make(chan struct{})

		mu      sync.Mutex
		replays []string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		close(refreshStarted)
		<-releaseRefresh
		w.Write([]byte(`{"access_token":"new-at"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer new-at" {
			w.WriteHeader(http.StatusUnauthorized)
			if r.URL.Path == "/jobs/cancelled" {
				defer close(parked)
			}
			return
		}
		mu.Lock()
		replays = append(replays, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: "stale", RefreshToken: "rt-1"})

	var wg sync.WaitGroup
	var firstErr, cancelledErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/jobs/first"})
	}()
	<-refreshStarted

	ctx, cancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, cancelledErr = c.Do(ctx, &Request{Method: http.MethodGet, Path: "/jobs/cancelled"})
	}()
	<-parked
	time.Sleep(20 * time.Millisecond)
	cancel()

	close(releaseRefresh)
	wg.Wait()
	time.Sleep(50 * time.Millisecond)

	if firstErr != nil {
		t.Errorf("first request: %v", firstErr)
	}
	if !errors.Is(cancelledErr, context.Canceled) {
		t.Errorf("cancelled request err = %v, want context.Canceled", cancelledErr)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, p := range replays {
		if p == "/jobs/cancelled" {
			t.Error("cancelled call was replayed upstream")
		}
	}
}

func TestAuthEndpointNeverRetried(t *testing.T) {
	var refreshCalls, loginCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Write([]byte(`{"access_token":"x"}`))
	})
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad credentials"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: "tok", RefreshToken: "rt"})

	_, err := c.Login(context.Background(), "user", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 APIError", err)
	}
	if n := loginCalls.Load(); n != 1 {
		t.Errorf("login calls = %d, want 1 (no retry)", n)
	}
	if n := refreshCalls.Load(); n != 0 {
		t.Errorf("refresh calls = %d, want 0", n)
	}
}

func TestRefreshRejectionClearsSessionOnce(t *testing.T) {
	var expiredCalls atomic.Int32
	mux := http.NewServeMux()
	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		close(refreshStarted)
		<-releaseRefresh
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"refresh token revoked"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv, session.State{AccessToken: "stale", RefreshToken: "rt-1"})
	c.SetSessionExpiredHandler(func() { expiredCalls.Add(1) })

	errs := make([]error, 3)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[0] = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/jobs/0"})
	}()
	<-refreshStarted
	for i := 1; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/jobs/x"})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(releaseRefresh)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, ErrAuthExpired) {
			t.Errorf("request %d err = %v, want ErrAuthExpired", i, err)
		}
	}
	if n := expiredCalls.Load(); n != 1 {
		t.Errorf("session-expired callback fired %d times, want 1", n)
	}
	st, _ := store.Load()
	if st.AccessToken != "" || st.RefreshToken != "" {
		t.Errorf("session not cleared: %+v", st)
	}
}

func TestTransientRefreshFailureSurfacesOriginalError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"token expired"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, store := newTestClient(t, srv, session.State{AccessToken: "stale", RefreshToken: "rt-1"})
	var expired atomic.Int32
	c.SetSessionExpiredHandler(func() { expired.Add(1) })

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/favorites"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v, want the original 401 APIError", err)
	}
	if expired.Load() != 0 {
		t.Error("session-expired callback must not fire on a transient refresh failure")
	}
	st, _ := store.Load()
	if st.RefreshToken != "rt-1" {
		t.Errorf("session must be left untouched, got %+v", st)
	}
}

func TestNoRefreshTokenFailsFast(t *testing.T) {
	var refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: "stale"})
	var expired atomic.Int32
	c.SetSessionExpiredHandler(func() { expired.Add(1) })

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/favorites"})
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("err = %v, want ErrAuthExpired", err)
	}
	if n := refreshCalls.Load(); n != 0 {
		t.Errorf("refresh endpoint hit %d times, want 0 (fail fast)", n)
	}
	if expired.Load() != 1 {
		t.Errorf("expired callback fired %d times, want 1", expired.Load())
	}
}

func TestRetryAtMostOnce(t *testing.T) {
	var refreshCalls, dataCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.Write([]byte(`{"access_token":"still-bad"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"forbidden"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: "stale", RefreshToken: "rt-1"})

	_, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/rooms/1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden {
		t.Fatalf("err = %v, want 403 APIError surfaced directly", err)
	}
	if n := dataCalls.Load(); n != 2 {
		t.Errorf("data endpoint hit %d times, want 2 (original + one replay)", n)
	}
	if n := refreshCalls.Load(); n != 1 {
		t.Errorf("refresh calls = %d, want 1 (never looped)", n)
	}
}

func TestProactiveRefreshOnExpiredToken(t *testing.T) {
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}

	var staleSends atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"fresh"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			staleSends.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, _ := newTestClient(t, srv, session.State{AccessToken: expired, RefreshToken: "rt-1"})

	if _, err := c.Do(context.Background(), &Request{Method: http.MethodGet, Path: "/profile/u1"}); err != nil {
		t.Fatal(err)
	}
	if n := staleSends.Load(); n != 0 {
		t.Errorf("expired token was sent %d times, want 0 (refresh up front)", n)
	}
}
