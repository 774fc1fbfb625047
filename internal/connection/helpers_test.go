package connection

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// manualClock hands the refresher a channel the test fires explicitly.
type manualClock struct {
	waits chan time.Duration
	fire  chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{
		waits: make(chan time.Duration, 16),
		fire:  make(chan time.Time),
	}
}

func (c *manualClock) Now() time.Time {
	return time.Now()
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.waits <- d
	return c.fire
}

func (c *manualClock) nextWait(t *testing.T) time.Duration {
	t.Helper()

	select {
	case d := <-c.waits:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not schedule a wait")
		return 0
	}
}

func (c *manualClock) tick(t *testing.T) {
	t.Helper()

	select {
	case c.fire <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("refresher was not waiting on the clock")
	}
}

// fakeNativeService mimics the sign-in, refresh and limits endpoints.
type fakeNativeService struct {
	mu           sync.Mutex
	requests     int
	refreshCalls int
	failRefresh  bool
	limitsCalls  int
	// limitsHold, when set, stalls every limits request after the first
	// until it is closed. limitsHeld receives one value per stalled request.
	limitsHold chan struct{}
	limitsHeld chan struct{}
}

func (f *fakeNativeService) stallLimits() (held <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitsHold = make(chan struct{})
	f.limitsHeld = make(chan struct{}, 4)
	var once sync.Once
	hold := f.limitsHold
	return f.limitsHeld, func() { once.Do(func() { close(hold) }) }
}

func (f *fakeNativeService) setFailRefresh(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failRefresh = fail
}

func (f *fakeNativeService) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeNativeService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /qc-catalog/sign-in", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"accessToken":"at-0","refreshToken":"rt-0"}`))
	})
	mux.HandleFunc("POST /qc-catalog/access-token", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failRefresh
		f.refreshCalls++
		n := f.refreshCalls
		f.mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Refresh token expired"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"accessToken":"at-%d","refreshToken":"rt-%d"}`, n, n)
	})
	mux.HandleFunc("GET /qc-catalog/users/limits", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.limitsCalls++
		n := f.limitsCalls
		hold, held := f.limitsHold, f.limitsHeld
		f.mu.Unlock()

		if hold != nil && n > 1 {
			held <- struct{}{}
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
			_, _ = w.Write([]byte(`{"executionCount":9,"executionTime":900,"maxTimeout":300}`))
			return
		}
		_, _ = w.Write([]byte(`{"executionCount":5,"executionTime":600,"maxTimeout":120}`))
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests++
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	})
}

func newFakeNativeServer(t *testing.T) (*fakeNativeService, *httptest.Server) {
	t.Helper()

	fake := &fakeNativeService{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)
	return fake, server
}

func waitDone(t *testing.T, r *Refresher) {
	t.Helper()

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("refresher did not exit")
	}
}
