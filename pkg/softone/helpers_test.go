package softone

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/store"
)

// fakeERP emulates the SoftOne endpoint. Services without a handler succeed.
type fakeERP struct {
	mu       sync.Mutex
	calls    map[string]int
	requests []map[string]any
	sessions int

	loginResponse map[string]any
	authResponse  func(n int) map[string]any
	handlers      map[string]func(call int, body map[string]any) (int, any)

	server *httptest.Server
}

func newFakeERP(t *testing.T) *fakeERP {
	t.Helper()
	erp := &fakeERP{
		calls:    map[string]int{},
		handlers: map[string]func(int, map[string]any) (int, any){},
		loginResponse: map[string]any{
			"success":  true,
			"clientID": "login-token",
			"objs": []any{
				map[string]any{"COMPANY": "1000", "BRANCH": "1000", "MODULE": "0", "REFID": "999"},
			},
		},
		authResponse: func(n int) map[string]any {
			return map[string]any{"success": true, "clientID": fmt.Sprintf("session-%d", n)}
		},
	}
	erp.server = httptest.NewServer(http.HandlerFunc(erp.serve))
	t.Cleanup(erp.server.Close)
	return erp
}

func (f *fakeERP) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	service, _ := body["service"].(string)

	f.mu.Lock()
	f.calls[service]++
	call := f.calls[service]
	f.requests = append(f.requests, body)
	var status int
	var resp any
	switch {
	case f.handlers[service] != nil:
		status, resp = f.handlers[service](call, body)
	case service == "login":
		status, resp = http.StatusOK, f.loginResponse
	case service == "authenticate":
		f.sessions++
		status, resp = http.StatusOK, f.authResponse(f.sessions)
	default:
		status, resp = http.StatusOK, map[string]any{"success": true}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if raw, ok := resp.([]byte); ok {
		_, _ = w.Write(raw)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeERP) count(service string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[service]
}

func (f *fakeERP) lastRequest(service string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i]["service"] == service {
			return f.requests[i]
		}
	}
	return nil
}

func (f *fakeERP) requestsFor(service string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, req := range f.requests {
		if req["service"] == service {
			out = append(out, req)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	erp      *fakeERP
	clock    *testClock
	fast     *store.Memory
	durable  *store.Memory
	sessions *SessionManager
	client   *Client
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	erp := newFakeERP(t)
	clock := &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}

	cfg := Config{
		Endpoint: erp.server.URL,
		Username: "ws-user",
		Password: "s3cret",
		AppID:    "1001",
		Timeout:  2 * time.Second,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	logger := silentLogger()
	fast := store.NewMemoryWithClock(clock.Now)
	durable := store.NewMemoryWithClock(clock.Now)
	transport := NewTransport(cfg, logger)
	sessions := NewSessionManager(cfg, transport, fast, durable, logger)
	sessions.now = clock.Now

	return &harness{
		erp:      erp,
		clock:    clock,
		fast:     fast,
		durable:  durable,
		sessions: sessions,
		client:   NewClient(cfg, transport, sessions, logger),
	}
}

// seed caches clientID in the given tiers with ttl remaining.
func (h *harness) seed(t *testing.T, clientID string, ttl time.Duration, tiers ...store.TTLStore) {
	t.Helper()
	token := newSessionToken(clientID, h.clock.Now(), ttl)
	raw, err := json.Marshal(token)
	require.NoError(t, err)
	for _, tier := range tiers {
		require.NoError(t, tier.SetWithTTL(context.Background(), SessionKey, raw, 0))
	}
}

func (h *harness) cached(t *testing.T, tier store.TTLStore) SessionToken {
	t.Helper()
	raw, err := tier.Get(context.Background(), SessionKey)
	require.NoError(t, err)
	var token SessionToken
	require.NoError(t, json.Unmarshal(raw, &token))
	return token
}
