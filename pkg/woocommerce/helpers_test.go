package woocommerce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  map[string]string
	Body   map[string]any
}

type routeFunc func(r recordedRequest) (int, any)

// fakeStore emulates the parts of the WooCommerce REST API the adapter calls.
type fakeStore struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	routes   map[string]routeFunc
	requests []recordedRequest
}

func newFakeStore(t *testing.T) *fakeStore {
	f := &fakeStore{t: t, routes: map[string]routeFunc{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeStore) on(method, path string, fn routeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeStore) serve(w http.ResponseWriter, r *http.Request) {
	req := recordedRequest{
		Method: r.Method,
		Path:   strings.TrimPrefix(r.URL.Path, "/wp-json/wc/v3"),
		Query:  map[string]string{},
	}
	for k := range r.URL.Query() {
		req.Query[k] = r.URL.Query().Get(k)
	}
	if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
		_ = json.Unmarshal(raw, &req.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn, ok := f.routes[req.Method+" "+req.Path]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"rest_no_route","message":"No route was found matching the URL and request method."}`))
		return
	}

	status, body := fn(req)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeStore) requestsTo(method, path string) []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedRequest
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (f *fakeStore) client() *Client {
	return NewClient(Config{
		StoreURL:       f.server.URL + "/",
		ConsumerKey:    "ck_test",
		ConsumerSecret: "cs_test",
		Timeout:        5 * time.Second,
	}, silentLogger())
}

func reply(status int, body any) routeFunc {
	return func(recordedRequest) (int, any) { return status, body }
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type memoryLinks struct {
	links     map[string]models.ProductLink
	deleted   []string
	upsertErr error
}

func newMemoryLinks(links ...models.ProductLink) *memoryLinks {
	m := &memoryLinks{links: map[string]models.ProductLink{}}
	for _, l := range links {
		m.links[l.Mtrl] = l
	}
	return m
}

func (m *memoryLinks) FindByMaterial(_ context.Context, mtrl string) (*models.ProductLink, error) {
	l, ok := m.links[mtrl]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (m *memoryLinks) Upsert(_ context.Context, link *models.ProductLink) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.links[link.Mtrl] = *link
	return nil
}

func (m *memoryLinks) ListStale(_ context.Context, before time.Time, limit int) ([]models.ProductLink, error) {
	keys := make([]string, 0, len(m.links))
	for k := range m.links {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []models.ProductLink
	for _, k := range keys {
		l := m.links[k]
		if l.LastSyncedAt.Valid && !l.LastSyncedAt.Time.Before(before) {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryLinks) DeleteByMaterial(_ context.Context, mtrl string) error {
	delete(m.links, mtrl)
	m.deleted = append(m.deleted, mtrl)
	return nil
}
