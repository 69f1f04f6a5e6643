package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mosaic-keeper/api"
	"mosaic-keeper/identity"
	"mosaic-keeper/kv"
	"mosaic-keeper/logging"
	"mosaic-keeper/metrics"
	"mosaic-keeper/orchestrator"
	"mosaic-keeper/page"
	"mosaic-keeper/preset"
)

type testEnv struct {
	srv   *httptest.Server
	store kv.Store
	pages *page.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := kv.NewMemory()
	m := metrics.New()
	pm := preset.NewManager(store, preset.WithLogger(logging.Discard()), preset.WithMetrics(m))
	res := identity.NewResolver(
		identity.WithRetry(identity.RetryPolicy{Retries: 1, Delay: time.Millisecond}),
		identity.WithLogger(logging.Discard()),
		identity.WithMetrics(m),
	)
	pages := page.NewManager(page.WithPeerTimeout(500 * time.Millisecond))
	orch := orchestrator.New(pm, res, pages, orchestrator.WithLogger(logging.Discard()))
	srv := httptest.NewServer(api.RegisterRoutes(pages, orch, m))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, pages: pages}
}

func (e *testEnv) seed(t *testing.T, key, value string) {
	t.Helper()
	if err := e.store.Set(context.Background(), key, []byte(value)); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d", resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode)
	}
}

// createLoadedPage registers a page and loads url into it.
func (e *testEnv) createLoadedPage(t *testing.T, url string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/pages", nil)
	expectStatus(t, resp, http.StatusCreated)
	var info page.Info
	decode(t, resp, &info)
	expectStatus(t, e.do(t, http.MethodPost, "/api/pages/"+info.ID+"/load", map[string]string{"url": url}), http.StatusOK)
	return info.ID
}
