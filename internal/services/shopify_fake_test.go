package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients/shopify"
)

// fakePage is one page of the fake store's product listing.
type fakePage struct {
	Body     string
	NextInfo string
}

// fakeCall records one mutation request received by the fake store.
type fakeCall struct {
	Method string
	Path   string
	Body   string
}

// fakeShopify is an in-memory stand-in for the Shopify Admin API.
type fakeShopify struct {
	mu sync.Mutex

	pages      map[string]fakePage // page_info -> page ("" is the first page)
	variants   map[int64]string    // variant id -> GET /variants response body
	locations  string
	failPaths  map[string]int // path suffix -> status code to return
	rateLimits map[string]int // path suffix -> number of 429s to serve first

	calls  []fakeCall
	server *httptest.Server
}

func newFakeShopify() *fakeShopify {
	f := &fakeShopify{
		pages:      map[string]fakePage{},
		variants:   map[int64]string{},
		locations:  `{"locations":[{"id":111,"name":"Main"}]}`,
		failPaths:  map[string]int{},
		rateLimits: map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeShopify) Close() { f.server.Close() }

// client returns a shopify.Client pointed at the fake with fast pacing.
func (f *fakeShopify) client() *shopify.Client {
	return shopify.NewClient(shopify.Config{
		AccessToken:       "test-token",
		BaseURL:           f.server.URL,
		RequestsPerSecond: 1000,
		RetryAfterDefault: 5 * time.Millisecond,
	}, logrus.NewEntry(logrus.New()))
}

func (f *fakeShopify) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/admin/api/2024-01")
	bodyBytes, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{Method: r.Method, Path: path, Body: string(bodyBytes)})

	if n, ok := f.rateLimits[path]; ok && n > 0 {
		f.rateLimits[path] = n - 1
		f.mu.Unlock()
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	if status, ok := f.failPaths[path]; ok {
		f.mu.Unlock()
		w.WriteHeader(status)
		fmt.Fprint(w, `{"errors":"injected failure"}`)
		return
	}
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && path == "/products.json":
		pageInfo := r.URL.Query().Get("page_info")
		f.mu.Lock()
		page, ok := f.pages[pageInfo]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if page.NextInfo != "" {
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?limit=250&page_info=%s>; rel="next"`, f.server.URL, page.NextInfo))
		}
		fmt.Fprint(w, page.Body)

	case r.Method == http.MethodGet && path == "/locations.json":
		fmt.Fprint(w, f.locations)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/variants/"):
		var id int64
		fmt.Sscanf(path, "/variants/%d.json", &id)
		f.mu.Lock()
		body, ok := f.variants[id]
		f.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/variants/"):
		fmt.Fprint(w, `{"variant":{}}`)

	case r.Method == http.MethodPut && strings.HasPrefix(path, "/products/"):
		fmt.Fprint(w, `{"product":{}}`)

	case r.Method == http.MethodPost && path == "/inventory_levels/set.json":
		fmt.Fprint(w, `{"inventory_level":{}}`)

	case r.Method == http.MethodPost && path == "/products.json":
		fmt.Fprint(w, `{"product":{"id":9999,"title":"created","status":"draft","variants":[]}}`)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// callsTo returns the mutation calls matching a method and path prefix.
func (f *fakeShopify) callsTo(method, pathPrefix string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if (method == "" || c.Method == method) && strings.HasPrefix(c.Path, pathPrefix) {
			out = append(out, c)
		}
	}
	return out
}

// decode unmarshals a recorded call body into a generic map.
func (c fakeCall) decode() map[string]interface{} {
	var m map[string]interface{}
	_ = json.Unmarshal([]byte(c.Body), &m)
	return m
}
