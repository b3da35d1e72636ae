// Package testutil provides testing utilities for the exhibit client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BasePath is the path prefix of the catalog API on the mock server.
const BasePath = "/public/collection/v1"

// MockResponse defines the behavior for a mock catalog endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Object is a catalog object served by the mock.
type Object struct {
	ObjectID          int     `json:"objectID"`
	PrimaryImageSmall *string `json:"primaryImageSmall"`
	Title             string  `json:"title"`
	ObjectURL         string  `json:"objectURL"`
}

// MockCatalog is a configurable mock catalog server for testing.
// It serves search, object detail and image routes from in-memory fixtures.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	searches map[string][]int
	objects  map[int]Object
	images   map[string][]byte
	delays   map[string]time.Duration

	// Tracking
	requestCount     int
	conditionalCount int
	pathCounts       map[string]int
	lastHeader       http.Header
}

// NewMockCatalog creates a new mock catalog server.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		searches:   make(map[string][]int),
		objects:    make(map[int]Object),
		images:     make(map[string][]byte),
		delays:     make(map[string]time.Duration),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		handler, hasHandler := mock.handlers[r.URL.Path]
		delay := mock.delays[r.URL.Path]
		mock.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if hasHandler {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the catalog base URL of the mock server.
func (m *MockCatalog) URL() string {
	return m.server.URL + BasePath
}

// ServerURL returns the root URL of the mock server.
func (m *MockCatalog) ServerURL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.conditionalCount = 0
	m.pathCounts = make(map[string]int)
	m.lastHeader = nil
}

// AddSearch registers the ids returned for a search query.
func (m *MockCatalog) AddSearch(query string, ids ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches[query] = append([]int(nil), ids...)
}

// AddObject registers an object. A nil imageURL serves primaryImageSmall as null.
func (m *MockCatalog) AddObject(id int, title string, imageURL *string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = Object{
		ObjectID:          id,
		PrimaryImageSmall: imageURL,
		Title:             title,
		ObjectURL:         fmt.Sprintf("https://www.metmuseum.org/art/collection/search/%d", id),
	}
}

// AddImage registers image bytes under /images/<name> and returns the absolute URL.
func (m *MockCatalog) AddImage(name string, data []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images["/images/"+name] = data
	return m.server.URL + "/images/" + name
}

// ImageURL returns the absolute URL for an image name, registered or not.
func (m *MockCatalog) ImageURL(name string) string {
	return m.server.URL + "/images/" + name
}

// ObjectPath returns the request path of an object detail.
func ObjectPath(id int) string {
	return BasePath + "/objects/" + strconv.Itoa(id)
}

// SearchPath returns the request path of the search endpoint.
func SearchPath() string {
	return BasePath + "/search"
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetDelay delays every response on path. The delay ends early when the
// client goes away.
func (m *MockCatalog) SetDelay(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = d
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made to a path.
func (m *MockCatalog) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockCatalog) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockCatalog) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// defaultHandler serves the registered fixtures like the public catalog does.
func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == SearchPath():
		m.mu.RLock()
		ids, ok := m.searches[r.URL.Query().Get("q")]
		m.mu.RUnlock()

		body := map[string]any{"total": len(ids), "objectIDs": ids}
		if !ok {
			body["objectIDs"] = nil
		}
		writeJSON(w, http.StatusOK, body)

	case strings.HasPrefix(path, BasePath+"/objects/"):
		id, err := strconv.Atoi(strings.TrimPrefix(path, BasePath+"/objects/"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not a valid object"})
			return
		}
		m.mu.RLock()
		obj, ok := m.objects[id]
		m.mu.RUnlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "ObjectID not found"})
			return
		}
		writeJSON(w, http.StatusOK, obj)

	case strings.HasPrefix(path, "/images/"):
		m.mu.RLock()
		data, ok := m.images[path]
		m.mu.RUnlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// NewJSONResponse creates a 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json",
			"ETag":         `"test-etag-123"`,
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "Too many requests"}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request's If-None-Match equals etag.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age=0")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
