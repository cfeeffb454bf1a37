// Package testutil provides testing utilities for the Loyverse proxy.
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

	"github.com/Sternrassler/loyverse-proxy/pkg/client"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockLoyverse is a configurable mock Loyverse API for testing. Items and
// inventory levels are served with offset cursors; a page size is taken
// from the limit query parameter.
type MockLoyverse struct {
	server *httptest.Server

	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	delays   map[string]time.Duration
	items    []client.Item
	levels   map[string][]client.InventoryLevel

	// overlap repeats the last n items of the previous page on the next one.
	overlap int

	// Tracking
	RequestCount     int
	PathCounts       map[string]int
	InventoryBatches [][]string
	LastAuthHeader   string
}

// NewMockLoyverse creates a new mock Loyverse server.
func NewMockLoyverse() *MockLoyverse {
	mock := &MockLoyverse{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		delays:     make(map[string]time.Duration),
		levels:     make(map[string][]client.InventoryLevel),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastAuthHeader = r.Header.Get("Authorization")
		handler, exists := mock.handlers[r.URL.Path]
		delay := mock.delays[r.URL.Path]
		mock.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if exists {
			handler(w, r)
			return
		}

		switch {
		case r.URL.Path == "/items":
			mock.serveItems(w, r)
		case strings.HasPrefix(r.URL.Path, "/items/"):
			mock.serveItem(w, r, strings.TrimPrefix(r.URL.Path, "/items/"))
		case r.URL.Path == "/inventory":
			mock.serveInventory(w, r)
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockLoyverse) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockLoyverse) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockLoyverse) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.InventoryBatches = nil
	m.LastAuthHeader = ""
}

// SetItems replaces the served catalog.
func (m *MockLoyverse) SetItems(items ...client.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]client.Item(nil), items...)
}

// SetOverlap makes every page after the first repeat the last n items of
// the previous page.
func (m *MockLoyverse) SetOverlap(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overlap = n
}

// SetStock sets the inventory levels of a variant, one level per value.
func (m *MockLoyverse) SetStock(variantID string, perStore ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	levels := make([]client.InventoryLevel, 0, len(perStore))
	for i, qty := range perStore {
		levels = append(levels, client.InventoryLevel{
			VariantID: variantID,
			StoreID:   fmt.Sprintf("store-%d", i+1),
			InStock:   qty,
		})
	}
	m.levels[variantID] = levels
}

// SetHandler sets a custom handler for a specific path.
func (m *MockLoyverse) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetDelay holds every request to path for d before it is answered.
func (m *MockLoyverse) SetDelay(path string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delays[path] = d
}

// SetResponse configures a simple response for a path.
func (m *MockLoyverse) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, NewStaticHandler(resp))
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLoyverse) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockLoyverse) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetInventoryBatches returns the variant id batches seen by /inventory.
func (m *MockLoyverse) GetInventoryBatches() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]string(nil), m.InventoryBatches...)
}

func (m *MockLoyverse) serveItems(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	items := m.items
	overlap := m.overlap
	m.mu.RUnlock()

	limit := pageLimit(r)
	offset := cursorOffset(r)
	start := offset
	if offset > 0 && overlap > 0 {
		start = max(0, offset-overlap)
	}
	end := min(len(items), offset+limit)

	page := client.ItemPage{Items: []client.Item{}}
	if start < end {
		page.Items = items[start:end]
	}
	if end < len(items) {
		page.Cursor = "c" + strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, page)
}

func (m *MockLoyverse) serveItem(w http.ResponseWriter, _ *http.Request, id string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.items {
		if item.ID == id {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "ITEM_NOT_FOUND"})
}

func (m *MockLoyverse) serveInventory(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("variant_ids"), ",")

	m.mu.Lock()
	if r.URL.Query().Get("cursor") == "" {
		m.InventoryBatches = append(m.InventoryBatches, ids)
	}
	var levels []client.InventoryLevel
	for _, id := range ids {
		levels = append(levels, m.levels[id]...)
	}
	m.mu.Unlock()

	limit := pageLimit(r)
	offset := cursorOffset(r)
	end := min(len(levels), offset+limit)

	page := client.InventoryPage{Levels: []client.InventoryLevel{}}
	if offset < end {
		page.Levels = levels[offset:end]
	}
	if end < len(levels) {
		page.Cursor = "c" + strconv.Itoa(end)
	}
	writeJSON(w, http.StatusOK, page)
}

// NewStaticHandler returns a handler that always answers resp.
func NewStaticHandler(resp MockResponse) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
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
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"errors":[{"code":"RATE_LIMITED","details":"Too many requests"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"errors":[{"code":"INTERNAL_SERVER_ERROR"}]}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewSequenceHandler answers with the responses in order and repeats the
// last one once the sequence is used up.
func NewSequenceHandler(responses ...func(w http.ResponseWriter, r *http.Request)) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	next := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := min(next, len(responses)-1)
		next++
		mu.Unlock()
		responses[i](w, r)
	}
}

// NewItem builds an item with one variant per size, ids derived from id.
func NewItem(id, name, categoryID, color string, sizes ...string) client.Item {
	item := client.Item{
		ID:          id,
		Name:        name,
		CategoryID:  categoryID,
		Color:       color,
		Option1Name: "Talla",
	}
	if len(sizes) == 0 {
		sizes = []string{""}
	}
	for i, size := range sizes {
		item.Variants = append(item.Variants, client.Variant{
			ID:           fmt.Sprintf("%s-v%d", id, i+1),
			ItemID:       id,
			Option1Value: size,
		})
	}
	return item
}

func pageLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 50
	}
	return limit
}

func cursorOffset(r *http.Request) int {
	cursor := r.URL.Query().Get("cursor")
	offset, err := strconv.Atoi(strings.TrimPrefix(cursor, "c"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
