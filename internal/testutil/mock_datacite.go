// Package testutil provides testing utilities for the DataCite report.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultFacetLimit is the number of facet values the DataCite API returns.
const DefaultFacetLimit = 10

// MockProvider is a provider record served by MockDataCite.
type MockProvider struct {
	ID           string
	Name         string
	ConsortiumID string
}

// MockDataCite is a configurable in-memory DataCite API for tests. It answers
// the providers and dois list endpoints from Providers and DOIs.
type MockDataCite struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Providers is the provider registry.
	Providers []MockProvider

	// DOIs maps provider id to registration dates of its DOIs.
	DOIs map[string][]time.Time

	// FacetLimit caps meta.providers entries (default DefaultFacetLimit).
	FacetLimit int

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	Queries           []url.Values
	Paths             []string
}

// NewMockDataCite creates a new mock DataCite server.
func NewMockDataCite() *MockDataCite {
	mock := &MockDataCite{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		DOIs:       make(map[string][]time.Time),
		FacetLimit: DefaultFacetLimit,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Queries = append(mock.Queries, r.URL.Query())
		mock.Paths = append(mock.Paths, r.URL.Path)
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		switch r.URL.Path {
		case "/providers":
			mock.providersHandler(w, r)
		case "/dois":
			mock.doisHandler(w, r)
		default:
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"errors": []map[string]string{{"status": "404", "title": "The resource you are looking for doesn't exist."}},
			})
		}
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockDataCite) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockDataCite) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockDataCite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.Queries = nil
	m.Paths = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockDataCite) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed status and body for a path.
func (m *MockDataCite) SetResponse(path string, status int, body string) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

// AddProvider registers a consortium member.
func (m *MockDataCite) AddProvider(id, name, consortiumID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Providers = append(m.Providers, MockProvider{ID: id, Name: name, ConsortiumID: consortiumID})
}

// AddDOIs registers count DOIs for provider id, all registered on date.
func (m *MockDataCite) AddDOIs(id string, date time.Time, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < count; i++ {
		key := strings.ToLower(id)
		m.DOIs[key] = append(m.DOIs[key], date)
	}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockDataCite) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// QueriesFor returns the recorded queries sent to path.
func (m *MockDataCite) QueriesFor(path string) []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var qs []url.Values
	for i, p := range m.Paths {
		if p == path {
			qs = append(qs, m.Queries[i])
		}
	}
	return qs
}

func (m *MockDataCite) providersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	consortiumID := q.Get("consortium-id")
	size := intParam(q, "page[size]", 25)
	number := intParam(q, "page[number]", 1)

	m.mu.RLock()
	var members []MockProvider
	for _, p := range m.Providers {
		if consortiumID == "" || strings.EqualFold(p.ConsortiumID, consortiumID) {
			members = append(members, p)
		}
	}
	m.mu.RUnlock()

	totalPages := 1
	if size > 0 {
		totalPages = (len(members) + size - 1) / size
	}
	if totalPages < 1 {
		totalPages = 1
	}

	start := (number - 1) * size
	end := start + size
	if start > len(members) {
		start = len(members)
	}
	if end > len(members) {
		end = len(members)
	}

	data := make([]map[string]interface{}, 0, end-start)
	for _, p := range members[start:end] {
		data = append(data, map[string]interface{}{
			"id":   p.ID,
			"type": "providers",
			"attributes": map[string]interface{}{
				"name":         p.Name,
				"symbol":       strings.ToUpper(p.ID),
				"memberType":   "consortium_organization",
				"consortiumId": p.ConsortiumID,
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": data,
		"meta": map[string]interface{}{
			"total":      len(members),
			"totalPages": totalPages,
			"page":       number,
		},
	})
}

var registeredRange = regexp.MustCompile(`^registered:\[(\d{4}-\d{2}-\d{2}) TO (\d{4}-\d{2}-\d{2})\]$`)

func (m *MockDataCite) doisHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var providerIDs []string
	if v := q.Get("provider-id"); v != "" {
		providerIDs = strings.Split(v, ",")
	}

	year := 0
	if v := q.Get("registered"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad registered"})
			return
		}
		year = y
	}

	var from, until time.Time
	if v := q.Get("query"); v != "" {
		match := registeredRange.FindStringSubmatch(v)
		if match == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported query"})
			return
		}
		from, _ = time.Parse("2006-01-02", match[1])
		until, _ = time.Parse("2006-01-02", match[2])
	}

	m.mu.RLock()
	limit := m.FacetLimit
	if providerIDs == nil {
		for id := range m.DOIs {
			providerIDs = append(providerIDs, id)
		}
	}
	type facet struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Count int    `json:"count"`
	}
	var facets []facet
	total := 0
	for _, id := range providerIDs {
		count := 0
		for _, d := range m.DOIs[strings.ToLower(id)] {
			if year != 0 && d.Year() != year {
				continue
			}
			if !from.IsZero() && (d.Before(from) || d.After(until.Add(24*time.Hour-time.Nanosecond))) {
				continue
			}
			count++
		}
		total += count
		if count > 0 {
			facets = append(facets, facet{ID: strings.ToLower(id), Title: m.providerName(id), Count: count})
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(facets, func(i, j int) bool { return facets[i].Count > facets[j].Count })
	if limit > 0 && len(facets) > limit {
		facets = facets[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": []interface{}{},
		"meta": map[string]interface{}{
			"total":      total,
			"totalPages": 0,
			"page":       1,
			"providers":  facets,
		},
	})
}

// providerName must be called with m.mu held.
func (m *MockDataCite) providerName(id string) string {
	for _, p := range m.Providers {
		if strings.EqualFold(p.ID, id) {
			return p.Name
		}
	}
	return id
}

func intParam(q url.Values, key string, def int) int {
	v, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
