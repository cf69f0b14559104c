// Package client provides the DataCite REST API client used to collect
// consortium DOI statistics.
//
// Every call is a single GET with no retries and no caching. Any failure is
// returned to the caller as a typed error and ends the report run.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/consortium-doi-report/pkg/logging"
	"github.com/Sternrassler/consortium-doi-report/pkg/metrics"
	"github.com/rs/zerolog"
)

// MediaType is the JSON:API media type sent in the Accept header.
const MediaType = "application/vnd.api+json"

// Instance selects the DataCite environment.
type Instance string

const (
	// InstanceProduction is the public DataCite API.
	InstanceProduction Instance = "Production"

	// InstanceTest is the DataCite test (sandbox) API.
	InstanceTest Instance = "Test"
)

// BaseURL returns the API root of the instance.
func (i Instance) BaseURL() string {
	if i == InstanceTest {
		return "https://api.test.datacite.org"
	}
	return "https://api.datacite.org"
}

// maxErrorBody bounds how much of an error response ends up in APIError.
const maxErrorBody = 512

// Client is the DataCite API client.
type Client struct {
	httpClient *http.Client
	config     Config
	baseURL    string
	metrics    *metrics.Metrics
	requests   atomic.Int64
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL overrides the instance URL when set (tests, proxies).
	BaseURL string

	// Instance selects production or test when BaseURL is empty.
	Instance Instance

	// Basic auth credentials. Both empty means anonymous access.
	Username string
	Password string

	// User-Agent header
	UserAgent string

	// Timeout per request
	Timeout time.Duration

	// LogRequests logs every outgoing URL and query at info level.
	LogRequests bool

	// Metrics receives request instrumentation. A private instance is
	// created when nil.
	Metrics *metrics.Metrics
}

// DefaultConfig returns a default configuration for the given instance.
func DefaultConfig(instance Instance) Config {
	return Config{
		Instance:  instance,
		UserAgent: "consortium-doi-report/1.0",
		Timeout:   60 * time.Second,
	}
}

// New creates a new DataCite client.
func New(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = cfg.Instance.BaseURL()
	}

	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base)
	}

	if (cfg.Username == "") != (cfg.Password == "") {
		return nil, fmt.Errorf("username and password must be set together")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config:  cfg,
		baseURL: strings.TrimRight(base, "/"),
		metrics: m,
		logger:  logging.NewLogger("datacite-client"),
	}, nil
}

// Get issues a GET request for endpoint (and optional resource id) and
// decodes the JSON:API document. List responses (empty id) must carry a
// top-level meta object.
func (c *Client) Get(ctx context.Context, endpoint, id string, query url.Values) (*Document, error) {
	requestURL := c.URL(endpoint, id)
	encodedQuery := query.Encode()
	if encodedQuery != "" {
		requestURL += "?" + encodedQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", MediaType)
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	var event *zerolog.Event
	if c.config.LogRequests {
		event = c.logger.Info()
	} else {
		event = c.logger.Debug()
	}
	event.Str("url", c.URL(endpoint, id)).Str("query", unescape(encodedQuery)).Msg("DataCite request")

	c.requests.Add(1)
	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())

	if err != nil {
		c.metrics.ErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.metrics.RequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &TransportError{Endpoint: endpoint, Query: encodedQuery, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{Endpoint: endpoint, Query: encodedQuery, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		c.metrics.ErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("DataCite request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Endpoint:   endpoint,
			Query:      encodedQuery,
			Message:    excerpt(body),
		}
	}

	doc := &Document{endpoint: endpoint, query: encodedQuery}
	if err := json.Unmarshal(body, doc); err != nil {
		c.metrics.ErrorsTotal.WithLabelValues(string(ErrorClassResponse)).Inc()
		return nil, &ResponseShapeError{Endpoint: endpoint, Query: encodedQuery, Err: err}
	}

	if id == "" && doc.Meta == nil {
		c.metrics.ErrorsTotal.WithLabelValues(string(ErrorClassResponse)).Inc()
		return nil, doc.shapeError("meta", ErrMissingField)
	}

	return doc, nil
}

// URL joins the base URL, endpoint and optional resource id.
func (c *Client) URL(endpoint, id string) string {
	u := c.baseURL + "/" + strings.Trim(endpoint, "/")
	if id != "" {
		u += "/" + url.PathEscape(id)
	}
	return u
}

// RequestCount returns the number of requests issued by this client.
func (c *Client) RequestCount() int {
	return int(c.requests.Load())
}

// Metrics returns the metrics instance the client reports to.
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func excerpt(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}

func unescape(query string) string {
	if s, err := url.QueryUnescape(query); err == nil {
		return s
	}
	return query
}
