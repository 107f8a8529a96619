// File: internal/platform/client.go

// Package platform is the HTTP transport to the remote Argus analysis
// pipeline. It submits analysis runs and cloud scans as server-sent event
// streams and performs the synchronous HITL resume round-trip. All
// requests are paced by a client-side rate limiter and carry the
// configured API key as a bearer token.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/metrics"
)

const (
	analysisPath = "/api/v1/analysis"
	resumePath   = "/api/v1/analysis/resume"
	scansPath    = "/api/v1/scans"
)

// AnalysisStream yields the decoded events of one pipeline invocation.
// Next returns io.EOF when the server closes the stream; unrecognized
// event names are skipped, never surfaced.
type AnalysisStream interface {
	Next() (schemas.AnalysisEvent, error)
	Close() error
}

// ScanStream yields the decoded milestone events of one cloud scan.
type ScanStream interface {
	Next() (*schemas.ScanEvent, error)
	Close() error
}

// Options configures the platform client.
type Options struct {
	// BaseURL is the root of the pipeline API, without a trailing slash.
	BaseURL string

	// APIKey is attached as a bearer token when non-empty.
	APIKey string

	// RequestTimeout bounds the non-streaming resume call. Streaming reads
	// are bounded only by the caller's context.
	RequestTimeout time.Duration

	// RateLimit and RateBurst pace outgoing requests.
	RateLimit float64
	RateBurst int

	// HTTPClient overrides the default client; its transport is wrapped
	// with the decompression middleware either way.
	HTTPClient *http.Client

	Logger  *zap.Logger
	Metrics metrics.Collector
}

// Client talks to the remote pipeline. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration

	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	metrics metrics.Collector
}

// NewClient validates opts and builds a client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("platform client requires a base URL")
	}
	if opts.RateLimit <= 0 || opts.RateBurst <= 0 {
		return nil, fmt.Errorf("platform client requires a positive rate limit and burst")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	httpClient.Transport = NewCompressionMiddleware(httpClient.Transport)

	return &Client{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		timeout: timeout,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		logger:  logger.Named("platform"),
		metrics: collector,
	}, nil
}

// newRequest builds a JSON POST with auth and a fresh request identifier.
func (c *Client) newRequest(ctx context.Context, path string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do paces and performs a request, recording per-endpoint metrics.
func (c *Client) do(req *http.Request, endpoint string) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	timer := metrics.NewTimer(c.metrics, metrics.PlatformRequestDuration.Name, "endpoint", endpoint)
	resp, err := c.http.Do(req)
	timer.ObserveDuration()
	if err != nil {
		c.metrics.CounterInc(metrics.PlatformRequestsTotal.Name, "endpoint", endpoint, "status", "error")
		return nil, err
	}

	c.metrics.CounterInc(metrics.PlatformRequestsTotal.Name,
		"endpoint", endpoint, "status", fmt.Sprintf("%d", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("platform returned %s for %s: %s",
			resp.Status, endpoint, bytes.TrimSpace(body))
	}
	return resp, nil
}

// StreamAnalysis submits input text for analysis and returns the event
// stream of the resulting run. The stream stays open until the caller's
// context is canceled or the server terminates it.
func (c *Client) StreamAnalysis(ctx context.Context, input string) (AnalysisStream, error) {
	req, err := c.newRequest(ctx, analysisPath, map[string]string{"input": input})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req, "analysis")
	if err != nil {
		return nil, fmt.Errorf("submit analysis: %w", err)
	}

	c.logger.Debug("Analysis stream opened.", zap.Int("input_bytes", len(input)))
	return &analysisStream{
		reader: newSSEReader(resp.Body),
		body:   resp.Body,
	}, nil
}

// Resume submits a HITL decision for a paused run and returns the next
// run result. Bounded by the configured request timeout.
func (c *Client) Resume(ctx context.Context, decision schemas.ResumeRequest) (*schemas.RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.newRequest(ctx, resumePath, decision)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "resume")
	if err != nil {
		return nil, fmt.Errorf("resume run: %w", err)
	}
	defer resp.Body.Close()

	var result schemas.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode resume result: %w", err)
	}
	c.logger.Debug("Resume round-trip finished.", zap.String("status", string(result.Status)))
	return &result, nil
}

// StreamScan starts a cloud scan against target and returns its milestone
// stream.
func (c *Client) StreamScan(ctx context.Context, target string) (ScanStream, error) {
	req, err := c.newRequest(ctx, scansPath, map[string]string{"target": target})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(req, "scans")
	if err != nil {
		return nil, fmt.Errorf("start scan: %w", err)
	}

	c.logger.Debug("Scan stream opened.", zap.String("target", target))
	return &scanStream{
		reader: newSSEReader(resp.Body),
		body:   resp.Body,
	}, nil
}

// analysisStream decodes SSE frames into typed analysis events.
type analysisStream struct {
	reader *sseReader
	body   io.Closer
}

func (s *analysisStream) Next() (schemas.AnalysisEvent, error) {
	for {
		frame, err := s.reader.next()
		if err != nil {
			return nil, err
		}
		ev, err := schemas.DecodeAnalysisEvent(frame.name, frame.data)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			continue // Unrecognized event name; skip.
		}
		return ev, nil
	}
}

func (s *analysisStream) Close() error { return s.body.Close() }

// scanStream decodes SSE frames into scan milestone events.
type scanStream struct {
	reader *sseReader
	body   io.Closer
}

func (s *scanStream) Next() (*schemas.ScanEvent, error) {
	for {
		frame, err := s.reader.next()
		if err != nil {
			return nil, err
		}
		ev, err := schemas.DecodeScanEvent(frame.name, frame.data)
		if err != nil {
			return nil, err
		}
		if ev == nil {
			continue // Unrecognized milestone; inert.
		}
		return ev, nil
	}
}

func (s *scanStream) Close() error { return s.body.Close() }
