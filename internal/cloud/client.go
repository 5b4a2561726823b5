// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/genai"
	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/util"
)

// Configuration constants for the OCI Generative AI inference API.
const (
	// APIVersion is the inference API version path segment.
	APIVersion = "20231130"

	// chatPath is the chat action relative to the endpoint.
	chatPath = "/" + APIVersion + "/actions/chat"

	// DefaultTimeout bounds non-streaming calls and the wait for response
	// headers on streaming calls.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// MaxResponseSize is the maximum allowed non-streaming response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	// ServingTypeOnDemand selects the shared on-demand serving mode.
	ServingTypeOnDemand = "ON_DEMAND"

	userAgent = "ocichat/0.1.0"
)

var (
	// retryBaseDelay is the base delay for exponential backoff.
	retryBaseDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second
)

// json is the package codec.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoEndpoint indicates neither an endpoint nor a region was configured.
	ErrNoEndpoint = errors.New("no inference endpoint or region configured")

	// ErrAuthFailed indicates the service rejected the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelNotFound indicates the model or compartment was not found.
	ErrModelNotFound = errors.New("model not found")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

// Error implements the error interface. The message always contains
// "status code <n>" so callers can classify it by text.
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString("OCI generative AI error")
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	fmt.Fprintf(&b, " (status code %d)", e.Status)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.RequestID != "" {
		fmt.Fprintf(&b, " (opc-request-id: %s)", e.RequestID)
	}
	return b.String()
}

// Is maps well-known statuses to the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrModelNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || (e.Status >= 500 && e.Status < 600)
}

// =============================================================================
// CLIENT
// =============================================================================

// Options configures a Client.
type Options struct {
	// Endpoint overrides the regional inference endpoint.
	Endpoint string
	// Region selects the regional endpoint when Endpoint is empty.
	Region string
	// Signer attaches credentials. Nil sends unsigned requests.
	Signer Signer
	// HTTPClient overrides the transport. It must not set a Timeout, since
	// streams are bounded by the caller's context.
	HTTPClient *http.Client
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	// MaxRetries defaults to DefaultMaxRetries.
	MaxRetries int
	// RequestsPerSecond limits outgoing calls; zero means unlimited.
	RequestsPerSecond float64
	// Logger defaults to the standard logrus logger.
	Logger log.FieldLogger
}

// Client sends chat requests to the OCI Generative AI inference API.
// It implements genai.Backend and is safe for concurrent use.
type Client struct {
	endpoint   string
	region     string
	signer     Signer
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	log        log.FieldLogger
}

// EndpointForRegion returns the public inference endpoint of a region.
func EndpointForRegion(region string) string {
	return "https://inference.generativeai." + strings.TrimSpace(region) + ".oci.oraclecloud.com"
}

// NewClient creates a Client.
func NewClient(opts Options) (*Client, error) {
	region := strings.TrimSpace(opts.Region)
	endpoint := strings.TrimSuffix(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		if region == "" {
			return nil, ErrNoEndpoint
		}
		endpoint = EndpointForRegion(region)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		// PERFORMANCE: Connection pooling reduces TLS handshake overhead.
		// No client Timeout: streams are controlled via context.
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: timeout,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Client{
		endpoint:   endpoint,
		region:     region,
		signer:     opts.Signer,
		httpClient: httpClient,
		timeout:    timeout,
		maxRetries: maxRetries,
		limiter:    rate.NewLimiter(limit, 1),
		log:        logger.WithField("component", "cloud"),
	}, nil
}

// Region returns the configured region.
func (c *Client) Region() string {
	return c.region
}

// Endpoint returns the inference endpoint in use.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// chatDetailsBody is the wire body of the chat action.
type chatDetailsBody struct {
	CompartmentID string            `json:"compartmentId"`
	ServingMode   servingMode       `json:"servingMode"`
	ChatRequest   genai.ChatRequest `json:"chatRequest"`
}

type servingMode struct {
	ServingType string `json:"servingType"`
	ModelID     string `json:"modelId"`
}

// Chat sends one chat request. When the service answers with an event
// stream, the result carries the open Stream and the caller must close it;
// otherwise it carries the complete Body.
//
// 429 and 5xx responses are retried with exponential backoff before any
// response body is handed to the caller.
func (c *Client) Chat(ctx context.Context, details genai.ChatDetails) (*genai.ChatResult, error) {
	body, err := json.Marshal(chatDetailsBody{
		CompartmentID: details.CompartmentID,
		ServingMode: servingMode{
			ServingType: ServingTypeOnDemand,
			ModelID:     details.ModelID,
		},
		ChatRequest: details.Request,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	stream := details.Request.IsStream
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		// Apply backoff delay after first attempt
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		res, err := c.doChat(ctx, body, stream)
		if err == nil {
			return res, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Retryable() {
			lastErr = err
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doChat performs a single HTTP round trip.
func (c *Client) doChat(ctx context.Context, body []byte, stream bool) (*genai.ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// Non-streaming calls are bounded here; streams by the caller's context.
	reqCtx := ctx
	cancel := context.CancelFunc(func() {})
	if !stream {
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint+chatPath, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("opc-request-id", requestID)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	if c.signer != nil {
		if err := c.signer.Sign(req); err != nil {
			cancel()
			return nil, fmt.Errorf("failed to sign request: %w", err)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.logResponse(req, resp, requestID, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		data, _ := readResponse(resp)
		return nil, newAPIError(resp, data, requestID)
	}

	if isEventStream(resp.Header.Get("Content-Type")) {
		return &genai.ChatResult{Stream: &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}}, nil
	}

	defer cancel()
	defer resp.Body.Close()
	data, err := readResponse(resp)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return &genai.ChatResult{Body: data}, nil
}

// logResponse logs an API round trip.
// SECURITY: Only method, path, status, request ID and duration. Never headers
// (they carry credentials) or bodies (they carry conversation content).
func (c *Client) logResponse(req *http.Request, resp *http.Response, requestID string, d time.Duration) {
	c.log.WithFields(log.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"status":     resp.StatusCode,
		"request_id": requestID,
		"duration":   d.Round(time.Millisecond),
	}).Debug("API response")
}

// cancelOnClose releases the request context when the stream is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// isEventStream reports whether a Content-Type is text/event-stream.
func isEventStream(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "text/event-stream")
	}
	return mt == "text/event-stream"
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// newAPIError builds an APIError from an error response. OCI error bodies
// look like {"code": "...", "message": "..."}; anything else is kept raw.
func newAPIError(resp *http.Response, body []byte, requestID string) *APIError {
	e := &APIError{
		Status:    resp.StatusCode,
		RequestID: requestID,
	}
	if id := resp.Header.Get("opc-request-id"); id != "" {
		e.RequestID = id
	}

	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		e.Code = root.Get("code").String()
		e.Message = root.Get("message").String()
	}
	if e.Message == "" {
		e.Message = util.TruncateRunes(strings.TrimSpace(string(body)), 512)
	}
	return e
}

// calculateBackoff returns the delay to wait before the next retry.
func calculateBackoff(attempt int) time.Duration {
	// Exponential backoff: 500ms, 1000ms, 2000ms, etc.
	delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}
