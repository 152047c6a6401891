package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/concierge/internal/sources/registry"
	"github.com/MrSnakeDoc/concierge/internal/utils"
)

const (
	// DefaultTimeout bounds every downstream call independently.
	DefaultTimeout = 5 * time.Second
	// MaxBodyBytes caps the size of a downstream JSON body.
	MaxBodyBytes = 4 << 20
)

// Status is the health of one downstream call.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusDown    Status = "down"
)

// Result is the outcome of one downstream call.
// Data is nil whenever Status is StatusDown.
type Result struct {
	Data     json.RawMessage
	Status   Status
	Err      error
	Duration time.Duration
}

// Options configures a Client.
type Options struct {
	Timeout   time.Duration     // per call, DefaultTimeout when zero
	UserAgent string            // sent on every request
	Transport http.RoundTripper // nil => a dedicated keep-alive transport
}

// Client calls the downstream services of the registry.
type Client struct {
	services  registry.Services
	http      *http.Client
	timeout   time.Duration
	userAgent string
}

// NewClient creates a client for services.
func NewClient(services registry.Services, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	transport := opts.Transport
	if transport == nil {
		transport = newTransport(opts.Timeout)
	}

	return &Client{
		services: services,
		http: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Don't follow redirects
				return http.ErrUseLastResponse
			},
		},
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}

// Services returns the registry the client was built with.
func (c *Client) Services() registry.Services {
	return c.services
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Fetch GETs path on service. It never fails: any error (unknown service, transport
// failure, timeout, non-2xx, non-JSON body) is reported as a StatusDown result.
func (c *Client) Fetch(ctx context.Context, service, path string) Result {
	start := time.Now()
	data, err := c.fetch(ctx, service, path)

	r := Result{Duration: time.Since(start)}
	if err != nil {
		r.Status = StatusDown
		r.Err = err
	} else {
		r.Status = StatusHealthy
		r.Data = data
	}
	observe(service, r)
	return r
}

func (c *Client) fetch(ctx context.Context, service, path string) (json.RawMessage, error) {
	svc, ok := c.services[service]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.get(ctx, svc.URL(path))
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", service, err)
	}
	defer utils.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Service: service, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", service, err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("%w: %s body exceeds %d bytes", ErrInvalidBody, service, MaxBodyBytes)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s did not return JSON", ErrInvalidBody, service)
	}

	return json.RawMessage(body), nil
}

// Probe checks the health endpoint of service.
func (c *Client) Probe(ctx context.Context, service string) error {
	svc, ok := c.services[service]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, service)
	}

	resp, err := c.get(ctx, svc.URL(svc.HealthPath))
	if err != nil {
		return fmt.Errorf("failed to probe %s: %w", service, err)
	}
	defer utils.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Service: service, Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("X-Request-ID", requestID(ctx))
	if auth := authorizationFrom(ctx); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	return c.http.Do(req)
}

// requestID propagates the inbound request id, or mints one for calls
// made outside a request (probes).
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

type authorizationKey struct{}

// WithAuthorization returns a context whose downstream calls carry the given
// Authorization header value.
func WithAuthorization(ctx context.Context, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, authorizationKey{}, value)
}

func authorizationFrom(ctx context.Context) string {
	v, _ := ctx.Value(authorizationKey{}).(string)
	return v
}
