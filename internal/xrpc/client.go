// Package xrpc is a small client for AT Protocol XRPC endpoints
// (<host>/xrpc/<nsid>), with bearer authentication, client-side rate
// limiting and a typed error taxonomy.
package xrpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/gophsky/internal/logging"
	"github.com/dmitrijs2005/gophsky/internal/metrics"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "gophsky/1.0"
)

// Client talks to one XRPC host. It is safe for concurrent use.
type Client struct {
	host    string
	rest    *resty.Client
	stream  *http.Client
	limiter *rate.Limiter
	log     logging.Logger

	timeout   time.Duration
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds Query and Procedure calls. Uploads are bounded only by
// their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit throttles outgoing calls to rps requests per second with the
// given burst. A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient returns a Client for host, e.g. "https://bsky.social".
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		host:      strings.TrimRight(host, "/"),
		log:       logging.Nop(),
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.rest = resty.New().
		SetBaseURL(c.host).
		SetTimeout(c.timeout).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Accept", "application/json").
		SetDisableWarn(true)

	// Uploads bypass resty so the body is streamed instead of buffered.
	stream := *c.rest.GetClient()
	stream.Timeout = 0
	c.stream = &stream

	return c
}

// Host returns the base URL the client was created with.
func (c *Client) Host() string { return c.host }

// Query performs an XRPC query (HTTP GET) and decodes the JSON response into
// out when out is non-nil. An empty auth sends no Authorization header.
func (c *Client) Query(ctx context.Context, nsid, auth string, params map[string]string, out any) error {
	req := c.rest.R().SetQueryParams(params)
	return c.do(ctx, http.MethodGet, nsid, auth, req, out)
}

// Procedure performs an XRPC procedure (HTTP POST) with an optional JSON
// input body.
func (c *Client) Procedure(ctx context.Context, nsid, auth string, in, out any) error {
	req := c.rest.R()
	if in != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(in)
	}
	return c.do(ctx, http.MethodPost, nsid, auth, req, out)
}

func (c *Client) do(ctx context.Context, method, nsid, auth string, req *resty.Request, out any) error {
	if err := c.wait(ctx); err != nil {
		return newTransportError(nsid, err)
	}

	start := time.Now()
	req.SetContext(ctx)
	if auth != "" {
		req.SetAuthToken(auth)
	}

	resp, err := req.Execute(method, "/xrpc/"+nsid)
	if err != nil {
		metrics.ObserveXRPC(nsid, 0)
		c.log.Debug(ctx, "xrpc transport error", "nsid", nsid, "duration", time.Since(start), "error", err)
		return newTransportError(nsid, err)
	}

	return c.finish(ctx, nsid, resp.StatusCode(), resp.Header(), resp.Body(), out, start)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) finish(ctx context.Context, nsid string, status int, header http.Header, body []byte, out any, start time.Time) error {
	metrics.ObserveXRPC(nsid, status)
	c.log.Debug(ctx, "xrpc call", "nsid", nsid, "status", status, "duration", time.Since(start))

	if status < 200 || status > 299 {
		return newStatusError(nsid, status, header, body)
	}
	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return newDecodeError(nsid, status, body, errEmptyBody)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newDecodeError(nsid, status, body, err)
	}
	return nil
}
