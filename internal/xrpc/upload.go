package xrpc

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/gophsky/internal/metrics"
)

// maxResponseBody caps how much of an upload response is read.
const maxResponseBody = 1 << 20

var errEmptyBody = errors.New("empty response body")

// Upload POSTs body as a raw binary XRPC input. The body is streamed with
// Content-Length set to size; it is not buffered in memory.
func (c *Client) Upload(ctx context.Context, nsid, auth string, params map[string]string, contentType string, body io.Reader, size int64, out any) error {
	if err := c.wait(ctx); err != nil {
		return newTransportError(nsid, err)
	}

	u := c.host + "/xrpc/" + nsid
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return newTransportError(nsid, err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}

	start := time.Now()
	resp, err := c.stream.Do(req)
	if err != nil {
		metrics.ObserveXRPC(nsid, 0)
		c.log.Debug(ctx, "xrpc upload transport error", "nsid", nsid, "duration", time.Since(start), "error", err)
		return newTransportError(nsid, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		metrics.ObserveXRPC(nsid, 0)
		return newTransportError(nsid, err)
	}

	return c.finish(ctx, nsid, resp.StatusCode, resp.Header, respBody, out, start)
}
