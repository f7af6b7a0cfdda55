package homeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pubky-canvas/indexer/errors"
	"github.com/pubky-canvas/indexer/internal/httpclient"
)

// DefaultRequestTimeout is used when NewHTTPClient is given a non-positive
// timeout, matching config's own default (watcher.homeserver_request_timeout_ms).
const DefaultRequestTimeout = 10 * time.Second

// eventListResponse is the wire format this client expects from a
// homeserver's event-listing endpoint.
type eventListResponse struct {
	Events []struct {
		Method string `json:"method"`
		Path   string `json:"path"`
		Cursor string `json:"cursor"`
	} `json:"events"`
	NextCursor string `json:"next_cursor"`
}

// HTTPClient is the concrete, SSRF-hardened implementation of Client. Each
// homeserver host gets its own token-bucket limiter so one slow or
// adversarial host cannot starve the watcher's tick budget for every other
// user.
type HTTPClient struct {
	client *httpclient.SaferClient

	listTimeout  time.Duration
	fetchTimeout time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	requestsPerSecond rate.Limit
	burst             int
}

// NewHTTPClient builds a Client backed by a SSRF-hardened *http.Client.
// requestTimeout bounds both the per-call list and fetch budgets (config's
// watcher.homeserver_request_timeout_ms); requestsPerSecond and burst bound
// outbound request concurrency per host.
func NewHTTPClient(requestTimeout time.Duration, requestsPerSecond float64, burst int) *HTTPClient {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	return &HTTPClient{
		client:            httpclient.NewSaferClient(requestTimeout),
		listTimeout:       requestTimeout,
		fetchTimeout:      requestTimeout,
		limiters:          make(map[string]*rate.Limiter),
		requestsPerSecond: rate.Limit(requestsPerSecond),
		burst:             burst,
	}
}

func (c *HTTPClient) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.requestsPerSecond, c.burst)
		c.limiters[host] = l
	}
	return l
}

func (c *HTTPClient) waitForHost(ctx context.Context, address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return errors.Wrapf(err, "parse homeserver address %q", address)
	}
	return c.limiterFor(u.Host).Wait(ctx)
}

// ListEvents lists up to limit events for a user since cursor via
// GET {address}/events?cursor=...&limit=....
func (c *HTTPClient) ListEvents(ctx context.Context, address, cursor string, limit int) ([]EventRecord, string, error) {
	if err := c.waitForHost(ctx, address); err != nil {
		return nil, "", errors.Wrap(err, "rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	reqURL := fmt.Sprintf("%s/events?cursor=%s&limit=%d", address, url.QueryEscape(cursor), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", errors.Wrapf(err, "build list request for %s", address)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", errors.Wrapf(err, "list events from %s", address)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Newf("list events from %s: status %d", address, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "read list response")
	}

	var parsed eventListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, "", errors.Wrap(err, "decode list response")
	}

	records := make([]EventRecord, len(parsed.Events))
	for i, e := range parsed.Events {
		records[i] = EventRecord{Method: e.Method, Path: e.Path, Cursor: e.Cursor}
	}

	return records, parsed.NextCursor, nil
}

// FetchObject retrieves the raw body at path on the given homeserver
// address via GET {address}{path}.
func (c *HTTPClient) FetchObject(ctx context.Context, address, path string) ([]byte, error) {
	if err := c.waitForHost(ctx, address); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "build fetch request for %s%s", address, path)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch object %s%s", address, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("fetch object %s%s: status %d", address, path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read object body")
	}

	return body, nil
}
