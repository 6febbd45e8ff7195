package homework

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	logx "hwbot/pkg/logx"
)

const (
	maxResponseBodySize = 1 << 20 // 1MB
	maxErrorBodySize    = 512

	defaultTimeout = 10 * time.Second
)

// Options configures a Client.
type Options struct {
	Endpoint string
	Token    string
	// Timeout bounds one request. Zero means 10s.
	Timeout time.Duration
	// HTTPClient is optional; a pooled client is created when nil.
	HTTPClient *http.Client
	Log        logx.Logger
	// Now is used when Fetch is called with from == 0.
	Now func() time.Time
}

// Client fetches homework statuses. Timeouts are applied per request via
// context, not on the http.Client.
type Client struct {
	endpoint string
	token    string
	timeout  time.Duration
	hc       *http.Client
	log      logx.Logger
	now      func() time.Time
}

func NewClient(opts Options) (*Client, error) {
	ep := strings.TrimSpace(opts.Endpoint)
	if ep == "" {
		return nil, fmt.Errorf("homework endpoint is empty")
	}
	if _, err := url.Parse(ep); err != nil {
		return nil, fmt.Errorf("homework endpoint: %w", err)
	}
	c := &Client{
		endpoint: ep,
		token:    opts.Token,
		timeout:  opts.Timeout,
		hc:       opts.HTTPClient,
		log:      opts.Log,
		now:      opts.Now,
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.hc == nil {
		c.hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Fetch requests statuses changed since from (unix seconds). from == 0 means now.
func (c *Client) Fetch(ctx context.Context, from int64) (*Response, error) {
	if from == 0 {
		from = c.now().Unix()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpoint, err)
	}
	q := u.Query()
	q.Set("from_date", strconv.FormatInt(from, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpoint, err)
	}
	req.Header.Set("Authorization", "OAuth "+c.token)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("requesting homework statuses", logx.Int64("from_date", from))
	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEndpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrEndpoint, err)
	}
	c.log.Debug("homework api responded",
		logx.Int("status", resp.StatusCode),
		logx.Duration("latency", time.Since(start)),
		logx.Int("bytes", len(body)),
	)

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Code:   resp.StatusCode,
			Reason: http.StatusText(resp.StatusCode),
			Body:   truncate(string(body), maxErrorBodySize),
		}
	}
	return DecodeResponse(body)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
