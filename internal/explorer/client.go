package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/walletscope/walletscope/internal/circuitbreaker"
	"github.com/walletscope/walletscope/internal/metrics"
	"github.com/walletscope/walletscope/internal/retry"
)

const (
	maxResponseSize = 5 * 1024 * 1024 // 5MB

	// DefaultTimeout bounds one upstream HTTP call.
	DefaultTimeout = 8 * time.Second

	defaultAttempts  = 3
	defaultBaseDelay = 200 * time.Millisecond
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("explorer returned HTTP %d: %s", e.StatusCode, e.Body)
}

// retryable reports whether a status code is worth retrying.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// ClientConfig configures the HTTP provider.
type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	Attempts  int
	BaseDelay time.Duration
}

// Client is an HTTP JSON Provider. Transient failures are retried with
// backoff; repeated failures open a circuit per upstream host.
type Client struct {
	base      *url.URL
	apiKey    string
	http      *http.Client
	breaker   *circuitbreaker.Breaker
	attempts  int
	baseDelay time.Duration
}

// NewClient creates an HTTP provider for cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid explorer base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	return &Client{
		base:      u,
		apiKey:    cfg.APIKey,
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker:   circuitbreaker.New(5, 30*time.Second),
		attempts:  cfg.Attempts,
		baseDelay: cfg.BaseDelay,
	}, nil
}

func (c *Client) Labels(ctx context.Context, chain string, addresses []string) ([]AddressLabel, error) {
	if len(addresses) > MaxLabelBatch {
		addresses = addresses[:MaxLabelBatch]
	}
	q := url.Values{"addresses": {strings.Join(addresses, ",")}}
	var out struct {
		Labels []AddressLabel `json:"labels"`
	}
	if err := c.get(ctx, "labels", "/v1/"+url.PathEscape(chain)+"/labels", q, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

func (c *Client) Transactions(ctx context.Context, chain, address string, limit int) ([]Transaction, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	path := "/v1/" + url.PathEscape(chain) + "/addresses/" + url.PathEscape(address) + "/transactions"
	if err := c.get(ctx, "transactions", path, q, &out); err != nil {
		return nil, err
	}
	return out.Transactions, nil
}

func (c *Client) Exchanges(ctx context.Context, chain string) ([]Exchange, error) {
	var out struct {
		Exchanges []Exchange `json:"exchanges"`
	}
	if err := c.get(ctx, "exchanges", "/v1/"+url.PathEscape(chain)+"/exchanges", nil, &out); err != nil {
		return nil, err
	}
	return out.Exchanges, nil
}

// get performs one logical GET with retries and the host circuit breaker,
// decoding the JSON body into out.
func (c *Client) get(ctx context.Context, operation, path string, q url.Values, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()

	body, err := retry.DoValue(ctx, c.attempts, c.baseDelay, func() ([]byte, error) {
		var b []byte
		err := c.breaker.Execute(c.base.Host, func() error {
			var err error
			b, err = c.do(ctx, u.String())
			return err
		}, isClientError)
		switch {
		case err == nil:
			return b, nil
		case errors.Is(err, circuitbreaker.ErrOpen), isClientError(err):
			return nil, retry.Permanent(err)
		default:
			return nil, err
		}
	})
	if err != nil {
		metrics.OriginRequestsTotal.WithLabelValues(operation, "error").Inc()
		return mapError(err)
	}
	metrics.OriginRequestsTotal.WithLabelValues(operation, "ok").Inc()

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode explorer %s response: %w", operation, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(b)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return b, nil
}

// isClientError matches 4xx responses other than 429. They neither trip the
// breaker nor get retried.
func isClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode < 500 && !retryable(se.StatusCode)
}

func mapError(err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			if strings.Contains(strings.ToLower(se.Body), "chain") {
				return fmt.Errorf("%w: %w", ErrUnsupportedChain, err)
			}
		}
	}
	return err
}
