package teamup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"repschema/internal/metrics"
)

const (
	DefaultWindowDays = 7
	DefaultTimezone   = "Europe/Stockholm"

	dateLayout = "2006-01-02"
)

// FetchError reports a failed feed request: a transport error or a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Client queries the calendar service for a date window. Requests are
// anonymous and never retried.
type Client struct {
	baseURL    string
	timezone   string
	windowDays int
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration

	// observe records the duration of requests that reached the network.
	observe func(seconds float64)
}

// NewClient constructs a client for the calendar at baseURL, e.g.
// https://teamup.com/<calendar key>.
func NewClient(baseURL, timezone string, windowDays int, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timezone:   timezone,
		windowDays: windowDays,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		observe:    metrics.ObserveFetchDuration,
	}
}

// UseRedisCache configures optional Redis caching of feed bodies.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// URL builds the events query for windowDays starting at windowStart's date.
func (c *Client) URL(windowStart time.Time, windowDays int) string {
	if windowDays <= 0 {
		windowDays = c.windowDays
	}
	q := url.Values{}
	q.Set("startDate", windowStart.Format(dateLayout))
	q.Set("endDate", windowStart.AddDate(0, 0, windowDays).Format(dateLayout))
	q.Set("tz", c.timezone)
	return fmt.Sprintf("%s/events?%s", c.baseURL, q.Encode())
}

// Fetch returns the raw feed for the window. Failures are returned as *FetchError.
func (c *Client) Fetch(ctx context.Context, windowStart time.Time, windowDays int) ([]byte, error) {
	endpoint := c.URL(windowStart, windowDays)
	cacheKey := "teamup:" + endpoint

	if body, ok := c.readCache(ctx, cacheKey); ok {
		zerolog.Ctx(ctx).Debug().Str("url", redactURL(endpoint)).Msg("feed served from cache")
		return body, nil
	}

	body, err := c.doGet(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, body)
	return body, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	redacted := redactURL(endpoint)
	started := time.Now()
	defer func() { c.observe(time.Since(started).Seconds()) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, &FetchError{URL: redacted, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: redacted, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{URL: redacted, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: redacted, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}

func (c *Client) readCache(ctx context.Context, key string) ([]byte, bool) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return nil, false
	}
	val, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("feed cache read failed")
		}
		return nil, false
	}
	return val, true
}

func (c *Client) writeCache(ctx context.Context, key string, body []byte) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	if err := c.redis.Set(ctx, key, body, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("feed cache write failed")
	}
}

// redactURL drops the path and query, which carry the calendar key.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "teamup://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
