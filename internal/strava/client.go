// Package strava is the client for the upstream fitness-data provider.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"example.com/trainload/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://www.strava.com/api/v3"

// MaxPerPage is the largest page size the provider accepts.
const MaxPerPage = 200

// ErrNotFound is returned when the provider reports a referenced object no
// longer exists.
var ErrNotFound = errors.New("strava: not found")

// APIError carries a non-2xx provider response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("strava: unexpected status %d: %s", e.StatusCode, e.Body)
}

// IsRateLimited reports whether the provider rejected the call for quota.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the provider API for one athlete credential. Requests are
// paced by a shared limiter so bulk pagination stays inside the provider's
// rate limits.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// Option configures optional Client behaviour.
type Option func(*Client)

// WithBaseURL points the client at a non-production API root (tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithLimiter overrides the request pacing limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) { c.limiter = limiter }
}

// NewClient builds a Client on top of an oauth2 token source. The token
// source transparently refreshes the credential when it is close to expiry.
func NewClient(ts oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		httpClient: oauth2.NewClient(context.Background(), ts),
		// Provider allows 100 requests per 15 minutes; pace well under
		// that so webhook-driven fetches still have headroom.
		limiter: rate.NewLimiter(rate.Every(150*time.Millisecond), 1),
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListActivities fetches one page of the athlete's activities with start
// time strictly after the given instant.
func (c *Client) ListActivities(ctx context.Context, after time.Time, page, perPage int) ([]Activity, error) {
	params := url.Values{}
	if !after.IsZero() {
		params.Set("after", strconv.FormatInt(after.Unix(), 10))
	}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	var activities []Activity
	if err := c.getJSON(ctx, "/athlete/activities", params, &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// FetchActivity fetches one activity by id. It returns ErrNotFound when the
// provider no longer has the activity.
func (c *Client) FetchActivity(ctx context.Context, activityID int64) (*Activity, error) {
	var activity Activity
	path := fmt.Sprintf("/activities/%d", activityID)
	if err := c.getJSON(ctx, path, nil, &activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// FetchZoneTimes fetches the per-zone time buckets (seconds, zone 1 first)
// for an activity. A nil slice with nil error means the provider has no
// heart-rate zone analysis for it.
func (c *Client) FetchZoneTimes(ctx context.Context, activityID int64) ([]int, error) {
	var zones []Zone
	path := fmt.Sprintf("/activities/%d/zones", activityID)
	if err := c.getJSON(ctx, path, nil, &zones); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	for _, zone := range zones {
		if zone.Type != "heartrate" || len(zone.DistributionBuckets) == 0 {
			continue
		}
		times := make([]int, 0, len(zone.DistributionBuckets))
		for _, bucket := range zone.DistributionBuckets {
			times = append(times, bucket.Time)
		}
		return times, nil
	}
	return nil, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("strava: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 500 || apiErr.IsRateLimited() {
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, apiErr)
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("strava: decoding response: %w", err)
	}
	return nil
}
