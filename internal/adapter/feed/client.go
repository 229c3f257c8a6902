// Package feed talks to the public results feed and the catalog page.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/version"
	"github.com/sony/gobreaker"
)

const (
	maxDocumentSize = 4 << 20
	breakerTimeout  = 30 * time.Second
	breakerTrips    = 10
)

var (
	// ErrBadStatus is returned for any non-200 response.
	ErrBadStatus = errors.New("unexpected status")
	// ErrBreakerOpen is reported by Check while requests fail fast.
	ErrBreakerOpen = errors.New("feed circuit breaker open")
)

// StatusError carries the status code of a non-200 response. It matches
// ErrBadStatus with errors.Is.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrBadStatus, e.Code)
}

func (e *StatusError) Unwrap() error {
	return ErrBadStatus
}

// Client is a plain HTTP GET client behind a circuit breaker. When the feed
// host keeps failing the breaker opens and requests fail fast until it
// recovers.
type Client struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker
	userAgent string
}

// BreakerObserver is notified when the breaker changes state.
type BreakerObserver func(name string, from, to gobreaker.State)

func NewClient(name string, timeout time.Duration, observe BreakerObserver) *Client {
	return newClient(name, timeout, breakerTimeout, observe)
}

// newClient lets tests shorten how long the breaker stays open.
func newClient(name string, timeout, openFor time.Duration, observe BreakerObserver) *Client {
	settings := gobreaker.Settings{
		Name: name,
		// A half-open breaker lets a whole polling cycle through, so the
		// first cycle after an outage is not cut down to a single unit.
		MaxRequests:  domain.CatalogSize,
		Timeout:      openFor,
		IsSuccessful: hostHealthy,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
			if observe != nil {
				observe(name, from, to)
			}
		},
	}

	return &Client{
		http:      &http.Client{Timeout: timeout},
		breaker:   gobreaker.NewCircuitBreaker(settings),
		userAgent: version.UserAgent("collector"),
	}
}

// Get fetches url and returns the body of a 200 response.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	body, err := c.breaker.Execute(func() (interface{}, error) {
		return c.get(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

// hostHealthy reports whether err still shows a reachable feed host. A 4xx
// for one unit, or a request canceled by the caller, says nothing about the
// host and does not count towards tripping the breaker.
func hostHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var status *StatusError
	return errors.As(err, &status) && status.Code < http.StatusInternalServerError
}

func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Check is a readiness check that fails while the breaker is open. A
// half-open breaker is trying the feed again and counts as healthy.
func (c *Client) Check(context.Context) error {
	if c.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: %s", ErrBreakerOpen, c.breaker.Name())
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDocumentSize))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}
