package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/pkg/circuitbreaker"
)

// Client wraps the standard http.Client with circuit breaking, so repeated
// upstream failures stop hitting the wire until the cooldown passes.
type Client struct {
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// NewClient builds a Client from the circuit breaker config. With the breaker
// disabled the client degrades to a plain http.Client with a timeout.
func NewClient(cfg config.CircuitBreakerConfig) (*Client, error) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	if !cfg.Enabled {
		return &Client{httpClient: httpClient}, nil
	}

	cooldown, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout: %w", err)
	}

	return &Client{
		httpClient: httpClient,
		breaker:    circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, cooldown),
	}, nil
}

// Do executes the request under the circuit breaker. Responses with a 5xx
// status count as breaker failures and are returned as errors.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			status := resp.StatusCode
			resp.Body.Close()
			resp = nil
			return fmt.Errorf("server error: status %d", status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
