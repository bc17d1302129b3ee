package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigballadanny/dwschatbot/internal/config"
	"github.com/bigballadanny/dwschatbot/pkg/circuitbreaker"
)

func TestNewServerOptions(t *testing.T) {
	srv := NewServer(http.NewServeMux(), WithAddress(":9999"), WithShutdownTimeout(time.Second))

	assert.Equal(t, ":9999", srv.Addr())
	assert.Equal(t, time.Second, srv.shutdownTimeout)
}

func TestServerRunStopsOnContextCancel(t *testing.T) {
	srv := NewServer(http.NewServeMux(), WithAddress("127.0.0.1:0"), WithShutdownTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}

func TestClientTripsBreakerOnServerErrors(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client, err := NewClient(config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          "10s",
	})
	require.NoError(t, err)

	// Two 5xx responses trip the breaker.
	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
		_, err := client.Do(req)
		require.Error(t, err)
	}

	req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
	_, err = client.Do(req)
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}

func TestClientPassesThroughSuccess(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	client, err := NewClient(config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          "10s",
	})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, upstream.URL, nil)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidBreakerTimeoutRejected(t *testing.T) {
	_, err := NewClient(config.CircuitBreakerConfig{Enabled: true, Timeout: "not-a-duration"})
	assert.Error(t, err)
}
