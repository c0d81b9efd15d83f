package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// HTTPSink forwards telemetry events to an external collaborator. Requests
// run through a circuit breaker so a dead collaborator costs one failed
// request per probe interval instead of a timeout per event.
type HTTPSink struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewHTTPSink creates a sink posting events to url. timeout bounds each
// request; non-positive means 5s.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "telemetry",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			Timeout: 30 * time.Second,
		}),
	}
}

// Forward posts e to the collaborator. It returns gobreaker.ErrOpenState
// without touching the network while the breaker is open.
func (s *HTTPSink) Forward(ctx context.Context, e Event) error {
	_, err := s.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("telemetry: collaborator returned %s", resp.Status)
		}
		return nil, nil
	})
	return err
}

// State returns the breaker state ("closed", "half-open", "open").
func (s *HTTPSink) State() string {
	return s.breaker.State().String()
}
