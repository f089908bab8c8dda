// Package backend is the HTTP client for the platform API that owns users,
// posts, recipes and restaurants. Every call goes through a circuit breaker.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dishly/dishly/internal/interaction"
	"github.com/dishly/dishly/internal/metrics"
)

const maxErrorBodyBytes = 64 * 1024

// Envelope is the response shape of every backend endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	// BreakerTimeout is how long the breaker stays open before probing again.
	BreakerTimeout time.Duration
	HTTPClient     *http.Client
}

type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[*Envelope]
}

func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[*Envelope](gobreaker.Settings{
		Name:        "platform-backend",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return counts.ConsecutiveFailures >= 5
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("backend: circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.Set(stateValue(to))
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		cb:      cb,
	}
}

// isBreakerSuccess counts client errors as healthy responses; only transport
// failures and 5xx trip the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var remote *interaction.RemoteError
	return errors.As(err, &remote) && remote.Status < http.StatusInternalServerError
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// do sends one request and returns the envelope of a successful response.
// A failed envelope or non-2xx status becomes *interaction.RemoteError;
// anything else becomes *interaction.TransportError.
func (c *Client) do(ctx context.Context, op, method, path, token string, body any) (*Envelope, error) {
	start := time.Now()
	env, err := c.cb.Execute(func() (*Envelope, error) {
		return c.roundTrip(ctx, op, method, path, token, body)
	})
	metrics.BackendDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &interaction.TransportError{Op: op, Err: err}
		}
		metrics.BackendRequests.WithLabelValues(op, outcomeLabel(err)).Inc()
		return nil, err
	}
	metrics.BackendRequests.WithLabelValues(op, "success").Inc()
	return env, nil
}

func outcomeLabel(err error) string {
	var remote *interaction.RemoteError
	if errors.As(err, &remote) {
		return "remote_failure"
	}
	return "transport_error"
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, token string, body any) (*Envelope, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &interaction.TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &interaction.TransportError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &interaction.TransportError{Op: op, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes(resp.StatusCode)))
	if err != nil {
		return nil, &interaction.TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	var env Envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remote := &interaction.RemoteError{Status: resp.StatusCode}
		if decodeErr == nil {
			remote.Message = env.Message
		}
		return nil, remote
	}
	if decodeErr != nil {
		return nil, &interaction.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if !env.Success {
		return nil, &interaction.RemoteError{Status: resp.StatusCode, Message: env.Message}
	}
	return &env, nil
}

func maxResponseBytes(status int) int64 {
	if status >= 200 && status <= 299 {
		return 16 << 20
	}
	return maxErrorBodyBytes
}

// decodeData decodes the envelope payload of a successful call into out.
func decodeData(op string, env *Envelope, out any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &interaction.TransportError{Op: op, Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &interaction.TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

// Ping checks that the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, "health", http.MethodGet, "/health", "", nil)
	return err
}
