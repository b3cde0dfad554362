// Package booking calls the appointment action layer owned by the
// business-data subsystem over HTTP. The server side dedupes on the
// Idempotency-Key header, so retried requests book at most once.
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/fernandofuc/tistis-platform-sub010/agent/contract"
)

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("booking base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid booking base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) CreateAppointment(ctx context.Context, req contractx.BookingRequest) (contractx.BookingConfirmation, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return contractx.BookingConfirmation{}, errors.New("booking tenant id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return contractx.BookingConfirmation{}, fmt.Errorf("marshal booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/appointments", bytes.NewReader(body))
	if err != nil {
		return contractx.BookingConfirmation{}, fmt.Errorf("build booking request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return contractx.BookingConfirmation{}, fmt.Errorf("execute booking request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return contractx.BookingConfirmation{}, fmt.Errorf("booking status=%d body=%s", resp.StatusCode, string(raw))
	}

	var confirmation contractx.BookingConfirmation
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&confirmation); err != nil {
		return contractx.BookingConfirmation{}, fmt.Errorf("decode booking confirmation: %w", err)
	}
	return confirmation, nil
}
