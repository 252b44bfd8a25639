// Package nocaptcha is a client for the nocaptchaai image classification api.
package nocaptcha

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/challenge"
	"github.com/jonashiltl/captcha-solver/internal/config"
	"golang.org/x/time/rate"
)

const (
	proBalanceURL  = "https://manage.nocaptchaai.com/balance"
	freeBalanceURL = "https://free.nocaptchaai.com/balance"
)

type Client struct {
	apiKey       string
	apiURL       string
	balanceURL   string
	pollInterval time.Duration
	pollTimeout  time.Duration
	http         *http.Client
	log          *slog.Logger
}

// New creates a client. Empty apiKey or apiURL are read from the API_KEY and
// API_URL environment variables.
func New(apiKey, apiURL string, opts ...Option) (*Client, error) {
	creds, err := config.ResolveAPI(apiKey, apiURL)
	if err != nil {
		return nil, fmt.Errorf("reading api config: %w", err)
	}
	if creds.Key == "" {
		return nil, errors.New("missing API_KEY")
	}
	if creds.URL == "" {
		return nil, errors.New("missing API_URL")
	}

	c := &Client{
		apiKey:       creds.Key,
		apiURL:       creds.URL,
		balanceURL:   balanceEndpoint(creds.URL),
		pollInterval: 200 * time.Millisecond,
		pollTimeout:  60 * time.Second,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          internal.NewLogger("NocaptchaClient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// paid keys are served by a different host than free ones
func balanceEndpoint(apiURL string) string {
	if strings.Contains(apiURL, "pro") {
		return proBalanceURL
	}
	return freeBalanceURL
}

// Submit posts req and interprets the answer for the kind of req.
func (c *Client) Submit(ctx context.Context, req SolveRequest) (Outcome, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshalling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, NewConnectionError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apikey", c.apiKey)

	var res response
	if err := c.do(httpReq, &res); err != nil {
		return Outcome{}, err
	}

	c.log.Debug("submitted", slog.String("kind", req.Kind().String()), slog.String("status", res.Status))
	return res.outcome(req.Kind())
}

// Poll waits for the answer of a pending bounding box request. It gives up
// with a *TimeoutError once the poll timeout elapsed.
func (c *Client) Poll(ctx context.Context, pollURL string) (Outcome, error) {
	deadline := time.Now().Add(c.pollTimeout)
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.pollInterval), 1)
	limiter.Reserve() // first poll waits a full interval as well

	for attempt := 0; ; attempt++ {
		if err := limiter.Wait(pollCtx); err != nil {
			return Outcome{}, c.pollErr(ctx, deadline, attempt, err)
		}

		req, err := http.NewRequestWithContext(pollCtx, http.MethodGet, pollURL, nil)
		if err != nil {
			return Outcome{}, NewConnectionError("failed to create request", err)
		}
		req.Header.Set("Accept-Language", "last-requested-languages")
		req.Header.Set("apikey", c.apiKey)

		var res response
		if err := c.do(req, &res); err != nil {
			if pollCtx.Err() != nil {
				return Outcome{}, c.pollErr(ctx, deadline, attempt+1, err)
			}
			return Outcome{}, err
		}

		switch res.Status {
		case "solved", "skip", "error":
			out, err := res.outcome(challenge.BoundingBox)
			if err != nil {
				return Outcome{}, err
			}
			if out.Status != StatusPending {
				return out, nil
			}
		}
		c.log.Debug("answer pending", slog.String("status", res.Status), slog.Int("attempt", attempt+1))
	}
}

// pollErr reports an expired parent as is and everything else as a timeout.
func (c *Client) pollErr(parent context.Context, deadline time.Time, attempts int, cause error) error {
	if err := parent.Err(); err != nil {
		return err
	}
	// the limiter refuses to wait past a deadline before it is actually reached
	if d, ok := parent.Deadline(); ok && d.Before(deadline) {
		return context.DeadlineExceeded
	}
	return NewTimeoutError(fmt.Sprintf("no answer within %s: %v", c.pollTimeout, cause), attempts)
}

// Balance returns the quota left on the api key.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.balanceURL, nil)
	if err != nil {
		return Balance{}, NewConnectionError("failed to create request", err)
	}
	req.Header.Set("apikey", c.apiKey)

	var b Balance
	if err := c.do(req, &b); err != nil {
		return Balance{}, err
	}
	return b, nil
}

// HasBalance reports whether the key has either credit or subscription solves left.
func (c *Client) HasBalance(ctx context.Context) (bool, error) {
	b, err := c.Balance(ctx)
	if err != nil {
		return false, err
	}
	return b.HasQuota(), nil
}

func (c *Client) do(req *http.Request, v any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return NewConnectionError("failed to send request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NewConnectionError("failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return NewAPIError(strings.TrimSpace(string(body)), resp.StatusCode)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return NewProtocolError(fmt.Sprintf("malformed response from %s: %v", req.URL.Host, err))
	}
	return nil
}
