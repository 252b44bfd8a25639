package nocaptcha

import (
	"net/http"
	"time"
)

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for all service requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithPollInterval sets the pause between two polls of a pending answer.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

// WithPollTimeout bounds the total time spent polling one answer.
func WithPollTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.pollTimeout = timeout
	}
}

// WithBalanceURL overrides the balance endpoint derived from the api url.
func WithBalanceURL(url string) Option {
	return func(c *Client) {
		c.balanceURL = url
	}
}
