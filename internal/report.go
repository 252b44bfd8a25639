package internal

import "time"

// Report describes the outcome of one challenge round as returned by the
// solving service.
type Report struct {
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url,omitempty"`
	Kind      string    `json:"kind"`
	Prompt    string    `json:"prompt"`
	Round     int       `json:"round"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}
