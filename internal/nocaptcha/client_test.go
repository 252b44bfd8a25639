package nocaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonashiltl/captcha-solver/internal/challenge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{
		WithPollInterval(time.Millisecond),
		WithBalanceURL(server.URL + "/balance"),
	}, opts...)
	client, err := New("test-key", server.URL+"/solve", opts...)
	require.NoError(t, err)
	return client, server
}

func TestNewResolvesEnvironment(t *testing.T) {
	t.Setenv("API_KEY", "env-key")
	t.Setenv("API_URL", "https://pro.nocaptchaai.com/api/solve")

	c, err := New("", "")
	require.NoError(t, err)
	assert.Equal(t, "env-key", c.apiKey)
	assert.Equal(t, proBalanceURL, c.balanceURL)

	c, err = New("explicit-key", "https://free.nocaptchaai.com/api/solve")
	require.NoError(t, err)
	assert.Equal(t, "explicit-key", c.apiKey)
	assert.Equal(t, freeBalanceURL, c.balanceURL)
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("API_URL", "")

	_, err := New("", "https://free.nocaptchaai.com/api/solve")
	assert.Error(t, err)
	_, err = New("key", "")
	assert.Error(t, err)
}

func TestBalanceEndpoint(t *testing.T) {
	tests := []struct {
		apiURL   string
		expected string
	}{
		{"https://pro.nocaptchaai.com/api/solve", proBalanceURL},
		{"https://free.nocaptchaai.com/api/solve", freeBalanceURL},
		{"https://example.com/solve", freeBalanceURL},
	}
	for _, tt := range tests {
		if got := balanceEndpoint(tt.apiURL); got != tt.expected {
			t.Errorf("balanceEndpoint(%q) = %q, want %q", tt.apiURL, got, tt.expected)
		}
	}
}

func TestSubmitRequestShape(t *testing.T) {
	var got map[string]any
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"status":"solved","solution":[1,"4",7]}`))
	})

	out, err := client.Submit(context.Background(), NewGridRequest("Please click each image containing a cat", map[int]string{0: "a", 1: "b"}))
	require.NoError(t, err)
	assert.Equal(t, StatusSolved, out.Status)
	assert.Equal(t, []int{1, 4, 7}, out.Selection.Indices)

	assert.Equal(t, "Please click each image containing a cat", got["target"])
	assert.Equal(t, "hcaptcha_base64", got["method"])
	assert.Equal(t, map[string]any{"0": "a", "1": "b"}, got["images"])
	assert.NotContains(t, got, "type")
}

func TestRequestChoicesField(t *testing.T) {
	tests := []struct {
		name     string
		req      SolveRequest
		expected any
	}{
		{"bbox sends empty choices", NewBoundingBoxRequest("t", "img"), []any{}},
		{"multi sends choices", NewMultipleChoiceRequest("t", "e", nil, []string{"a", "b"}), []any{"a", "b"}},
		{"grid omits choices", NewGridRequest("t", nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := json.Marshal(tt.req)
			require.NoError(t, err)

			var got map[string]any
			require.NoError(t, json.Unmarshal(body, &got))
			if tt.expected == nil {
				assert.NotContains(t, got, "choices")
				return
			}
			assert.Equal(t, tt.expected, got["choices"])
			assert.Equal(t, "t", got["target"])
		})
	}
}

func TestSubmitOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		req      SolveRequest
		body     string
		expected Outcome
		protoErr bool
	}{
		{
			name:     "grid skip",
			req:      NewGridRequest("t", nil),
			body:     `{"status":"skip"}`,
			expected: Outcome{Status: StatusSkip},
		},
		{
			name:     "grid error",
			req:      NewGridRequest("t", nil),
			body:     `{"status":"error"}`,
			expected: Outcome{Status: StatusError},
		},
		{
			name:     "grid solved without solution",
			req:      NewGridRequest("t", nil),
			body:     `{"status":"solved"}`,
			protoErr: true,
		},
		{
			name:     "grid unknown status",
			req:      NewGridRequest("t", nil),
			body:     `{"status":"new","url":"https://svc/poll/1"}`,
			protoErr: true,
		},
		{
			name:     "multi keeps first index",
			req:      NewMultipleChoiceRequest("t", "e", nil, []string{"a", "b"}),
			body:     `{"status":"solved","solution":[1,0]}`,
			expected: Outcome{Status: StatusSolved, Selection: Selection{Indices: []int{1}}},
		},
		{
			name:     "multi empty solution",
			req:      NewMultipleChoiceRequest("t", "e", nil, nil),
			body:     `{"status":"solved","solution":[]}`,
			protoErr: true,
		},
		{
			name:     "bbox solved with url is pending",
			req:      NewBoundingBoxRequest("t", "img"),
			body:     `{"status":"solved","url":"https://svc/poll/123"}`,
			expected: Outcome{Status: StatusPending, PollURL: "https://svc/poll/123"},
		},
		{
			name:     "bbox other status with url is pending",
			req:      NewBoundingBoxRequest("t", "img"),
			body:     `{"status":"new","url":"https://svc/poll/123"}`,
			expected: Outcome{Status: StatusPending, PollURL: "https://svc/poll/123"},
		},
		{
			name:     "bbox solved synchronously",
			req:      NewBoundingBoxRequest("t", "img"),
			body:     `{"status":"solved","answer":[120,80]}`,
			expected: Outcome{Status: StatusSolved, Selection: Selection{Point: &Point{X: 120, Y: 80}}},
		},
		{
			name:     "bbox malformed answer",
			req:      NewBoundingBoxRequest("t", "img"),
			body:     `{"status":"solved","answer":[120]}`,
			protoErr: true,
		},
		{
			name:     "not json",
			req:      NewGridRequest("t", nil),
			body:     `<html>`,
			protoErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			out, err := client.Submit(context.Background(), tt.req)
			if tt.protoErr {
				var pe *ProtocolError
				assert.ErrorAs(t, err, &pe)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestSubmitHTTPStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid apikey", http.StatusUnauthorized)
	})

	_, err := client.Submit(context.Background(), NewGridRequest("t", nil))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestSubmitConnectionError(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close()

	_, err := client.Submit(context.Background(), NewGridRequest("t", nil))
	var connErr *ConnectionError
	assert.ErrorAs(t, err, &connErr)
}

func TestPollUntilSolved(t *testing.T) {
	var polls atomic.Int32
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		if polls.Add(1) < 3 {
			w.Write([]byte(`{"status":"pending"}`))
			return
		}
		w.Write([]byte(`{"status":"solved","answer":[120,80]}`))
	})

	out, err := client.Poll(context.Background(), server.URL+"/poll/123")
	require.NoError(t, err)
	assert.Equal(t, StatusSolved, out.Status)
	assert.Equal(t, &Point{X: 120, Y: 80}, out.Selection.Point)
	assert.EqualValues(t, 3, polls.Load())
}

func TestPollTerminalFailure(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"skip"}`))
	})

	out, err := client.Poll(context.Background(), server.URL+"/poll/1")
	require.NoError(t, err)
	assert.Equal(t, StatusSkip, out.Status)
}

func TestPollTimeout(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	}, WithPollTimeout(50*time.Millisecond))

	_, err := client.Poll(context.Background(), server.URL+"/poll/1")
	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestPollCancelled(t *testing.T) {
	client, server := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"pending"}`))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := client.Poll(ctx, server.URL+"/poll/1")
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestHasBalance(t *testing.T) {
	tests := []struct {
		body     string
		expected bool
	}{
		{`{"Balance": 0, "Subscription": {"remaining": 0}}`, false},
		{`{"Balance": 1.5, "Subscription": {"remaining": 0}}`, true},
		{`{"Balance": 0, "Subscription": {"remaining": 12}}`, true},
		{`{"Balance": 3, "Subscription": {"remaining": 12}}`, true},
		{`{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/balance", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("apikey"))
				w.Write([]byte(tt.body))
			})

			ok, err := client.HasBalance(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}

func TestRequestKinds(t *testing.T) {
	assert.Equal(t, challenge.Grid, NewGridRequest("t", nil).Kind())
	assert.Equal(t, challenge.BoundingBox, NewBoundingBoxRequest("t", "i").Kind())
	assert.Equal(t, challenge.MultipleChoice, NewMultipleChoiceRequest("t", "e", nil, nil).Kind())
}
