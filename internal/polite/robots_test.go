package polite

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRobotsChecker(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		w.Write([]byte("User-agent: *\nDisallow: /admin\n"))
	}))
	defer server.Close()

	r := NewRobotsChecker(Options{})
	ctx := context.Background()

	assert.NoError(t, r.Check(ctx, server.URL+"/signup", "Mozilla/5.0"))
	assert.NoError(t, r.Check(ctx, server.URL, "Mozilla/5.0"))
	assert.ErrorIs(t, r.Check(ctx, server.URL+"/admin/users", "Mozilla/5.0"), ErrForbidden)
	assert.EqualValues(t, 1, fetches.Load(), "robots.txt is cached per host")
}

func TestRobotsCheckerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	r := NewRobotsChecker(Options{})
	assert.NoError(t, r.Check(context.Background(), url+"/signup", "Mozilla/5.0"))
}

func TestRobotsCheckerMissingFile(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	r := NewRobotsChecker(Options{})
	assert.NoError(t, r.Check(context.Background(), server.URL+"/admin", "Mozilla/5.0"))
}
