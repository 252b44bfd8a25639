// Package polite keeps the runner from visiting pages a site's robots.txt
// disallows.
package polite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/temoto/robotstxt"
)

// ErrForbidden is returned by Check for disallowed pages.
var ErrForbidden = errors.New("forbidden by robots.txt")

type Options struct {
	// Proxy is a proxy url with optional credentials.
	Proxy string
}

func NewRobotsChecker(opts Options) *RobotsChecker {
	log := internal.NewLogger("RobotsChecker")
	transport := &http.Transport{}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err == nil {
			log.Debug("using proxy", slog.String("host", proxyURL.Host))
			transport.Proxy = http.ProxyURL(proxyURL)
		} else {
			log.Warn("failed to parse proxy", internal.ErrAttr(err))
		}
	}

	return &RobotsChecker{
		Options: opts,
		log:     log,
		client: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		robotsMap: make(map[string]*robotstxt.RobotsData),
	}
}

type RobotsChecker struct {
	Options
	log       *slog.Logger
	client    *http.Client
	mut       sync.RWMutex
	robotsMap map[string]*robotstxt.RobotsData
}

// Check returns ErrForbidden if robots.txt disallows rawURL for the user agent.
// An unreachable robots.txt allows access.
func (r *RobotsChecker) Check(ctx context.Context, rawURL string, ua string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil // error but allow access
	}

	r.mut.RLock()
	robotsData, exists := r.robotsMap[parsed.Host]
	r.mut.RUnlock()

	if !exists {
		robotsData, err = r.getRobotsData(ctx, parsed)
		if err != nil {
			r.log.Error("reading robots.txt", internal.ErrAttr(err))
			return nil // error but allow access
		}

		r.mut.Lock()
		r.robotsMap[parsed.Host] = robotsData
		r.mut.Unlock()
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}
	if !robotsData.TestAgent(path, ua) {
		return ErrForbidden
	}
	return nil
}

func (r *RobotsChecker) getRobotsData(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	requestURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	r.log.Info(requestURL, slog.Int("status", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	return robotstxt.FromStatusAndBytes(resp.StatusCode, body)
}
