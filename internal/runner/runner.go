// Package runner visits queued pages in a browser and solves their captcha.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/browser"
	"github.com/jonashiltl/captcha-solver/internal/consumer"
	"github.com/jonashiltl/captcha-solver/internal/extract"
	"github.com/jonashiltl/captcha-solver/internal/polite"
	"github.com/jonashiltl/captcha-solver/internal/proxy"
	"github.com/jonashiltl/captcha-solver/internal/runner/middleware"
	"github.com/jonashiltl/captcha-solver/internal/solver"
	"github.com/jonashiltl/captcha-solver/internal/storage"
	"github.com/playwright-community/playwright-go"
	"github.com/subsan/uafaker"
)

// ErrNoBalance is returned for a page that could not be solved because the api
// key ran out of quota.
var ErrNoBalance = errors.New("solving service has no balance left")

type runner struct {
	Options
	browser             playwright.Browser
	pw                  *playwright.Playwright
	ctx                 context.Context
	log                 *slog.Logger
	jobs                chan string // channel holding the urls to process
	errorCount          int32
	errorThreshold      int32                           // max number of errors before the runner shuts down
	requestMiddlewares  []middleware.RequestMiddleware  // exectued in order of their definition
	responseMiddlewares []middleware.ResponseMiddleware // executed in order of their definition

	mu       sync.Mutex
	fetchers map[string]*extract.TLSFetcher // keyed by proxy url
}

type Options struct {
	Client              solver.Client
	Consumer            consumer.Consumer
	Storage             storage.Storage
	Proxies             *proxy.Manager
	SeedURLs            []string
	PollInterval        time.Duration
	Workers             int
	MaxRounds           int
	SolveTimeout        time.Duration
	Headless            bool
	PlaywrightDriverDir string
	Cancel              context.CancelFunc
}

func NewRunner(ctx context.Context, opts Options) (*runner, error) {
	log := internal.NewLogger("Runner")

	if opts.PlaywrightDriverDir != "" {
		log.Info("using custom playwright driver", slog.String("path", opts.PlaywrightDriverDir))
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SolveTimeout <= 0 {
		opts.SolveTimeout = 3 * time.Minute
	}
	if opts.Proxies == nil {
		opts.Proxies = proxy.NewProxyManager(proxy.Options{})
	}

	pw, err := playwright.Run(&playwright.RunOptions{
		DriverDirectory: opts.PlaywrightDriverDir,
		Browsers:        []string{"firefox"},
	})
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	log.Info(fmt.Sprintf("polling every %s for queued pages", opts.PollInterval))
	log.Info(fmt.Sprintf("using %d seed url", len(opts.SeedURLs)))

	return newRunner(ctx, pw, opts), nil
}

func newRunner(ctx context.Context, pw *playwright.Playwright, opts Options) *runner {
	// robots.txt is fetched through the first proxy, if any
	var robotsProxy string
	if opts.Proxies != nil && opts.Proxies.Enabled() {
		if p, err := opts.Proxies.RoundRobin(); err == nil {
			robotsProxy = p.URL()
		}
	}

	return &runner{
		Options:        opts,
		pw:             pw,
		ctx:            ctx,
		log:            internal.NewLogger("Runner"),
		errorThreshold: 5,
		jobs:           make(chan string, opts.Workers*2), // *2 gives buffer when workers can't keep up with poll volume
		fetchers:       make(map[string]*extract.TLSFetcher),
		requestMiddlewares: []middleware.RequestMiddleware{
			middleware.NewRobotsMiddleware(polite.NewRobotsChecker(polite.Options{Proxy: robotsProxy})),
		},
		responseMiddlewares: []middleware.ResponseMiddleware{
			middleware.NewLogMiddleware(),
			middleware.NewJSDisabledMiddleware(),
			middleware.NewChallengeMiddleware(),
		},
	}
}

// Start launches the browser, queues the seed urls and processes queued
// pages until the context is cancelled.
func (r *runner) Start() error {
	if err := r.launch(); err != nil {
		return err
	}

	if err := r.Storage.AddURLs(r.ctx, r.SeedURLs); err != nil {
		return fmt.Errorf("queueing seed urls: %w", err)
	}

	// start the configured number of workers
	for i := range r.Workers {
		go r.worker(i)
	}

	r.poll()
	return nil
}

// SolveURL opens a single page and solves its captcha.
func (r *runner) SolveURL(url string) (bool, error) {
	if err := r.launch(); err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.SolveTimeout)
	defer cancel()
	return r.processURL(ctx, url)
}

func (r *runner) Close() {
	if r.browser != nil {
		r.browser.Close()
	}
	r.mu.Lock()
	for _, f := range r.fetchers {
		f.Close()
	}
	r.mu.Unlock()
	if r.pw != nil {
		r.pw.Stop()
	}
}

func (r *runner) launch() error {
	r.log.Info("launching Firefox", slog.Bool("headless", r.Headless))
	b, err := r.pw.Firefox.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(r.Headless),
	})
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}
	r.browser = b
	return nil
}

func (r *runner) poll() {
	for {
		select {
		case <-r.ctx.Done():
			r.log.Info("polling stopped")
			return
		default:
		}

		queuedURL, err := r.Storage.GetNextURL(r.ctx)
		if err != nil {
			if !errors.Is(err, storage.ErrEmptyQueue) {
				r.log.Error(err.Error())
			}
			sleepWithJitter(r.ctx, r.PollInterval)
			continue
		}

		r.get(queuedURL.URL)
	}
}

// Adds the url to the internal job queue.
// Blocks if the channel (buffered) is full.
func (r *runner) get(url string) {
	select {
	case r.jobs <- url:
	case <-r.ctx.Done():
		return
	}
}

func (r *runner) worker(id int) {
	r.log.Info(fmt.Sprintf("created worker %d, waiting on urls...", id))
	for {
		select {
		case <-r.ctx.Done():
			r.log.Info(fmt.Sprintf("worker %d shutting down", id))
			return
		case url, ok := <-r.jobs:
			if !ok {
				return
			}
			r.processJob(url)
		}
	}
}

func (r *runner) processJob(url string) {
	jobCtx, cancel := context.WithTimeout(r.ctx, r.SolveTimeout)
	defer cancel()

	solved, err := r.processURL(jobCtx, url)
	r.finishJob(url, solved, err)
}

func (r *runner) finishJob(url string, solved bool, err error) {
	switch {
	case errors.Is(err, middleware.ErrNoChallenge):
		r.log.Info("nothing to solve", slog.String("url", url))
	case err != nil:
		r.onError(r.ctx, url, err)
		return
	case !solved:
		r.onError(r.ctx, url, ErrNoBalance)
		r.log.Error("stopping, no balance left on api key")
		r.Cancel()
		return
	default:
		r.log.Info("solved", slog.String("url", url))
	}

	r.resetErrorCount()
	if err := r.Storage.MarkDone(r.ctx, url); err != nil {
		r.log.Error("mark done error: " + err.Error())
	}
}

var blockedResources = []string{"font", "media"}

// Opens the url in a fresh browser context and solves the captcha on it.
func (r *runner) processURL(ctx context.Context, url string) (bool, error) {
	userAgent := uafaker.Windows().Firefox().Random()
	contextOpts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(userAgent),
		Locale:    playwright.String("en-US"),
	}

	var fetchProxy string
	if r.Proxies.Enabled() {
		p, err := r.Proxies.RoundRobin()
		if err != nil {
			return false, err
		}
		contextOpts.Proxy = p.Playwright()
		fetchProxy = p.URL()
	}

	bctx, err := r.browser.NewContext(contextOpts)
	if err != nil {
		return false, err
	}

	// use sync.Once to make sure Close is only called once
	var once sync.Once
	closeCtx := func() {
		once.Do(func() {
			bctx.Close()
		})
	}
	defer closeCtx()

	// Also close if context is cancelled
	go func() {
		<-ctx.Done()
		closeCtx()
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return false, err
	}
	page.Route("**/*", func(route playwright.Route) {
		if slices.Contains(blockedResources, route.Request().ResourceType()) {
			route.Abort()
		} else {
			route.Continue()
		}
	})

	for _, mw := range r.requestMiddlewares {
		if err := mw.Process(ctx, url, page); err != nil {
			return false, err
		}
	}

	res, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	if err != nil {
		return false, err
	}
	if res != nil && !res.Ok() {
		return false, fmt.Errorf("response status %d", res.Status())
	}

	if res != nil {
		for _, mw := range r.responseMiddlewares {
			if err := mw.Process(ctx, url, page, res); err != nil {
				return false, err
			}
		}
	}

	s := solver.New(solver.Options{
		Client:    r.Client,
		Fetcher:   r.fetcher(fetchProxy),
		Consumer:  r.Consumer,
		MaxRounds: r.MaxRounds,
	})
	return s.Solve(ctx, browser.NewPage(page))
}

// fetcher returns the image fetcher for proxy, sharing tls sessions between jobs.
func (r *runner) fetcher(proxy string) *extract.TLSFetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fetchers[proxy]
	if !ok {
		f = extract.NewTLSFetcher(30*time.Second, proxy)
		r.fetchers[proxy] = f
	}
	return f
}

func (r *runner) onError(ctx context.Context, url string, err error) {
	msg := err.Error()
	r.log.Error(msg, slog.String("url", url))
	err = r.Storage.MarkFailed(ctx, url, msg)
	if err != nil {
		r.log.Error(err.Error())
	}

	newCount := r.incrementErrorCount()
	if newCount > r.errorThreshold {
		r.log.Error("too many errors, shutting down", slog.Int("count", int(newCount)))
		r.Cancel()
	}
}

func (r *runner) incrementErrorCount() int32 {
	return atomic.AddInt32(&r.errorCount, 1)
}

func (r *runner) resetErrorCount() {
	atomic.StoreInt32(&r.errorCount, 0)
}

func sleepWithJitter(ctx context.Context, base time.Duration) {
	factor := 0.5 + rand.Float64()
	t := time.NewTimer(time.Duration(float64(base) * factor))
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
