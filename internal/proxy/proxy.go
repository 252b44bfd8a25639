// Package proxy hands out the configured proxies in turn.
package proxy

import (
	"errors"
	"net/url"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// ErrNoProxies is returned by RoundRobin when no proxy is configured.
var ErrNoProxies = errors.New("no proxies available")

type Options struct {
	Proxies  []string
	Username string
	Password string
}

// Proxy is one configured proxy with the shared credentials.
type Proxy struct {
	Server   string
	Username string
	Password string
}

// Playwright returns the proxy as a browser context option.
func (p Proxy) Playwright() *playwright.Proxy {
	pp := &playwright.Proxy{Server: p.Server}
	if p.Username != "" {
		pp.Username = playwright.String(p.Username)
		pp.Password = playwright.String(p.Password)
	}
	return pp
}

// URL returns the proxy with the credentials embedded, the form expected by
// the image fetcher.
func (p Proxy) URL() string {
	u, err := url.Parse(p.Server)
	if err != nil || p.Username == "" {
		return p.Server
	}
	u.User = url.UserPassword(p.Username, p.Password)
	return u.String()
}

type Manager struct {
	Options
	mu    sync.Mutex
	index int
}

func NewProxyManager(opts Options) *Manager {
	return &Manager{
		Options: opts,
	}
}

func (pm *Manager) Enabled() bool {
	return len(pm.Proxies) > 0
}

func (pm *Manager) RoundRobin() (Proxy, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.Proxies) == 0 {
		return Proxy{}, ErrNoProxies
	}

	server := pm.Proxies[pm.index]
	pm.index = (pm.index + 1) % len(pm.Proxies)

	return Proxy{
		Server:   server,
		Username: pm.Username,
		Password: pm.Password,
	}, nil
}
