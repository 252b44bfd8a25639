package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Noooste/azuretls-client"
	"github.com/cloudflyer-project/masktunnel"
	"github.com/jonashiltl/captcha-solver/internal"
)

// headers sent by the challenge iframe when it loads its images
var imageHeaders = [][]string{
	{"Accept", "application/json"},
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Content-Type", "application/json"},
	{"Origin", "https://newassets.hcaptcha.com/"},
	{"Sec-Fetch-Site", "same-site"},
	{"Sec-Fetch-Mode", "cors"},
	{"Sec-Fetch-Dest", "empty"},
}

// TLSFetcher fetches images with the TLS and HTTP/2 fingerprint of the browser
// named in the user agent, so image hosts see the same client as the page.
type TLSFetcher struct {
	timeout time.Duration
	proxy   string
	log     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*azuretls.Session // keyed by user agent
}

func NewTLSFetcher(timeout time.Duration, proxy string) *TLSFetcher {
	return &TLSFetcher{
		timeout:  timeout,
		proxy:    proxy,
		log:      internal.NewLogger("TLSFetcher"),
		sessions: make(map[string]*azuretls.Session),
	}
}

func (f *TLSFetcher) Fetch(ctx context.Context, url, userAgent string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := f.session(userAgent)
	if err != nil {
		return nil, err
	}

	headers := make(azuretls.OrderedHeaders, 0, len(imageHeaders)+1)
	headers = append(headers, imageHeaders...)
	headers = append(headers, []string{"User-Agent", userAgent})

	resp, err := session.Do(&azuretls.Request{
		Method:         "GET",
		Url:            url,
		OrderedHeaders: headers,
		TimeOut:        f.timeout,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("image host responded with status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *TLSFetcher) session(userAgent string) (*azuretls.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s, ok := f.sessions[userAgent]; ok {
		return s, nil
	}

	fp, err := masktunnel.GetBrowserFingerprint(userAgent)
	if err != nil {
		f.log.Debug("unknown user agent, falling back to chrome", internal.ErrAttr(err))
		fp = &masktunnel.BrowserFingerprint{
			Browser:          "Chrome",
			HTTP2Fingerprint: "1:65536,2:0,4:6291456,6:262144|15663105|0|m,a,s,p",
			TLSProfile:       "133",
		}
	}

	session := azuretls.NewSession()
	switch fp.Browser {
	case "Firefox":
		session.Browser = azuretls.Firefox
		session.GetClientHelloSpec = azuretls.GetLastFirefoxVersion
	case "Safari":
		session.Browser = azuretls.Safari
		session.GetClientHelloSpec = azuretls.GetLastSafariVersion
	case "iOS":
		session.Browser = azuretls.Ios
		session.GetClientHelloSpec = azuretls.GetLastIosVersion
	default:
		session.Browser = azuretls.Chrome
		session.GetClientHelloSpec = azuretls.GetLastChromeVersion
	}

	if err := session.ApplyHTTP2(fp.HTTP2Fingerprint); err != nil {
		session.Close()
		return nil, fmt.Errorf("applying http2 fingerprint: %w", err)
	}
	session.UserAgent = userAgent

	if f.proxy != "" {
		if err := session.SetProxy(f.proxy); err != nil {
			session.Close()
			return nil, fmt.Errorf("setting proxy: %w", err)
		}
	}

	f.log.Debug("created session", slog.String("browser", fp.Browser), slog.String("tlsProfile", fp.TLSProfile))
	f.sessions[userAgent] = session
	return session, nil
}

func (f *TLSFetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ua, s := range f.sessions {
		s.Close()
		delete(f.sessions, ua)
	}
}
