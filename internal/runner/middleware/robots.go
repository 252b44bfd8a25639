package middleware

import (
	"context"

	"github.com/jonashiltl/captcha-solver/internal/polite"
	"github.com/playwright-community/playwright-go"
)

type robotsMiddleware struct {
	robots *polite.RobotsChecker
}

// Detects whether the request is forbidden by the pages robots.txt
func NewRobotsMiddleware(robots *polite.RobotsChecker) RequestMiddleware {
	return &robotsMiddleware{
		robots: robots,
	}
}

func (r *robotsMiddleware) Process(ctx context.Context, url string, page playwright.Page) error {
	uaResult, err := page.Evaluate("navigator.userAgent")
	if err != nil {
		// if userAgent can't be found let request pass
		return nil
	}
	ua, ok := uaResult.(string)
	if !ok {
		return nil
	}

	return r.robots.Check(ctx, url, ua)
}
