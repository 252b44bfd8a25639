package middleware

import (
	"context"
	"errors"

	playwright "github.com/playwright-community/playwright-go"
)

// ErrNoChallenge is returned when the page does not embed an hCaptcha widget.
var ErrNoChallenge = errors.New("page has no hcaptcha widget")

const widgetSelector = "iframe[src*='hcaptcha.com']"

type challengeMiddleware struct {
	timeout float64
}

// NewChallengeMiddleware waits for the hCaptcha iframe to be attached.
func NewChallengeMiddleware() ResponseMiddleware {
	return challengeMiddleware{timeout: 5000}
}

func (c challengeMiddleware) Process(ctx context.Context, url string, page playwright.Page, res playwright.Response) error {
	err := page.Locator(widgetSelector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(c.timeout),
	})
	if err != nil {
		return ErrNoChallenge
	}
	return nil
}
