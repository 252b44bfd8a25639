package middleware

import (
	"context"
	"log/slog"

	"github.com/jonashiltl/captcha-solver/internal"
	playwright "github.com/playwright-community/playwright-go"
)

type logMiddleware struct {
	log *slog.Logger
}

func NewLogMiddleware() ResponseMiddleware {
	return logMiddleware{log: internal.NewLogger("Runner")}
}

func (l logMiddleware) Process(ctx context.Context, url string, page playwright.Page, res playwright.Response) error {
	l.log.Info(url, slog.Int("status", res.Status()))
	return nil
}
