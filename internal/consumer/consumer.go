// Package consumer ships round reports to a sink.
package consumer

import (
	"context"

	"github.com/jonashiltl/captcha-solver/internal"
)

type Consumer interface {
	Consume(ctx context.Context, report internal.Report) error
	Close()
}
