package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/jonashiltl/captcha-solver/internal"
)

type stdoutConsumer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewStdoutConsumer() Consumer {
	return NewWriterConsumer(os.Stdout)
}

// NewWriterConsumer writes every report as one json line to w.
func NewWriterConsumer(w io.Writer) Consumer {
	return &stdoutConsumer{out: w}
}

func (s *stdoutConsumer) Consume(ctx context.Context, report internal.Report) error {
	marshalled, err := json.Marshal(report)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintln(s.out, string(marshalled))
	return err
}

func (s *stdoutConsumer) Close() {}
