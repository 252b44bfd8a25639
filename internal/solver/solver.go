// Package solver drives an hCaptcha widget on a page until it is solved or
// the solving service runs out of quota.
package solver

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/browser"
	"github.com/jonashiltl/captcha-solver/internal/challenge"
	"github.com/jonashiltl/captcha-solver/internal/consumer"
	"github.com/jonashiltl/captcha-solver/internal/extract"
	"github.com/jonashiltl/captcha-solver/internal/nocaptcha"
)

// Client is the part of the solving service the solver talks to.
type Client interface {
	HasBalance(ctx context.Context) (bool, error)
	Submit(ctx context.Context, req nocaptcha.SolveRequest) (nocaptcha.Outcome, error)
	Poll(ctx context.Context, pollURL string) (nocaptcha.Outcome, error)
}

type Options struct {
	Client  Client
	Fetcher extract.Fetcher
	// Consumer receives a report per round, optional.
	Consumer consumer.Consumer
	// MaxRounds bounds the rounds played in a row before control returns to
	// the balance check. Defaults to 10.
	MaxRounds int
}

type timing struct {
	settle      time.Duration
	checkbox    time.Duration
	round       time.Duration
	visible     time.Duration
	refresh     time.Duration
	afterClick  time.Duration
	clickJitter [2]time.Duration
}

var defaultTiming = timing{
	settle:      1500 * time.Millisecond,
	checkbox:    time.Second,
	round:       time.Second,
	visible:     1500 * time.Millisecond,
	refresh:     time.Second,
	afterClick:  500 * time.Millisecond,
	clickJitter: [2]time.Duration{200 * time.Millisecond, 250 * time.Millisecond},
}

type roundResult int

const (
	// roundDone hands control back to the solve loop
	roundDone roundResult = iota
	// roundNext means the challenge presented another round
	roundNext
)

type driver func(ctx context.Context, sess challenge.Session) (roundResult, challenge.Session, error)

type Solver struct {
	client    Client
	extractor *extract.Extractor
	consumer  consumer.Consumer
	maxRounds int
	timing    timing
	drivers   map[challenge.Kind]driver
	log       *slog.Logger
}

func New(opts Options) *Solver {
	s := &Solver{
		client:    opts.Client,
		extractor: extract.New(opts.Fetcher),
		consumer:  opts.Consumer,
		maxRounds: opts.MaxRounds,
		timing:    defaultTiming,
		log:       internal.NewLogger("Solver"),
	}
	if s.maxRounds <= 0 {
		s.maxRounds = 10
	}
	s.drivers = map[challenge.Kind]driver{
		challenge.Grid:           s.solveGrid,
		challenge.BoundingBox:    s.solveBoundingBox,
		challenge.MultipleChoice: s.solveMultipleChoice,
	}
	return s
}

type frameState int

const (
	frameGone frameState = iota
	frameOpen
	frameLoading
)

// Solve works on the captcha of page until it disappears, returning true, or
// until the api key has no quota left, returning false.
func (s *Solver) Solve(ctx context.Context, page browser.Page) (bool, error) {
	sess := challenge.Session{ID: uuid.NewString(), Page: page}
	log := s.log.With(internal.SessionAttr(sess.ID))

	for {
		ok, err := s.client.HasBalance(ctx)
		if err != nil {
			return false, fmt.Errorf("checking balance: %w", err)
		}
		if !ok {
			log.Warn("no balance left on api key")
			return false, nil
		}

		if sess.UserAgent == "" {
			ua, err := page.UserAgent()
			if err != nil {
				return false, fmt.Errorf("reading user agent: %w", err)
			}
			sess.UserAgent = ua
		}

		if err := sleep(ctx, s.timing.settle); err != nil {
			return false, err
		}

		var state frameState
		sess, state, err = s.openChallenge(ctx, sess)
		if err != nil {
			return false, err
		}
		switch state {
		case frameGone:
			log.Info("no challenge left on page")
			return true, nil
		case frameLoading:
			log.Debug("challenge not ready yet")
			continue
		}

		sess, err = s.runRounds(ctx, sess)
		if err != nil {
			return false, err
		}
		if sess.Solved {
			log.Info("challenge solved")
			return true, nil
		}
	}
}

// openChallenge makes sure the challenge frame is open, clicking the checkbox
// if needed, and reads its prompt.
func (s *Solver) openChallenge(ctx context.Context, sess challenge.Session) (challenge.Session, frameState, error) {
	visible, err := sess.Page.IsVisible(ChallengeFrame)
	if err != nil {
		return sess, frameGone, err
	}
	if !visible {
		checkbox, err := sess.Page.IsVisible(CheckboxFrame)
		if err != nil {
			return sess, frameGone, err
		}
		if checkbox {
			if err := sess.Page.Click(CheckboxFrame); err != nil {
				return sess, frameGone, fmt.Errorf("clicking checkbox: %w", err)
			}
		}
		if err := sleep(ctx, s.timing.checkbox); err != nil {
			return sess, frameGone, err
		}
		if visible, err = sess.Page.IsVisible(ChallengeFrame); err != nil || !visible {
			return sess, frameGone, err
		}
	}

	frame, err := sess.Page.Frame(ChallengeFrame)
	if err != nil {
		return sess, frameGone, err
	}
	if frame == nil {
		return sess, frameLoading, nil
	}
	sess.Frame = frame

	prompt, err := frame.InnerText(PromptText)
	if err != nil || prompt == "" {
		return sess, frameLoading, nil
	}
	return sess.WithPrompt(prompt), frameOpen, nil
}

// runRounds plays rounds of one challenge until the driver hands control
// back, the challenge disappears or the round limit is hit. Every round after
// the first re-reads the prompt since the next challenge may be of another kind.
func (s *Solver) runRounds(ctx context.Context, sess challenge.Session) (challenge.Session, error) {
	log := s.log.With(internal.SessionAttr(sess.ID))
	for round := 1; round <= s.maxRounds; round++ {
		sess.Round = round
		if err := sleep(ctx, s.timing.round); err != nil {
			return sess, err
		}
		if !sess.Page.WaitVisible(ChallengeFrame, s.timing.visible) {
			sess.Solved = true
			return sess, nil
		}
		if round > 1 {
			if prompt, err := sess.Frame.InnerText(PromptText); err == nil && prompt != "" {
				sess = sess.WithPrompt(prompt)
			}
		}

		drive, ok := s.drivers[sess.Kind]
		if !ok {
			return sess, &UnsupportedChallengeError{Prompt: sess.Target}
		}
		log.Info("solving challenge",
			slog.String("kind", sess.Kind.String()),
			slog.String("prompt", sess.Target),
			slog.Int("round", round))

		res, next, err := drive(ctx, sess)
		sess = next
		if err != nil || res != roundNext {
			return sess, err
		}
	}
	log.Warn("round limit reached", slog.Int("rounds", s.maxRounds))
	return sess, nil
}

// advance clicks the submit button and reports whether the challenge moved
// on to another round.
func (s *Solver) advance(ctx context.Context, sess challenge.Session) (roundResult, challenge.Session, error) {
	btn, err := sess.Frame.Query(SubmitButton)
	if err != nil || btn == nil {
		return roundDone, sess, err
	}
	label, err := btn.Attribute("title")
	if err != nil {
		return roundDone, sess, err
	}

	switch label {
	case labelSubmit:
		return roundDone, sess, btn.Click()
	case labelNext:
		if err := btn.Click(); err != nil {
			return roundDone, sess, err
		}
		return roundNext, sess, nil
	}
	s.log.Debug("unknown submit button", internal.SessionAttr(sess.ID), slog.String("title", label))
	return roundDone, sess, nil
}

// refresh asks the widget for a different challenge.
func (s *Solver) refresh(ctx context.Context, sess challenge.Session) (roundResult, challenge.Session, error) {
	btn, err := sess.Frame.Query(RefreshButton)
	if err != nil {
		return roundDone, sess, err
	}
	if btn != nil {
		if err := btn.Click(); err != nil {
			return roundDone, sess, fmt.Errorf("clicking refresh: %w", err)
		}
	}
	return roundDone, sess, sleep(ctx, s.timing.refresh)
}

func (s *Solver) report(ctx context.Context, sess challenge.Session, result string, cause error) {
	if s.consumer == nil {
		return
	}
	r := internal.Report{
		SessionID: sess.ID,
		URL:       sess.Page.URL(),
		Kind:      sess.Kind.String(),
		Prompt:    sess.Target,
		Round:     sess.Round,
		Result:    result,
		At:        time.Now().UTC(),
	}
	if cause != nil {
		r.Error = cause.Error()
	}
	if err := s.consumer.Consume(ctx, r); err != nil {
		s.log.Debug("failed to consume report", internal.ErrAttr(err))
	}
}

// clickDelay is the pause after each tile click.
func (s *Solver) clickDelay() time.Duration {
	lo, hi := s.timing.clickJitter[0], s.timing.clickJitter[1]
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
