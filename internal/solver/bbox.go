package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/challenge"
	"github.com/jonashiltl/captcha-solver/internal/extract"
	"github.com/jonashiltl/captcha-solver/internal/nocaptcha"
)

// the answer is relative to the canvas, which sits inset in the frame
const clickOffset = 10

func (s *Solver) solveBoundingBox(ctx context.Context, sess challenge.Session) (roundResult, challenge.Session, error) {
	img, err := extract.Canvas(sess.Frame)
	if errors.Is(err, extract.ErrNoImage) {
		s.log.Debug("canvas not drawn yet", internal.SessionAttr(sess.ID))
		return roundDone, sess, nil
	}
	if err != nil {
		return roundDone, sess, err
	}

	out, err := s.client.Submit(ctx, nocaptcha.NewBoundingBoxRequest(sess.Target, img))
	if err != nil {
		s.report(ctx, sess, "failed", err)
		return roundDone, sess, err
	}

	switch out.Status {
	case nocaptcha.StatusError:
		s.report(ctx, sess, out.Status.String(), nil)
		if err := sess.Page.Reload(); err != nil {
			return roundDone, sess, fmt.Errorf("reloading page: %w", err)
		}
		return roundDone, sess, nil
	case nocaptcha.StatusSkip:
		s.report(ctx, sess, out.Status.String(), nil)
		return s.refresh(ctx, sess)
	case nocaptcha.StatusPending:
		out, err = s.client.Poll(ctx, out.PollURL)
		if err != nil {
			s.report(ctx, sess, "failed", err)
			return roundDone, sess, err
		}
	}

	s.report(ctx, sess, out.Status.String(), nil)
	if out.Status != nocaptcha.StatusSolved || out.Selection.Point == nil {
		return s.refresh(ctx, sess)
	}

	p := out.Selection.Point
	if err := sess.Frame.ClickAt(p.X+clickOffset, p.Y+clickOffset); err != nil {
		return roundDone, sess, fmt.Errorf("clicking answer: %w", err)
	}
	if err := sleep(ctx, s.timing.afterClick); err != nil {
		return roundDone, sess, err
	}
	return s.advance(ctx, sess)
}
