package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/browser"
	"github.com/jonashiltl/captcha-solver/internal/challenge"
	"github.com/jonashiltl/captcha-solver/internal/extract"
	"github.com/jonashiltl/captcha-solver/internal/nocaptcha"
)

func (s *Solver) solveMultipleChoice(ctx context.Context, sess challenge.Session) (roundResult, challenge.Session, error) {
	log := s.log.With(internal.SessionAttr(sess.ID))

	task, err := sess.Frame.Query(TaskImage)
	if err != nil {
		return roundDone, sess, fmt.Errorf("locating example: %w", err)
	}
	answers, err := sess.Frame.QueryAll(ChallengeAnswer)
	if err != nil {
		return roundDone, sess, fmt.Errorf("locating choices: %w", err)
	}
	if task == nil || len(answers) == 0 {
		log.Debug("choices not rendered yet")
		return roundDone, sess, nil
	}

	example, err := s.extractor.Image(ctx, task, sess.UserAgent)
	if errors.Is(err, extract.ErrNoImage) {
		log.Debug("example not loaded yet")
		return roundDone, sess, nil
	}
	if err != nil {
		return roundDone, sess, err
	}

	images, err := s.extractor.Tiles(ctx, answers, sess.UserAgent)
	if errors.Is(err, extract.ErrNoImage) {
		log.Debug("choice images not loaded yet")
		return roundDone, sess, nil
	}
	if err != nil {
		return roundDone, sess, err
	}

	texts := make([]string, 0, len(answers))
	for i, a := range answers {
		text, err := a.Locator(AnswerText).InnerText()
		if errors.Is(err, browser.ErrNotFound) {
			log.Debug("choice text not rendered yet", slog.Int("choice", i))
			return roundDone, sess, nil
		}
		if err != nil {
			return roundDone, sess, fmt.Errorf("reading choice %d: %w", i, err)
		}
		texts = append(texts, text)
	}

	out, err := s.client.Submit(ctx, nocaptcha.NewMultipleChoiceRequest(sess.Target, example, images, texts))
	if err != nil {
		s.report(ctx, sess, "failed", err)
		return roundDone, sess, err
	}
	if out.Status != nocaptcha.StatusSolved {
		s.report(ctx, sess, out.Status.String(), nil)
		return s.refresh(ctx, sess)
	}

	picks, err := selectIndices(out.Selection.Indices, len(answers))
	s.report(ctx, sess, out.Status.String(), err)
	if err != nil {
		return roundDone, sess, err
	}
	if len(picks) == 0 {
		return s.refresh(ctx, sess)
	}

	if err := answers[picks[0]].Click(); err != nil {
		return roundDone, sess, fmt.Errorf("clicking choice %d: %w", picks[0], err)
	}
	return s.advance(ctx, sess)
}
