package solver

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/jonashiltl/captcha-solver/internal/challenge"
	"github.com/jonashiltl/captcha-solver/internal/extract"
	"github.com/jonashiltl/captcha-solver/internal/nocaptcha"
)

func (s *Solver) solveGrid(ctx context.Context, sess challenge.Session) (roundResult, challenge.Session, error) {
	tiles, err := sess.Frame.QueryAll(TaskImage)
	if err != nil {
		return roundDone, sess, fmt.Errorf("locating tiles: %w", err)
	}
	if len(tiles) == 0 {
		return roundDone, sess, nil
	}

	images, err := s.extractor.Tiles(ctx, tiles, sess.UserAgent)
	if errors.Is(err, extract.ErrNoImage) {
		s.log.Debug("tiles not loaded yet", internal.SessionAttr(sess.ID))
		return roundDone, sess, nil
	}
	if err != nil {
		return roundDone, sess, err
	}

	out, err := s.client.Submit(ctx, nocaptcha.NewGridRequest(sess.Target, images))
	if err != nil {
		s.report(ctx, sess, "failed", err)
		return roundDone, sess, err
	}
	if out.Status != nocaptcha.StatusSolved {
		s.report(ctx, sess, out.Status.String(), nil)
		return s.refresh(ctx, sess)
	}

	picks, err := selectIndices(out.Selection.Indices, len(tiles))
	s.report(ctx, sess, out.Status.String(), err)
	if err != nil {
		return roundDone, sess, err
	}

	for _, i := range picks {
		if err := tiles[i].Click(); err != nil {
			return roundDone, sess, fmt.Errorf("clicking tile %d: %w", i, err)
		}
		if err := sleep(ctx, s.clickDelay()); err != nil {
			return roundDone, sess, err
		}
	}
	return s.advance(ctx, sess)
}

// selectIndices validates every index against n elements before anything is
// clicked and drops repeats, keeping the first occurrence.
func selectIndices(indices []int, n int) ([]int, error) {
	seen := mapset.NewThreadUnsafeSet[int]()
	picks := make([]int, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= n {
			return nil, nocaptcha.NewProtocolError(fmt.Sprintf("index %d out of range for %d elements", i, n))
		}
		if seen.Add(i) {
			picks = append(picks, i)
		}
	}
	return picks, nil
}
