// Package extract pulls challenge images out of the page, either by fetching
// the tile backgrounds or by snapshotting the challenge canvas.
package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"

	"github.com/jonashiltl/captcha-solver/internal/browser"
)

// ErrNoImage is returned when an element carries no image yet, e.g. the tile is
// still rendering or the canvas is missing. The request cannot be built.
var ErrNoImage = errors.New("no challenge image available")

// the inner image of a tile
const imageSelector = "div.image"

var styleURL = regexp.MustCompile(`url\(\s*["']?([^"')]+)["']?\s*\)`)

// TileURL extracts the background image url from an inline style like
// `background: url("https://imgs.hcaptcha.com/...") 50% 50% / 123px 123px no-repeat;`.
func TileURL(style string) (string, error) {
	m := styleURL.FindStringSubmatch(style)
	if len(m) < 2 || m[1] == "" {
		return "", ErrNoImage
	}
	return m[1], nil
}

// Fetcher downloads image bytes posing as the browser identified by userAgent.
type Fetcher interface {
	Fetch(ctx context.Context, url, userAgent string) ([]byte, error)
}

type Extractor struct {
	fetcher Fetcher
}

func New(fetcher Fetcher) *Extractor {
	return &Extractor{fetcher: fetcher}
}

// Image fetches the background image of el's inner image and returns it base64 encoded.
func (e *Extractor) Image(ctx context.Context, el browser.Element, userAgent string) (string, error) {
	style, err := el.Locator(imageSelector).Attribute("style")
	if errors.Is(err, browser.ErrNotFound) {
		return "", ErrNoImage
	}
	if err != nil {
		return "", fmt.Errorf("reading tile style: %w", err)
	}
	if style == "" {
		return "", ErrNoImage
	}

	url, err := TileURL(style)
	if err != nil {
		return "", err
	}

	body, err := e.fetcher.Fetch(ctx, url, userAgent)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	return base64.StdEncoding.EncodeToString(body), nil
}

// Tiles encodes the image of every tile, keyed by the tile's position.
// Any tile without an image aborts the whole extraction with ErrNoImage.
func (e *Extractor) Tiles(ctx context.Context, tiles []browser.Element, userAgent string) (map[int]string, error) {
	images := make(map[int]string, len(tiles))
	for i, tile := range tiles {
		img, err := e.Image(ctx, tile, userAgent)
		if err != nil {
			return nil, err
		}
		images[i] = img
	}
	return images, nil
}
