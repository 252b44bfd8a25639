package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"

	"github.com/jonashiltl/captcha-solver/internal/browser"
	"github.com/jonashiltl/captcha-solver/internal/browser/browsertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	bodies map[string][]byte
	uas    []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url, userAgent string) ([]byte, error) {
	s.uas = append(s.uas, userAgent)
	body, ok := s.bodies[url]
	if !ok {
		return nil, errors.New("not found")
	}
	return body, nil
}

func tile(style string) *browsertest.Element {
	return &browsertest.Element{
		Children: map[string]*browsertest.Element{
			"div.image": {Attrs: map[string]string{"style": style}},
		},
	}
}

func TestTileURL(t *testing.T) {
	tests := []struct {
		style    string
		expected string
		hasError bool
	}{
		{`background: url("https://imgs.hcaptcha.com/a.jpg") 50% 50% / 123px 123px no-repeat;`, "https://imgs.hcaptcha.com/a.jpg", false},
		{`background-image: url('https://imgs.hcaptcha.com/b.png');`, "https://imgs.hcaptcha.com/b.png", false},
		{`background: url(https://imgs.hcaptcha.com/c) center;`, "https://imgs.hcaptcha.com/c", false},
		{`width: 100px;`, "", true},
		{``, "", true},
		{`background: url("")`, "", true},
	}

	for _, test := range tests {
		t.Run(test.style, func(t *testing.T) {
			got, err := TileURL(test.style)
			if test.hasError != (err != nil) {
				t.Errorf("unexpected error for %q, got %v", test.style, err)
			}
			if got != test.expected {
				t.Errorf("expected %q, got %q", test.expected, got)
			}
		})
	}
}

func TestTilesKeepsPositions(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string][]byte{
		"https://img/0": []byte("zero"),
		"https://img/1": []byte("one"),
		"https://img/2": []byte("two"),
	}}
	tiles := []browser.Element{
		tile(`background: url("https://img/0")`),
		tile(`background: url("https://img/1")`),
		tile(`background: url("https://img/2")`),
	}

	images, err := New(fetcher).Tiles(context.Background(), tiles, "UA/1.0")
	require.NoError(t, err)
	require.Len(t, images, 3)

	for i, want := range []string{"zero", "one", "two"} {
		decoded, err := base64.StdEncoding.DecodeString(images[i])
		require.NoError(t, err)
		assert.Equal(t, want, string(decoded))
	}
	assert.Equal(t, []string{"UA/1.0", "UA/1.0", "UA/1.0"}, fetcher.uas)
}

func TestTilesMissingStyle(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string][]byte{"https://img/0": []byte("zero")}}
	tiles := []browser.Element{
		tile(`background: url("https://img/0")`),
		&browsertest.Element{}, // not rendered yet
	}

	images, err := New(fetcher).Tiles(context.Background(), tiles, "UA")
	assert.ErrorIs(t, err, ErrNoImage)
	assert.Nil(t, images)
}

func TestCanvas(t *testing.T) {
	img, err := Canvas(&browsertest.Frame{Eval: "aGVsbG8="})
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", img)

	_, err = Canvas(&browsertest.Frame{Eval: nil})
	assert.ErrorIs(t, err, ErrNoImage)

	_, err = Canvas(&browsertest.Frame{EvalErr: errors.New("frame detached")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoImage)
}

func TestImageReadErrors(t *testing.T) {
	fetcher := &stubFetcher{}
	detached := &browsertest.Element{Children: map[string]*browsertest.Element{
		"div.image": {Err: fmt.Errorf("%w: Timeout 2000ms exceeded", browser.ErrNotFound)},
	}}
	_, err := New(fetcher).Image(context.Background(), detached, "UA")
	assert.ErrorIs(t, err, ErrNoImage)

	closed := &browsertest.Element{Children: map[string]*browsertest.Element{
		"div.image": {Err: errors.New("target closed")},
	}}
	_, err = New(fetcher).Image(context.Background(), closed, "UA")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoImage)
	assert.Empty(t, fetcher.uas)
}
