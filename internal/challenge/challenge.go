// Package challenge classifies hCaptcha prompts and carries the state of one
// solve attempt.
package challenge

import (
	"strings"

	"github.com/jonashiltl/captcha-solver/internal/browser"
)

type Kind int

const (
	Unclassified Kind = iota
	Grid
	BoundingBox
	MultipleChoice
)

func (k Kind) String() string {
	switch k {
	case Grid:
		return "grid"
	case BoundingBox:
		return "bbox"
	case MultipleChoice:
		return "multi"
	default:
		return "unclassified"
	}
}

// phrases are checked in order and a later match overrides an earlier one
var phrases = []struct {
	phrase string
	kind   Kind
}{
	{"please click each image containing", Grid},
	{"please click the center of the", BoundingBox},
	{"select the most accurate description of the image", MultipleChoice},
}

// Classify derives the challenge kind from the prompt shown above the images.
func Classify(prompt string) Kind {
	target := strings.ToLower(strings.TrimSpace(prompt))

	kind := Unclassified
	for _, p := range phrases {
		if strings.Contains(target, p.phrase) {
			kind = p.kind
		}
	}
	return kind
}

// Session is the state of one solve attempt. Stages take a Session and return
// the updated copy.
type Session struct {
	ID        string
	Page      browser.Page
	Frame     browser.Frame
	UserAgent string
	Target    string
	Kind      Kind
	Round     int
	Solved    bool
}

// WithPrompt records a newly observed prompt and its classification.
func (s Session) WithPrompt(prompt string) Session {
	s.Target = prompt
	s.Kind = Classify(prompt)
	return s
}
