package nocaptcha

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jonashiltl/captcha-solver/internal/challenge"
)

// the service does not need the real sitekey and site for image tasks
const (
	method  = "hcaptcha_base64"
	sitekey = "sitekey"
	site    = "site"
)

// SolveRequest is the body posted to the solving endpoint.
type SolveRequest struct {
	Target  string         `json:"target"`
	Method  string         `json:"method"`
	Sitekey string         `json:"sitekey"`
	Site    string         `json:"site"`
	Images  map[int]string `json:"images"`
	Type    string         `json:"type,omitempty"`
	Choices []string       `json:"choices,omitempty"`
	Ln      string         `json:"ln,omitempty"`
	Example map[int]string `json:"example,omitempty"`

	kind challenge.Kind
}

func (r SolveRequest) Kind() challenge.Kind {
	return r.kind
}

// MarshalJSON sends bounding box requests with an explicit empty choices list.
func (r SolveRequest) MarshalJSON() ([]byte, error) {
	type plain SolveRequest
	if r.kind != challenge.BoundingBox {
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		plain
		Choices []string `json:"choices"`
	}{plain(r), []string{}})
}

func baseRequest(kind challenge.Kind, target string, images map[int]string) SolveRequest {
	return SolveRequest{
		Target:  target,
		Method:  method,
		Sitekey: sitekey,
		Site:    site,
		Images:  images,
		kind:    kind,
	}
}

// NewGridRequest asks which of the tiles match target.
func NewGridRequest(target string, tiles map[int]string) SolveRequest {
	return baseRequest(challenge.Grid, target, tiles)
}

// NewBoundingBoxRequest asks for the point in canvas matching target.
func NewBoundingBoxRequest(target string, canvas string) SolveRequest {
	r := baseRequest(challenge.BoundingBox, target, map[int]string{0: canvas})
	r.Type = "bbox"
	r.Ln = "en"
	return r
}

// NewMultipleChoiceRequest asks which of the choices best describes example.
func NewMultipleChoiceRequest(target, example string, choiceImages map[int]string, choices []string) SolveRequest {
	r := baseRequest(challenge.MultipleChoice, target, choiceImages)
	r.Type = "multi"
	r.Choices = choices
	r.Example = map[int]string{0: example}
	return r
}

type Status int

const (
	StatusSolved Status = iota + 1
	StatusSkip
	StatusError
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusSolved:
		return "solved"
	case StatusSkip:
		return "skip"
	case StatusError:
		return "error"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

type Point struct {
	X float64
	Y float64
}

// Selection is the answer of a solved request. Grid and multiple choice answers
// use Indices, bounding box answers use Point.
type Selection struct {
	Indices []int
	Point   *Point
}

type Outcome struct {
	Status    Status
	Selection Selection
	PollURL   string
}

// Balance is the quota left on the api key.
type Balance struct {
	Balance      float64      `json:"Balance"`
	Subscription Subscription `json:"Subscription"`
}

type Subscription struct {
	Remaining float64 `json:"remaining"`
}

func (b Balance) HasQuota() bool {
	return b.Balance > 0 || b.Subscription.Remaining > 0
}

// indices accepts both numbers and numeric strings.
type indices []int

func (ix *indices) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		var n int
		if err := json.Unmarshal(r, &n); err == nil {
			out = append(out, n)
			continue
		}
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("solution entry %s is not an index", r)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("solution entry %q is not an index", s)
		}
		out = append(out, n)
	}
	*ix = out
	return nil
}

type response struct {
	Status   string    `json:"status"`
	Solution indices   `json:"solution"`
	Answer   []float64 `json:"answer"`
	URL      string    `json:"url"`
}

// outcome maps a response to the answer expected for kind.
func (r response) outcome(kind challenge.Kind) (Outcome, error) {
	switch r.Status {
	case "skip":
		return Outcome{Status: StatusSkip}, nil
	case "error":
		return Outcome{Status: StatusError}, nil
	case "solved":
		return r.solved(kind)
	}

	if kind == challenge.BoundingBox && r.URL != "" {
		return Outcome{Status: StatusPending, PollURL: r.URL}, nil
	}
	return Outcome{}, NewProtocolError(fmt.Sprintf("unexpected status %q for %s request", r.Status, kind))
}

func (r response) solved(kind challenge.Kind) (Outcome, error) {
	switch kind {
	case challenge.Grid:
		if r.Solution == nil {
			return Outcome{}, NewProtocolError("solved grid without solution")
		}
		return Outcome{Status: StatusSolved, Selection: Selection{Indices: r.Solution}}, nil
	case challenge.MultipleChoice:
		if len(r.Solution) == 0 {
			return Outcome{}, NewProtocolError("solved multiple choice without solution")
		}
		return Outcome{Status: StatusSolved, Selection: Selection{Indices: r.Solution[:1]}}, nil
	case challenge.BoundingBox:
		if len(r.Answer) == 2 {
			p := Point{X: r.Answer[0], Y: r.Answer[1]}
			return Outcome{Status: StatusSolved, Selection: Selection{Point: &p}}, nil
		}
		if r.URL != "" {
			// the answer is computed asynchronously and has to be polled
			return Outcome{Status: StatusPending, PollURL: r.URL}, nil
		}
		return Outcome{}, NewProtocolError("solved bounding box without answer")
	default:
		return Outcome{}, NewProtocolError(fmt.Sprintf("solved %s request", kind))
	}
}
