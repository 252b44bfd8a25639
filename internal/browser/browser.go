// Package browser describes the small set of page capabilities the solver needs
// from a browser automation runtime. NewPage adapts a playwright page to it.
package browser

import (
	"errors"
	"time"
)

// ErrNotFound is returned by element reads when the element is not attached.
var ErrNotFound = errors.New("element not found")

// Page is the top level document that hosts the challenge iframes.
type Page interface {
	URL() string
	UserAgent() (string, error)

	// WaitVisible waits up to timeout for selector to become visible.
	WaitVisible(selector string, timeout time.Duration) bool
	IsVisible(selector string) (bool, error)
	Click(selector string) error
	Reload() error

	// Frame returns the content frame of the iframe matched by selector,
	// or nil if no such iframe is attached.
	Frame(selector string) (Frame, error)
}

// Frame is the content of an iframe together with the iframe element hosting it.
type Frame interface {
	InnerText(selector string) (string, error)

	// Query returns the first element matching selector or nil.
	Query(selector string) (Element, error)
	QueryAll(selector string) ([]Element, error)
	Evaluate(script string) (any, error)

	// ClickAt clicks the hosting iframe element at the given offset from its top left corner.
	ClickAt(x, y float64) error
}

type Element interface {
	Click() error

	// Attribute returns the attribute value, or an empty string if it is not set.
	// Both reads return ErrNotFound if the element is not attached.
	Attribute(name string) (string, error)
	InnerText() (string, error)

	// Locator scopes selector to the element. Resolution is lazy.
	Locator(selector string) Element
}
