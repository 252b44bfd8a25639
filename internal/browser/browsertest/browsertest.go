// Package browsertest provides in-memory implementations of the browser
// interfaces for tests.
package browsertest

import (
	"errors"
	"time"

	"github.com/jonashiltl/captcha-solver/internal/browser"
)

type Point struct {
	X, Y float64
}

type Element struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children map[string]*Element
	Clicks   int
	// OnClick runs after the click is recorded.
	OnClick func()

	// Missing makes reads fail like an element that is not attached.
	Missing bool
	// Err is returned by every read when set.
	Err error
}

func (e *Element) Click() error {
	e.Clicks++
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Attribute(name string) (string, error) {
	if err := e.readErr(); err != nil {
		return "", err
	}
	return e.Attrs[name], nil
}

func (e *Element) InnerText() (string, error) {
	if err := e.readErr(); err != nil {
		return "", err
	}
	return e.Text, nil
}

func (e *Element) readErr() error {
	if e.Err != nil {
		return e.Err
	}
	if e.Missing {
		return browser.ErrNotFound
	}
	return nil
}

func (e *Element) Locator(selector string) browser.Element {
	if child, ok := e.Children[selector]; ok {
		return child
	}
	return &Element{Missing: true}
}

type Frame struct {
	Texts    map[string]string
	Elements map[string][]*Element

	// Eval is returned by Evaluate for every script.
	Eval    any
	EvalErr error

	Clicks []Point
}

func (f *Frame) InnerText(selector string) (string, error) {
	text, ok := f.Texts[selector]
	if !ok {
		return "", errors.New("no element for " + selector)
	}
	return text, nil
}

func (f *Frame) Query(selector string) (browser.Element, error) {
	elems := f.Elements[selector]
	if len(elems) == 0 {
		return nil, nil
	}
	return elems[0], nil
}

func (f *Frame) QueryAll(selector string) ([]browser.Element, error) {
	elems := make([]browser.Element, 0, len(f.Elements[selector]))
	for _, e := range f.Elements[selector] {
		elems = append(elems, e)
	}
	return elems, nil
}

func (f *Frame) Evaluate(script string) (any, error) {
	return f.Eval, f.EvalErr
}

func (f *Frame) ClickAt(x, y float64) error {
	f.Clicks = append(f.Clicks, Point{x, y})
	return nil
}

type Page struct {
	PageURL string
	UA      string
	Content *Frame

	Visible map[string]bool
	Clicks  []string
	Reloads int
	// OnReload runs after the reload is recorded.
	OnReload func()

	// Calls counts every method invocation, useful to assert that nothing
	// touched the page.
	Calls int
}

func NewPage(ua string, content *Frame) *Page {
	return &Page{
		UA:      ua,
		Content: content,
		Visible: make(map[string]bool),
	}
}

func (p *Page) SetVisible(selector string, visible bool) {
	p.Visible[selector] = visible
}

func (p *Page) URL() string {
	return p.PageURL
}

func (p *Page) UserAgent() (string, error) {
	p.Calls++
	return p.UA, nil
}

func (p *Page) WaitVisible(selector string, timeout time.Duration) bool {
	p.Calls++
	return p.Visible[selector]
}

func (p *Page) IsVisible(selector string) (bool, error) {
	p.Calls++
	return p.Visible[selector], nil
}

func (p *Page) Click(selector string) error {
	p.Calls++
	p.Clicks = append(p.Clicks, selector)
	return nil
}

func (p *Page) Reload() error {
	p.Calls++
	p.Reloads++
	if p.OnReload != nil {
		p.OnReload()
	}
	return nil
}

func (p *Page) Frame(selector string) (browser.Frame, error) {
	p.Calls++
	if p.Content == nil || !p.Visible[selector] {
		return nil, nil
	}
	return p.Content, nil
}
