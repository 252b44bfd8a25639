package browser

import (
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// element lookups inside the challenge should fail fast instead of
// waiting for playwright's 30s default
const actionTimeout = 2 * time.Second

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

type pwPage struct {
	page playwright.Page
}

func NewPage(page playwright.Page) Page {
	return &pwPage{page: page}
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) UserAgent() (string, error) {
	result, err := p.page.Evaluate("() => navigator.userAgent")
	if err != nil {
		return "", err
	}
	ua, ok := result.(string)
	if !ok {
		return "", errors.New("navigator.userAgent is not a string")
	}
	return ua, nil
}

func (p *pwPage) WaitVisible(selector string, timeout time.Duration) bool {
	_, err := p.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
	return err == nil
}

func (p *pwPage) IsVisible(selector string) (bool, error) {
	return p.page.Locator(selector).IsVisible()
}

func (p *pwPage) Click(selector string) error {
	return p.page.Locator(selector).Click(playwright.LocatorClickOptions{
		Timeout: ms(actionTimeout),
	})
}

func (p *pwPage) Reload() error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	})
	return err
}

func (p *pwPage) Frame(selector string) (Frame, error) {
	host, err := p.page.QuerySelector(selector)
	if err != nil {
		return nil, err
	}
	if host == nil {
		return nil, nil
	}
	content, err := host.ContentFrame()
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, nil
	}
	return &pwFrame{
		host:    host,
		content: content,
		locator: p.page.FrameLocator(selector),
	}, nil
}

type pwFrame struct {
	host    playwright.ElementHandle
	content playwright.Frame
	locator playwright.FrameLocator
}

func (f *pwFrame) InnerText(selector string) (string, error) {
	return f.locator.Locator(selector).InnerText(playwright.LocatorInnerTextOptions{
		Timeout: ms(actionTimeout),
	})
}

func (f *pwFrame) Query(selector string) (Element, error) {
	loc := f.locator.Locator(selector).First()
	n, err := loc.Count()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return pwElement{loc}, nil
}

func (f *pwFrame) QueryAll(selector string) ([]Element, error) {
	all, err := f.locator.Locator(selector).All()
	if err != nil {
		return nil, err
	}
	elems := make([]Element, 0, len(all))
	for _, loc := range all {
		elems = append(elems, pwElement{loc})
	}
	return elems, nil
}

func (f *pwFrame) Evaluate(script string) (any, error) {
	return f.content.Evaluate(script)
}

func (f *pwFrame) ClickAt(x, y float64) error {
	return f.host.Click(playwright.ElementHandleClickOptions{
		Position: &playwright.Position{X: x, Y: y},
	})
}

type pwElement struct {
	loc playwright.Locator
}

func (e pwElement) Click() error {
	return e.loc.Click(playwright.LocatorClickOptions{
		Timeout: ms(actionTimeout),
	})
}

func (e pwElement) Attribute(name string) (string, error) {
	if e.detached() {
		return "", ErrNotFound
	}
	v, err := e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{
		Timeout: ms(actionTimeout),
	})
	return v, notFound(err)
}

func (e pwElement) InnerText() (string, error) {
	if e.detached() {
		return "", ErrNotFound
	}
	text, err := e.loc.InnerText(playwright.LocatorInnerTextOptions{
		Timeout: ms(actionTimeout),
	})
	return text, notFound(err)
}

func (e pwElement) detached() bool {
	n, err := e.loc.Count()
	return err == nil && n == 0
}

// notFound maps a read that timed out waiting for its element to ErrNotFound.
// The element can detach between the count and the read.
func notFound(err error) error {
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

func (e pwElement) Locator(selector string) Element {
	return pwElement{e.loc.Locator(selector)}
}
