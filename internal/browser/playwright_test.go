package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
)

func TestNotFound(t *testing.T) {
	timeout := fmt.Errorf("%w: Timeout 2000ms exceeded waiting for locator('div.image')", playwright.ErrTimeout)
	assert.ErrorIs(t, notFound(timeout), ErrNotFound)

	other := errors.New("target closed")
	assert.Equal(t, other, notFound(other))
	assert.NoError(t, notFound(nil))
}
