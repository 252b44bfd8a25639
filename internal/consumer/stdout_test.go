package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jonashiltl/captcha-solver/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterConsumer(t *testing.T) {
	var buf bytes.Buffer
	c := NewWriterConsumer(&buf)
	defer c.Close()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reports := []internal.Report{
		{SessionID: "a", Kind: "grid", Prompt: "Please click each image containing a cat", Round: 1, Result: "solved", At: at},
		{SessionID: "a", Kind: "grid", Round: 2, Result: "skip", At: at},
	}
	for _, r := range reports {
		require.NoError(t, c.Consume(context.Background(), r))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var got internal.Report
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, reports[1], got)
	assert.NotContains(t, lines[0], "error")
}

func TestDocumentID(t *testing.T) {
	r := internal.Report{SessionID: "abc", Round: 3, At: time.Unix(0, 42)}
	assert.Equal(t, "abc-3-42", documentID(r))
}
