package internal

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaultLoggerWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	file := filepath.Join(t.TempDir(), "solver.log")
	SetDefaultLogger(slog.LevelInfo, file)

	NewLogger("Solver").Info("round finished", SessionAttr("abc"), ErrAttr(errors.New("skip")))
	NewLogger("Solver").Debug("not written")

	content, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "service=Solver")
	assert.Contains(t, string(content), "session=abc")
	assert.Contains(t, string(content), "error=skip")
	assert.NotContains(t, string(content), "not written")
}
