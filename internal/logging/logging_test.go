package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gather.log")

	l, closer, err := New("info", path)
	require.NoError(t, err)

	cl := Component(l, "backfill")
	cl.Info().Str("source", "linear").Msg("chunk complete")
	l.Debug().Msg("filtered out")
	closer()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"component":"backfill"`)
	assert.Contains(t, lines[0], `"source":"linear"`)
	assert.Contains(t, lines[0], `"time":`)
}

func TestNew_AppendsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gather.log")

	for i := 0; i < 2; i++ {
		l, closer, err := New("info", path)
		require.NoError(t, err)
		l.Info().Msg("run")
		closer()
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), `"message":"run"`))
}

func TestNew_InvalidLevel(t *testing.T) {
	_, closer, err := New("loud", "")
	defer closer()
	assert.Error(t, err)
}

func TestNew_DefaultsToStderr(t *testing.T) {
	_, closer, err := New("", Stderr)
	defer closer()
	assert.NoError(t, err)
}
