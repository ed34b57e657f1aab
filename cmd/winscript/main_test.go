package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDemo(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run([]string{"-script", filepath.Join("testdata", "demo.yaml")}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	assert.Equal(t, `window 1: created "main"
window 2: created "tools"
window 1: focused true
window 1: resized to 1024x768
window 1: received 'h'
window 1: received 'i'
window 2: moved to 10,20
window 2: close requested
window 1: close requested
`, stdout.String())
}

func TestRunUnclosedWindow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "open.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
windows:
  - title: lonely
events:
  - {kind: Focused, window: 1, focused: true}
`), 0o644))

	var stdout, stderr bytes.Buffer

	err := run([]string{"-script", path, "-log-level", "debug"}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "window 1: created \"lonely\"\nwindow 1: focused true\n", stdout.String())
	assert.Contains(t, stderr.String(), "script exhausted")
}

func TestRunErrors(t *testing.T) {
	t.Run("MissingScript", func(t *testing.T) {
		var out bytes.Buffer
		assert.EqualError(t, run(nil, &out, &out), "-script is required")
	})

	t.Run("BadLevel", func(t *testing.T) {
		var out bytes.Buffer
		err := run([]string{"-script", "x.yaml", "-log-level", "loud"}, &out, &out)
		assert.EqualError(t, err, `unknown log level "loud"`)
	})

	t.Run("UndeclaredWindow", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("events:\n  - {kind: CloseRequested, window: 3}\n"), 0o644))
		var out bytes.Buffer
		err := run([]string{"-script", path}, &out, &out)
		assert.ErrorContains(t, err, "window 3 is not declared")
	})
}
