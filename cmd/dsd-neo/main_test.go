package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsOneOnInvalidRdioMode(t *testing.T) {
	code := run([]string{"--rdio-mode", "bogus"})
	assert.Equal(t, 1, code)
}

func TestRunReturnsOneOnMissingConfigFile(t *testing.T) {
	code := run([]string{"--config", "/nonexistent/path.ini"})
	assert.Equal(t, 1, code)
}

func TestRunReturnsOneOnUnknownProfile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/main.ini"
	require.NoError(t, os.WriteFile(path, []byte("[trunking]\nhangtime_s = 1.0\n"), 0o600))
	code := run([]string{"--config", path, "--profile", "nonexistent"})
	assert.Equal(t, 1, code)
}
