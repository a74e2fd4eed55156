package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)

	for _, name := range []string{"base", "configuration", "advanced", "adapters"} {
		assert.Contains(t, out, name)
	}
}

func TestRun_Single(t *testing.T) {
	out, err := execute(t, "run", "advanced")
	require.NoError(t, err)
	assert.Equal(t, "HELLO!\n", out)
}

func TestRun_FlagOverridesDefault(t *testing.T) {
	out, err := execute(t, "run", "configuration", "--obey-speed-limit=false")
	require.NoError(t, err)
	assert.Equal(t, "Going too fast and crashing into a tree\n", out)
}

func TestRun_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "keel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("obey_speed_limit: false\nlog_level: warn\n"), 0o600))

	out, err := execute(t, "run", "configuration", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Going too fast and crashing into a tree\n", out)
}

func TestRun_ConfigFileBelowEnvironment(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "keel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("obey_speed_limit: false\n"), 0o600))
	t.Setenv("KEEL_OBEY_SPEED_LIMIT", "true")

	out, err := execute(t, "run", "configuration", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "Driving safely to destination\n", out)
}

func TestRun_Environment(t *testing.T) {
	t.Setenv("KEEL_OBEY_SPEED_LIMIT", "false")

	out, err := execute(t, "run", "configuration")
	require.NoError(t, err)
	assert.Equal(t, "Going too fast and crashing into a tree\n", out)
}

func TestRun_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	out, err := execute(t, "run", "advanced", "--output", path)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "HELLO!\n", string(data))
}

func TestRun_All(t *testing.T) {
	out, err := execute(t, "run", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "== base ==")
	assert.Contains(t, out, "== adapters ==")
	assert.Contains(t, out, "Driving safely to destination")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestOpenOutput_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")

	w, closeOut, err := openOutput(newRootCmd(), path)
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, closeOut())
	assert.NoError(t, closeOut(), "second close reports the first result")
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no scenario", []string{"run"}},
		{"unknown scenario", []string{"run", "nope"}},
		{"all with names", []string{"run", "--all", "base"}},
		{"bad log level", []string{"run", "base", "--log-level", "loud"}},
		{"missing config", []string{"run", "base", "--config", "/nonexistent/keel.yaml"}},
		{"unknown config key", []string{"run", "base", "--config", writeConfig(t, "obey_speed_limt: false\n")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}
