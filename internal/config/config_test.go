package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/barkeep/internal/protocol"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFullDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
full_text = "fallback"
color = "#aabbcc"

[header]
version = 1
click_events = false
cont_signal = 10
stop_signal = 12

[[block]]
command = "date"
prefix = "time: "
interval = 30.0
signal = 10
separator = true

[[block]]
full_text = "static"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Bar.Header.Version)
	assert.Equal(t, 10, cfg.Bar.Header.Cont())
	assert.Equal(t, 12, cfg.Bar.Header.Stop())

	// Global scope body fields live inline at the top level.
	require.NotNil(t, cfg.Bar.FullText)
	assert.Equal(t, "fallback", *cfg.Bar.FullText)
	require.NotNil(t, cfg.Bar.Color)
	assert.Equal(t, "#aabbcc", *cfg.Bar.Color)

	require.Len(t, cfg.Bar.Blocks, 2)

	first := cfg.Bar.Blocks[0]
	require.NotNil(t, first.Command)
	assert.Equal(t, "date", *first.Command)
	require.NotNil(t, first.Prefix)
	assert.Equal(t, "time: ", *first.Prefix)
	require.NotNil(t, first.Interval)
	assert.Equal(t, 30.0, *first.Interval)
	require.NotNil(t, first.Signal)
	assert.Equal(t, 10, *first.Signal)
	require.NotNil(t, first.Separator)
	assert.True(t, *first.Separator)

	second := cfg.Bar.Blocks[1]
	assert.Nil(t, second.Command)
	require.NotNil(t, second.FullText)
	assert.Equal(t, "static", *second.FullText)
}

func TestLoadDefaultsHeaderVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[block]]
full_text = "x"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, protocol.DefaultVersion, cfg.Bar.Header.Version)
}

func TestLoadCommandDirDefaultsToConfigParent(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `[[block]]
full_text = "x"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, resolved, cfg.CommandDir)
}

func TestLoadRelativeCommandDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "scripts"), 0755))
	path := writeConfig(t, dir, `command_dir = "scripts"

[[block]]
full_text = "x"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(filepath.Join(dir, "scripts"))
	require.NoError(t, err)
	assert.Equal(t, resolved, cfg.CommandDir)
}

func TestLoadAbsoluteCommandDir(t *testing.T) {
	dir := t.TempDir()
	other := t.TempDir()
	path := writeConfig(t, dir, `command_dir = "`+other+`"

[[block]]
full_text = "x"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	resolved, err := filepath.EvalSymlinks(other)
	require.NoError(t, err)
	assert.Equal(t, resolved, cfg.CommandDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `[[block`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingCommandDir(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `command_dir = "does-not-exist"

[[block]]
full_text = "x"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidAlign(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
[[block]]
align = "diagonal"
`)

	_, err := Load(path)
	assert.Error(t, err)
}
