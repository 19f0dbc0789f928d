// Package config loads barkeep's TOML configuration.
//
// The file describes the bar as a whole (header, global body defaults,
// command_dir) plus one [[block]] table per block. Body fields may
// appear at the top level (global scope) and inside each block table
// (local scope); the runtime merges them with command output per
// refresh.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/barkeep/internal/logging"
	"github.com/asheshgoplani/barkeep/internal/protocol"
)

var cfgLog = logging.ForComponent(logging.CompConfig)

// ConfigFileName is the file looked up under the user config directory.
const ConfigFileName = "config.toml"

// Bar is the top-level TOML document.
type Bar struct {
	// CommandDir overrides the directory block commands run in.
	// Relative paths are resolved against the config file's directory.
	CommandDir *string `toml:"command_dir"`

	// Header is the protocol preamble, written once at startup.
	Header protocol.Header `toml:"header"`

	// Body holds global-scope defaults, inline at the top level.
	protocol.Body

	// Blocks are the configured blocks, in display order.
	Blocks []Block `toml:"block"`
}

// Block is one [[block]] table.
type Block struct {
	// Command is executed on every refresh; its stdout lines set body
	// fields at immediate scope. Absent means the block is static.
	Command *string `toml:"command"`

	// Prefix is prepended to full_text after the merge, if full_text
	// is set.
	Prefix *string `toml:"prefix"`

	// Postfix is appended to full_text after the merge, if full_text
	// is set.
	Postfix *string `toml:"postfix"`

	// Interval is the refresh period in seconds. Zero, negative or
	// non-finite values disable the interval trigger with a warning.
	Interval *float64 `toml:"interval"`

	// Signal is an OS signal number that triggers a refresh.
	Signal *int `toml:"signal"`

	// Body holds local-scope defaults, inline in the block table.
	protocol.Body
}

// Config is a loaded configuration snapshot.
type Config struct {
	// Path is the resolved path of the TOML file.
	Path string

	// CommandDir is the resolved directory block commands run in.
	CommandDir string

	// Bar is the decoded document.
	Bar Bar
}

// DefaultPath returns the fallback config path,
// <user config dir>/barkeep/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no config path found (try passing one with --config): %w", err)
	}
	return filepath.Join(dir, "barkeep", ConfigFileName), nil
}

// Load reads and decodes the configuration at path.
//
// The path is resolved through symlinks first; command_dir defaults to
// the resolved file's parent directory, with a relative command_dir
// from the document joined onto it.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var bar Bar
	if err := toml.Unmarshal(data, &bar); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", resolved, err)
	}
	if bar.Header.Version == 0 {
		bar.Header.Version = protocol.DefaultVersion
	}

	commandDir := filepath.Dir(resolved)
	if bar.CommandDir != nil {
		if filepath.IsAbs(*bar.CommandDir) {
			commandDir = *bar.CommandDir
		} else {
			commandDir = filepath.Join(commandDir, *bar.CommandDir)
		}
	}
	commandDir, err = filepath.EvalSymlinks(commandDir)
	if err != nil {
		return nil, fmt.Errorf("resolve command_dir: %w", err)
	}

	cfgLog.Debug("config_loaded",
		slog.String("path", resolved),
		slog.String("command_dir", commandDir),
		slog.Int("blocks", len(bar.Blocks)),
	)

	return &Config{
		Path:       resolved,
		CommandDir: commandDir,
		Bar:        bar,
	}, nil
}
