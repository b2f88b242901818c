// Package config handles wbcheck.toml collector configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chazu/wbcheck/gc"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "wbcheck.toml"

// File represents a wbcheck.toml configuration.
type File struct {
	GC      gc.Config `toml:"gc"`
	Log     Log       `toml:"log"`
	Dump    Dump      `toml:"dump"`
	Journal Journal   `toml:"journal"`
	Pacer   Pacer     `toml:"pacer"`

	// Dir is the directory containing the wbcheck.toml file (set at load time).
	Dir string `toml:"-"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Dump configures the heap dump written at exit.
type Dump struct {
	Path string `toml:"path"`
}

// Journal configures the SQLite cycle journal.
type Journal struct {
	Path string `toml:"path"`
}

// Pacer configures periodic collection requests.
type Pacer struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
}

// Duration parses the configured interval, falling back to the pacer
// default when unset.
func (p Pacer) Duration() (time.Duration, error) {
	if p.Interval == "" {
		return gc.DefaultPaceInterval, nil
	}
	d, err := time.ParseDuration(p.Interval)
	if err != nil {
		return 0, fmt.Errorf("pacer interval %q: %w", p.Interval, err)
	}
	return d, nil
}

// Default returns the configuration used when no file is present.
func Default() *File {
	return &File{
		GC: gc.DefaultConfig(),
	}
}

// Parse decodes a configuration from TOML text. Unset fields keep their
// defaults.
func Parse(data []byte) (*File, error) {
	f := Default()
	if err := toml.Unmarshal(data, f); err != nil {
		return nil, err
	}
	if f.GC.Backend == "" {
		f.GC.Backend = gc.BackendWBCheck
	}
	if f.GC.InitialThreshold <= 0 {
		f.GC.InitialThreshold = gc.DefaultInitialThreshold
	}
	return f, nil
}

// Load parses a wbcheck.toml file from the given directory.
func Load(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	f.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return f, nil
}

// FindAndLoad walks up from startDir to find a wbcheck.toml file, then loads
// and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*File, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Resolve returns p relative to the configuration directory, unless it is
// already absolute or empty.
func (f *File) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || f.Dir == "" {
		return p
	}
	return filepath.Join(f.Dir, p)
}

// ---------------------------------------------------------------------------
// Environment overrides
// ---------------------------------------------------------------------------

// Environment variables read by ApplyEnv.
const (
	EnvBackend       = "WBCHECK_BACKEND"
	EnvDebug         = "WBCHECK_DEBUG"
	EnvVerifyAfterWB = "WBCHECK_VERIFY_AFTER_WB"
	EnvWarnUselessWB = "WBCHECK_WARN_USELESS_WB"
	EnvStress        = "WBCHECK_STRESS"
	EnvThreshold     = "WBCHECK_THRESHOLD"
)

// ApplyEnv overrides collector settings from the environment. lookup is
// normally os.LookupEnv.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBackend); ok && v != "" {
		f.GC.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{EnvDebug, &f.GC.DebugOutput},
		{EnvVerifyAfterWB, &f.GC.VerifyAfterEveryWriteBarrier},
		{EnvWarnUselessWB, &f.GC.WarnOnUselessWriteBarrier},
		{EnvStress, &f.GC.Stress},
	}
	for _, b := range bools {
		v, ok := lookup(b.name)
		if !ok || v == "" {
			continue
		}
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s=%q: %w", b.name, v, err)
		}
		*b.dst = on
	}

	if v, ok := lookup(EnvThreshold); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s=%q: not a positive integer", EnvThreshold, v)
		}
		f.GC.InitialThreshold = n
	}
	return nil
}
