// Package manifest handles kuro.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest's name in a project directory.
const FileName = "kuro.toml"

// Defaults applied by Load when a section leaves a field empty.
const (
	DefaultEntry     = "main.kr"
	DefaultCachePath = ".kuro/cache.db"
	DefaultAddr      = "localhost:8723"
	DefaultGRPCAddr  = "localhost:8724"
)

// Manifest represents a kuro.toml project configuration.
type Manifest struct {
	Project  Project  `toml:"project"`
	Compiler Compiler `toml:"compiler"`
	Cache    Cache    `toml:"cache"`
	Server   Server   `toml:"server"`

	// Dir is the directory containing the kuro.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`
}

// Compiler holds the debugging switches the command line also exposes.
type Compiler struct {
	Disassemble bool `toml:"disassemble"`
	TraceScan   bool `toml:"trace-scan"`
	TraceExec   bool `toml:"trace-exec"`
	StressGC    bool `toml:"stress-gc"`
}

// Cache configures the persistent compiled-module cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Server configures the compile service listeners.
type Server struct {
	Addr     string `toml:"addr"`
	GRPCAddr string `toml:"grpc-addr"`

	// MemoryModules bounds the compiled modules held in memory. Zero
	// means the cache default.
	MemoryModules int `toml:"memory-modules"`
}

// Default returns the manifest used when a project has no kuro.toml.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Parse decodes and validates manifest text. Relative paths are resolved
// against dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]interface{}{}
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.Dir = dir
	m.applyDefaults()
	return &m, nil
}

// Load parses a kuro.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m, err := Parse(data, abs)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a kuro.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
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
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

func (m *Manifest) applyDefaults() {
	if m.Project.Entry == "" {
		m.Project.Entry = DefaultEntry
	}
	if m.Cache.Path == "" {
		m.Cache.Path = DefaultCachePath
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultAddr
	}
	if m.Server.GRPCAddr == "" {
		m.Server.GRPCAddr = DefaultGRPCAddr
	}
}

// EntryPath returns the absolute path of the project's entry script.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

// CachePath returns the absolute path of the module cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
