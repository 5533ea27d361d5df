// Package config decodes lun.toml into the tool configs and top-level
// run options the core consumes, per spec.md §6. Unlike the teacher's
// hand-rolled line-based Cargo.toml reader, lun.toml is regular TOML
// decoded with a real parser — the schema here is the bespoke part,
// not the syntax.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/lun-run/lun/internal/tool"
)

// File mirrors lun.toml's on-disk shape; only the fields spec.md §6 names
// are contractual. Keys not listed here are ignored by the decoder.
type File struct {
	CacheSize int64    `toml:"cache_size"`
	Careful   bool     `toml:"careful"`
	Cores     int      `toml:"cores"`
	Mtime     *bool    `toml:"mtime"`
	Ninja     bool     `toml:"ninja"`
	Refs      []string `toml:"refs"`
	Ignore    []string `toml:"ignore"`

	Tool []ToolEntry `toml:"tool"`
}

// ToolEntry is one `[[tool]]` table.
type ToolEntry struct {
	Name        string   `toml:"name"`
	Cmd         string   `toml:"cmd"`
	Fix         string   `toml:"fix"`
	Check       string   `toml:"check"`
	Files       []string `toml:"files"`
	Ignore      []string `toml:"ignore"`
	Granularity string   `toml:"granularity"`
	Configs     []string `toml:"configs"`
	Cd          string   `toml:"cd"`
}

// Config is the decoded, validated form runctl operates on.
type Config struct {
	CacheSize    int64
	Careful      bool
	Cores        int
	MtimeEnabled bool
	Ninja        bool
	Refs         []string
	Ignore       []string
	Tools        []tool.Config
}

// Load reads and validates path into a Config. An invalid TOML
// document, or a tool entry with a malformed granularity or empty cmd,
// is a config-fatal error: abort with file/reason (spec.md §7 kind 1).
func Load(path string) (*Config, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg := &Config{
		CacheSize:    f.CacheSize,
		Careful:      f.Careful,
		Cores:        f.Cores,
		MtimeEnabled: true,
		Ninja:        f.Ninja,
		Refs:         f.Refs,
		Ignore:       f.Ignore,
	}
	if f.Mtime != nil {
		cfg.MtimeEnabled = *f.Mtime
	}

	cfg.Tools = make([]tool.Config, 0, len(f.Tool))
	for _, te := range f.Tool {
		if te.Cmd == "" {
			return nil, fmt.Errorf("parsing %s: tool %q: empty cmd", path, te.displayName())
		}
		gran, err := tool.ParseGranularity(te.Granularity)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: tool %q: %w", path, te.displayName(), err)
		}
		cfg.Tools = append(cfg.Tools, tool.Config{
			Name:        te.Name,
			Cmd:         te.Cmd,
			Fix:         te.Fix,
			Check:       te.Check,
			Files:       te.Files,
			Ignore:      te.Ignore,
			Granularity: gran,
			Configs:     te.Configs,
			Cd:          te.Cd,
		})
	}
	return cfg, nil
}

func (te ToolEntry) displayName() string {
	if te.Name != "" {
		return te.Name
	}
	return te.Cmd
}
