// Package tool models a configured linter/formatter: its command template,
// file-selection globs, batching granularity, and the precomputed stamp
// that keys all of its cache entries.
package tool

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gobwas/glob"

	"github.com/lun-run/lun/internal/xhash"
)

// Granularity controls whether a tool accepts one file per invocation
// (Individual) or must see its whole file set in a single invocation
// (Batch).
type Granularity int

const (
	Individual Granularity = iota
	Batch
)

func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "individual":
		return Individual, nil
	case "batch":
		return Batch, nil
	default:
		return Individual, fmt.Errorf("unknown granularity %q", s)
	}
}

// RunMode selects which command template a Tool uses.
type RunMode int

const (
	Normal RunMode = iota
	Fix
	Check
)

// ColorPolicy controls the {{color}} template substitution.
type ColorPolicy int

const (
	ColorNever ColorPolicy = iota
	ColorAlways
)

func (c ColorPolicy) String() string {
	if c == ColorAlways {
		return "always"
	}
	return "never"
}

// GlobSet matches a path against any of a compiled set of glob patterns.
// The Go analogue of the Rust globset crate's GlobSet, built on
// github.com/gobwas/glob.
type GlobSet struct {
	patterns []glob.Glob
}

// NewGlobSet compiles a list of glob patterns. An invalid pattern is a
// fatal config error, never a partial/best-effort result.
func NewGlobSet(patterns []string) (*GlobSet, error) {
	gs := &GlobSet{patterns: make([]glob.Glob, 0, len(patterns))}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", p, err)
		}
		gs.patterns = append(gs.patterns, g)
	}
	return gs, nil
}

// IsMatch reports whether path matches any compiled pattern.
func (gs *GlobSet) IsMatch(path string) bool {
	if gs == nil {
		return false
	}
	for _, g := range gs.patterns {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// Config is the pre-stamp configuration for a Tool, as decoded from a
// config file.
type Config struct {
	Name        string
	Cmd         string
	Fix         string // linter-only alternate template
	Check       string // formatter-only alternate template
	Files       []string
	Ignore      []string
	Granularity Granularity
	Configs     []string // associated config file paths, for the tool stamp
	Cd          string
}

// Tool is a fully resolved, shared-immutable tool ready for planning. It
// is constructed once per run and referenced (never copied) by every
// Command that needs it.
type Tool struct {
	Name        string
	Cmd         string // effective command, post template substitution
	Files       *GlobSet
	Ignore      *GlobSet
	Granularity Granularity
	Stamp       xhash.Hash128
	Cd          string
}

// DisplayName returns the configured name, or the command if unnamed.
func (t *Tool) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Cmd
}

// Options controls tool-stamp computation that depends on the run as a
// whole, not just the tool's own config.
type Options struct {
	Mode    RunMode
	Color   ColorPolicy
	Careful bool
	Root    string // working directory config paths/cd are relative to
}

// Compute resolves a Config into a fully-stamped Tool.
func Compute(ctx context.Context, cfg Config, opts Options) (*Tool, error) {
	files, err := NewGlobSet(cfg.Files)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", cfg.displayName(), err)
	}
	var ignore *GlobSet
	if len(cfg.Ignore) > 0 {
		ignore, err = NewGlobSet(cfg.Ignore)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", cfg.displayName(), err)
		}
	}

	effective := effectiveCommand(cfg, opts.Mode, opts.Color)

	stamp, err := computeStamp(ctx, cfg, effective, opts)
	if err != nil {
		return nil, fmt.Errorf("tool %s: computing stamp: %w", cfg.displayName(), err)
	}

	return &Tool{
		Name:        cfg.Name,
		Cmd:         effective,
		Files:       files,
		Ignore:      ignore,
		Granularity: cfg.Granularity,
		Stamp:       stamp,
		Cd:          cfg.Cd,
	}, nil
}

func (c Config) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Cmd
}

// effectiveCommand chooses the command template for mode and substitutes
// {{color}}.
func effectiveCommand(cfg Config, mode RunMode, color ColorPolicy) string {
	tmpl := cfg.Cmd
	switch mode {
	case Fix:
		if cfg.Fix != "" {
			tmpl = cfg.Fix
		}
	case Check:
		if cfg.Check != "" {
			tmpl = cfg.Check
		}
	}
	return strings.ReplaceAll(tmpl, "{{color}}", color.String())
}

// computeStamp mixes the effective command, config-file hash, optional
// version probe, optional cd, and sorted <PROGRAM>_* env vars into a
// single tool stamp (spec.md §4.2).
func computeStamp(ctx context.Context, cfg Config, effective string, opts Options) (xhash.Hash128, error) {
	d := xhash.New()
	d.Write([]byte(effective))

	configHash, err := hashConfigFiles(cfg.Configs, opts.Root)
	if err != nil {
		return xhash.Hash128{}, err
	}
	d.WriteHash128(configHash)

	if opts.Careful {
		vh, err := probeVersion(ctx, cfg.Cmd)
		if err == nil {
			d.WriteHash128(vh)
		}
		// Missing/failed --version is not fatal: the hash simply omits it,
		// which only ever causes extra cache misses, never incorrect hits.
	}

	if cfg.Cd != "" {
		d.Write([]byte(cfg.Cd))
	}

	for _, kv := range sortedProgramEnv(firstToken(cfg.Cmd)) {
		d.Write([]byte(kv))
	}

	return d.Sum(), nil
}

// hashConfigFiles mixes (path, size, uid/gid/mode, mtime-ns) for every
// existing path in sorted order. A missing path contributes nothing.
func hashConfigFiles(paths []string, root string) (xhash.Hash128, error) {
	if len(paths) == 0 {
		return xhash.Hash128{}, nil
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	d := xhash.New()
	for _, p := range sorted {
		full := p
		if root != "" && !strings.HasPrefix(p, "/") {
			full = root + "/" + p
		}
		info, err := os.Stat(full)
		if err != nil {
			continue // missing config path is ignored, not fatal
		}
		d.Write([]byte(p))
		d.WriteUint64(uint64(info.Size()))
		if sys, ok := info.Sys().(*syscall.Stat_t); ok {
			d.WriteUint32(sys.Uid)
			d.WriteUint32(sys.Gid)
			d.WriteUint32(sys.Mode)
		}
		d.WriteUint64(uint64(info.ModTime().UnixNano()))
	}
	return d.Sum(), nil
}

// probeVersion runs "<program> --version" with a short timeout and hashes
// its trimmed output.
func probeVersion(ctx context.Context, cmd string) (xhash.Hash128, error) {
	program := firstToken(cmd)
	if program == "" {
		return xhash.Hash128{}, fmt.Errorf("empty command")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, program, "--version").CombinedOutput()
	if err != nil {
		return xhash.Hash128{}, err
	}
	trimmed := strings.TrimSpace(string(out))
	return xhash.Hash([]byte(trimmed)), nil
}

// sortedProgramEnv returns "KEY=VALUE" strings for every environment
// variable whose name starts with strings.ToUpper(program)+"_", sorted by
// key.
func sortedProgramEnv(program string) []string {
	prefix := strings.ToUpper(program) + "_"
	var kvs []string
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, prefix) {
			kvs = append(kvs, e)
		}
	}
	sort.Slice(kvs, func(i, j int) bool {
		return strings.SplitN(kvs[i], "=", 2)[0] < strings.SplitN(kvs[j], "=", 2)[0]
	})
	return kvs
}

// firstToken returns the first whitespace-delimited token of a command
// string (the program name).
func firstToken(cmd string) string {
	scanner := bufio.NewScanner(strings.NewReader(cmd))
	scanner.Split(bufio.ScanWords)
	if scanner.Scan() {
		return scanner.Text()
	}
	return ""
}
