package runctl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/lun-run/lun/internal/config"
	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/job"
	"github.com/lun-run/lun/internal/tool"
)

func TestToSet(t *testing.T) {
	set := toSet([]string{"a", "b", "a"})
	if len(set) != 2 || !set["a"] || !set["b"] {
		t.Errorf("unexpected set: %v", set)
	}
}

func TestFilterToolsOnly(t *testing.T) {
	tools := []*tool.Tool{
		{Name: "gofmt"},
		{Name: "govet"},
	}
	got := filterTools(tools, []string{"gofmt"}, nil)
	if len(got) != 1 || got[0].Name != "gofmt" {
		t.Errorf("expected only gofmt, got %v", got)
	}
}

func TestFilterToolsSkip(t *testing.T) {
	tools := []*tool.Tool{
		{Name: "gofmt"},
		{Name: "govet"},
	}
	got := filterTools(tools, nil, []string{"govet"})
	if len(got) != 1 || got[0].Name != "gofmt" {
		t.Errorf("expected govet skipped, got %v", got)
	}
}

func TestIntersectPaths(t *testing.T) {
	root := "/repo"
	files := []fstamp.File{
		{Path: filepath.Join(root, "a.go")},
		{Path: filepath.Join(root, "b.go")},
	}
	got := intersectPaths(files, []string{"a.go"}, root)
	if len(got) != 1 || got[0].Path != filepath.Join(root, "a.go") {
		t.Errorf("expected only a.go to survive intersection, got %v", got)
	}
}

func TestFilterFiles(t *testing.T) {
	files := []fstamp.File{{Path: "a.go"}, {Path: "b.md"}}
	got := filterFiles(files, func(f fstamp.File) bool { return filepath.Ext(f.Path) == ".go" })
	if len(got) != 1 || got[0].Path != "a.go" {
		t.Errorf("expected only a.go, got %v", got)
	}
}

func TestEffectiveCoresPrefersJobsFlag(t *testing.T) {
	got := effectiveCores(Options{Jobs: 8}, &config.Config{Cores: 4})
	if got != 8 {
		t.Errorf("expected --jobs to win, got %d", got)
	}
}

func TestEffectiveCoresFallsBackToConfig(t *testing.T) {
	got := effectiveCores(Options{}, &config.Config{Cores: 4})
	if got != 4 {
		t.Errorf("expected config cores to be used, got %d", got)
	}
}

func TestEffectiveCoresDefaultsToZero(t *testing.T) {
	got := effectiveCores(Options{}, &config.Config{})
	if got != 0 {
		t.Errorf("expected 0 (meaning runtime.NumCPU fallback), got %d", got)
	}
}

func TestCountFiles(t *testing.T) {
	batches := []job.Command{
		{Files: []fstamp.File{{Path: "a"}, {Path: "b"}}},
		{Files: []fstamp.File{{Path: "c"}}},
	}
	if got := countFiles(batches); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestWalkfsRecheckBatchesDropsEmptyBatches(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.go")
	if err := os.WriteFile(keep, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	gone := filepath.Join(dir, "gone.go")

	batches := []job.Command{
		{Tool: &tool.Tool{Name: "t1"}, Files: []fstamp.File{{Path: keep}}},
		{Tool: &tool.Tool{Name: "t2"}, Files: []fstamp.File{{Path: gone}}},
	}
	got := walkfsRecheckBatches(batches)
	if len(got) != 1 || got[0].Tool.Name != "t1" {
		t.Errorf("expected only the batch with a surviving file, got %v", got)
	}
}

func TestRunEndToEndWithRealConfig(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, ".lun-cache")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "lun.toml")
	toml := `
[[tool]]
name = "noop"
cmd = "true"
files = ["*.go"]
granularity = "individual"
`
	if err := os.WriteFile(configPath, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	opts := Options{
		Root:       dir,
		CacheDir:   cacheDir,
		ConfigPath: configPath,
		NoCache:    true,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	res, err := Run(context.Background(), opts, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Error("expected a successful run")
	}
	if res.FilesLinted != 1 {
		t.Errorf("expected 1 file linted, got %d", res.FilesLinted)
	}
}

func TestRunDryRunSkipsExecution(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, ".lun-cache")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "lun.toml")
	toml := `
[[tool]]
name = "noop"
cmd = "false"
files = ["*.go"]
`
	if err := os.WriteFile(configPath, []byte(toml), 0644); err != nil {
		t.Fatal(err)
	}

	opts := Options{
		Root:       dir,
		CacheDir:   cacheDir,
		ConfigPath: configPath,
		NoCache:    true,
		DryRun:     true,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
	}
	res, err := Run(context.Background(), opts, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Error("expected dry-run to report success regardless of what the tool would have done")
	}
}
