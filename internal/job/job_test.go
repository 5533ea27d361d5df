package job

import (
	"testing"

	"github.com/lun-run/lun/internal/fstamp"
	"github.com/lun-run/lun/internal/tool"
)

func files(sizes ...int64) []fstamp.File {
	out := make([]fstamp.File, len(sizes))
	for i, s := range sizes {
		out[i] = fstamp.File{Path: pathFor(i), Size: s}
	}
	return out
}

func pathFor(i int) string {
	return string(rune('a' + i))
}

func TestUnbatchSplitsIndividualTool(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}, Files: files(1, 2, 3)}
	got := unbatch(cmd)
	if len(got) != 3 {
		t.Fatalf("expected 3 single-file commands, got %d", len(got))
	}
	for _, c := range got {
		if len(c.Files) != 1 {
			t.Errorf("expected exactly one file per command, got %d", len(c.Files))
		}
	}
}

func TestUnbatchKeepsBatchToolWhole(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Batch}, Files: files(1, 2, 3)}
	got := unbatch(cmd)
	if len(got) != 1 || len(got[0].Files) != 3 {
		t.Fatalf("expected one command with all 3 files, got %d commands", len(got))
	}
}

func TestUnbatchEmptyYieldsNothing(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}}
	if got := unbatch(cmd); got != nil {
		t.Errorf("expected nil for an empty file set, got %v", got)
	}
}

func TestBatchGranularityStaysOneInvocation(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Batch}, Files: files(1, 2, 3, 4, 5)}
	got := batch(cmd, 4)
	if len(got) != 1 {
		t.Fatalf("expected exactly one batch for a Batch-granularity tool, got %d", len(got))
	}
	if len(got[0].Files) != 5 {
		t.Errorf("expected all 5 files in the single batch, got %d", len(got[0].Files))
	}
}

func TestBatchFewerFilesThanCoresSplitsOnePerFile(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}, Files: files(1, 2)}
	got := batch(cmd, 4)
	if len(got) != 2 {
		t.Fatalf("expected 2 single-file batches when files < cores, got %d", len(got))
	}
}

func TestBatchCompletenessAcrossBins(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}, Files: files(10, 1, 1, 1, 1, 1, 1, 1)}
	got := batch(cmd, 4)

	seen := map[string]bool{}
	total := 0
	for _, c := range got {
		for _, f := range c.Files {
			seen[f.Path] = true
			total++
		}
	}
	if total != 8 {
		t.Fatalf("expected all 8 files across batches, got %d", total)
	}
	if len(seen) != 8 {
		t.Errorf("expected every file to appear in exactly one batch, got %d distinct paths", len(seen))
	}
}

func TestBatchSortsFilesWithinBatchByPath(t *testing.T) {
	// Sizes 1..4 over 2 bins pack as [d, a] and [c, b] (largest first), so
	// each bin only comes out in path order if batch sorts it.
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}, Files: files(1, 2, 3, 4)}
	got := batch(cmd, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(got))
	}
	for _, c := range got {
		paths := c.Files
		for i := 1; i < len(paths); i++ {
			if paths[i-1].Path > paths[i].Path {
				t.Errorf("expected files sorted by path ascending, got %v", paths)
				break
			}
		}
	}
}

func TestBuildNoBatchForcesUnbatch(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}, Files: files(1, 2, 3)}
	got := Build([]Command{cmd}, 4, true)
	if len(got) != 3 {
		t.Errorf("expected --no-batch to force 3 single-file commands, got %d", len(got))
	}
}

func TestBuildEmptyCommandsYieldsNil(t *testing.T) {
	if got := Build(nil, 4, false); got != nil {
		t.Errorf("expected nil for no commands, got %v", got)
	}
}

func TestBuildLowCoresClampedToOne(t *testing.T) {
	cmd := Command{Tool: &tool.Tool{Granularity: tool.Individual}, Files: files(1, 2, 3, 4)}
	got := Build([]Command{cmd}, 0, false)
	if len(got) != 1 {
		t.Fatalf("expected cores<1 to clamp to 1 (single batch), got %d commands", len(got))
	}
}
