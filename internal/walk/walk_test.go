package walk

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/critdex/critdex/internal/errors"
)

// writeBenchmarkDir populates one leaf directory with a metadata file and the
// given measurement files. The file contents are irrelevant to the walk.
func writeBenchmarkDir(t *testing.T, root, rel string, measurements ...string) {
	t.Helper()
	dir := filepath.Join(root, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", dir, err)
	}
	files := append([]string{"benchmark.cbor"}, measurements...)
	for _, name := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// collect drains the iterator, returning units and error items in the order
// they were yielded.
func collect(t *testing.T, it *Iter) ([]*Unit, []error) {
	t.Helper()
	var units []*Unit
	var errs []error
	for {
		unit, err := it.Next()
		if err == io.EOF {
			return units, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		units = append(units, unit)
	}
}

func TestUnits_GroupingAndOrder(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha",
		"measurement_240101000000.cbor",
		"measurement_240102000000.cbor")
	writeBenchmarkDir(t, root, "group/a", "measurement_240103000000.cbor")
	writeBenchmarkDir(t, root, "group/b", "measurement_240104000000.cbor")

	units, errs := collect(t, NewSearch(root).Units())
	if len(errs) != 0 {
		t.Fatalf("unexpected error items: %v", errs)
	}

	var paths []string
	for _, u := range units {
		paths = append(paths, u.RelativePath)
	}
	want := []string{"alpha", filepath.Join("group", "a"), filepath.Join("group", "b")}
	if len(paths) != len(want) {
		t.Fatalf("unit paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("unit paths = %v, want %v", paths, want)
		}
	}

	// Measurements come newest first; measurement file names sort
	// chronologically.
	alpha := units[0]
	if alpha.Metadata.Name != "benchmark.cbor" {
		t.Errorf("metadata file = %s", alpha.Metadata.Name)
	}
	if len(alpha.Measurements) != 2 {
		t.Fatalf("alpha has %d measurements, want 2", len(alpha.Measurements))
	}
	if alpha.Measurements[0].Name != "measurement_240102000000.cbor" ||
		alpha.Measurements[1].Name != "measurement_240101000000.cbor" {
		t.Errorf("measurements not newest first: %s, %s",
			alpha.Measurements[0].Name, alpha.Measurements[1].Name)
	}
}

func TestUnits_RepeatedWalksAgree(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha",
		"measurement_240101000000.cbor",
		"measurement_240102000000.cbor")
	writeBenchmarkDir(t, root, "group/a", "measurement_240103000000.cbor")

	search := NewSearch(root)
	first, errs1 := collect(t, search.Units())
	second, errs2 := collect(t, search.Units())
	if len(errs1) != 0 || len(errs2) != 0 {
		t.Fatalf("unexpected error items: %v / %v", errs1, errs2)
	}
	if len(first) != len(second) {
		t.Fatalf("walks yielded %d and %d units", len(first), len(second))
	}
	for i := range first {
		if first[i].RelativePath != second[i].RelativePath {
			t.Errorf("unit %d: %s vs %s", i, first[i].RelativePath, second[i].RelativePath)
		}
		if len(first[i].Measurements) != len(second[i].Measurements) {
			t.Errorf("unit %d measurement counts differ", i)
			continue
		}
		for j := range first[i].Measurements {
			if first[i].Measurements[j].Name != second[i].Measurements[j].Name {
				t.Errorf("unit %d measurement %d: %s vs %s", i, j,
					first[i].Measurements[j].Name, second[i].Measurements[j].Name)
			}
		}
	}
}

func TestUnits_ModTimePropagates(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha", "measurement_240101000000.cbor")

	stamp := time.Date(2024, 3, 1, 10, 0, 0, 0, time.Local)
	meta := filepath.Join(root, "alpha", "benchmark.cbor")
	if err := os.Chtimes(meta, stamp, stamp); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	units, errs := collect(t, NewSearch(root).Units())
	if len(errs) != 0 || len(units) != 1 {
		t.Fatalf("units = %d, errors = %v", len(units), errs)
	}
	if !units[0].Metadata.ModTime.Equal(stamp) {
		t.Errorf("metadata mtime = %v, want %v", units[0].Metadata.ModTime, stamp)
	}
}

func TestUnits_MissingRootIsEmpty(t *testing.T) {
	it := NewSearch(filepath.Join(t.TempDir(), "does-not-exist")).Units()
	if _, err := it.Next(); err != io.EOF {
		t.Errorf("Next on a missing root = %v, want io.EOF", err)
	}
}

func TestUnits_EmptyRootIsEmpty(t *testing.T) {
	units, errs := collect(t, NewSearch(t.TempDir()).Units())
	if len(units) != 0 || len(errs) != 0 {
		t.Errorf("empty root yielded %d units, %v errors", len(units), errs)
	}
}

func TestUnits_FilterPrunesBranches(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "keep/a", "measurement_240101000000.cbor")
	writeBenchmarkDir(t, root, "skip/b", "measurement_240102000000.cbor")

	search := NewSearch(root).FilterDirs(func(d Dir) bool {
		return d.Depth > 1 || d.Name == "keep"
	})
	units, errs := collect(t, search.Units())
	if len(errs) != 0 {
		t.Fatalf("unexpected error items: %v", errs)
	}
	if len(units) != 1 || units[0].RelativePath != filepath.Join("keep", "a") {
		t.Errorf("filtered units = %+v, want keep/a only", units)
	}
}

func TestUnits_StrayFileName(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha", "measurement_240101000000.cbor")
	if err := os.WriteFile(filepath.Join(root, "alpha", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write stray file: %v", err)
	}

	units, errs := collect(t, NewSearch(root).Units())
	if len(units) != 0 {
		t.Errorf("expected no units, got %d", len(units))
	}
	if len(errs) != 1 || errors.GetCode(errs[0]) != errors.CodeUnexpectedFileName {
		t.Errorf("errors = %v, want one %s", errs, errors.CodeUnexpectedFileName)
	}
}

func TestUnits_MetadataWithoutMeasurements(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha")

	units, errs := collect(t, NewSearch(root).Units())
	if len(units) != 0 {
		t.Errorf("expected no units, got %d", len(units))
	}
	if len(errs) != 1 || errors.GetCode(errs[0]) != errors.CodeNoMeasurements {
		t.Errorf("errors = %v, want one %s", errs, errors.CodeNoMeasurements)
	}
}

func TestUnits_SymlinkIsLayoutError(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha", "measurement_240101000000.cbor")
	writeBenchmarkDir(t, root, "beta", "measurement_240102000000.cbor")
	link := filepath.Join(root, "beta", "link.cbor")
	if err := os.Symlink(filepath.Join(root, "alpha", "benchmark.cbor"), link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	units, errs := collect(t, NewSearch(root).Units())
	// The walk surfaces the corrupted directory as an error item and
	// continues past it: alpha still comes through intact.
	if len(units) != 1 || units[0].RelativePath != "alpha" {
		t.Errorf("units = %+v, want alpha only", units)
	}
	if len(errs) != 1 || errors.GetCode(errs[0]) != errors.CodeSymlink {
		t.Errorf("errors = %v, want one %s", errs, errors.CodeSymlink)
	}
}

func TestUnits_ErrorItemDoesNotEndWalk(t *testing.T) {
	root := t.TempDir()
	writeBenchmarkDir(t, root, "alpha") // metadata without measurements
	writeBenchmarkDir(t, root, "beta", "measurement_240101000000.cbor")

	units, errs := collect(t, NewSearch(root).Units())
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	if len(units) != 1 || units[0].RelativePath != "beta" {
		t.Errorf("units = %+v, want beta after the alpha error", units)
	}
}
