// Package walk discovers cargo-criterion benchmark data on disk.
//
// The tool records results as a filesystem tree: nested directories encode a
// benchmark's group/function/parameter identity, and each leaf directory
// holds one benchmark.cbor metadata file plus timestamped measurement files.
// A Search drives one ordered, lazy, single-pass traversal of that tree and
// groups sibling files into benchmark units.
package walk

import (
	"os"

	"github.com/critdex/critdex/internal/config"
)

// Search enumerates the benchmark data below one data root.
type Search struct {
	dataRoot string
	filter   DirFilter
}

// NewSearch prepares a search of the given data root. The root not existing
// is not an error; the resulting walks are simply empty.
func NewSearch(dataRoot string) *Search {
	return &Search{dataRoot: dataRoot}
}

// InProject prepares a search of the configured project's data root,
// <project-root>/<build-dir>/<tool>/data/<timeline>.
func InProject(cfg *config.Config) *Search {
	return NewSearch(cfg.DataRoot())
}

// DataRoot returns the root directory this search walks.
func (s *Search) DataRoot() string {
	return s.dataRoot
}

// FilterDirs restricts the walk to directory branches accepted by the
// filter. The filter runs once per subdirectory, before the walk descends
// into it, so whole branches are pruned as early as possible. To select data
// under a/b/c only, accept `a` at depth 1, `b` at depth 2 and `c` at depth 3.
func (s *Search) FilterDirs(filter DirFilter) *Search {
	s.filter = filter
	return s
}

// Units starts a fresh lazy iteration over the benchmark units below the
// data root. Each call walks the tree once from the beginning; no I/O
// happens before the first Next call or between Next calls.
func (s *Search) Units() *Iter {
	_, err := os.Stat(s.dataRoot)
	return &Iter{
		dataRoot: s.dataRoot,
		stream:   newEntryStream(s.dataRoot, s.filter),
		noData:   os.IsNotExist(err),
	}
}
