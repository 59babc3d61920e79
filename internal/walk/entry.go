package walk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/critdex/critdex/internal/errors"
)

// Entry is one filesystem entry observed during the ordered walk.
type Entry struct {
	// Name is the entry's base name.
	Name string

	// Path is the entry's full path.
	Path string

	// Depth below the data root; the root's immediate children have depth 1.
	Depth int

	// IsDir distinguishes directories from regular files. The data tree
	// contains nothing else.
	IsDir bool

	// ModTime is the entry's last modification time.
	ModTime time.Time
}

// Dir is the read-only view of a data subdirectory handed to directory
// filters before the walk descends into it.
type Dir struct {
	// Name of the directory, without the path leading to it.
	Name string

	// Depth below the data root (top-level data directories have depth 1).
	Depth int

	// RelativePath from the data root to this directory.
	RelativePath string
}

// DirFilter decides, once per subdirectory and before descending into it,
// whether a branch of the walk should be visited. Files are never filtered.
type DirFilter func(Dir) bool

// dirFrame is one directory on the traversal stack. Its entries are listed
// lazily, in a single ReadDir call, the first time the frame is inspected.
type dirFrame struct {
	path    string
	depth   int
	listed  bool
	pending []Entry
}

// entryStream drives a depth-first walk of the data root, emitting entries
// in the order the grouper depends on: within each directory all files
// before any subdirectory, files in descending name order, subdirectories in
// ascending name order.
type entryStream struct {
	dataRoot string
	stack    []*dirFrame
	filter   DirFilter
}

func newEntryStream(dataRoot string, filter DirFilter) *entryStream {
	return &entryStream{
		dataRoot: dataRoot,
		stack:    []*dirFrame{{path: dataRoot, depth: 0}},
		filter:   filter,
	}
}

// next returns the next entry in walk order. It reports ok=false once the
// walk is exhausted. A non-nil error is an item in the stream: it concerns
// one directory listing, and the walk continues past it on the next call.
func (s *entryStream) next() (Entry, error, bool) {
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		if !top.listed {
			top.listed = true
			entries, err := listDir(top.path, top.depth)
			if err != nil {
				s.stack = s.stack[:len(s.stack)-1]
				return Entry{}, err, true
			}
			top.pending = entries
		}
		if len(top.pending) == 0 {
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}
		e := top.pending[0]
		top.pending = top.pending[1:]
		if e.IsDir {
			if s.filter != nil && !s.filter(s.dirView(e)) {
				continue
			}
			s.stack = append(s.stack, &dirFrame{path: e.Path, depth: e.Depth})
		}
		return e, nil, true
	}
	return Entry{}, nil, false
}

func (s *entryStream) dirView(e Entry) Dir {
	rel, err := filepath.Rel(s.dataRoot, e.Path)
	if err != nil {
		rel = e.Name
	}
	return Dir{Name: e.Name, Depth: e.Depth, RelativePath: rel}
}

// listDir lists one directory and returns its entries in walk order. Every
// entry is validated against the layout contract: symlinks and entries that
// are neither files nor directories indicate a corrupted data tree.
func listDir(path string, depth int) ([]Entry, error) {
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.NewIOError(errors.CodeReadDir, fmt.Sprintf("listing %s", path), err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		mode := de.Type()
		if mode&fs.ModeSymlink != 0 {
			return nil, errors.NewLayoutError(errors.CodeSymlink,
				fmt.Sprintf("symlink %s in benchmark data directory", filepath.Join(path, de.Name())))
		}
		if !mode.IsRegular() && !mode.IsDir() {
			return nil, errors.NewLayoutError(errors.CodeUnexpectedKind,
				fmt.Sprintf("entry %s is neither a file nor a directory", filepath.Join(path, de.Name())))
		}
		info, err := de.Info()
		if err != nil {
			return nil, errors.NewIOError(errors.CodeStat, fmt.Sprintf("stat %s", filepath.Join(path, de.Name())), err)
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(path, de.Name()),
			Depth:   depth + 1,
			IsDir:   mode.IsDir(),
			ModTime: info.ModTime(),
		})
	}

	// Files before directories; files in descending name order so that the
	// timestamped measurement files come newest first and the metadata file,
	// whose literal name sorts after all of them, comes last; directories in
	// ascending name order.
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case !a.IsDir && b.IsDir:
			return true
		case a.IsDir && !b.IsDir:
			return false
		case !a.IsDir:
			return a.Name > b.Name
		default:
			return a.Name < b.Name
		}
	})
	return entries, nil
}
