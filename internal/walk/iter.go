package walk

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/critdex/critdex/internal/errors"
	"github.com/critdex/critdex/internal/record"
)

// FileRef locates one data file that belongs to a benchmark unit.
type FileRef struct {
	// Name is the file's base name.
	Name string

	// Path is the file's full path.
	Path string

	// ModTime is the file's last modification time as observed by the walk.
	ModTime time.Time
}

// Unit is one leaf of the data tree: a metadata file plus the measurement
// files recorded next to it.
type Unit struct {
	// RelativePath locates the unit's directory below the data root.
	RelativePath string

	// Metadata references the unit's benchmark.cbor file.
	Metadata FileRef

	// Measurements references the unit's measurement files, newest first.
	Measurements []FileRef
}

// pendItem is the iterator's one-entry lookahead slot. Holding the buffered
// item explicitly keeps the grouping transitions below testable without a
// language-level peekable iterator.
type pendItem struct {
	entry Entry
	err   error
	ok    bool
}

// Iter groups the entry stream into benchmark units.
//
// Next returns either a unit, or an error item concerning one entry or one
// unit, or io.EOF once the walk is exhausted. An error item does not end the
// iteration: callers decide whether to skip and continue or to abort.
type Iter struct {
	dataRoot string
	stream   *entryStream
	pend     *pendItem

	// files accumulates the files seen so far in the current leaf directory.
	files []Entry

	// noData short-circuits the whole iteration when the data root does not
	// exist. Having no recorded benchmarks yet is normal, not an error.
	noData bool
}

// Next returns the next benchmark unit or error item, or io.EOF at the end
// of the walk. No I/O happens between calls.
func (it *Iter) Next() (*Unit, error) {
	if it.noData {
		return nil, io.EOF
	}

	for {
		if it.pend == nil {
			e, err, ok := it.stream.next()
			it.pend = &pendItem{entry: e, err: err, ok: ok}
		}

		// Exhausted: flush whatever the accumulator holds, then report EOF.
		if !it.pend.ok {
			if len(it.files) > 0 {
				return it.flush()
			}
			return nil, io.EOF
		}

		// Forward per-entry errors as one item without ending the walk.
		if it.pend.err != nil {
			err := it.pend.err
			it.pend = nil
			return nil, err
		}

		e := it.pend.entry

		if len(it.files) > 0 {
			last := it.files[len(it.files)-1]
			if !e.IsDir && e.Depth == last.Depth && filepath.Dir(e.Path) == filepath.Dir(last.Path) {
				// Same benchmark directory: keep accumulating.
				it.pend = nil
				it.files = append(it.files, e)
				continue
			}
			// Different parent, different depth, or a directory: the current
			// leaf is complete. The pending entry stays buffered for the
			// next call.
			return it.flush()
		}

		// Accumulator empty: commit to consuming the entry. A file starts a
		// new benchmark; a directory was already scheduled for descent by
		// the stream and produces nothing by itself.
		it.pend = nil
		if !e.IsDir {
			it.files = append(it.files, e)
		}
	}
}

// flush turns the accumulated files into one Unit. The entry ordering
// guarantees that the last accumulated file is the metadata file and the
// preceding ones are measurements, newest first.
func (it *Iter) flush() (*Unit, error) {
	files := it.files
	it.files = nil

	metadata := files[len(files)-1]
	measurements := files[:len(files)-1]

	if metadata.Name != record.MetadataFileName {
		return nil, errors.NewLayoutError(errors.CodeUnexpectedFileName,
			fmt.Sprintf("unexpected file %s in benchmark data directory", metadata.Path))
	}
	if len(measurements) == 0 {
		return nil, errors.NewLayoutError(errors.CodeNoMeasurements,
			fmt.Sprintf("benchmark directory %s has metadata but no measurements", filepath.Dir(metadata.Path)))
	}

	unit := &Unit{Metadata: fileRef(metadata)}
	for _, m := range measurements {
		if !record.IsMeasurementFileName(m.Name) {
			return nil, errors.NewLayoutError(errors.CodeUnexpectedFileName,
				fmt.Sprintf("unexpected file %s in benchmark data directory", m.Path))
		}
		unit.Measurements = append(unit.Measurements, fileRef(m))
	}

	rel, err := filepath.Rel(it.dataRoot, filepath.Dir(metadata.Path))
	if err != nil {
		return nil, errors.NewLayoutError(errors.CodeUnexpectedFileName,
			fmt.Sprintf("benchmark directory %s lies outside the data root", filepath.Dir(metadata.Path)))
	}
	unit.RelativePath = rel
	return unit, nil
}

func fileRef(e Entry) FileRef {
	return FileRef{Name: e.Name, Path: e.Path, ModTime: e.ModTime}
}
