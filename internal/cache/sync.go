package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/critdex/critdex/internal/errors"
	"github.com/critdex/critdex/internal/observability"
	"github.com/critdex/critdex/internal/record"
	"github.com/critdex/critdex/internal/walk"
)

// Synchronizer diffs the filesystem state yielded by a walk against the
// store's persisted snapshot and applies the minimum necessary upserts.
//
// One pass assumes exclusive ownership of the data tree (read-only) and the
// store (read-write). There is no partial-success contract: any failure while
// processing one benchmark unit aborts the pass, leaving units processed so
// far committed and the rest untouched. Synchronization is atomic per unit,
// not across units.
type Synchronizer struct {
	store  *SQLiteStore
	reader *record.Reader
	stats  *observability.SyncStats
}

// NewSynchronizer creates a synchronizer for the given store, reading
// records with the standard CBOR decoder.
func NewSynchronizer(store *SQLiteStore) *Synchronizer {
	return &Synchronizer{
		store:  store,
		reader: record.NewReader(),
		stats:  observability.NewSyncStats(),
	}
}

// WithReader substitutes the record reader. Tests use counting readers to
// assert that unchanged files are never re-read.
func (s *Synchronizer) WithReader(r *record.Reader) *Synchronizer {
	s.reader = r
	return s
}

// Stats returns a snapshot of what the synchronizer has done so far.
func (s *Synchronizer) Stats() observability.Snapshot {
	return s.stats.Snapshot()
}

// Sync brings the store up to date with the benchmark data reachable by the
// search. It loads the persisted index once, walks the tree once, and reads
// only metadata files whose modification time is strictly newer than the
// recorded one plus measurement files not yet known. A data root that does
// not exist yet yields an empty walk and an immediately successful pass.
//
// Returns the pass ID recorded in the sync_pass audit table.
func (s *Synchronizer) Sync(ctx context.Context, search *walk.Search) (string, error) {
	idx, err := s.store.loadIndex(ctx)
	if err != nil {
		return "", errors.NewCacheError(errors.CodeSyncAbort, "loading persisted index", err)
	}

	passID := uuid.NewString()
	if err := s.store.recordSyncPassStart(ctx, passID, time.Now()); err != nil {
		return "", errors.NewCacheError(errors.CodeSyncAbort, "recording sync pass", err)
	}

	var benchmarksSeen, measurementsAdded int64
	it := search.Units()
	for {
		unit, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// The walk itself could continue past this item, but the cache
			// offers no partial-success contract.
			s.stats.AddWalkError()
			return "", errors.NewCacheError(errors.CodeSyncAbort, "walking benchmark data", err)
		}
		added, err := s.syncUnit(ctx, idx, unit)
		if err != nil {
			return "", errors.NewCacheError(errors.CodeSyncAbort,
				fmt.Sprintf("synchronizing benchmark %s", unit.RelativePath), err)
		}
		benchmarksSeen++
		measurementsAdded += added
	}

	if err := s.store.recordSyncPassEnd(ctx, passID, time.Now(), benchmarksSeen, measurementsAdded); err != nil {
		return "", errors.NewCacheError(errors.CodeSyncAbort, "finalizing sync pass", err)
	}
	return passID, nil
}

// syncUnit applies one benchmark unit to the store inside a single
// transaction.
func (s *Synchronizer) syncUnit(ctx context.Context, idx *persistedIndex, unit *walk.Unit) (int64, error) {
	s.stats.AddUnit()

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("cache: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// An unknown path gets a fresh benchmark row. A known path is re-read
	// only when the metadata file's current modification time is strictly
	// newer than the recorded one: the tool rewrites benchmark.cbor in place
	// after each run, so estimates and identity may change. Equal times
	// count as unchanged.
	recordedMtime, seen := idx.modified[unit.RelativePath]
	if !seen || unit.Metadata.ModTime.After(recordedMtime) {
		meta, err := s.reader.ReadMetadata(unit.Metadata.Path)
		if err != nil {
			return 0, err
		}
		s.stats.AddMetadataDecoded()
		row := &BenchmarkRow{
			RelativePath: unit.RelativePath,
			Identity:     meta.ID,
			Modified:     unit.Metadata.ModTime,
			LatestRecord: meta.LatestRecord,
		}
		if err := s.store.upsertBenchmarkTx(ctx, tx, row); err != nil {
			return 0, err
		}
	} else {
		s.stats.AddMetadataSkipped()
	}

	// Measurement files are immutable once written, so known file IDs are
	// never re-read and rows are only ever appended.
	var added int64
	for _, ref := range unit.Measurements {
		if idx.knows(unit.RelativePath, ref.Name) {
			s.stats.AddMeasurementSkipped()
			continue
		}
		meas, raw, err := s.reader.ReadMeasurement(ref.Path)
		if err != nil {
			return 0, err
		}
		s.stats.AddMeasurementDecoded()
		row := &MeasurementRow{
			RelativePath:       unit.RelativePath,
			FileID:             ref.Name,
			Datetime:           meas.Datetime,
			Iterations:         meas.Iterations,
			Values:             meas.Values,
			AvgValues:          meas.AvgValues,
			Estimates:          meas.Estimates,
			Throughput:         meas.Throughput,
			Changes:            meas.Changes,
			ChangeDirection:    meas.ChangeDirection,
			HistoryID:          meas.HistoryID,
			HistoryDescription: meas.HistoryDescription,
			Fingerprint:        Fingerprint(raw),
		}
		if err := s.store.insertMeasurementTx(ctx, tx, row); err != nil {
			return 0, err
		}
		added++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("cache: failed to commit unit: %w", err)
	}
	return added, nil
}
