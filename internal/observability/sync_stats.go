// Package observability provides counters for cache synchronization passes,
// used for logging and for asserting I/O minimality in tests.
package observability

import (
	"fmt"
	"sync"
)

// SyncStats tracks what one synchronization pass actually did: how many
// units the walk yielded, how many records were decoded, and how many reads
// the incremental diff avoided.
type SyncStats struct {
	mu sync.Mutex

	unitsWalked         int64
	metadataDecoded     int64
	metadataSkipped     int64
	measurementsDecoded int64
	measurementsSkipped int64
	walkErrors          int64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	UnitsWalked         int64
	MetadataDecoded     int64
	MetadataSkipped     int64
	MeasurementsDecoded int64
	MeasurementsSkipped int64
	WalkErrors          int64
}

// NewSyncStats creates a zeroed counter set.
func NewSyncStats() *SyncStats {
	return &SyncStats{}
}

// AddUnit records one benchmark unit yielded by the walk.
func (s *SyncStats) AddUnit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unitsWalked++
}

// AddMetadataDecoded records one metadata file read and decoded.
func (s *SyncStats) AddMetadataDecoded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadataDecoded++
}

// AddMetadataSkipped records one metadata file left unread because its
// modification time was not newer than the persisted one.
func (s *SyncStats) AddMetadataSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadataSkipped++
}

// AddMeasurementDecoded records one measurement file read and decoded.
func (s *SyncStats) AddMeasurementDecoded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measurementsDecoded++
}

// AddMeasurementSkipped records one measurement file left unread because it
// was already present in the persisted index.
func (s *SyncStats) AddMeasurementSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.measurementsSkipped++
}

// AddWalkError records one error item surfaced by the walk.
func (s *SyncStats) AddWalkError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.walkErrors++
}

// Snapshot returns a copy of the current counters.
func (s *SyncStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		UnitsWalked:         s.unitsWalked,
		MetadataDecoded:     s.metadataDecoded,
		MetadataSkipped:     s.metadataSkipped,
		MeasurementsDecoded: s.measurementsDecoded,
		MeasurementsSkipped: s.measurementsSkipped,
		WalkErrors:          s.walkErrors,
	}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("units=%d metadata decoded=%d skipped=%d measurements decoded=%d skipped=%d walk errors=%d",
		s.UnitsWalked, s.MetadataDecoded, s.MetadataSkipped,
		s.MeasurementsDecoded, s.MeasurementsSkipped, s.WalkErrors)
}
