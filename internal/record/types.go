// Package record reads and validates the CBOR records written by
// cargo-criterion: one benchmark.cbor metadata record per benchmark
// directory, plus one measurement_<datetime>.cbor record per recorded run.
//
// The package decodes bytes into structured records and checks the records'
// structural invariants. It does not validate or recompute the statistical
// content of a measurement.
package record

import (
	"path/filepath"
	"time"

	"github.com/critdex/critdex/internal/identity"
)

// MetadataFileName is the literal name of the per-benchmark metadata file.
const MetadataFileName = "benchmark.cbor"

const (
	// measurementPrefix and measurementExt delimit the local timestamp
	// embedded in a measurement file name.
	measurementPrefix = "measurement_"
	measurementExt    = ".cbor"

	// measurementTimeLayout is the %y%m%d%H%M%S timestamp format the tool
	// embeds in measurement file names. The names sort chronologically and
	// always sort before MetadataFileName.
	measurementTimeLayout = "060102150405"
)

// Metadata is the content of a benchmark.cbor file.
type Metadata struct {
	// ID uniquely identifies the benchmark. See identity.Decode.
	ID identity.RawIdentity `cbor:"id"`

	// LatestRecord is the path of the most recent measurement file.
	LatestRecord string `cbor:"latest_record"`
}

// LatestLocalTime returns the local timestamp embedded in the latest
// measurement's file name. Individual measurement files carry a more precise
// UTC timestamp in their datetime field.
func (m *Metadata) LatestLocalTime() (time.Time, error) {
	return ParseMeasurementTime(filepath.Base(m.LatestRecord))
}

// Measurement is the content of one measurement_<datetime>.cbor file.
type Measurement struct {
	// Datetime is when the measurement was saved.
	Datetime time.Time `cbor:"datetime"`

	// Iterations is the number of iterations in each sample.
	Iterations []float64 `cbor:"iterations"`

	// Values is the measured value of each sample.
	Values []float64 `cbor:"values"`

	// AvgValues is Values[i] / Iterations[i] for each sample.
	AvgValues []float64 `cbor:"avg_values"`

	// Estimates holds the statistical estimates from this run.
	Estimates Estimates `cbor:"estimates"`

	// Throughput of this run, if declared.
	Throughput *identity.Throughput `cbor:"throughput"`

	// Changes holds the statistical differences against the previous run,
	// precomputed by the tool for its history report.
	Changes *ChangeEstimates `cbor:"changes"`

	// ChangeDirection states whether the change, if any, was significant.
	// Present exactly when Changes is present.
	ChangeDirection *ChangeDirection `cbor:"change_direction"`

	// HistoryID is an optional user-provided identifier, e.g. a commit ID.
	HistoryID *string `cbor:"history_id"`

	// HistoryDescription is an optional user-provided description, e.g. a
	// commit message.
	HistoryDescription *string `cbor:"history_description"`
}

// Estimates holds the statistical estimates for a benchmark's iteration time.
type Estimates struct {
	Mean         Estimate  `cbor:"mean"`
	Median       Estimate  `cbor:"median"`
	MedianAbsDev Estimate  `cbor:"median_abs_dev"`
	Slope        *Estimate `cbor:"slope"`
	StdDev       Estimate  `cbor:"std_dev"`
}

// ChangeEstimates holds the estimated change of iteration time across runs.
type ChangeEstimates struct {
	Mean   Estimate `cbor:"mean"`
	Median Estimate `cbor:"median"`
}

// Estimate is a statistical estimate of some quantity.
type Estimate struct {
	ConfidenceInterval ConfidenceInterval `cbor:"confidence_interval"`
	PointEstimate      float64            `cbor:"point_estimate"`
	StandardError      float64            `cbor:"standard_error"`
}

// ConfidenceInterval is the confidence interval of an Estimate.
type ConfidenceInterval struct {
	ConfidenceLevel float64 `cbor:"confidence_level"`
	LowerBound      float64 `cbor:"lower_bound"`
	UpperBound      float64 `cbor:"upper_bound"`
}

// ChangeDirection classifies the change detected across benchmark runs.
// On the wire it is serde's unit-variant string encoding.
type ChangeDirection string

const (
	NoChange       ChangeDirection = "NoChange"
	NotSignificant ChangeDirection = "NotSignificant"
	Improved       ChangeDirection = "Improved"
	Regressed      ChangeDirection = "Regressed"
)

// Valid reports whether d is one of the four known directions.
func (d ChangeDirection) Valid() bool {
	switch d {
	case NoChange, NotSignificant, Improved, Regressed:
		return true
	}
	return false
}
