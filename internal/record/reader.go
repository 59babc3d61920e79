package record

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/critdex/critdex/internal/errors"
)

// Decoder turns raw record bytes into structured records. The production
// implementation is CBORDecoder; tests substitute counting or failing
// decoders to observe exactly which files a caller reads.
type Decoder interface {
	DecodeMetadata(data []byte) (*Metadata, error)
	DecodeMeasurement(data []byte) (*Measurement, error)
}

// CBORDecoder decodes records with the standard CBOR codec.
type CBORDecoder struct{}

// DecodeMetadata decodes a benchmark.cbor payload.
func (CBORDecoder) DecodeMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, errors.NewDecodeError(errors.CodeBadCBOR, "metadata record", err)
	}
	return &m, nil
}

// DecodeMeasurement decodes a measurement_<datetime>.cbor payload.
func (CBORDecoder) DecodeMeasurement(data []byte) (*Measurement, error) {
	var m Measurement
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, errors.NewDecodeError(errors.CodeBadCBOR, "measurement record", err)
	}
	return &m, nil
}

// Reader reads record files through a Decoder and enforces structural
// invariants on the result.
type Reader struct {
	Dec Decoder
}

// NewReader returns a Reader backed by the standard CBOR decoder.
func NewReader() *Reader {
	return &Reader{Dec: CBORDecoder{}}
}

// ReadMetadata reads and decodes one benchmark.cbor file.
func (r *Reader) ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.CodeReadFile, fmt.Sprintf("reading metadata %s", path), err)
	}
	m, err := r.Dec.DecodeMetadata(data)
	if err != nil {
		return nil, err
	}
	if m.LatestRecord == "" {
		return nil, errors.NewDecodeError(errors.CodeBadRecord,
			fmt.Sprintf("metadata %s has an empty latest_record pointer", path), nil)
	}
	return m, nil
}

// ReadMeasurement reads, decodes and validates one measurement file.
// The returned raw bytes let callers fingerprint the file without a second
// read.
func (r *Reader) ReadMeasurement(path string) (*Measurement, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.NewIOError(errors.CodeReadFile, fmt.Sprintf("reading measurement %s", path), err)
	}
	m, err := r.Dec.DecodeMeasurement(data)
	if err != nil {
		return nil, nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, nil, errors.NewDecodeError(errors.CodeBadRecord,
			fmt.Sprintf("measurement %s", path), err)
	}
	return m, data, nil
}

// Validate checks the structural invariants of a decoded measurement: sample
// arrays of equal length, whole non-negative iteration counts, averages that
// agree with values/iterations, and changes paired with a change direction.
func (m *Measurement) Validate() error {
	n := len(m.Iterations)
	if len(m.Values) != n || len(m.AvgValues) != n {
		return fmt.Errorf("sample arrays disagree: %d iterations, %d values, %d avg_values",
			n, len(m.Values), len(m.AvgValues))
	}
	for i, iters := range m.Iterations {
		if iters < 0 || iters != math.Trunc(iters) {
			return fmt.Errorf("iteration count %v at sample %d is not a non-negative whole number", iters, i)
		}
		if m.AvgValues[i] != m.Values[i]/iters {
			return fmt.Errorf("avg_values[%d] = %v does not equal values[%d]/iterations[%d] = %v",
				i, m.AvgValues[i], i, i, m.Values[i]/iters)
		}
	}
	if (m.Changes == nil) != (m.ChangeDirection == nil) {
		return fmt.Errorf("changes and change_direction must be present together")
	}
	if m.ChangeDirection != nil && !m.ChangeDirection.Valid() {
		return fmt.Errorf("unknown change direction %q", *m.ChangeDirection)
	}
	return nil
}

// IsMeasurementFileName reports whether name matches the strict
// measurement_<timestamp>.cbor pattern.
func IsMeasurementFileName(name string) bool {
	_, err := ParseMeasurementTime(name)
	return err == nil
}

// ParseMeasurementTime extracts the local timestamp embedded in a
// measurement file name.
func ParseMeasurementTime(name string) (time.Time, error) {
	stamp, ok := strings.CutPrefix(name, measurementPrefix)
	if !ok {
		return time.Time{}, errors.NewDecodeError(errors.CodeBadTimestamp,
			fmt.Sprintf("file name %q does not start with %q", name, measurementPrefix), nil)
	}
	stamp, ok = strings.CutSuffix(stamp, measurementExt)
	if !ok {
		return time.Time{}, errors.NewDecodeError(errors.CodeBadTimestamp,
			fmt.Sprintf("file name %q does not end with %q", name, measurementExt), nil)
	}
	t, err := time.ParseInLocation(measurementTimeLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, errors.NewDecodeError(errors.CodeBadTimestamp,
			fmt.Sprintf("file name %q carries a malformed timestamp", name), err)
	}
	return t, nil
}
