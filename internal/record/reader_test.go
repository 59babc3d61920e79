package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/critdex/critdex/internal/errors"
	"github.com/critdex/critdex/internal/identity"
)

func TestParseMeasurementTime(t *testing.T) {
	got, err := ParseMeasurementTime("measurement_241015134502.cbor")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	want := time.Date(2024, 10, 15, 13, 45, 2, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("parsed time = %v, want %v", got, want)
	}
}

func TestParseMeasurementTime_Rejects(t *testing.T) {
	tests := []string{
		"benchmark.cbor",
		"measurement_241015134502",
		"measurement_241015134502.json",
		"measurement_.cbor",
		"measurement_2410151345.cbor",
		"measurement_24101513450x.cbor",
		"measurement_241315134502.cbor", // month 13
		"Measurement_241015134502.cbor",
	}
	for _, name := range tests {
		if _, err := ParseMeasurementTime(name); err == nil {
			t.Errorf("ParseMeasurementTime(%q) succeeded, want error", name)
		}
		if IsMeasurementFileName(name) {
			t.Errorf("IsMeasurementFileName(%q) = true, want false", name)
		}
	}
}

// validMeasurement builds a measurement whose samples satisfy the structural
// invariants exactly: avg values are computed as values/iterations.
func validMeasurement() *Measurement {
	return &Measurement{
		Datetime:   time.Date(2024, 10, 15, 11, 45, 2, 0, time.UTC),
		Iterations: []float64{1, 2, 4},
		Values:     []float64{10, 30, 100},
		AvgValues:  []float64{10, 15, 25},
		Estimates: Estimates{
			Mean:   Estimate{PointEstimate: 16.5},
			Median: Estimate{PointEstimate: 15},
		},
	}
}

func TestMeasurement_Validate(t *testing.T) {
	improved := Improved
	bogus := ChangeDirection("Sideways")

	tests := []struct {
		name   string
		mutate func(*Measurement)
		ok     bool
	}{
		{"valid", func(*Measurement) {}, true},
		{"length mismatch", func(m *Measurement) { m.Values = m.Values[:2] }, false},
		{"fractional iterations", func(m *Measurement) { m.Iterations[1] = 2.5 }, false},
		{"negative iterations", func(m *Measurement) { m.Iterations[0] = -1 }, false},
		{"avg disagrees", func(m *Measurement) { m.AvgValues[2] = 26 }, false},
		{"changes without direction", func(m *Measurement) { m.Changes = &ChangeEstimates{} }, false},
		{"direction without changes", func(m *Measurement) { m.ChangeDirection = &improved }, false},
		{"changes with direction", func(m *Measurement) {
			m.Changes = &ChangeEstimates{}
			m.ChangeDirection = &improved
		}, true},
		{"unknown direction", func(m *Measurement) {
			m.Changes = &ChangeEstimates{}
			m.ChangeDirection = &bogus
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMeasurement()
			tt.mutate(m)
			err := m.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate failed: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func writeCBOR(t *testing.T, path string, v any) {
	t.Helper()
	data, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
}

func TestReader_ReadMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MetadataFileName)
	fn := "sha256"
	writeCBOR(t, path, &Metadata{
		ID: identity.RawIdentity{
			GroupOrFunctionID: "hashes",
			FunctionIDInGroup: &fn,
			Throughput:        &identity.Throughput{Unit: identity.ThroughputBytes, Amount: 16384},
		},
		LatestRecord: "data/main/hashes/sha256/measurement_241015134502.cbor",
	})

	meta, err := NewReader().ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata failed: %v", err)
	}
	if meta.ID.GroupOrFunctionID != "hashes" {
		t.Errorf("group_id = %q, want hashes", meta.ID.GroupOrFunctionID)
	}
	if meta.ID.FunctionIDInGroup == nil || *meta.ID.FunctionIDInGroup != "sha256" {
		t.Errorf("function_id = %v, want sha256", meta.ID.FunctionIDInGroup)
	}
	if !meta.ID.Throughput.Equal(&identity.Throughput{Unit: identity.ThroughputBytes, Amount: 16384}) {
		t.Errorf("throughput = %v, want 16384 Bytes", meta.ID.Throughput)
	}

	local, err := meta.LatestLocalTime()
	if err != nil {
		t.Fatalf("LatestLocalTime failed: %v", err)
	}
	want := time.Date(2024, 10, 15, 13, 45, 2, 0, time.Local)
	if !local.Equal(want) {
		t.Errorf("latest local time = %v, want %v", local, want)
	}
}

func TestReader_ReadMetadata_EmptyLatestRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, MetadataFileName)
	writeCBOR(t, path, &Metadata{ID: identity.RawIdentity{GroupOrFunctionID: "fib"}})

	_, err := NewReader().ReadMetadata(path)
	if err == nil {
		t.Fatal("expected an error for an empty latest_record pointer")
	}
	if errors.GetCode(err) != errors.CodeBadRecord {
		t.Errorf("error code = %s, want %s", errors.GetCode(err), errors.CodeBadRecord)
	}
}

func TestReader_ReadMeasurement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "measurement_241015134502.cbor")
	writeCBOR(t, path, validMeasurement())

	m, raw, err := NewReader().ReadMeasurement(path)
	if err != nil {
		t.Fatalf("ReadMeasurement failed: %v", err)
	}
	if len(raw) == 0 {
		t.Error("expected the raw bytes alongside the decoded measurement")
	}
	if !m.Datetime.Equal(time.Date(2024, 10, 15, 11, 45, 2, 0, time.UTC)) {
		t.Errorf("datetime = %v", m.Datetime)
	}
	if m.Estimates.Mean.PointEstimate != 16.5 {
		t.Errorf("mean = %v, want 16.5", m.Estimates.Mean.PointEstimate)
	}
}

func TestReader_ReadMeasurement_Invalid(t *testing.T) {
	dir := t.TempDir()

	garbled := filepath.Join(dir, "measurement_241015134502.cbor")
	if err := os.WriteFile(garbled, []byte("not cbor"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if _, _, err := NewReader().ReadMeasurement(garbled); errors.GetCode(err) != errors.CodeBadCBOR {
		t.Errorf("garbled file: error code = %s, want %s", errors.GetCode(err), errors.CodeBadCBOR)
	}

	broken := validMeasurement()
	broken.AvgValues[0] = 999
	path := filepath.Join(dir, "measurement_241015134503.cbor")
	writeCBOR(t, path, broken)
	if _, _, err := NewReader().ReadMeasurement(path); errors.GetCode(err) != errors.CodeBadRecord {
		t.Errorf("broken invariants: error code = %s, want %s", errors.GetCode(err), errors.CodeBadRecord)
	}
}

func TestChangeDirection_CBOR(t *testing.T) {
	m := validMeasurement()
	improved := Improved
	m.Changes = &ChangeEstimates{Mean: Estimate{PointEstimate: -0.05}}
	m.ChangeDirection = &improved

	data, err := cbor.Marshal(m)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	got, err := CBORDecoder{}.DecodeMeasurement(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.ChangeDirection == nil || *got.ChangeDirection != Improved {
		t.Errorf("change direction = %v, want Improved", got.ChangeDirection)
	}
	if got.Changes == nil || got.Changes.Mean.PointEstimate != -0.05 {
		t.Errorf("changes = %+v", got.Changes)
	}
}
