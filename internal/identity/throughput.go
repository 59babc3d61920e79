package identity

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ThroughputUnit names the quantity a benchmark processes per iteration.
type ThroughputUnit string

const (
	ThroughputBytes        ThroughputUnit = "Bytes"
	ThroughputBytesDecimal ThroughputUnit = "BytesDecimal"
	ThroughputElements     ThroughputUnit = "Elements"
)

// Throughput is the declared per-iteration throughput of a benchmark.
//
// On the wire it is serde's externally tagged enum encoding: a single-entry
// map from the unit name to the amount, e.g. {"Bytes": 1024}.
type Throughput struct {
	Unit   ThroughputUnit
	Amount uint64
}

// UnmarshalCBOR decodes the externally tagged enum form.
func (t *Throughput) UnmarshalCBOR(data []byte) error {
	var m map[string]uint64
	if err := cbor.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("throughput is not a single-entry map: %w", err)
	}
	if len(m) != 1 {
		return fmt.Errorf("throughput map has %d entries, want 1", len(m))
	}
	for unit, amount := range m {
		switch ThroughputUnit(unit) {
		case ThroughputBytes, ThroughputBytesDecimal, ThroughputElements:
			t.Unit = ThroughputUnit(unit)
			t.Amount = amount
		default:
			return fmt.Errorf("unknown throughput unit %q", unit)
		}
	}
	return nil
}

// MarshalCBOR encodes the externally tagged enum form.
func (t Throughput) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(map[string]uint64{string(t.Unit): t.Amount})
}

// Equal reports whether two optional throughputs agree. Two nil values agree.
func (t *Throughput) Equal(o *Throughput) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Unit == o.Unit && t.Amount == o.Amount
}

func (t Throughput) String() string {
	return fmt.Sprintf("%d %s/iter", t.Amount, t.Unit)
}
