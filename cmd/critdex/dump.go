package main

import (
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/critdex/critdex/internal/config"
	"github.com/critdex/critdex/internal/identity"
	"github.com/critdex/critdex/internal/record"
	"github.com/critdex/critdex/internal/walk"
)

// runDump walks the benchmark data tree and prints every unit with its
// decoded identity and measurements, cross-checking the records against
// their on-disk location as it goes.
func runDump(cfg *config.Config, w io.Writer) error {
	reader := record.NewReader()
	it := walk.InProject(cfg).Units()

	units, violations := 0, 0
	for {
		unit, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		units++
		fmt.Fprintf(w, "%s\n", unit.RelativePath)
		if err := checkUnit(reader, unit, func(format string, args ...any) {
			fmt.Fprintf(w, "  "+format+"\n", args...)
		}); err != nil {
			violations++
			log.Printf("[WARN] %s: %v", unit.RelativePath, err)
		}
	}
	fmt.Fprintf(w, "%d benchmark units, %d with violations\n", units, violations)
	if violations > 0 {
		return fmt.Errorf("%d of %d benchmark units violate data invariants", violations, units)
	}
	return nil
}

// runVerify performs the same checks as dump without printing the data.
func runVerify(cfg *config.Config) error {
	reader := record.NewReader()
	it := walk.InProject(cfg).Units()

	units, violations := 0, 0
	for {
		unit, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		units++
		if err := checkUnit(reader, unit, func(string, ...any) {}); err != nil {
			violations++
			log.Printf("[WARN] %s: %v", unit.RelativePath, err)
		}
	}
	if violations > 0 {
		return fmt.Errorf("%d of %d benchmark units violate data invariants", violations, units)
	}
	fmt.Printf("%d benchmark units verified\n", units)
	return nil
}

// checkUnit decodes one benchmark unit and verifies the cross-record
// invariants: the identity maps back to the directory the unit was found
// under, the metadata's latest_record pointer names the newest measurement,
// and each measurement's throughput agrees with the identity's.
func checkUnit(reader *record.Reader, unit *walk.Unit, report func(string, ...any)) error {
	meta, err := reader.ReadMetadata(unit.Metadata.Path)
	if err != nil {
		return err
	}

	id, err := identity.Decode(&meta.ID)
	if err != nil {
		return err
	}
	report("identity: %#v", id)

	if err := identity.CrossCheck(id, unit.RelativePath); err != nil {
		return err
	}

	latest := filepath.Base(meta.LatestRecord)
	if latest != unit.Measurements[0].Name {
		return fmt.Errorf("latest_record points at %s but the newest measurement is %s",
			latest, unit.Measurements[0].Name)
	}

	var declared *identity.Throughput
	if g, ok := id.(identity.InGroup); ok {
		declared = g.Throughput
	}

	for _, ref := range unit.Measurements {
		m, _, err := reader.ReadMeasurement(ref.Path)
		if err != nil {
			return err
		}
		report("%s: %d samples, mean %v", ref.Name, len(m.Values), m.Estimates.Mean.PointEstimate)
		if !m.Throughput.Equal(declared) {
			return fmt.Errorf("measurement %s declares throughput %v but the benchmark identity declares %v",
				ref.Name, m.Throughput, declared)
		}
	}
	return nil
}
