// Package cache maintains a SQLite database derived from the CBOR benchmark
// data tree and keeps it synchronized with the filesystem across runs
// without re-reading unchanged data.
package cache

// Schema contains the SQL definitions for the cache database (data.sqlite).
// The benchmark table holds one row per benchmark directory; the measurement
// table is append-only, since the tool never rewrites a measurement file
// once written.

// CreateBenchmarkTableSQL creates the benchmark table. The modified column
// records the RFC3339 modification time of benchmark.cbor at the time it was
// last read; staleness is detected by strict > comparison against the file's
// current modification time.
const CreateBenchmarkTableSQL = `
CREATE TABLE IF NOT EXISTS benchmark (
    relative_path TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    function_id TEXT,
    value_str TEXT,
    throughput_unit TEXT,
    throughput_amount INTEGER,
    modified TEXT NOT NULL,
    latest_record TEXT NOT NULL
)`

// CreateMeasurementTableSQL creates the measurement table. file_id is the
// measurement file's base name; the (relative_path, file_id) pair is unique.
// Sample arrays are stored as snappy-compressed little-endian float64 blobs,
// estimates as JSON, and fingerprint is the 128-bit murmur3 hash of the raw
// CBOR bytes.
const CreateMeasurementTableSQL = `
CREATE TABLE IF NOT EXISTS measurement (
    relative_path TEXT NOT NULL,
    file_id TEXT NOT NULL,
    datetime TEXT NOT NULL,
    sample_count INTEGER NOT NULL,
    iterations BLOB NOT NULL,
    sample_values BLOB NOT NULL,
    avg_values BLOB NOT NULL,
    mean_point REAL NOT NULL,
    median_point REAL NOT NULL,
    estimates TEXT NOT NULL,
    throughput_unit TEXT,
    throughput_amount INTEGER,
    changes TEXT,
    change_direction TEXT,
    history_id TEXT,
    history_description TEXT,
    fingerprint BLOB NOT NULL,
    PRIMARY KEY (relative_path, file_id),
    FOREIGN KEY (relative_path) REFERENCES benchmark(relative_path)
)`

// CreateMeasurementIndexesSQL creates indexes for the common read patterns:
// per-benchmark history listing and cross-benchmark chronological queries.
var CreateMeasurementIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_measurement_path ON measurement(relative_path, datetime DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_measurement_datetime ON measurement(datetime)`,
}

// CreateSyncPassTableSQL creates the sync_pass audit table, one row per
// synchronization pass.
const CreateSyncPassTableSQL = `
CREATE TABLE IF NOT EXISTS sync_pass (
    pass_id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    benchmarks_seen INTEGER NOT NULL DEFAULT 0,
    measurements_added INTEGER NOT NULL DEFAULT 0
)`

// OptimizeSQL is run when a store is closed, on every exit path.
const OptimizeSQL = `PRAGMA optimize`

// AllSchemaSQL returns all SQL statements needed to initialize the cache.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateBenchmarkTableSQL,
		CreateMeasurementTableSQL,
		CreateSyncPassTableSQL,
	}
	stmts = append(stmts, CreateMeasurementIndexesSQL...)
	return stmts
}
