package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spaolacci/murmur3"

	"github.com/critdex/critdex/internal/errors"
	"github.com/critdex/critdex/internal/identity"
	"github.com/critdex/critdex/internal/record"
)

// timeFormat is the column representation of timestamps.
const timeFormat = time.RFC3339Nano

// Store is the query surface of the benchmark cache.
type Store interface {
	// GetBenchmark retrieves one benchmark row by relative path.
	GetBenchmark(ctx context.Context, relativePath string) (*BenchmarkRow, error)

	// ListBenchmarks returns all cached benchmarks ordered by relative path.
	ListBenchmarks(ctx context.Context) ([]*BenchmarkRow, error)

	// ListMeasurements returns a benchmark's measurements, newest first.
	ListMeasurements(ctx context.Context, relativePath string) ([]*MeasurementRow, error)

	// LatestMeasurement returns a benchmark's most recent measurement.
	LatestMeasurement(ctx context.Context, relativePath string) (*MeasurementRow, error)

	// Close finalizes and closes the database connection.
	Close() error
}

// BenchmarkRow is one persisted benchmark.
type BenchmarkRow struct {
	RelativePath string
	Identity     identity.RawIdentity
	Modified     time.Time
	LatestRecord string
}

// MeasurementRow is one persisted measurement.
type MeasurementRow struct {
	RelativePath       string
	FileID             string
	Datetime           time.Time
	Iterations         []float64
	Values             []float64
	AvgValues          []float64
	Estimates          record.Estimates
	Throughput         *identity.Throughput
	Changes            *record.ChangeEstimates
	ChangeDirection    *record.ChangeDirection
	HistoryID          *string
	HistoryDescription *string
	Fingerprint        []byte
}

// SQLiteStore implements Store on a single-writer SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string

	insertMeasurementStmt *sql.Stmt
	upsertBenchmarkStmt   *sql.Stmt
}

// Open loads the cache database at dbPath, creating it and its schema if
// needed.
func Open(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("cache: failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: failed to open database: %w", err)
	}
	// The synchronizer assumes exclusive ownership of the store for the
	// duration of one pass.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	store.upsertBenchmarkStmt, err = db.Prepare(`
		INSERT INTO benchmark (
			relative_path, group_id, function_id, value_str,
			throughput_unit, throughput_amount, modified, latest_record
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(relative_path) DO UPDATE SET
			group_id = excluded.group_id,
			function_id = excluded.function_id,
			value_str = excluded.value_str,
			throughput_unit = excluded.throughput_unit,
			throughput_amount = excluded.throughput_amount,
			modified = excluded.modified,
			latest_record = excluded.latest_record`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: failed to prepare benchmark upsert: %w", err)
	}

	store.insertMeasurementStmt, err = db.Prepare(`
		INSERT INTO measurement (
			relative_path, file_id, datetime, sample_count,
			iterations, sample_values, avg_values,
			mean_point, median_point, estimates,
			throughput_unit, throughput_amount,
			changes, change_direction,
			history_id, history_description, fingerprint
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		store.upsertBenchmarkStmt.Close()
		db.Close()
		return nil, fmt.Errorf("cache: failed to prepare measurement insert: %w", err)
	}

	return store, nil
}

// Path returns the location of the database file.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Checkpoint flushes the write-ahead log into the main database file, so
// that the file on disk is a complete snapshot of the store.
func (s *SQLiteStore) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("cache: failed to checkpoint: %w", err)
	}
	return nil
}

func (s *SQLiteStore) initSchema() error {
	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.NewCacheError(errors.CodeSchema,
				fmt.Sprintf("initializing schema of %s", s.dbPath), err)
		}
	}
	return nil
}

// Close triggers the store's maintenance pass and releases the connection.
// It runs on every exit path, including error paths.
func (s *SQLiteStore) Close() error {
	if _, err := s.db.Exec(OptimizeSQL); err != nil {
		log.Printf("[WARN] cache: optimize pass failed: %v", err)
	}
	if s.upsertBenchmarkStmt != nil {
		s.upsertBenchmarkStmt.Close()
	}
	if s.insertMeasurementStmt != nil {
		s.insertMeasurementStmt.Close()
	}
	return s.db.Close()
}

// persistedIndex is the in-memory form of the previously recorded state,
// loaded once per synchronization pass: a measurement file-id set and a
// metadata modification time per benchmark path.
type persistedIndex struct {
	knownFiles map[string]map[string]struct{}
	modified   map[string]time.Time
}

func (idx *persistedIndex) knows(relativePath, fileID string) bool {
	set, ok := idx.knownFiles[relativePath]
	if !ok {
		return false
	}
	_, ok = set[fileID]
	return ok
}

// loadIndex reads the persisted index in two queries.
func (s *SQLiteStore) loadIndex(ctx context.Context) (*persistedIndex, error) {
	idx := &persistedIndex{
		knownFiles: make(map[string]map[string]struct{}),
		modified:   make(map[string]time.Time),
	}

	rows, err := s.db.QueryContext(ctx, "SELECT relative_path, file_id FROM measurement")
	if err != nil {
		return nil, errors.NewCacheError(errors.CodeQuery, "querying known measurements", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path, fileID string
		if err := rows.Scan(&path, &fileID); err != nil {
			return nil, fmt.Errorf("cache: failed to scan measurement key: %w", err)
		}
		set, ok := idx.knownFiles[path]
		if !ok {
			set = make(map[string]struct{})
			idx.knownFiles[path] = set
		}
		set[fileID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: error iterating measurement keys: %w", err)
	}

	benchRows, err := s.db.QueryContext(ctx, "SELECT relative_path, modified FROM benchmark")
	if err != nil {
		return nil, errors.NewCacheError(errors.CodeQuery, "querying benchmark mtimes", err)
	}
	defer benchRows.Close()
	for benchRows.Next() {
		var path, modified string
		if err := benchRows.Scan(&path, &modified); err != nil {
			return nil, fmt.Errorf("cache: failed to scan benchmark mtime: %w", err)
		}
		t, err := time.Parse(timeFormat, modified)
		if err != nil {
			return nil, fmt.Errorf("cache: benchmark %s has a malformed modified timestamp: %w", path, err)
		}
		idx.modified[path] = t
	}
	if err := benchRows.Err(); err != nil {
		return nil, fmt.Errorf("cache: error iterating benchmark mtimes: %w", err)
	}

	return idx, nil
}

// upsertBenchmarkTx writes one benchmark row within a transaction.
func (s *SQLiteStore) upsertBenchmarkTx(ctx context.Context, tx *sql.Tx, row *BenchmarkRow) error {
	unit, amount := throughputColumns(row.Identity.Throughput)
	_, err := tx.StmtContext(ctx, s.upsertBenchmarkStmt).ExecContext(ctx,
		row.RelativePath,
		row.Identity.GroupOrFunctionID,
		row.Identity.FunctionIDInGroup,
		row.Identity.ValueStr,
		unit, amount,
		row.Modified.Format(timeFormat),
		row.LatestRecord,
	)
	if err != nil {
		return fmt.Errorf("cache: failed to upsert benchmark %s: %w", row.RelativePath, err)
	}
	return nil
}

// insertMeasurementTx writes one measurement row within a transaction.
// Measurement rows are append-only; inserting an existing
// (relative_path, file_id) pair is an error.
func (s *SQLiteStore) insertMeasurementTx(ctx context.Context, tx *sql.Tx, row *MeasurementRow) error {
	estimates, err := json.Marshal(row.Estimates)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal estimates: %w", err)
	}
	var changes any
	if row.Changes != nil {
		data, err := json.Marshal(row.Changes)
		if err != nil {
			return fmt.Errorf("cache: failed to marshal changes: %w", err)
		}
		changes = string(data)
	}
	var direction any
	if row.ChangeDirection != nil {
		direction = string(*row.ChangeDirection)
	}
	unit, amount := throughputColumns(row.Throughput)

	_, err = tx.StmtContext(ctx, s.insertMeasurementStmt).ExecContext(ctx,
		row.RelativePath,
		row.FileID,
		row.Datetime.UTC().Format(timeFormat),
		len(row.Iterations),
		encodeSamples(row.Iterations),
		encodeSamples(row.Values),
		encodeSamples(row.AvgValues),
		row.Estimates.Mean.PointEstimate,
		row.Estimates.Median.PointEstimate,
		string(estimates),
		unit, amount,
		changes,
		direction,
		row.HistoryID,
		row.HistoryDescription,
		row.Fingerprint,
	)
	if err != nil {
		return fmt.Errorf("cache: failed to insert measurement %s/%s: %w", row.RelativePath, row.FileID, err)
	}
	return nil
}

// recordSyncPassStart inserts the audit row for a new pass.
func (s *SQLiteStore) recordSyncPassStart(ctx context.Context, passID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_pass (pass_id, started_at) VALUES (?, ?)",
		passID, startedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("cache: failed to record sync pass start: %w", err)
	}
	return nil
}

// recordSyncPassEnd finalizes the audit row for a completed pass.
func (s *SQLiteStore) recordSyncPassEnd(ctx context.Context, passID string, finishedAt time.Time, benchmarksSeen, measurementsAdded int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_pass SET finished_at = ?, benchmarks_seen = ?, measurements_added = ? WHERE pass_id = ?",
		finishedAt.UTC().Format(timeFormat), benchmarksSeen, measurementsAdded, passID)
	if err != nil {
		return fmt.Errorf("cache: failed to record sync pass end: %w", err)
	}
	return nil
}

// GetBenchmark retrieves one benchmark row by relative path.
func (s *SQLiteStore) GetBenchmark(ctx context.Context, relativePath string) (*BenchmarkRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT relative_path, group_id, function_id, value_str,
			throughput_unit, throughput_amount, modified, latest_record
		FROM benchmark WHERE relative_path = ?`, relativePath)
	bench, err := scanBenchmark(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cache: benchmark %s not found", relativePath)
	}
	return bench, err
}

// ListBenchmarks returns all cached benchmarks ordered by relative path.
func (s *SQLiteStore) ListBenchmarks(ctx context.Context) ([]*BenchmarkRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relative_path, group_id, function_id, value_str,
			throughput_unit, throughput_amount, modified, latest_record
		FROM benchmark ORDER BY relative_path`)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to query benchmarks: %w", err)
	}
	defer rows.Close()

	var benches []*BenchmarkRow
	for rows.Next() {
		bench, err := scanBenchmark(rows.Scan)
		if err != nil {
			return nil, err
		}
		benches = append(benches, bench)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: error iterating benchmarks: %w", err)
	}
	return benches, nil
}

func scanBenchmark(scan func(...any) error) (*BenchmarkRow, error) {
	var bench BenchmarkRow
	var functionID, valueStr, unit sql.NullString
	var amount sql.NullInt64
	var modified string

	err := scan(
		&bench.RelativePath,
		&bench.Identity.GroupOrFunctionID,
		&functionID, &valueStr,
		&unit, &amount,
		&modified,
		&bench.LatestRecord,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("cache: failed to scan benchmark: %w", err)
	}

	if functionID.Valid {
		bench.Identity.FunctionIDInGroup = &functionID.String
	}
	if valueStr.Valid {
		bench.Identity.ValueStr = &valueStr.String
	}
	bench.Identity.Throughput = throughputFromColumns(unit, amount)
	bench.Modified, err = time.Parse(timeFormat, modified)
	if err != nil {
		return nil, fmt.Errorf("cache: benchmark %s has a malformed modified timestamp: %w", bench.RelativePath, err)
	}
	return &bench, nil
}

const selectMeasurementSQL = `
	SELECT relative_path, file_id, datetime,
		iterations, sample_values, avg_values, estimates,
		throughput_unit, throughput_amount,
		changes, change_direction,
		history_id, history_description, fingerprint
	FROM measurement`

// ListMeasurements returns a benchmark's measurements, newest first.
func (s *SQLiteStore) ListMeasurements(ctx context.Context, relativePath string) ([]*MeasurementRow, error) {
	rows, err := s.db.QueryContext(ctx,
		selectMeasurementSQL+" WHERE relative_path = ? ORDER BY datetime DESC", relativePath)
	if err != nil {
		return nil, fmt.Errorf("cache: failed to query measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*MeasurementRow
	for rows.Next() {
		m, err := scanMeasurement(rows.Scan)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cache: error iterating measurements: %w", err)
	}
	return measurements, nil
}

// LatestMeasurement returns a benchmark's most recent measurement.
func (s *SQLiteStore) LatestMeasurement(ctx context.Context, relativePath string) (*MeasurementRow, error) {
	row := s.db.QueryRowContext(ctx,
		selectMeasurementSQL+" WHERE relative_path = ? ORDER BY datetime DESC LIMIT 1", relativePath)
	m, err := scanMeasurement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cache: no measurements cached for %s", relativePath)
	}
	return m, err
}

func scanMeasurement(scan func(...any) error) (*MeasurementRow, error) {
	var m MeasurementRow
	var datetime, estimates string
	var iterBlob, valueBlob, avgBlob []byte
	var unit, changes, direction, historyID, historyDescription sql.NullString
	var amount sql.NullInt64

	err := scan(
		&m.RelativePath, &m.FileID, &datetime,
		&iterBlob, &valueBlob, &avgBlob, &estimates,
		&unit, &amount,
		&changes, &direction,
		&historyID, &historyDescription, &m.Fingerprint,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("cache: failed to scan measurement: %w", err)
	}

	m.Datetime, err = time.Parse(timeFormat, datetime)
	if err != nil {
		return nil, fmt.Errorf("cache: measurement %s/%s has a malformed datetime: %w", m.RelativePath, m.FileID, err)
	}
	if m.Iterations, err = decodeSamples(iterBlob); err != nil {
		return nil, fmt.Errorf("cache: measurement %s/%s: %w", m.RelativePath, m.FileID, err)
	}
	if m.Values, err = decodeSamples(valueBlob); err != nil {
		return nil, fmt.Errorf("cache: measurement %s/%s: %w", m.RelativePath, m.FileID, err)
	}
	if m.AvgValues, err = decodeSamples(avgBlob); err != nil {
		return nil, fmt.Errorf("cache: measurement %s/%s: %w", m.RelativePath, m.FileID, err)
	}
	if err := json.Unmarshal([]byte(estimates), &m.Estimates); err != nil {
		return nil, fmt.Errorf("cache: measurement %s/%s has malformed estimates: %w", m.RelativePath, m.FileID, err)
	}
	if changes.Valid {
		var ce record.ChangeEstimates
		if err := json.Unmarshal([]byte(changes.String), &ce); err != nil {
			return nil, fmt.Errorf("cache: measurement %s/%s has malformed changes: %w", m.RelativePath, m.FileID, err)
		}
		m.Changes = &ce
	}
	if direction.Valid {
		d := record.ChangeDirection(direction.String)
		m.ChangeDirection = &d
	}
	if historyID.Valid {
		m.HistoryID = &historyID.String
	}
	if historyDescription.Valid {
		m.HistoryDescription = &historyDescription.String
	}
	m.Throughput = throughputFromColumns(unit, amount)
	return &m, nil
}

func throughputColumns(t *identity.Throughput) (any, any) {
	if t == nil {
		return nil, nil
	}
	return string(t.Unit), int64(t.Amount)
}

func throughputFromColumns(unit sql.NullString, amount sql.NullInt64) *identity.Throughput {
	if !unit.Valid {
		return nil
	}
	return &identity.Throughput{
		Unit:   identity.ThroughputUnit(unit.String),
		Amount: uint64(amount.Int64),
	}
}

// encodeSamples packs a sample array as snappy-compressed little-endian
// float64 values.
func encodeSamples(samples []float64) []byte {
	raw := make([]byte, 8*len(samples))
	for i, v := range samples {
		binary.LittleEndian.PutUint64(raw[i*8:], math.Float64bits(v))
	}
	return snappy.Encode(nil, raw)
}

// decodeSamples reverses encodeSamples.
func decodeSamples(blob []byte) ([]float64, error) {
	raw, err := snappy.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("corrupt sample blob: %w", err)
	}
	if len(raw)%8 != 0 {
		return nil, fmt.Errorf("sample blob length %d is not a multiple of 8", len(raw))
	}
	samples := make([]float64, len(raw)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
	}
	return samples, nil
}

// Fingerprint returns the 128-bit murmur3 hash of a record's raw bytes.
func Fingerprint(data []byte) []byte {
	h1, h2 := murmur3.Sum128(data)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[:8], h1)
	binary.LittleEndian.PutUint64(buf[8:], h2)
	return buf
}
