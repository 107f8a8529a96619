// File: internal/persist/store.go

// Package persist snapshots console triage state to a local SQLite
// database. One namespaced row holds the whole snapshot; every write
// overwrites it. Reads never fail the application: absent or corrupt
// snapshots fall back to an empty state.
package persist

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/nullvane/argus-cli/api/schemas"
	"github.com/nullvane/argus-cli/internal/metrics"
)

// Namespace keys the console snapshot row. Bump the suffix when the
// payload layout changes incompatibly; old rows then read as absent.
const Namespace = "console/v1"

// Snapshot is the durable slice of console state. The active collection
// and the run result are serialized for inspection but deliberately not
// restored on startup: an unfinished run is not resumable after a restart
// because its resumption token may no longer be valid.
type Snapshot struct {
	CurrentResult *schemas.RunResult `json:"currentResult,omitempty"`
	LastInput     string             `json:"lastInputText"`
	Snoozed       []schemas.Finding  `json:"snoozed"`
	Ignored       []schemas.Finding  `json:"ignored"`
	Solved        []schemas.Finding  `json:"solved"`
}

// Options configures the snapshot store.
type Options struct {
	// Path is the SQLite database file. Its directory is created when
	// missing.
	Path string

	// CompressionLevel is the zstd level applied to payloads, 1 (fastest)
	// through 4 (best). Zero selects the default.
	CompressionLevel int

	Logger  *zap.Logger
	Metrics metrics.Collector
}

// Store persists console snapshots. Safe for concurrent use.
type Store struct {
	mu sync.Mutex
	db *sql.DB

	encoderPool sync.Pool
	decoderPool sync.Pool

	logger  *zap.Logger
	metrics metrics.Collector
}

const schema = `
CREATE TABLE IF NOT EXISTS console_state (
	ns         TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens or creates the snapshot database at opts.Path.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("snapshot store requires a database path")
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = int(zstd.SpeedBetterCompression)
	}
	if level < 1 || level > 4 {
		return nil, fmt.Errorf("compression level %d out of range [1,4]", level)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collector := opts.Metrics
	if collector == nil {
		collector = &metrics.NopCollector{}
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init snapshot schema: %w", err)
	}

	s := &Store{
		db:      db,
		logger:  logger.Named("snapshot"),
		metrics: collector,
	}
	s.encoderPool = sync.Pool{
		New: func() any {
			enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(level)))
			return enc
		},
	}
	s.decoderPool = sync.Pool{
		New: func() any {
			dec, _ := zstd.NewReader(nil)
			return dec
		},
	}
	return s, nil
}

// Save overwrites the namespaced snapshot row with the given state.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		snap = &Snapshot{}
	}

	timer := metrics.NewTimer(s.metrics, metrics.SnapshotWriteDuration.Name)
	defer timer.ObserveDuration()

	raw, err := json.Marshal(snap)
	if err != nil {
		s.metrics.CounterInc(metrics.SnapshotWritesTotal.Name, "status", "error")
		return fmt.Errorf("encode snapshot: %w", err)
	}

	payload, err := s.compress(raw)
	if err != nil {
		s.metrics.CounterInc(metrics.SnapshotWritesTotal.Name, "status", "error")
		return fmt.Errorf("compress snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO console_state (ns, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(ns) DO UPDATE SET
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, Namespace, payload)
	if err != nil {
		s.metrics.CounterInc(metrics.SnapshotWritesTotal.Name, "status", "error")
		return fmt.Errorf("write snapshot: %w", err)
	}

	s.metrics.CounterInc(metrics.SnapshotWritesTotal.Name, "status", "ok")
	return nil
}

// Load reads the namespaced snapshot. An absent row, an unreadable
// database, or a payload that fails to decompress or parse all yield an
// empty snapshot and a nil error.
func (s *Store) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM console_state WHERE ns = ?`, Namespace,
	).Scan(&payload)
	s.mu.Unlock()

	switch {
	case errors.Is(err, sql.ErrNoRows):
		return &Snapshot{}, nil
	case err != nil:
		s.logger.Warn("Snapshot read failed; starting empty.", zap.Error(err))
		return &Snapshot{}, nil
	}

	raw, err := s.decompress(payload)
	if err != nil {
		s.logger.Debug("Snapshot payload corrupt; starting empty.", zap.Error(err))
		return &Snapshot{}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Debug("Snapshot payload unparsable; starting empty.", zap.Error(err))
		return &Snapshot{}, nil
	}
	return &snap, nil
}

// Clear removes the namespaced snapshot row.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM console_state WHERE ns = ?`, Namespace)
	if err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Close()
}

func (s *Store) compress(data []byte) ([]byte, error) {
	enc := s.encoderPool.Get().(*zstd.Encoder)
	defer s.encoderPool.Put(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)

	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd write error: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd close error: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) decompress(data []byte) ([]byte, error) {
	dec := s.decoderPool.Get().(*zstd.Decoder)
	defer s.decoderPool.Put(dec)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("zstd reset error: %w", err)
	}
	result, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress error: %w", err)
	}
	return result, nil
}
