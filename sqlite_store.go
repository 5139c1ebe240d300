package somnia

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	// SQLite driver using pure Go implementation
	_ "modernc.org/sqlite"
)

// SQLiteStoreConfig configures the SQLite run store.
type SQLiteStoreConfig struct {
	// Path to the SQLite database file
	Path string

	// JournalMode sets the SQLite journal mode (WAL, DELETE, TRUNCATE, etc.)
	JournalMode string

	// BusyTimeout is the timeout for acquiring locks in milliseconds
	BusyTimeout int

	// MaxConnections is the max number of database connections
	MaxConnections int
}

// DefaultSQLiteStoreConfig returns default configuration.
func DefaultSQLiteStoreConfig() SQLiteStoreConfig {
	return SQLiteStoreConfig{
		Path:           "somnia.db",
		JournalMode:    "WAL",
		BusyTimeout:    5000,
		MaxConnections: 10,
	}
}

// SQLiteStore persists pipeline runs and their feature tables in SQLite so
// results can be inspected with standard SQL tools. Cells are stored in long
// form, one row per (run, user, day, col); NaN cells are stored as NULL.
type SQLiteStore struct {
	db     *sql.DB
	config SQLiteStoreConfig
	mu     sync.RWMutex
	closed bool

	insertRun  *sql.Stmt
	insertCell *sql.Stmt
}

// RunInfo describes one stored run.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Rows      int       `json:"rows"`
}

// NewSQLiteStore opens (or creates) a run store at the configured path.
func NewSQLiteStore(config SQLiteStoreConfig) (*SQLiteStore, error) {
	if config.Path == "" {
		config.Path = "somnia.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = 5000
	}
	if config.MaxConnections <= 0 {
		config.MaxConnections = 10
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d",
		config.Path, config.JournalMode, config.BusyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxConnections / 2)

	store := &SQLiteStore{db: db, config: config}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id     TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			row_count  INTEGER NOT NULL,
			columns    TEXT NOT NULL,
			stats      TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS feature_cells (
			run_id  TEXT NOT NULL,
			user_id TEXT NOT NULL,
			day     TEXT NOT NULL,
			col     TEXT NOT NULL,
			value   REAL,
			PRIMARY KEY (run_id, user_id, day, col)
		);

		CREATE INDEX IF NOT EXISTS idx_cells_run_user
			ON feature_cells(run_id, user_id, day);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	s.insertRun, err = s.db.Prepare(`
		INSERT INTO runs (run_id, created_at, duration_ns, row_count, columns, stats)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	s.insertCell, err = s.db.Prepare(`
		INSERT INTO feature_cells (run_id, user_id, day, col, value)
		VALUES (?, ?, ?, ?, ?)`)
	return err
}

// SaveRun stores a run's metadata and full feature table in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *RunResult) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	columns := result.Table.Columns()
	columnsJSON, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	statsJSON, err := json.Marshal(result.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.StmtContext(ctx, s.insertRun).ExecContext(ctx,
		result.RunID, time.Now().UnixMilli(), int64(result.Duration),
		len(result.Table.Rows), string(columnsJSON), string(statsJSON))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	insertCell := tx.StmtContext(ctx, s.insertCell)
	for i, rec := range result.Table.Rows {
		for _, col := range columns {
			if col == "Id" || col == "Date" {
				continue
			}
			var value any
			if v := result.Table.Value(i, col); !math.IsNaN(v) {
				value = v
			}
			_, err = insertCell.ExecContext(ctx,
				result.RunID, rec.UserID, rec.Date.String(), col, value)
			if err != nil {
				return fmt.Errorf("insert cell: %w", err)
			}
		}
	}

	return tx.Commit()
}

// LoadTable rebuilds a stored run's feature table.
func (s *SQLiteStore) LoadTable(ctx context.Context, runID string) (FeatureTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return FeatureTable{}, ErrStoreClosed
	}

	var columnsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT columns FROM runs WHERE run_id = ?`, runID).Scan(&columnsJSON)
	if err == sql.ErrNoRows {
		return FeatureTable{}, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return FeatureTable{}, fmt.Errorf("select run: %w", err)
	}
	var columns []string
	if err := json.Unmarshal([]byte(columnsJSON), &columns); err != nil {
		return FeatureTable{}, fmt.Errorf("unmarshal columns: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, day, col, value
		FROM feature_cells WHERE run_id = ?
		ORDER BY user_id, day`, runID)
	if err != nil {
		return FeatureTable{}, fmt.Errorf("select cells: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []FeatureRecord
	index := make(map[dayKey]int)

	for rows.Next() {
		var userID, day, col string
		var value sql.NullFloat64
		if err := rows.Scan(&userID, &day, &col, &value); err != nil {
			return FeatureTable{}, fmt.Errorf("scan cell: %w", err)
		}

		parsed, err := parseDate(day)
		if err != nil {
			return FeatureTable{}, fmt.Errorf("run %q: %w", runID, err)
		}
		key := dayKey{userID: userID, day: DayOf(parsed)}
		pos, ok := index[key]
		if !ok {
			pos = len(records)
			index[key] = pos
			records = append(records, FeatureRecord{
				MergedRecord: MergedRecord{UserID: userID, Date: key.day},
				Features:     make(map[string]float64),
			})
		}

		v := nan
		if value.Valid {
			v = value.Float64
		}
		if !setBaseColumn(&records[pos], col, v) {
			records[pos].Features[col] = v
		}
	}
	if err := rows.Err(); err != nil {
		return FeatureTable{}, fmt.Errorf("iterate cells: %w", err)
	}

	return FeatureTable{Rows: records, columns: columns}, nil
}

// ListRuns returns stored runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]RunInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, row_count
		FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var createdMilli int64
		if err := rows.Scan(&info.RunID, &createdMilli, &info.Rows); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		info.CreatedAt = time.UnixMilli(createdMilli)
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its cells.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM feature_cells WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete cells: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.insertRun != nil {
		_ = s.insertRun.Close()
	}
	if s.insertCell != nil {
		_ = s.insertCell.Close()
	}
	return s.db.Close()
}
