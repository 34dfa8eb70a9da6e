package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/qualitypulse/qualitypulse/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Store backed by a SQLite database file. Measurements are kept as
// JSON documents next to the columns needed to query them.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// One connection so the pragmas below apply to every statement.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

const selectMeasurement = `SELECT data, end_ns FROM measurements`

// Latest implements Store.
func (s *SQLite) Latest(ctx context.Context, metricUUID string) (*types.Measurement, error) {
	row := s.db.QueryRowContext(ctx, selectMeasurement+`
		WHERE metric_uuid = ? ORDER BY start_ns DESC, rowid DESC LIMIT 1`, metricUUID)
	m, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// Insert implements Store.
func (s *SQLite) Insert(ctx context.Context, m *types.Measurement) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: encode measurement: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO measurements (id, metric_uuid, start_ns, end_ns, data) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.MetricUUID, m.Start.UnixNano(), m.End.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", m.ID, err)
	}
	return nil
}

// ExtendEnd implements Store.
func (s *SQLite) ExtendEnd(ctx context.Context, id string, end time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE measurements SET end_ns = ? WHERE id = ?`, end.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("store: extend %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// History implements Store.
func (s *SQLite) History(ctx context.Context, metricUUID string, limit int) ([]*types.Measurement, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectMeasurement+`
		WHERE metric_uuid = ? ORDER BY start_ns DESC, rowid DESC LIMIT ?`, metricUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: history %s: %w", metricUUID, err)
	}
	defer rows.Close()

	var out []*types.Measurement
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LatestPerMetric implements Store.
func (s *SQLite) LatestPerMetric(ctx context.Context) (map[string]*types.Measurement, error) {
	rows, err := s.db.QueryContext(ctx, selectMeasurement+` AS m
		WHERE m.rowid = (
			SELECT rowid FROM measurements WHERE metric_uuid = m.metric_uuid
			ORDER BY start_ns DESC, rowid DESC LIMIT 1)`)
	if err != nil {
		return nil, fmt.Errorf("store: latest per metric: %w", err)
	}
	defer rows.Close()

	out := map[string]*types.Measurement{}
	for rows.Next() {
		m, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out[m.MetricUUID] = m
	}
	return out, rows.Err()
}

// Count implements Store.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*types.Measurement, error) {
	var (
		data  string
		endNS int64
	)
	if err := row.Scan(&data, &endNS); err != nil {
		return nil, err
	}
	var m types.Measurement
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("store: decode measurement: %w", err)
	}
	m.End = time.Unix(0, endNS).UTC()
	return &m, nil
}
