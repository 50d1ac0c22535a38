package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hmpi-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

// Timestamps are unix nanoseconds so ordering and expiry are integer
// comparisons.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	hmpi       REAL NOT NULL,
	payload    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS source_cache (
	source     TEXT NOT NULL,
	cache_key  TEXT NOT NULL,
	data       BLOB NOT NULL,
	cached_at  INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (source, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_kind ON predictions(kind);
CREATE INDEX IF NOT EXISTS idx_source_cache_expires_at ON source_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SavePrediction(ctx context.Context, p *model.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.nowFunc().UTC()
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal prediction")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (id, kind, hmpi, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, string(p.Kind), p.HMPI, string(payload), p.CreatedAt.UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: insert prediction %s", p.ID)
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, id string) (*model.Prediction, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM predictions WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: prediction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get prediction %s", id)
	}
	return decodePrediction([]byte(payload))
}

func (s *SQLiteStore) ListPredictions(ctx context.Context, filter ListFilter) ([]model.Prediction, error) {
	query := `SELECT payload FROM predictions WHERE 1=1`
	var args []any

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, effectiveLimit(filter.Limit))
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list predictions")
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Prediction{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prediction")
		}
		p, err := decodePrediction([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list predictions iterate")
}

func (s *SQLiteStore) GetCachedSource(ctx context.Context, source, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM source_cache WHERE source = ? AND cache_key = ? AND expires_at > ?`,
		source, key, s.nowFunc().UnixNano(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cached %s", source)
	}
	return data, nil
}

func (s *SQLiteStore) SetCachedSource(ctx context.Context, source, key string, data []byte, ttl time.Duration) error {
	now := s.nowFunc()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_cache (source, cache_key, data, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (source, cache_key) DO UPDATE SET
			data = excluded.data,
			cached_at = excluded.cached_at,
			expires_at = excluded.expires_at`,
		source, key, data, now.UnixNano(), now.Add(ttl).UnixNano(),
	)
	return eris.Wrapf(err, "sqlite: set cached %s", source)
}

func (s *SQLiteStore) DeleteExpiredSources(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM source_cache WHERE expires_at <= ?`, s.nowFunc().UnixNano(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired sources")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func decodePrediction(payload []byte) (*model.Prediction, error) {
	var p model.Prediction
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal prediction")
	}
	return &p, nil
}
