package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hmpi-cli/internal/db"
	"github.com/sells-group/hmpi-cli/internal/model"
)

// PostgresStore implements Store on PostgreSQL. Its pool is shared with the
// PostGIS feature sources.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to PostgreSQL.
func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, maxConns)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying pool for the PostGIS sources and loaders.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS predictions (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	hmpi       DOUBLE PRECISION NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS source_cache (
	source     TEXT NOT NULL,
	cache_key  TEXT NOT NULL,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source, cache_key)
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_predictions_kind ON predictions(kind);
CREATE INDEX IF NOT EXISTS idx_source_cache_expires_at ON source_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SavePrediction(ctx context.Context, p *model.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal prediction")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (id, kind, hmpi, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, string(p.Kind), p.HMPI, payload, p.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert prediction %s", p.ID)
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id string) (*model.Prediction, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM predictions WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: prediction %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get prediction %s", id)
	}
	return decodePrediction(payload)
}

func (s *PostgresStore) ListPredictions(ctx context.Context, filter ListFilter) ([]model.Prediction, error) {
	query := `SELECT payload FROM predictions WHERE ($1 = '' OR kind = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	offset := max(filter.Offset, 0)

	rows, err := s.pool.Query(ctx, query, string(filter.Kind), effectiveLimit(filter.Limit), offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list predictions")
	}
	defer rows.Close()

	out := []model.Prediction{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prediction")
		}
		p, err := decodePrediction(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list predictions iterate")
}

func (s *PostgresStore) GetCachedSource(ctx context.Context, source, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM source_cache WHERE source = $1 AND cache_key = $2 AND expires_at > now()`,
		source, key,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cached %s", source)
	}
	return data, nil
}

func (s *PostgresStore) SetCachedSource(ctx context.Context, source, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO source_cache (source, cache_key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (source, cache_key) DO UPDATE SET
			data = EXCLUDED.data,
			cached_at = EXCLUDED.cached_at,
			expires_at = EXCLUDED.expires_at`,
		source, key, data, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: set cached %s", source)
}

func (s *PostgresStore) DeleteExpiredSources(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM source_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired sources")
	}
	return int(tag.RowsAffected()), nil
}
