package features

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/db"
	"github.com/sells-group/hmpi-cli/internal/geo"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// DefaultPointsTable holds the loaded map features.
const DefaultPointsTable = "features.feature_points"

// postgisCandidates is how many nearest rows the KNN query returns. The
// index orders by planar distance, so a few extra rows let a haversine
// metric pick the true nearest.
const postgisCandidates = 8

const migrationLockID = 8675311

// MigratePostGIS applies the embedded feature-table migrations that have not
// run yet, recording each in features.schema_migrations. Everything runs in
// one transaction holding a transaction-scoped advisory lock, so concurrent
// migrators serialize and the lock cannot outlive the connection that took it.
func MigratePostGIS(ctx context.Context, pool db.Pool) error {
	log := zap.L().With(zap.String("component", "features.migrate"))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "features: begin migration")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "features: acquire migration lock")
	}

	if _, err := tx.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS features;
		CREATE TABLE IF NOT EXISTS features.schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "features: create migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "features: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "features: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "features: apply migration %s", name)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO features.schema_migrations (filename, applied_at) VALUES ($1, now())", name,
		); err != nil {
			return eris.Wrapf(err, "features: record migration %s", name)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "features: commit migrations")
}

func appliedMigrations(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, "SELECT filename FROM features.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "features: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "features: scan migration row")
		}
		applied[name] = true
	}
	return applied, eris.Wrap(rows.Err(), "features: iterate migrations")
}

// LoadFeatures upserts shapefile features of one category into table.
// Records are keyed by source and their position in the file, so reloading
// the same file replaces rather than duplicates. Features without geometry
// are skipped.
func LoadFeatures(ctx context.Context, pool db.Pool, table, category, source string, feats []geo.Feature) (int64, error) {
	if table == "" {
		table = DefaultPointsTable
	}

	rows := make([][]any, 0, len(feats))
	for i, f := range feats {
		if f.Geometry == nil {
			continue
		}
		attrs := f.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		rows = append(rows, []any{category, fmt.Sprintf("%s:%d", source, i), f.Geometry, attrs})
	}
	if len(rows) == 0 {
		return 0, eris.Errorf("features: %s has no loadable geometries", source)
	}

	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        table,
		Columns:      []string{"category", "source_ref", "geom", "attributes"},
		ConflictKeys: []string{"category", "source_ref"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "features: load %s", category)
	}
	return n, nil
}

// PostGISFinder answers nearest-feature queries with a KNN scan of the
// feature table. Each candidate is the point of a geometry closest to the
// origin.
type PostGISFinder struct {
	pool  db.Pool
	table string
}

// NewPostGISFinder creates a PostGISFinder over table.
func NewPostGISFinder(pool db.Pool, table string) *PostGISFinder {
	if table == "" {
		table = DefaultPointsTable
	}
	return &PostGISFinder{pool: pool, table: table}
}

// Name implements PointFinder.
func (f *PostGISFinder) Name() string { return "postgis" }

// Candidates implements PointFinder.
func (f *PostGISFinder) Candidates(ctx context.Context, category Category, origin geo.Point) ([]geo.Point, error) {
	query := fmt.Sprintf(`
		SELECT ST_Y(c.p), ST_X(c.p) FROM (
			SELECT ST_ClosestPoint(geom, ST_SetSRID(ST_MakePoint($2, $3), 4326)) AS p
			FROM %s
			WHERE category = $1
			ORDER BY geom <-> ST_SetSRID(ST_MakePoint($2, $3), 4326)
			LIMIT $4
		) c`, pgx.Identifier(splitTable(f.table)).Sanitize())

	rows, err := f.pool.Query(ctx, query, category.Name, origin.Lon, origin.Lat, postgisCandidates)
	if err != nil {
		return nil, eris.Wrapf(err, "features: nearest %s", category.Name)
	}
	defer rows.Close()

	var pts []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, eris.Wrap(err, "features: scan nearest row")
		}
		pts = append(pts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "features: nearest %s", category.Name)
	}
	if len(pts) == 0 {
		return nil, ErrNoFeatures
	}
	return pts, nil
}

// PostGISRaster samples a raster table with ST_Value.
type PostGISRaster struct {
	pool  db.Pool
	table string
}

// NewPostGISRaster creates a PostGISRaster over table, which must have a
// raster column named rast.
func NewPostGISRaster(pool db.Pool, table string) *PostGISRaster {
	return &PostGISRaster{pool: pool, table: table}
}

// Sample implements Raster. A point no tile covers returns
// geo.ErrOutsideGrid; a no-data cell returns geo.ErrNoData.
func (r *PostGISRaster) Sample(ctx context.Context, lon, lat float64) (float64, error) {
	query := fmt.Sprintf(`
		SELECT ST_Value(rast, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		FROM %s
		WHERE ST_Intersects(rast, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		LIMIT 1`, pgx.Identifier(splitTable(r.table)).Sanitize())

	var v *float64
	err := r.pool.QueryRow(ctx, query, lon, lat).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, geo.ErrOutsideGrid
	}
	if err != nil {
		return 0, eris.Wrap(err, "features: sample raster")
	}
	if v == nil {
		return 0, geo.ErrNoData
	}
	return *v, nil
}

func splitTable(table string) []string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return []string{schema, name}
	}
	return []string{table}
}
