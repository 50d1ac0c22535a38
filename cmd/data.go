package main

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/db"
	"github.com/sells-group/hmpi-cli/internal/features"
	"github.com/sells-group/hmpi-cli/internal/fetcher"
	"github.com/sells-group/hmpi-cli/internal/geo"
	"github.com/sells-group/hmpi-cli/internal/store"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download and load the data files feature sources read",
}

var (
	fetchURL        string
	fetchOut        string
	fetchExtract    bool
	fetchExtractDir string
	fetchExts       []string
	fetchForce      bool
)

// etagCacheSource is the source-cache namespace for downloaded file ETags.
const etagCacheSource = "fetch_etag"

const etagTTL = 365 * 24 * time.Hour

var dataFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a raster or shapefile archive over HTTP(S) or FTP",
	Long: `Download a raster or shapefile archive over HTTP(S) or FTP.

The ascii population backend reads ESRI ASCII grids (.asc) only. A GeoTIFF
such as WorldPop's density raster can either be converted:

  gdal_translate -of AAIGrid worldpop_density.tif data/worldpop_density.asc

or loaded into the postgis backend after "hmpi data migrate":

  raster2pgsql -a -t 256x256 worldpop_density.tif features.population_density | psql "$HMPI_STORE_DATABASE_URL"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		f := fetcher.NewMulti(fetcher.HTTPOptions{}, fetcher.FTPOptions{})
		changed, err := fetchFile(ctx, f, st, fetchURL, fetchOut, fetchForce)
		if err != nil {
			return err
		}
		if !changed {
			zap.L().Info("remote file unchanged, skipping download", zap.String("url", fetchURL))
		}

		if !fetchExtract {
			return nil
		}
		dir := fetchExtractDir
		if dir == "" {
			dir = filepath.Dir(fetchOut)
		}
		extracted, err := fetcher.ExtractMatching(fetchOut, dir, fetchExts...)
		if err != nil {
			return eris.Wrap(err, "extract archive")
		}
		for _, p := range extracted {
			cmd.Println(p)
		}
		return nil
	},
}

// fetchFile downloads rawURL to out. For HTTP(S) URLs with a store, the
// last seen ETag is kept in the source cache and an unchanged remote file
// is not downloaded again. It reports whether out was written.
func fetchFile(ctx context.Context, f *fetcher.Multi, st store.Store, rawURL, out string, force bool) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, eris.Wrap(err, "fetch: parse url")
	}
	useETag := st != nil && (u.Scheme == "http" || u.Scheme == "https")
	if !useETag {
		n, err := f.DownloadToFile(ctx, rawURL, out)
		if err != nil {
			return false, eris.Wrap(err, "fetch: download")
		}
		zap.L().Info("downloaded", zap.String("url", rawURL), zap.String("path", out), zap.Int64("bytes", n))
		return true, nil
	}

	var etag string
	if !force {
		if _, statErr := os.Stat(out); statErr == nil {
			cachedTag, err := st.GetCachedSource(ctx, etagCacheSource, rawURL)
			if err != nil {
				zap.L().Debug("fetch: etag lookup failed", zap.Error(err))
			}
			etag = string(cachedTag)
		}
	}

	body, newTag, changed, err := f.HTTP.DownloadIfChanged(ctx, rawURL, etag)
	if err != nil {
		return false, eris.Wrap(err, "fetch: download")
	}
	if !changed {
		return false, nil
	}
	defer body.Close() //nolint:errcheck

	n, err := fetcher.WriteFile(body, out)
	if err != nil {
		return false, err
	}
	zap.L().Info("downloaded", zap.String("url", rawURL), zap.String("path", out), zap.Int64("bytes", n))

	if newTag != "" {
		if err := st.SetCachedSource(ctx, etagCacheSource, rawURL, []byte(newTag), etagTTL); err != nil {
			zap.L().Warn("fetch: failed to record etag", zap.Error(err))
		}
	}
	return true, nil
}

var dataMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the store schema and, on Postgres, the PostGIS feature tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			zap.L().Info("store disabled, nothing to migrate")
			return nil
		}
		defer st.Close() //nolint:errcheck

		pg, ok := st.(*store.PostgresStore)
		if !ok {
			zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
			return nil
		}
		if err := features.MigratePostGIS(ctx, pg.Pool()); err != nil {
			return eris.Wrap(err, "migrate postgis")
		}
		zap.L().Info("store and postgis schema migrated")
		return nil
	},
}

var (
	loadShapefile string
	loadCategory  string
	loadTable     string
)

var dataLoadFeaturesCmd = &cobra.Command{
	Use:   "load-features",
	Short: "Load shapefile geometries into the PostGIS feature table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.Store.Driver != "postgres" {
			return eris.New("load-features requires store.driver postgres")
		}

		pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := features.MigratePostGIS(ctx, pool); err != nil {
			return eris.Wrap(err, "migrate postgis")
		}

		table := loadTable
		if table == "" {
			table = cfg.Sources.Nearest.Table
		}
		n, err := loadShapefileFeatures(ctx, pool, table, loadShapefile, loadCategory)
		if err != nil {
			return err
		}
		zap.L().Info("features loaded",
			zap.String("category", loadCategory),
			zap.String("table", table),
			zap.Int64("rows", n),
		)
		return nil
	},
}

// loadShapefileFeatures reads path and upserts its geometries under
// category, which must be one of the nearest-feature categories.
func loadShapefileFeatures(ctx context.Context, pool db.Pool, table, path, category string) (int64, error) {
	if _, ok := features.CategoryByName(category); !ok {
		return 0, eris.Errorf("load-features: unknown category %q", category)
	}

	feats, err := geo.ReadShapefile(path)
	if err != nil {
		return 0, err
	}
	source := filepath.Base(path)
	return features.LoadFeatures(ctx, pool, table, category, source, feats)
}

func init() {
	dataFetchCmd.Flags().StringVar(&fetchURL, "url", "", "http(s):// or ftp:// URL (required)")
	dataFetchCmd.Flags().StringVar(&fetchOut, "out", "", "destination file (required)")
	dataFetchCmd.Flags().BoolVar(&fetchExtract, "extract", false, "unzip the downloaded archive")
	dataFetchCmd.Flags().StringVar(&fetchExtractDir, "extract-dir", "", "extraction directory (default: next to --out)")
	dataFetchCmd.Flags().StringSliceVar(&fetchExts, "ext", nil, "only extract files with these extensions, e.g. .asc,.shp,.shx,.dbf")
	dataFetchCmd.Flags().BoolVar(&fetchForce, "force", false, "download even if the remote ETag is unchanged")
	_ = dataFetchCmd.MarkFlagRequired("url")
	_ = dataFetchCmd.MarkFlagRequired("out")

	dataLoadFeaturesCmd.Flags().StringVar(&loadShapefile, "shapefile", "", "path to the .shp file (required)")
	dataLoadFeaturesCmd.Flags().StringVar(&loadCategory, "category", "", "feature category: industrial, drain_outfall, landfill, major_highway (required)")
	dataLoadFeaturesCmd.Flags().StringVar(&loadTable, "table", "", "target table (default sources.nearest.table)")
	_ = dataLoadFeaturesCmd.MarkFlagRequired("shapefile")
	_ = dataLoadFeaturesCmd.MarkFlagRequired("category")

	dataCmd.AddCommand(dataFetchCmd, dataMigrateCmd, dataLoadFeaturesCmd)
	rootCmd.AddCommand(dataCmd)
}
