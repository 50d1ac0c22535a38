package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "predict", "features", "batch", "index", "data", "cache"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "hmpi", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestDataCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range dataCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"fetch", "migrate", "load-features"} {
		assert.True(t, names[name], "data should have subcommand %q", name)
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		lookups func(string) bool
	}{
		{"serve", []string{"port"}, func(f string) bool { return serveCmd.Flags().Lookup(f) != nil }},
		{"predict", []string{"lat", "lon"}, func(f string) bool { return predictCmd.Flags().Lookup(f) != nil }},
		{"features", []string{"lat", "lon"}, func(f string) bool { return featuresCmd.Flags().Lookup(f) != nil }},
		{"batch", []string{"input", "output", "concurrency", "lat-col", "lon-col"}, func(f string) bool { return batchCmd.Flags().Lookup(f) != nil }},
		{"data fetch", []string{"url", "out", "extract", "extract-dir", "ext", "force"}, func(f string) bool { return dataFetchCmd.Flags().Lookup(f) != nil }},
		{"data load-features", []string{"shapefile", "category", "table"}, func(f string) bool { return dataLoadFeaturesCmd.Flags().Lookup(f) != nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, f := range tt.flags {
				assert.True(t, tt.lookups(f), "%s should have --%s", tt.name, f)
			}
		})
	}
}

func TestBatchCommand_FlagDefaults(t *testing.T) {
	flag := batchCmd.Flags().Lookup("lat-col")
	require.NotNil(t, flag)
	assert.Equal(t, "latitude", flag.DefValue)

	flag = batchCmd.Flags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "-", flag.DefValue)
}

func TestServeCommand_PortDefault(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestDataFetchCommand_DocumentsGeoTIFF(t *testing.T) {
	assert.Contains(t, dataFetchCmd.Long, "gdal_translate -of AAIGrid")
	assert.Contains(t, dataFetchCmd.Long, "raster2pgsql")
	assert.Contains(t, dataFetchCmd.Long, "features.population_density")
}
