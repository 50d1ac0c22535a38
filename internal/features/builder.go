package features

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hmpi-cli/internal/model"
)

// Builder assembles a FeatureSet by calling every source concurrently.
type Builder struct {
	sources  []Source
	defaults map[string]float64
}

// NewBuilder creates a Builder. defaults is the fallback table, usually from
// Defaults; sources are called in parallel on every Build.
func NewBuilder(defaults map[string]float64, sources ...Source) *Builder {
	if defaults == nil {
		defaults, _ = Defaults(nil)
	}
	return &Builder{sources: sources, defaults: defaults}
}

// Sources returns the configured sources.
func (b *Builder) Sources() []Source {
	return b.sources
}

type sourceResult struct {
	value float64
	err   error
}

// Build assembles the features for loc. A failing source never fails the
// build: its feature takes the default and the failure is recorded in
// Fallbacks. The result does not depend on the order sources finish in.
func (b *Builder) Build(ctx context.Context, loc model.Location) *model.FeatureSet {
	fs := model.NewFeatureSet(loc)
	fs.Set(Latitude, loc.Latitude, SourceInput)
	fs.Set(Longitude, loc.Longitude, SourceInput)

	results := make([]sourceResult, len(b.sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range b.sources {
		g.Go(func() error {
			v, err := src.Value(gctx, loc)
			results[i] = sourceResult{value: v, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range b.sources {
		feature := src.Feature()
		if _, done := fs.Sources[feature]; done {
			continue
		}
		r := results[i]
		if r.err == nil {
			fs.Set(feature, r.value, src.Name())
			continue
		}

		zap.L().Warn("features: source failed, using default",
			zap.String("feature", feature),
			zap.String("source", src.Name()),
			zap.Error(r.err),
		)
		fs.Fallbacks = append(fs.Fallbacks, model.Fallback{
			Feature: feature,
			Source:  src.Name(),
			Reason:  r.err.Error(),
		})
	}

	// Whatever is still unset is either static or has no source configured.
	for _, name := range catalogue {
		if _, done := fs.Sources[name]; done {
			continue
		}
		if IsStatic(name) {
			fs.Set(name, b.defaults[name], model.SourceStatic)
			continue
		}
		fs.Set(name, b.defaults[name], model.SourceDefault)
	}
	return fs
}
