package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/features"
	"github.com/sells-group/hmpi-cli/internal/predictor"
	"github.com/sells-group/hmpi-cli/internal/regression"
	"github.com/sells-group/hmpi-cli/internal/resilience"
	"github.com/sells-group/hmpi-cli/internal/store"
)

// appEnv bundles what the prediction commands share.
type appEnv struct {
	Store     store.Store // nil when store.driver is "none"
	Breakers  *resilience.ServiceBreakers
	Predictor *predictor.Service
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store. It returns nil, nil
// when persistence is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, cfg.Store.MaxConns)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		return nil, nil
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initGuard builds the retry and circuit breaker settings shared by every
// external data source.
func initGuard() *resilience.Guard {
	rc := cfg.Resilience
	retry := resilience.FromRetryConfig(rc.MaxAttempts, rc.InitialBackoffMs, rc.MaxBackoffMs, rc.Multiplier, rc.JitterFraction)
	breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(rc.FailureThreshold, rc.ResetTimeoutSecs))
	return resilience.NewGuard(breakers, retry)
}

// initEnv validates the config for mode and wires the store, feature
// sources, model and predictor. A model that fails to load is logged and
// left unset so the server can still report health and serve /api/hmpi.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	guard := initGuard()
	deps := features.Deps{Store: st, Guard: guard}
	if pg, ok := st.(*store.PostgresStore); ok {
		deps.Pool = pg.Pool()
	}

	builder, err := features.NewBuilderFromConfig(cfg, deps)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, eris.Wrap(err, "build feature sources")
	}

	m, err := regression.Load(cfg.Model.Path, regression.LoadOptions{
		ColumnsPath:    cfg.Model.ColumnsPath,
		DefaultColumns: features.Names(),
	})
	if err != nil {
		zap.L().Error("model failed to load, predictions disabled",
			zap.String("path", cfg.Model.Path),
			zap.Error(err),
		)
	} else {
		info := m.Info()
		zap.L().Info("model loaded",
			zap.String("path", info.Path),
			zap.String("kind", string(info.Kind)),
			zap.Int("columns", len(info.Columns)),
			zap.Int("trees", info.Trees),
		)
	}

	return &appEnv{
		Store:     st,
		Breakers:  guard.Breakers(),
		Predictor: predictor.New(m, builder, st),
	}, nil
}

func secondsOr(n int, fallback time.Duration) time.Duration {
	if n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// writeJSON pretty-prints v.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
