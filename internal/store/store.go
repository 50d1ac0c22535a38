// Package store persists prediction history and caches data-source answers.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hmpi-cli/internal/model"
)

// ErrNotFound is returned when a prediction ID does not exist.
var ErrNotFound = eris.New("store: not found")

// ListFilter specifies criteria for listing predictions.
type ListFilter struct {
	Kind   model.PredictionKind `json:"kind,omitempty"`
	Limit  int                  `json:"limit,omitempty"`
	Offset int                  `json:"offset,omitempty"`
}

// DefaultListLimit caps ListPredictions when no limit is given.
const DefaultListLimit = 100

// Store defines persistence for predictions and the source cache.
type Store interface {
	// Predictions
	SavePrediction(ctx context.Context, p *model.Prediction) error
	GetPrediction(ctx context.Context, id string) (*model.Prediction, error)
	ListPredictions(ctx context.Context, filter ListFilter) ([]model.Prediction, error)

	// Source cache. A miss or an expired entry returns nil, nil.
	GetCachedSource(ctx context.Context, source, key string) ([]byte, error)
	SetCachedSource(ctx context.Context, source, key string, data []byte, ttl time.Duration) error
	DeleteExpiredSources(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store for driver. Driver "none" returns nil, nil.
func Open(ctx context.Context, driver, dsn string, maxConns int32) (Store, error) {
	switch driver {
	case "none", "":
		return nil, nil
	case "sqlite":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgres(ctx, dsn, maxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

func effectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
