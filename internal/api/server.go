// Package api is the HTTP front end for predictions.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/regression"
	"github.com/sells-group/hmpi-cli/internal/resilience"
	"github.com/sells-group/hmpi-cli/internal/store"
)

// Predictor is the prediction service the handlers call.
type Predictor interface {
	PredictLocation(ctx context.Context, lat, lon float64) (*model.Prediction, error)
	PredictRecord(ctx context.Context, record map[string]any) (*model.Prediction, error)
	Features(ctx context.Context, lat, lon float64) (*model.FeatureSet, error)
	Get(ctx context.Context, id string) (*model.Prediction, error)
	List(ctx context.Context, filter store.ListFilter) ([]model.Prediction, error)
	ModelInfo() (regression.Info, bool)
	Ready(ctx context.Context) error
}

// Options configures the router.
type Options struct {
	// AllowedOrigins for CORS; empty allows every origin.
	AllowedOrigins []string
	// RequestTimeout bounds each request. Zero means 90s.
	RequestTimeout time.Duration
	// Breakers, when set, are reported by /ready.
	Breakers *resilience.ServiceBreakers
}

// Server holds the handler dependencies.
type Server struct {
	svc      Predictor
	validate *validator.Validate
	breakers *resilience.ServiceBreakers
}

// NewRouter builds the HTTP handler.
func NewRouter(svc Predictor, opts Options) http.Handler {
	s := &Server{svc: svc, validate: newValidator(), breakers: opts.Breakers}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/predict", s.handlePredict)
		r.Post("/predict/location", s.handlePredictLocation)
		r.Get("/features", s.handleFeatures)
		r.Post("/hmpi", s.handleHMPI)
		r.Get("/predictions", s.handleListPredictions)
		r.Get("/predictions/{id}", s.handleGetPrediction)
		r.Get("/model", s.handleModel)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// requestLogger logs one line per request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("api: request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
