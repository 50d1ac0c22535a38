package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/hmpi-cli/internal/hmpi"
	"github.com/sells-group/hmpi-cli/internal/model"
	"github.com/sells-group/hmpi-cli/internal/predictor"
	"github.com/sells-group/hmpi-cli/internal/store"
)

// Messages of the /api/predict contract.
const (
	msgModelUnavailable = "ML model is not available on the server."
	msgPredictFailed    = "An error occurred during prediction: "
)

type locationRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

type hmpiRequest struct {
	Concentrations map[string]float64 `json:"concentrations" validate:"required,min=1"`
}

type listQuery struct {
	Limit  int    `json:"limit" validate:"gte=0,lte=1000"`
	Offset int    `json:"offset" validate:"gte=0"`
	Kind   string `json:"kind" validate:"omitempty,oneof=location record"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ready"}
	if s.breakers != nil {
		body["circuits"] = s.breakers.States()
	}
	if err := s.svc.Ready(r.Context()); err != nil {
		body["status"] = "unavailable"
		body["error"] = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// handlePredict takes a raw feature record and answers {"predicted_hmpi": x}.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if !s.requireModel(w) {
		return
	}
	var record map[string]any
	if err := decodeBody(w, r, &record); err != nil {
		writeError(w, http.StatusBadRequest, msgPredictFailed+err.Error())
		return
	}

	p, err := s.svc.PredictRecord(r.Context(), record)
	if errors.Is(err, predictor.ErrModelUnavailable) {
		writeError(w, http.StatusInternalServerError, msgModelUnavailable)
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, msgPredictFailed+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"predicted_hmpi": p.HMPI})
}

func (s *Server) handlePredictLocation(w http.ResponseWriter, r *http.Request) {
	if !s.requireModel(w) {
		return
	}
	var req locationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeValidation(w, err)
		return
	}

	p, err := s.svc.PredictLocation(r.Context(), *req.Latitude, *req.Longitude)
	if errors.Is(err, predictor.ErrModelUnavailable) {
		writeError(w, http.StatusInternalServerError, msgModelUnavailable)
		return
	}
	if err != nil {
		zap.L().Error("api: predict location", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgPredictFailed+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// requireModel answers 500 before the body is read when no model is loaded.
func (s *Server) requireModel(w http.ResponseWriter) bool {
	if _, ok := s.svc.ModelInfo(); ok {
		return true
	}
	writeError(w, http.StatusInternalServerError, msgModelUnavailable)
	return false
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	params := []struct {
		name string
		dst  **float64
	}{{"lat", &req.Latitude}, {"lon", &req.Longitude}}
	for _, p := range params {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.name+": "+raw)
			return
		}
		*p.dst = &v
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeValidation(w, err)
		return
	}

	fs, err := s.svc.Features(r.Context(), *req.Latitude, *req.Longitude)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

func (s *Server) handleHMPI(w http.ResponseWriter, r *http.Request) {
	var req hmpiRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeValidation(w, err)
		return
	}

	v, err := hmpi.Compute(req.Concentrations)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"hmpi": model.RoundHMPI(v)})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var lq listQuery
	params := []struct {
		name string
		dst  *int
	}{{"limit", &lq.Limit}, {"offset", &lq.Offset}}
	for _, p := range params {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+p.name+": "+raw)
			return
		}
		*p.dst = n
	}
	lq.Kind = q.Get("kind")
	if err := s.validate.Struct(lq); err != nil {
		s.writeValidation(w, err)
		return
	}

	preds, err := s.svc.List(r.Context(), store.ListFilter{
		Kind:   model.PredictionKind(lq.Kind),
		Limit:  lq.Limit,
		Offset: lq.Offset,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if preds == nil {
		preds = []model.Prediction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": preds, "count": len(preds)})
}

func (s *Server) handleGetPrediction(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	info, ok := s.svc.ModelInfo()
	if !ok {
		writeError(w, http.StatusInternalServerError, msgModelUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "prediction not found")
	case errors.Is(err, predictor.ErrHistoryDisabled):
		writeError(w, http.StatusServiceUnavailable, "prediction history is disabled")
	default:
		zap.L().Error("api: store", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
