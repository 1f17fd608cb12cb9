package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"obesityserve/db"
	"obesityserve/inference"
	"obesityserve/ml"
)

const defaultRecentLimit = 50

type handlers struct {
	service *inference.Service
	store   *db.Store
	logger  *zap.Logger
}

// RegisterHandlers installs every route on mux.
func RegisterHandlers(mux *http.ServeMux, deps Deps) {
	h := &handlers{service: deps.Service, store: deps.Store, logger: deps.Logger}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}

	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /predict", h.handlePredict)
	mux.HandleFunc("GET /model", h.handleModel)
	mux.HandleFunc("GET /predictions/recent", h.handleRecent)
	mux.HandleFunc("GET /predictions/stats", h.handleStats)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws/predictions", deps.Hub.ServeWS)
	}
}

type errorResponse struct {
	Detail any `json:"detail"`
}

type healthResponse struct {
	Status        string     `json:"status"`
	Message       string     `json:"message,omitempty"`
	ModelLoaded   bool       `json:"model_loaded"`
	FeaturesCount int        `json:"features_count,omitempty"`
	ModelVersion  string     `json:"model_version,omitempty"`
	LoadedAt      *time.Time `json:"loaded_at,omitempty"`
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": ServiceName,
		"version": ServiceVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"predict":            "/predict",
			"health":             "/health",
			"model":              "/model",
			"recent_predictions": "/predictions/recent",
			"prediction_stats":   "/predictions/stats",
			"metrics":            "/metrics",
			"feed":               "/ws/predictions",
		},
	})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	registry := h.service.Registry()
	artifact, err := registry.Artifact()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "error",
			Message: "model not loaded",
		})
		return
	}
	loadedAt := registry.LoadedAt().UTC()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		ModelLoaded:   true,
		FeaturesCount: len(artifact.FeatureNames()),
		ModelVersion:  artifact.Version(),
		LoadedAt:      &loadedAt,
	})
}

func (h *handlers) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return
	}

	out, err := h.service.Predict(r.Context(), body)
	if err != nil {
		h.writePredictError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out.Prediction)
}

func (h *handlers) writePredictError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ml.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: verr.Errors})
	case errors.Is(err, inference.ErrModelUnavailable):
		writeError(w, http.StatusServiceUnavailable, "model not loaded")
	default:
		h.logger.Error("prediction failed", zap.Error(err),
			zap.String("request_id", inference.RequestID(r.Context())))
		writeError(w, http.StatusInternalServerError, "prediction failed")
	}
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.service.Registry().Artifact()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "model not loaded")
		return
	}
	writeJSON(w, http.StatusOK, artifact.Info())
}

func (h *handlers) handleRecent(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "prediction log is disabled")
		return
	}
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(l, db.MaxRecent)
	}

	records, err := h.store.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.logger.Error("query recent predictions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cannot read prediction log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(records),
		"predictions": records,
	})
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "prediction log is disabled")
		return
	}
	counts, err := h.store.ClassCounts(r.Context())
	if err != nil {
		h.logger.Error("count predictions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cannot read prediction log")
		return
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":   total,
		"classes": counts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
