package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obesityserve/db"
	"obesityserve/inference"
	"obesityserve/ml"
	"obesityserve/monitoring"
)

type testEnv struct {
	handler http.Handler
	store   *db.Store
	metrics *monitoring.Metrics
}

func newEnv(t *testing.T, loaded bool, withStore bool) *testEnv {
	t.Helper()
	registry := inference.NewRegistry(filepath.Join("testdata", "model.json"), nil)
	if loaded {
		require.NoError(t, registry.Load())
	}

	env := &testEnv{metrics: monitoring.NewMetrics(registry.Ready)}
	var sinks []inference.Sink
	if withStore {
		store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		env.store = store
		sinks = append(sinks, store)
	}
	svc, err := inference.NewService(registry, inference.Options{
		CacheSize: 16,
		Sinks:     sinks,
		Observer:  env.metrics,
	})
	require.NoError(t, err)

	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 2048
	env.handler = NewServer(cfg, Deps{Service: svc, Store: env.store, Metrics: env.metrics}).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func sampleJSON(t *testing.T, mutate func(map[string]any)) []byte {
	t.Helper()
	data, err := json.Marshal(ml.SampleRecord().Input())
	require.NoError(t, err)
	if mutate == nil {
		return data
	}
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	mutate(m)
	data, err = json.Marshal(m)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

func TestHealthHandler(t *testing.T) {
	rr := newEnv(t, true, false).do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	payload := decode(t, rr)
	assert.Equal(t, "healthy", payload["status"])
	assert.Equal(t, true, payload["model_loaded"])
	assert.Equal(t, float64(23), payload["features_count"])
	assert.Equal(t, "2025.06-tree-1", payload["model_version"])
}

func TestHealthWithoutModel(t *testing.T) {
	rr := newEnv(t, false, false).do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, "error", payload["status"])
	assert.Equal(t, false, payload["model_loaded"])
	assert.NotEmpty(t, payload["message"])
}

func TestRootHandler(t *testing.T) {
	env := newEnv(t, true, false)
	rr := env.do(t, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, ServiceName, payload["message"])
	assert.Equal(t, "running", payload["status"])

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nothing-here", nil).Code)
}

func TestPredictSample(t *testing.T) {
	rr := newEnv(t, true, false).do(t, http.MethodPost, "/predict", sampleJSON(t, nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var pred ml.Prediction
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &pred))
	assert.Equal(t, "Normal_Weight", pred.PredictedClass)
	assert.InDelta(t, 0.55, pred.Confidence, 1e-9)
	assert.Len(t, pred.AllProbabilities, len(ml.ObesityLevels))

	sum := 0.0
	for _, p := range pred.AllProbabilities {
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestPredictValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		fields []string
	}{
		{"age above range", sampleJSON(t, func(m map[string]any) { m["Age"] = 120.01 }), []string{ml.FieldAge}},
		{"height above range", sampleJSON(t, func(m map[string]any) { m["Height"] = 3.01 }), []string{ml.FieldHeight}},
		{"missing weight", sampleJSON(t, func(m map[string]any) { delete(m, "Weight") }), []string{ml.FieldWeight}},
		{"unknown transport", sampleJSON(t, func(m map[string]any) { m["MTRANS"] = "Train" }), []string{ml.FieldMTRANS}},
		{"two violations", sampleJSON(t, func(m map[string]any) {
			m["Gender"] = "Other"
			m["FCVC"] = 4
		}), []string{ml.FieldGender, ml.FieldFCVC}},
		{"malformed", []byte(`{"Gender":`), []string{ml.BodyField}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := newEnv(t, true, false).do(t, http.MethodPost, "/predict", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rr.Code, rr.Body.String())

			var resp struct {
				Detail []ml.FieldError `json:"detail"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			got := make([]string, len(resp.Detail))
			for i, fe := range resp.Detail {
				got[i] = fe.Field
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestPredictBoundaryAccepted(t *testing.T) {
	env := newEnv(t, true, false)
	body := sampleJSON(t, func(m map[string]any) {
		m["Age"] = 120
		m["Height"] = 3.0
	})
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/predict", body).Code)
}

func TestPredictWithoutModel(t *testing.T) {
	rr := newEnv(t, false, false).do(t, http.MethodPost, "/predict", sampleJSON(t, nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "model not loaded", decode(t, rr)["detail"])
}

func TestPredictBodyTooLarge(t *testing.T) {
	body := []byte(`{"Gender":"` + strings.Repeat("x", 4096) + `"}`)
	rr := newEnv(t, true, false).do(t, http.MethodPost, "/predict", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestPredictMethodNotAllowed(t *testing.T) {
	rr := newEnv(t, true, false).do(t, http.MethodGet, "/predict", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestModelHandler(t *testing.T) {
	rr := newEnv(t, true, false).do(t, http.MethodGet, "/model", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var info ml.ArtifactInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, ml.ModelDecisionTree, info.ModelType)
	assert.Equal(t, ml.ObesityLevels, info.Classes)
	assert.Equal(t, ml.TransportModes(), info.OneHot[ml.FieldMTRANS])
	assert.True(t, info.Probability)
	assert.Len(t, info.Checksum, 64)

	assert.Equal(t, http.StatusServiceUnavailable, newEnv(t, false, false).do(t, http.MethodGet, "/model", nil).Code)
}

func TestPredictionLogRoutes(t *testing.T) {
	env := newEnv(t, true, true)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/predict", sampleJSON(t, nil)).Code)
	}
	heavy := sampleJSON(t, func(m map[string]any) { m["Weight"] = 130 })
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/predict", heavy).Code)

	rr := env.do(t, http.MethodGet, "/predictions/recent?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var recent struct {
		Count       int                   `json:"count"`
		Predictions []db.PredictionRecord `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &recent))
	assert.Equal(t, 2, recent.Count)
	assert.Equal(t, "Obesity_Type_III", recent.Predictions[0].PredictedClass)
	assert.NotEmpty(t, recent.Predictions[0].RequestID)

	rr = env.do(t, http.MethodGet, "/predictions/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats struct {
		Total   int64           `json:"total"`
		Classes []db.ClassCount `json:"classes"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, db.ClassCount{Class: "Normal_Weight", Count: 3}, stats.Classes[0])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/predictions/recent?limit=abc", nil).Code)
}

func TestPredictionLogDisabled(t *testing.T) {
	env := newEnv(t, true, false)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/predictions/recent", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/predictions/stats", nil).Code)
}

func TestMetricsRoute(t *testing.T) {
	env := newEnv(t, true, false)
	env.do(t, http.MethodPost, "/predict", sampleJSON(t, nil))
	env.do(t, http.MethodPost, "/predict", sampleJSON(t, func(m map[string]any) { m["Age"] = -1 }))

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `obesity_inference_predictions_total{class="Normal_Weight",model_version="2025.06-tree-1"} 1`)
	assert.Contains(t, body, `obesity_inference_errors_total{field="Age",kind="validation"} 1`)
	assert.Contains(t, body, "obesity_model_ready 1")
}

func TestConcurrentPredictions(t *testing.T) {
	env := newEnv(t, true, false)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	body := sampleJSON(t, nil)
	codes := make(chan int, 20)
	for i := 0; i < 20; i++ {
		go func() {
			req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/predict", bytes.NewReader(body))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, <-codes)
	}
}
