package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obesityserve/ml"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func fakeService(t *testing.T, healthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"model not loaded"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy","model_loaded":true,"features_count":23}`))
	})
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in["MTRANS"] == nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"detail":[{"field":"MTRANS","constraint":"required"}]}`))
			return
		}
		w.Write([]byte(`{"predicted_class":"Normal_Weight","confidence":0.55,"all_probabilities":{"Normal_Weight":0.55}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthCommand(t *testing.T) {
	out, err := execute(t, "health", "--url", fakeService(t, true).URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "healthy"`)

	out, err = execute(t, "health", "--url", fakeService(t, false).URL)
	require.Error(t, err)
	assert.Contains(t, out, "model not loaded")
}

func TestPredictCommandSample(t *testing.T) {
	out, err := execute(t, "predict", "--url", fakeService(t, true).URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"predicted_class": "Normal_Weight"`)
	assert.Contains(t, out, "Normal Weight - Healthy weight range (confidence 55.0%)")
}

func TestPredictCommandRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Gender":"Male"}`), 0o600))

	out, err := execute(t, "predict", path, "--url", fakeService(t, true).URL)
	require.Error(t, err)
	assert.Contains(t, out, "MTRANS")
}

func TestEncodeCommand(t *testing.T) {
	out, err := execute(t, "encode")
	require.NoError(t, err)

	var vector map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &vector))
	assert.Len(t, vector, len(ml.CanonicalFeatureNames()))
	assert.Equal(t, 175.0, vector[ml.FieldHeightCMCat])
	assert.Equal(t, 0.33, vector[ml.FieldCAEC])
}

func TestEncodeCommandWithModel(t *testing.T) {
	model := filepath.Join("..", "..", "models", "obesity_model.json")
	out, err := execute(t, "encode", "--model", model, "--table")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 23)
	assert.Contains(t, lines[0], "Gender")
}

func TestEncodeCommandInvalidRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Age":500}`), 0o600))
	_, err := execute(t, "encode", path)
	var verr *ml.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has(ml.FieldAge))
}

func TestClassesCommand(t *testing.T) {
	out, err := execute(t, "classes")
	require.NoError(t, err)
	for _, label := range ml.ObesityLevels {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, "Obesity Type III - Severe obesity")
}
