package ml

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestArtifact(t *testing.T, name string) *Artifact {
	t.Helper()
	a, err := LoadArtifact(filepath.Join("testdata", name))
	require.NoError(t, err)
	return a
}

func rewriteArtifact(t *testing.T, name string, mutate func(map[string]any)) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	mutate(doc)
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func TestLoadTreeArtifact(t *testing.T) {
	a := loadTestArtifact(t, "tree_artifact.json")
	assert.Equal(t, "2025.06-tree-1", a.Version())
	assert.Equal(t, ModelDecisionTree, a.ModelType())
	assert.Len(t, a.Checksum(), 64)
	assert.Equal(t, CanonicalFeatureNames(), a.FeatureNames())
	assert.Equal(t, ObesityLevels, a.Classes())
	assert.True(t, a.OneHotDeclared())
	assert.True(t, a.Info().Probability)
}

func TestTreeArtifactPredictSample(t *testing.T) {
	a := loadTestArtifact(t, "tree_artifact.json")
	p, v, err := a.Predict(SampleRecord())
	require.NoError(t, err)

	assert.Equal(t, a.FeatureNames(), v.Names())
	assert.Equal(t, "Normal_Weight", p.PredictedClass)
	assert.InDelta(t, 0.55, p.Confidence, 1e-12)
	assert.Len(t, p.AllProbabilities, 7)
	sum := 0.0
	for _, prob := range p.AllProbabilities {
		sum += prob
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestTreeArtifactHeavyRecord(t *testing.T) {
	a := loadTestArtifact(t, "tree_artifact.json")
	rec := SampleRecord()
	rec.Weight = 130
	p, _, err := a.Predict(rec)
	require.NoError(t, err)
	assert.Equal(t, "Obesity_Type_III", p.PredictedClass)
	assert.InDelta(t, 0.7, p.Confidence, 1e-12)
}

func TestLogisticArtifact(t *testing.T) {
	a := loadTestArtifact(t, "logistic_artifact.json")
	assert.False(t, a.OneHotDeclared())
	assert.Equal(t, TransportReference, a.Encoder().Reference())

	p, v, err := a.Predict(SampleRecord())
	require.NoError(t, err)
	assert.Equal(t, []float64{75, 0}, v.Values())
	assert.Equal(t, "Normal_Weight", p.PredictedClass)
	assert.InDelta(t, 0.7310585786, p.Confidence, 1e-9)

	rec := SampleRecord()
	rec.Weight = 100
	p, _, err = a.Predict(rec)
	require.NoError(t, err)
	assert.Equal(t, "Obesity_Type_I", p.PredictedClass)
}

func TestArtifactDeclaredOneHotOrderDrivesEncoding(t *testing.T) {
	data := rewriteArtifact(t, "logistic_artifact.json", func(doc map[string]any) {
		doc["one_hot"] = map[string]any{
			"MTRANS": []string{"Automobile", "Bike", "Motorbike", "Public_Transportation", "Walking"},
		}
		doc["feature_names"] = []string{"Weight_cat", "MTRANS_Public_Transportation"}
	})
	a, err := ParseArtifact(data)
	require.NoError(t, err)
	assert.Equal(t, "Automobile", a.Encoder().Reference())

	v, err := a.Encode(SampleRecord())
	require.NoError(t, err)
	assert.Equal(t, []float64{75, 1}, v.Values())
}

func TestParseArtifactRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{"unknown model type", func(d map[string]any) { d["model_type"] = "svm" }, "unsupported model type"},
		{"no features", func(d map[string]any) { d["feature_names"] = []string{} }, "no feature names"},
		{"duplicate feature", func(d map[string]any) { d["feature_names"] = []string{"Age", "Age"} }, "repeats feature"},
		{"duplicate class", func(d map[string]any) { d["classes"] = []string{"a", "a"} }, "repeats class"},
		{"shape mismatch", func(d map[string]any) { d["classes"] = []string{"a", "b", "c"} }, "coefficient rows"},
		{"missing model", func(d map[string]any) { delete(d, "model") }, "model body is empty"},
		{"one-hot drift", func(d map[string]any) {
			d["one_hot"] = map[string]any{"MTRANS": []string{"Automobile", "Walking", "Motorbike", "Bike"}}
		}, "one-hot order"},
		{"one-hot unknown field", func(d map[string]any) {
			d["one_hot"] = map[string]any{"CAEC": []string{"no"}}
		}, "unsupported field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArtifact(rewriteArtifact(t, "logistic_artifact.json", tt.mutate))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := ParseArtifact([]byte("not json"))
	assert.Error(t, err)
	_, err = ReadArtifact(strings.NewReader("{}"))
	assert.Error(t, err)
	_, err = LoadArtifact(filepath.Join("testdata", "missing.json"))
	assert.Error(t, err)
}

type labelOnly struct{ label int }

func (m labelOnly) Predict(FeatureVector) (int, error) { return m.label, nil }

func TestClassifyWithoutProbabilities(t *testing.T) {
	a, err := NewArtifact("v", "custom", []string{"Age"}, []string{"low", "high"}, nil, labelOnly{label: 1})
	require.NoError(t, err)

	p, _, err := a.Predict(SampleRecord())
	require.NoError(t, err)
	assert.Equal(t, Prediction{
		PredictedClass:   "high",
		Confidence:       1.0,
		AllProbabilities: map[string]float64{"high": 1.0},
	}, p)
	assert.False(t, a.Info().Probability)
}

func TestClassifyRejectsBadIndexAndShape(t *testing.T) {
	a, err := NewArtifact("v", "custom", []string{"Age"}, []string{"only"}, nil, labelOnly{label: 3})
	require.NoError(t, err)
	_, _, err = a.Predict(SampleRecord())
	assert.Error(t, err)

	_, err = a.Classify(NewFeatureVector([]string{"a", "b"}, []float64{1, 2}))
	assert.Error(t, err)

	_, err = a.Decode(-1)
	assert.Error(t, err)
}
