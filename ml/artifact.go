package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// artifactFile is the on-disk JSON layout of a trained model.
type artifactFile struct {
	Version      string              `json:"version"`
	ModelType    string              `json:"model_type"`
	FeatureNames []string            `json:"feature_names"`
	Classes      []string            `json:"classes"`
	OneHot       map[string][]string `json:"one_hot,omitempty"`
	Model        json.RawMessage     `json:"model"`
}

// Artifact is a loaded model bundle: the frozen feature list, the class labels,
// the one-hot convention it was trained with and the classifier itself. It is
// immutable once built and safe to share between goroutines.
type Artifact struct {
	version      string
	modelType    string
	checksum     string
	featureNames []string
	classes      []string
	oneHotSet    bool
	encoder      *Encoder
	model        Classifier
}

// ArtifactInfo describes an artifact for status endpoints.
type ArtifactInfo struct {
	Version      string              `json:"version"`
	ModelType    string              `json:"model_type"`
	Checksum     string              `json:"checksum"`
	FeatureNames []string            `json:"feature_names"`
	Classes      []string            `json:"classes"`
	OneHot       map[string][]string `json:"one_hot"`
	Probability  bool                `json:"supports_probabilities"`
}

// LoadArtifact reads an artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ReadArtifact reads an artifact from r.
func ReadArtifact(r io.Reader) (*Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes and checks an artifact document.
func ParseArtifact(data []byte) (*Artifact, error) {
	var file artifactFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}

	encoder := DefaultEncoder()
	oneHotSet := false
	for field, order := range file.OneHot {
		if field != FieldMTRANS {
			return nil, fmt.Errorf("artifact declares one-hot order for unsupported field %q", field)
		}
		enc, err := NewEncoder(order)
		if err != nil {
			return nil, fmt.Errorf("artifact %s: %w", file.Version, err)
		}
		encoder = enc
		oneHotSet = true
	}

	if err := checkNames("feature", file.FeatureNames); err != nil {
		return nil, err
	}
	if err := checkNames("class", file.Classes); err != nil {
		return nil, err
	}
	model, err := LoadModel(file.ModelType, file.Model, len(file.FeatureNames), len(file.Classes))
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", file.Version, err)
	}

	sum := sha256.Sum256(data)
	a, err := NewArtifact(file.Version, file.ModelType, file.FeatureNames, file.Classes, encoder, model)
	if err != nil {
		return nil, err
	}
	a.checksum = hex.EncodeToString(sum[:])
	a.oneHotSet = oneHotSet
	return a, nil
}

// NewArtifact assembles an artifact from already built parts. A nil encoder
// means the canonical one-hot order.
func NewArtifact(version, modelType string, featureNames, classes []string, encoder *Encoder, model Classifier) (*Artifact, error) {
	if model == nil {
		return nil, errors.New("artifact has no model")
	}
	if err := checkNames("feature", featureNames); err != nil {
		return nil, err
	}
	if err := checkNames("class", classes); err != nil {
		return nil, err
	}
	if encoder == nil {
		encoder = DefaultEncoder()
	}
	return &Artifact{
		version:      version,
		modelType:    modelType,
		featureNames: slices.Clone(featureNames),
		classes:      slices.Clone(classes),
		encoder:      encoder,
		model:        model,
	}, nil
}

func checkNames(kind string, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("artifact has no %s names", kind)
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("artifact has an empty %s name", kind)
		}
		if seen[name] {
			return fmt.Errorf("artifact repeats %s name %q", kind, name)
		}
		seen[name] = true
	}
	return nil
}

func (a *Artifact) Version() string   { return a.version }
func (a *Artifact) ModelType() string { return a.modelType }
func (a *Artifact) Checksum() string  { return a.checksum }
func (a *Artifact) Encoder() *Encoder { return a.encoder }

// FeatureNames returns the frozen training-time feature order.
func (a *Artifact) FeatureNames() []string {
	return slices.Clone(a.featureNames)
}

func (a *Artifact) Classes() []string {
	return slices.Clone(a.classes)
}

// OneHotDeclared reports whether the artifact carried its own MTRANS order.
func (a *Artifact) OneHotDeclared() bool {
	return a.oneHotSet
}

func (a *Artifact) Info() ArtifactInfo {
	_, proba := a.model.(ProbabilityClassifier)
	return ArtifactInfo{
		Version:      a.version,
		ModelType:    a.modelType,
		Checksum:     a.checksum,
		FeatureNames: a.FeatureNames(),
		Classes:      a.Classes(),
		OneHot:       map[string][]string{FieldMTRANS: a.encoder.TransportModes()},
		Probability:  proba,
	}
}

// Encode encodes rec against this artifact's frozen feature list.
func (a *Artifact) Encode(rec RawRecord) (FeatureVector, error) {
	return a.encoder.Encode(rec, a.featureNames)
}

// Decode maps a class index to its label.
func (a *Artifact) Decode(idx int) (string, error) {
	if idx < 0 || idx >= len(a.classes) {
		return "", fmt.Errorf("class index %d out of range [0,%d)", idx, len(a.classes))
	}
	return a.classes[idx], nil
}

// Classify runs the model on an encoded vector. Models without probabilities
// report their prediction with confidence 1.
func (a *Artifact) Classify(v FeatureVector) (Prediction, error) {
	if v.Len() != len(a.featureNames) {
		return Prediction{}, fmt.Errorf("vector has %d features, model expects %d", v.Len(), len(a.featureNames))
	}
	idx, err := a.model.Predict(v)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: %w", err)
	}
	label, err := a.Decode(idx)
	if err != nil {
		return Prediction{}, err
	}

	pc, ok := a.model.(ProbabilityClassifier)
	if !ok {
		return Prediction{
			PredictedClass:   label,
			Confidence:       1.0,
			AllProbabilities: map[string]float64{label: 1.0},
		}, nil
	}
	probs, err := pc.PredictProba(v)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict probabilities: %w", err)
	}
	if len(probs) != len(a.classes) {
		return Prediction{}, fmt.Errorf("model returned %d probabilities for %d classes", len(probs), len(a.classes))
	}
	all := make(map[string]float64, len(probs))
	confidence := 0.0
	for i, p := range probs {
		all[a.classes[i]] = p
		confidence = max(confidence, p)
	}
	return Prediction{
		PredictedClass:   label,
		Confidence:       confidence,
		AllProbabilities: all,
	}, nil
}

// Predict encodes and classifies a validated record.
func (a *Artifact) Predict(rec RawRecord) (Prediction, FeatureVector, error) {
	v, err := a.Encode(rec)
	if err != nil {
		return Prediction{}, FeatureVector{}, err
	}
	p, err := a.Classify(v)
	if err != nil {
		return Prediction{}, v, err
	}
	return p, v, nil
}

// MarshalJSON writes the artifact in the layout ParseArtifact reads. The
// one-hot order is always declared.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	model, err := json.Marshal(a.model)
	if err != nil {
		return nil, fmt.Errorf("encode %s model: %w", a.modelType, err)
	}
	return json.Marshal(artifactFile{
		Version:      a.version,
		ModelType:    a.modelType,
		FeatureNames: a.featureNames,
		Classes:      a.classes,
		OneHot:       map[string][]string{FieldMTRANS: a.encoder.TransportModes()},
		Model:        model,
	})
}

// SaveArtifact writes a to path through a temporary file and a rename, so a
// server watching path never reads a partial artifact.
func SaveArtifact(path string, a *Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("save artifact: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
