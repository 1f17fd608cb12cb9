// Package inference wires the validator, the encoder and the loaded model into
// the request path.
package inference

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"obesityserve/ml"
)

// ErrModelUnavailable is returned while no artifact is loaded.
var ErrModelUnavailable = errors.New("model not loaded")

// Registry holds the artifact served to requests. Artifacts are immutable; a
// reload builds a complete replacement and swaps the pointer.
type Registry struct {
	current  atomic.Pointer[ml.Artifact]
	loadedAt atomic.Int64
	path     string
	logger   *zap.Logger
}

// NewRegistry creates an empty registry for the artifact at path.
func NewRegistry(path string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{path: path, logger: logger}
}

// Path is the artifact file this registry loads.
func (r *Registry) Path() string {
	return r.path
}

// Load reads the artifact file. On failure the previous artifact, if any, stays
// in service.
func (r *Registry) Load() error {
	artifact, err := ml.LoadArtifact(r.path)
	if err != nil {
		return fmt.Errorf("load model %s: %w", r.path, err)
	}
	r.Set(artifact)
	return nil
}

// Set installs an already built artifact.
func (r *Registry) Set(artifact *ml.Artifact) {
	prev := r.current.Swap(artifact)
	r.loadedAt.Store(time.Now().UnixNano())

	fields := []zap.Field{
		zap.String("version", artifact.Version()),
		zap.String("model_type", artifact.ModelType()),
		zap.Int("features", len(artifact.FeatureNames())),
		zap.Strings("classes", artifact.Classes()),
		zap.Strings("mtrans_order", artifact.Encoder().TransportModes()),
	}
	if prev != nil {
		fields = append(fields, zap.String("previous_version", prev.Version()))
	}
	r.logger.Info("model loaded", fields...)
	if !artifact.OneHotDeclared() {
		r.logger.Warn("artifact does not declare its one-hot order, using canonical MTRANS order",
			zap.String("reference", artifact.Encoder().Reference()))
	}
}

// Artifact returns the artifact in service or ErrModelUnavailable.
func (r *Registry) Artifact() (*ml.Artifact, error) {
	a := r.current.Load()
	if a == nil {
		return nil, ErrModelUnavailable
	}
	return a, nil
}

// Ready reports whether an artifact is loaded.
func (r *Registry) Ready() bool {
	return r.current.Load() != nil
}

// LoadedAt is the time the current artifact was installed.
func (r *Registry) LoadedAt() time.Time {
	ns := r.loadedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
