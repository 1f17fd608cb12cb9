package inference

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"obesityserve/ml"
)

// Error kinds reported to an Observer.
const (
	KindValidation       = "validation"
	KindEncoding         = "encoding"
	KindModelUnavailable = "model_unavailable"
	KindModel            = "model"
)

// Outcome is one served prediction.
type Outcome struct {
	RequestID    string
	ModelVersion string
	Prediction   ml.Prediction
	Features     ml.FeatureVector
	Cached       bool
	Latency      time.Duration
	At           time.Time
}

// Sink receives every successful outcome. Sink failures are logged and never
// fail the request.
type Sink interface {
	Consume(ctx context.Context, o Outcome) error
}

// Observer is told about every request, successful or not.
type Observer interface {
	ObserveOutcome(o Outcome)
	ObserveError(kind, field string)
}

type Options struct {
	// CacheSize bounds the prediction cache; 0 disables it.
	CacheSize int
	Sinks     []Sink
	Observer  Observer
	Logger    *zap.Logger
}

// Service runs the validate, encode, classify path against the registry's
// current artifact.
type Service struct {
	registry *Registry
	cache    *lru.Cache[string, ml.Prediction]
	sinks    []Sink
	observer Observer
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(registry *Registry, opts Options) (*Service, error) {
	s := &Service{
		registry: registry,
		sinks:    opts.Sinks,
		observer: opts.Observer,
		logger:   opts.Logger,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, ml.Prediction](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Registry returns the registry the service reads from.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Predict validates a JSON request body and classifies it.
func (s *Service) Predict(ctx context.Context, body []byte) (Outcome, error) {
	if _, err := s.registry.Artifact(); err != nil {
		s.observeError(KindModelUnavailable, "")
		return Outcome{}, err
	}
	rec, err := ml.ParseRecord(body)
	if err != nil {
		var verr *ml.ValidationError
		if errors.As(err, &verr) {
			for _, fe := range verr.Errors {
				s.observeError(KindValidation, fe.Field)
			}
		}
		return Outcome{}, err
	}
	return s.PredictRecord(ctx, rec)
}

// PredictRecord classifies an already validated record.
func (s *Service) PredictRecord(ctx context.Context, rec ml.RawRecord) (Outcome, error) {
	start := s.now()
	artifact, err := s.registry.Artifact()
	if err != nil {
		s.observeError(KindModelUnavailable, "")
		return Outcome{}, err
	}

	features, err := artifact.Encode(rec)
	if err != nil {
		field := ""
		var eerr *ml.EncodingError
		if errors.As(err, &eerr) {
			field = eerr.Field
		}
		s.observeError(KindEncoding, field)
		s.logger.Error("encoding failed on a validated record", zap.Error(err),
			zap.String("request_id", RequestID(ctx)))
		return Outcome{}, err
	}

	prediction, cached, err := s.classify(artifact, features)
	if err != nil {
		s.observeError(KindModel, "")
		s.logger.Error("model prediction failed", zap.Error(err),
			zap.String("model_version", artifact.Version()),
			zap.String("request_id", RequestID(ctx)))
		return Outcome{}, err
	}

	outcome := Outcome{
		RequestID:    RequestID(ctx),
		ModelVersion: artifact.Version(),
		Prediction:   prediction,
		Features:     features,
		Cached:       cached,
		Latency:      s.now().Sub(start),
		At:           start,
	}
	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, outcome); err != nil {
			s.logger.Warn("prediction sink failed", zap.Error(err), zap.String("request_id", outcome.RequestID))
		}
	}
	if s.observer != nil {
		s.observer.ObserveOutcome(outcome)
	}
	return outcome, nil
}

func (s *Service) classify(artifact *ml.Artifact, features ml.FeatureVector) (ml.Prediction, bool, error) {
	if s.cache == nil {
		p, err := artifact.Classify(features)
		return p, false, err
	}
	key := cacheKey(artifact, features)
	if p, ok := s.cache.Get(key); ok {
		return clonePrediction(p), true, nil
	}
	p, err := artifact.Classify(features)
	if err != nil {
		return ml.Prediction{}, false, err
	}
	s.cache.Add(key, clonePrediction(p))
	return p, false, nil
}

func cacheKey(artifact *ml.Artifact, features ml.FeatureVector) string {
	id := artifact.Checksum()
	if id == "" {
		id = fmt.Sprintf("%p", artifact)
	}
	return id + "|" + features.Key()
}

func clonePrediction(p ml.Prediction) ml.Prediction {
	p.AllProbabilities = maps.Clone(p.AllProbabilities)
	return p
}

func (s *Service) observeError(kind, field string) {
	if s.observer != nil {
		s.observer.ObserveError(kind, field)
	}
}
