package ml

import (
	"fmt"
	"math"
	"slices"
)

// EncodingError is an internal consistency fault: a stage found a source column
// missing or holding a value its table does not map. Validated records never
// produce one.
type EncodingError struct {
	Stage  string
	Field  string
	Value  string
	Reason string
}

func (e *EncodingError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("encode %s: field %s: %s", e.Stage, e.Field, e.Reason)
	}
	return fmt.Sprintf("encode %s: field %s value %q: %s", e.Stage, e.Field, e.Value, e.Reason)
}

// Encoder turns validated records into feature vectors. It holds only the
// one-hot category order and is safe for concurrent use.
type Encoder struct {
	transport []string
}

var defaultEncoder = &Encoder{transport: TransportModes()}

// DefaultEncoder uses the canonical MTRANS order.
func DefaultEncoder() *Encoder {
	return defaultEncoder
}

// NewEncoder builds an encoder whose MTRANS one-hot follows order; order[0] is the
// reference category. order must be a permutation of TransportModes().
func NewEncoder(order []string) (*Encoder, error) {
	canonical := TransportModes()
	if len(order) != len(canonical) {
		return nil, fmt.Errorf("one-hot order for %s has %d categories, want %d", FieldMTRANS, len(order), len(canonical))
	}
	seen := make(map[string]bool, len(order))
	for _, category := range order {
		if !slices.Contains(canonical, category) {
			return nil, fmt.Errorf("one-hot order for %s: unknown category %q", FieldMTRANS, category)
		}
		if seen[category] {
			return nil, fmt.Errorf("one-hot order for %s: duplicate category %q", FieldMTRANS, category)
		}
		seen[category] = true
	}
	return &Encoder{transport: slices.Clone(order)}, nil
}

// TransportModes returns the MTRANS order this encoder expands.
func (e *Encoder) TransportModes() []string {
	return slices.Clone(e.transport)
}

// Reference returns the MTRANS category encoded as all zeros.
func (e *Encoder) Reference() string {
	return e.transport[0]
}

// IndicatorNames returns the MTRANS_* columns this encoder produces.
func (e *Encoder) IndicatorNames() []string {
	names := make([]string, 0, len(e.transport)-1)
	for _, category := range e.transport[1:] {
		names = append(names, IndicatorName(category))
	}
	return names
}

// Encode runs every stage and reconciles the result against featureNames.
func (e *Encoder) Encode(rec RawRecord, featureNames []string) (FeatureVector, error) {
	fields, err := e.Fields(rec)
	if err != nil {
		return FeatureVector{}, err
	}
	return Reconcile(fields, featureNames), nil
}

// Fields runs the encoding stages and returns every numeric column they produce,
// before reconciliation.
func (e *Encoder) Fields(rec RawRecord) (map[string]float64, error) {
	f := rec.frame()
	stages := []func(*frame) error{
		encodeBinary,
		encodeOrdinal,
		deriveHeightCM,
		discretize,
		e.expandTransport,
	}
	for _, stage := range stages {
		if err := stage(f); err != nil {
			return nil, err
		}
	}
	return f.numeric, nil
}

// Encode encodes rec with the canonical MTRANS order.
func Encode(rec RawRecord, featureNames []string) (FeatureVector, error) {
	return defaultEncoder.Encode(rec, featureNames)
}

func encodeBinary(f *frame) error {
	for _, field := range binaryFields {
		if err := f.mapCategorical("binary", field, binaryMaps[field]); err != nil {
			return err
		}
	}
	return nil
}

func encodeOrdinal(f *frame) error {
	for _, field := range ordinalFields {
		if err := f.mapCategorical("ordinal", field, ordinalMaps[field]); err != nil {
			return err
		}
	}
	return nil
}

func deriveHeightCM(f *frame) error {
	height, ok := f.numeric[FieldHeight]
	if !ok {
		return &EncodingError{Stage: "unit", Field: FieldHeight, Reason: "missing"}
	}
	f.numeric[FieldHeightCM] = height * 100
	return nil
}

func discretize(f *frame) error {
	for _, field := range discretizeFields {
		value, ok := f.numeric[field]
		if !ok {
			return &EncodingError{Stage: "discretize", Field: field, Reason: "missing"}
		}
		f.numeric[field+"_cat"] = Bucket(value)
	}
	return nil
}

func (e *Encoder) expandTransport(f *frame) error {
	value, ok := f.categorical[FieldMTRANS]
	if !ok {
		return &EncodingError{Stage: "one-hot", Field: FieldMTRANS, Reason: "missing"}
	}
	if !slices.Contains(e.transport, value) {
		return &EncodingError{Stage: "one-hot", Field: FieldMTRANS, Value: value, Reason: "unmapped category"}
	}
	for _, category := range e.transport[1:] {
		indicator := 0.0
		if value == category {
			indicator = 1
		}
		f.numeric[IndicatorName(category)] = indicator
	}
	delete(f.categorical, FieldMTRANS)
	return nil
}

func (f *frame) mapCategorical(stage, field string, table map[string]float64) error {
	value, ok := f.categorical[field]
	if !ok {
		return &EncodingError{Stage: stage, Field: field, Reason: "missing"}
	}
	code, ok := table[value]
	if !ok {
		return &EncodingError{Stage: stage, Field: field, Value: value, Reason: "unmapped value"}
	}
	delete(f.categorical, field)
	f.numeric[field] = code
	return nil
}

// Bucket floors value to its BucketWidth bin.
func Bucket(value float64) float64 {
	return math.Floor(value/BucketWidth) * BucketWidth
}

// Reconcile lays fields out in featureNames order. Names absent from fields and
// non-finite values become 0; fields not listed are dropped.
func Reconcile(fields map[string]float64, featureNames []string) FeatureVector {
	values := make([]float64, len(featureNames))
	for i, name := range featureNames {
		value, ok := fields[name]
		if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		values[i] = value
	}
	return FeatureVector{names: slices.Clone(featureNames), values: values}
}
