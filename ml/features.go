package ml

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

// FeatureVector is an ordered list of named values in the frozen training order.
type FeatureVector struct {
	names  []string
	values []float64
}

// NewFeatureVector pairs names with values. It panics when the lengths differ.
func NewFeatureVector(names []string, values []float64) FeatureVector {
	if len(names) != len(values) {
		panic("ml: feature names and values differ in length")
	}
	return FeatureVector{names: slices.Clone(names), values: slices.Clone(values)}
}

func (v FeatureVector) Len() int {
	return len(v.values)
}

func (v FeatureVector) Names() []string {
	return slices.Clone(v.names)
}

func (v FeatureVector) Values() []float64 {
	return slices.Clone(v.values)
}

// At returns the i-th value.
func (v FeatureVector) At(i int) float64 {
	return v.values[i]
}

// Value looks a feature up by name.
func (v FeatureVector) Value(name string) (float64, bool) {
	i := slices.Index(v.names, name)
	if i < 0 {
		return 0, false
	}
	return v.values[i], true
}

func (v FeatureVector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.names))
	for i, name := range v.names {
		out[name] = v.values[i]
	}
	return out
}

// Equal reports bit-identical names and values.
func (v FeatureVector) Equal(other FeatureVector) bool {
	return slices.Equal(v.names, other.names) && slices.Equal(v.values, other.values)
}

// Key is a stable textual form of the values, used for cache lookups.
func (v FeatureVector) Key() string {
	parts := make([]string, len(v.values))
	for i, value := range v.values {
		parts[i] = strconv.FormatFloat(value, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// MarshalJSON writes the vector as an object whose keys keep feature order.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range v.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(v.values[i], 'g', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CanonicalFeatureNames lists every column the default encoder produces, in the
// order the columns are created: input columns first, then derived ones.
func CanonicalFeatureNames() []string {
	names := []string{
		FieldGender, FieldAge, FieldHeight, FieldWeight, FieldFamilyHistory,
		FieldFAVC, FieldFCVC, FieldNCP, FieldCAEC, FieldSMOKE, FieldCH2O,
		FieldSCC, FieldFAF, FieldTUE, FieldCALC,
		FieldHeightCM, FieldAgeCat, FieldHeightCMCat, FieldWeightCat,
	}
	return append(names, defaultEncoder.IndicatorNames()...)
}
