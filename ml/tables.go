package ml

// Lookup tables shared by training and serving. Changing any constant here breaks
// parity with every artifact trained against the previous values.

var yesNo = map[string]float64{"yes": 1, "no": 0}

// binaryMaps maps each two-valued column onto {0,1}.
var binaryMaps = map[string]map[string]float64{
	FieldGender:        {"Male": 1, "Female": 0},
	FieldFamilyHistory: yesNo,
	FieldFAVC:          yesNo,
	FieldSMOKE:         yesNo,
	FieldSCC:           yesNo,
}

// frequencyScale is the fixed 4-point quantization of the frequency answers.
var frequencyScale = map[string]float64{
	"no":         0.0,
	"Sometimes":  0.33,
	"Frequently": 0.67,
	"Always":     1.0,
}

var ordinalMaps = map[string]map[string]float64{
	FieldCAEC: frequencyScale,
	FieldCALC: frequencyScale,
}

// Stage column order. Iteration follows these slices so the first reported
// fault is stable.
var (
	binaryFields     = []string{FieldGender, FieldFamilyHistory, FieldFAVC, FieldSMOKE, FieldSCC}
	ordinalFields    = []string{FieldCAEC, FieldCALC}
	discretizeFields = []string{FieldAge, FieldHeightCM, FieldWeight}
)

// BucketWidth is the discretization step for Age, Height_cm and Weight.
const BucketWidth = 5.0

// TransportReference is the MTRANS category with no indicator column.
const TransportReference = "Public_Transportation"

var transportModes = [...]string{TransportReference, "Automobile", "Walking", "Motorbike", "Bike"}

// TransportModes returns the canonical MTRANS order. The first entry is the reference.
func TransportModes() []string {
	modes := transportModes
	return modes[:]
}

// BinaryCode returns the {0,1} code of value in a binary column.
func BinaryCode(field, value string) (float64, bool) {
	table, ok := binaryMaps[field]
	if !ok {
		return 0, false
	}
	code, ok := table[value]
	return code, ok
}

// FrequencyCode returns the ordinal code of a frequency answer.
func FrequencyCode(value string) (float64, bool) {
	code, ok := frequencyScale[value]
	return code, ok
}

// IndicatorName returns the one-hot column name for a transport category.
func IndicatorName(category string) string {
	return FieldMTRANS + "_" + category
}
