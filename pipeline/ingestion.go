// Package pipeline turns a labelled CSV export of the obesity survey into
// clean training samples.
package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"obesityserve/ml"
)

// LabelColumn is the target column of the survey dataset.
const LabelColumn = "NObeyesdad"

var numericColumns = map[string]bool{
	ml.FieldAge: true, ml.FieldHeight: true, ml.FieldWeight: true,
	ml.FieldFCVC: true, ml.FieldNCP: true, ml.FieldCH2O: true,
	ml.FieldFAF: true, ml.FieldTUE: true,
}

var inputColumns = []string{
	ml.FieldGender, ml.FieldAge, ml.FieldHeight, ml.FieldWeight, ml.FieldFamilyHistory,
	ml.FieldFAVC, ml.FieldFCVC, ml.FieldNCP, ml.FieldCAEC, ml.FieldSMOKE, ml.FieldCH2O,
	ml.FieldSCC, ml.FieldFAF, ml.FieldTUE, ml.FieldCALC, ml.FieldMTRANS,
}

// Sample is one dataset row. Record is filled in by the cleaner once the row
// passes validation.
type Sample struct {
	Line   int
	Input  ml.RecordInput
	Label  string
	Record ml.RawRecord
	raw    []string
}

// ReadCSV reads a header-addressed CSV. Rows whose numeric cells do not parse
// are reported as issues and skipped; every other check belongs to the cleaner.
func ReadCSV(r io.Reader) ([]*Sample, []QualityIssue, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	var missing []string
	for _, name := range slices.Concat(inputColumns, []string{LabelColumn}) {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("dataset lacks columns %s", strings.Join(missing, ", "))
	}

	var (
		samples []*Sample
		issues  []QualityIssue
	)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		sample, err := parseRow(row, cols)
		if err != nil {
			issues = append(issues, QualityIssue{Rule: "parse", Line: line, Message: err.Error()})
			continue
		}
		sample.Line = line
		samples = append(samples, sample)
	}
	return samples, issues, nil
}

func parseRow(row []string, cols map[string]int) (*Sample, error) {
	values := make(map[string]string, len(inputColumns))
	raw := make([]string, 0, len(inputColumns)+1)
	for _, name := range inputColumns {
		v := strings.TrimSpace(row[cols[name]])
		values[name] = v
		raw = append(raw, v)
	}
	label := strings.TrimSpace(row[cols[LabelColumn]])
	raw = append(raw, label)

	nums := make(map[string]*float64, len(numericColumns))
	strs := make(map[string]*string, len(inputColumns)-len(numericColumns))
	for _, name := range inputColumns {
		v := values[name]
		if v == "" {
			continue
		}
		if numericColumns[name] {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %q is not a number", name, v)
			}
			nums[name] = &f
		} else {
			strs[name] = &v
		}
	}

	return &Sample{
		Input: ml.RecordInput{
			Gender:                  strs[ml.FieldGender],
			Age:                     nums[ml.FieldAge],
			Height:                  nums[ml.FieldHeight],
			Weight:                  nums[ml.FieldWeight],
			FamilyHistoryOverweight: strs[ml.FieldFamilyHistory],
			FrequentHighCalorieFood: strs[ml.FieldFAVC],
			VegetableFrequency:      nums[ml.FieldFCVC],
			MainMealsCount:          nums[ml.FieldNCP],
			SnackingFrequency:       strs[ml.FieldCAEC],
			Smokes:                  strs[ml.FieldSMOKE],
			WaterIntake:             nums[ml.FieldCH2O],
			MonitorsCalories:        strs[ml.FieldSCC],
			PhysicalActivity:        nums[ml.FieldFAF],
			TechUsageTime:           nums[ml.FieldTUE],
			AlcoholFrequency:        strs[ml.FieldCALC],
			TransportMode:           strs[ml.FieldMTRANS],
		},
		Label: label,
		raw:   raw,
	}, nil
}
