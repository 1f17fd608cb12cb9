package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obesityserve/ml"
)

const header = "Gender,Age,Height,Weight,family_history_with_overweight,FAVC,FCVC,NCP,CAEC,SMOKE,CH2O,SCC,FAF,TUE,CALC,MTRANS,NObeyesdad\n"

func TestReadCSV(t *testing.T) {
	data := header +
		"Female,21,1.62,64,yes,no,2,3,Sometimes,no,2,no,0,1,no,Public_Transportation,Normal_Weight\n" +
		"Male,23,1.8,77,yes,no,2,3,Sometimes,no,2,no,2,1,Frequently,Walking,Normal_Weight\n" +
		"Male,abc,1.8,87,no,no,3,3,Sometimes,no,2,no,2,0,Frequently,Walking,Overweight_Level_I\n"

	samples, issues, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Len(t, issues, 1)

	assert.Equal(t, 4, issues[0].Line)
	assert.Equal(t, "parse", issues[0].Rule)
	assert.Contains(t, issues[0].Message, "Age")

	s := samples[1]
	assert.Equal(t, 3, s.Line)
	assert.Equal(t, "Normal_Weight", s.Label)
	require.NotNil(t, s.Input.Height)
	assert.Equal(t, 1.8, *s.Input.Height)
	assert.Equal(t, "Walking", *s.Input.TransportMode)
}

func TestReadCSVColumnOrderIndependent(t *testing.T) {
	data := "NObeyesdad,MTRANS,CALC,TUE,FAF,SCC,CH2O,SMOKE,CAEC,NCP,FCVC,FAVC,family_history_with_overweight,Weight,Height,Age,Gender\n" +
		"Obesity_Type_I,Automobile,no,0,0,no,2,no,Sometimes,3,2,yes,yes,105,1.7,30,Male\n"
	samples, _, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 105.0, *samples[0].Input.Weight)
	assert.Equal(t, "Male", *samples[0].Input.Gender)
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("Gender,Age\nMale,20\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NObeyesdad")
}

func TestDataCleaner(t *testing.T) {
	data := header +
		"Female,21,1.62,64,yes,no,2,3,Sometimes,no,2,no,0,1,no,Public_Transportation,Normal_Weight\n" +
		"Female,21,1.62,64,yes,no,2,3,Sometimes,no,2,no,0,1,no,Public_Transportation,Normal_Weight\n" +
		"Male,130,1.8,77,yes,no,2,3,Sometimes,no,2,no,2,1,no,Walking,Normal_Weight\n" +
		"Male,30,1.8,77,yes,no,2,3,Sometimes,no,2,no,2,1,no,Walking,Obese\n" +
		"Male,30,1.8,77,yes,no,2,3,Sometimes,no,2,no,2,1,no,Walking,Normal_Weight\n" +
		"Male,30,1.8,77,yes,no,2,3,Sometimes,no,2,no,2,1,no,Train,Normal_Weight\n"

	samples, _, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)

	cleaner := NewDataCleaner(ml.ObesityLevels, nil)
	cleaned, issues := cleaner.Clean(samples)

	require.Len(t, cleaned, 2)
	assert.Equal(t, 2, cleaned[0].Line)
	assert.Equal(t, 6, cleaned[1].Line)
	assert.Equal(t, 30.0, cleaned[1].Record.Age, "accepted samples carry the validated record")

	rules := make(map[int]string)
	for _, issue := range issues {
		rules[issue.Line] = issue.Rule
	}
	assert.Equal(t, map[int]string{3: "duplicate", 4: "record", 5: "label", 7: "record"}, rules)

	stats := cleaner.GetStats()
	assert.Equal(t, int64(6), stats.TotalProcessed)
	assert.Equal(t, int64(2), stats.Passed)
	assert.Equal(t, int64(4), stats.Rejected)
	assert.Equal(t, int64(2), stats.Issues["record"])
}

func TestRecordValidationRuleMissingField(t *testing.T) {
	s := &Sample{Line: 9}
	err := RecordValidationRule{}.Apply(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MTRANS")
}
