package ml

import (
	"errors"
	"fmt"
)

// Evaluation summarises a classifier on a labelled set.
type Evaluation struct {
	Samples        int       `json:"samples"`
	Accuracy       float64   `json:"accuracy"`
	MacroPrecision float64   `json:"macro_precision"`
	MacroRecall    float64   `json:"macro_recall"`
	Confusion      [][]int   `json:"confusion"`
	Recall         []float64 `json:"recall_per_class"`
}

// Evaluate scores model on vectors with true labels. Confusion rows are true
// classes and columns predicted classes. Classes absent from both the labels and
// the predictions are left out of the macro averages.
func Evaluate(model Classifier, vectors []FeatureVector, labels []int, classCount int) (Evaluation, error) {
	if len(vectors) != len(labels) {
		return Evaluation{}, errors.New("vectors and labels size mismatch")
	}
	if len(vectors) == 0 {
		return Evaluation{}, errors.New("nothing to evaluate")
	}
	confusion := make([][]int, classCount)
	for i := range confusion {
		confusion[i] = make([]int, classCount)
	}

	correct := 0
	for i, v := range vectors {
		pred, err := model.Predict(v)
		if err != nil {
			return Evaluation{}, fmt.Errorf("sample %d: %w", i, err)
		}
		if pred < 0 || pred >= classCount || labels[i] < 0 || labels[i] >= classCount {
			return Evaluation{}, fmt.Errorf("sample %d: class out of range", i)
		}
		confusion[labels[i]][pred]++
		if pred == labels[i] {
			correct++
		}
	}

	ev := Evaluation{
		Samples:   len(vectors),
		Accuracy:  float64(correct) / float64(len(vectors)),
		Confusion: confusion,
		Recall:    make([]float64, classCount),
	}
	var precisionSum, recallSum float64
	var precisionN, recallN int
	for c := 0; c < classCount; c++ {
		actual, predicted := 0, 0
		for k := 0; k < classCount; k++ {
			actual += confusion[c][k]
			predicted += confusion[k][c]
		}
		tp := confusion[c][c]
		if actual > 0 {
			ev.Recall[c] = float64(tp) / float64(actual)
			recallSum += ev.Recall[c]
			recallN++
		}
		if predicted > 0 {
			precisionSum += float64(tp) / float64(predicted)
			precisionN++
		}
	}
	if precisionN > 0 {
		ev.MacroPrecision = precisionSum / float64(precisionN)
	}
	if recallN > 0 {
		ev.MacroRecall = recallSum / float64(recallN)
	}
	return ev, nil
}
