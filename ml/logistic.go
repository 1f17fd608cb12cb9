package ml

import (
	"errors"
	"fmt"
	"math"
)

// Logistic is a multinomial logistic regression: one coefficient row and one
// intercept per class, combined through softmax.
type Logistic struct {
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

func (m *Logistic) Predict(v FeatureVector) (int, error) {
	probs, err := m.PredictProba(v)
	if err != nil {
		return 0, err
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, nil
}

func (m *Logistic) PredictProba(v FeatureVector) ([]float64, error) {
	if len(m.Coefficients) == 0 {
		return nil, errors.New("model not trained")
	}
	scores := make([]float64, len(m.Coefficients))
	for c, row := range m.Coefficients {
		if len(row) != v.Len() {
			return nil, fmt.Errorf("class %d: %d coefficients for %d features", c, len(row), v.Len())
		}
		score := m.Intercepts[c]
		for i, w := range row {
			score += w * v.At(i)
		}
		scores[c] = score
	}
	return softmax(scores), nil
}

func (m *Logistic) check(featureCount, classCount int) error {
	if len(m.Coefficients) != classCount {
		return fmt.Errorf("logistic model has %d coefficient rows, want %d", len(m.Coefficients), classCount)
	}
	if len(m.Intercepts) != classCount {
		return fmt.Errorf("logistic model has %d intercepts, want %d", len(m.Intercepts), classCount)
	}
	for c, row := range m.Coefficients {
		if len(row) != featureCount {
			return fmt.Errorf("class %d: %d coefficients, want %d", c, len(row), featureCount)
		}
	}
	return nil
}

func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	out := make([]float64, len(scores))
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
