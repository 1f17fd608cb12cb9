package ml

// Classifier predicts a class index from an encoded vector.
type Classifier interface {
	Predict(v FeatureVector) (int, error)
}

// ProbabilityClassifier also reports one probability per class, in class index order.
type ProbabilityClassifier interface {
	Classifier
	PredictProba(v FeatureVector) ([]float64, error)
}

// Prediction is the response body of a classification.
type Prediction struct {
	PredictedClass   string             `json:"predicted_class"`
	Confidence       float64            `json:"confidence"`
	AllProbabilities map[string]float64 `json:"all_probabilities"`
}
