package ml

import (
	"encoding/json"
	"fmt"
)

// Supported model_type values of an artifact.
const (
	ModelDecisionTree = "decision_tree"
	ModelLogistic     = "logistic"
)

type checkedModel interface {
	Classifier
	check(featureCount, classCount int) error
}

// LoadModel decodes raw as a model of modelType and checks its shape.
func LoadModel(modelType string, raw json.RawMessage, featureCount, classCount int) (Classifier, error) {
	var model checkedModel
	switch modelType {
	case ModelDecisionTree:
		model = &DecisionTree{}
	case ModelLogistic:
		model = &Logistic{}
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: model body is empty", modelType)
	}
	if err := json.Unmarshal(raw, model); err != nil {
		return nil, fmt.Errorf("%s: decode model: %w", modelType, err)
	}
	if err := model.check(featureCount, classCount); err != nil {
		return nil, fmt.Errorf("%s: %w", modelType, err)
	}
	return model, nil
}
