package ml

import (
	"fmt"
)

// Model types accepted by NewModel and LoadModel.
const (
	RandomForestModel = "random_forest"
	DecisionTreeModel = "decision_tree"
)

// NewModel returns an untrained model of modelType. A decision tree takes
// the depth and seed of cfg and ignores the forest settings.
func NewModel(modelType string, cfg ForestConfig) (Classifier, error) {
	switch modelType {
	case RandomForestModel:
		return NewRandomForest(cfg), nil
	case DecisionTreeModel:
		return NewDecisionTree(TreeConfig{Task: cfg.Task, MaxDepth: cfg.MaxDepth, Seed: cfg.Seed}), nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}

func LoadModel(modelType, path string) (Model, error) {
	var model Model
	switch modelType {
	case RandomForestModel:
		model = &RandomForest{}
	case DecisionTreeModel:
		model = &DecisionTree{}
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
	if err := model.Load(path); err != nil {
		return nil, err
	}
	return model, nil
}
