package nnload

// Package nnload wraps up our 'nn' interface layer, and has concrete references
// to our neural network implementation (ONNX Runtime), so that you can just
// call one function to load a model, and not need to know about the
// implementation details.

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyclopcam/logs"
	"github.com/fillsight/fillsight/pkg/nn"
	"github.com/fillsight/fillsight/pkg/nnort"
)

// Initialize the inference runtime. Must be called once before LoadModel.
// sharedLibPath may be empty to use the platform default.
func Initialize(sharedLibPath string) error {
	return nnort.Initialize(sharedLibPath)
}

// LoadModel loads the named model from modelsDir.
// We expect to find modelsDir/<name>.onnx and modelsDir/<name>.json,
// where the JSON file is an nn.ModelConfig.
func LoadModel(logger logs.Log, modelsDir, name string) (nn.ObjectDetector, error) {
	configFile := filepath.Join(modelsDir, name+".json")
	modelFile := filepath.Join(modelsDir, name+".onnx")
	if _, err := os.Stat(modelFile); err != nil {
		return nil, fmt.Errorf("Model file '%v' not found: %w", modelFile, err)
	}
	config, err := nn.LoadModelConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("Failed to load model config '%v': %w", configFile, err)
	}
	logger.Infof("Loading model %v (%v, %vx%v, %v classes)", name, config.Architecture, config.Width, config.Height, len(config.Classes))
	detector, err := nnort.NewDetector(config, modelFile)
	if err != nil {
		return nil, err
	}
	return detector, nil
}
