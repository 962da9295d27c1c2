// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shallownet

import (
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/shallownet/dataset"
	"github.com/gomlx/shallownet/preprocess"
)

// Preprocessors returns the preprocessing chain matching cfg: Resize to the model's input size,
// followed by the ArrayOrder normalization for the configured channels axis.
func (cfg Config) Preprocessors() preprocess.Chain {
	return preprocess.New(cfg.Width, cfg.Height, cfg.ChannelsAxis)
}

// ArrayOrder returns the tensor layout of the model's input images.
func (cfg Config) ArrayOrder() preprocess.ArrayOrder {
	return preprocess.ArrayOrder{Axis: cfg.ChannelsAxis}
}

// CreateDatasets returns the datasets used by Classifier.Fit: the shuffled batched training
// dataset, and the evaluation datasets for the train and test partitions.
//
// Both partitions are encoded with the same encoder.
func CreateDatasets(backend backends.Backend, cfg Config, trainData, testData *dataset.Dataset,
	encoder *dataset.LabelEncoder) (trainDS, trainEvalDS, testEvalDS train.Dataset, err error) {
	baseTrain, err := dataset.InMemory(backend, "Training", trainData, cfg.ArrayOrder(), encoder)
	if err != nil {
		return
	}
	baseTest, err := dataset.InMemory(backend, "Validation", testData, cfg.ArrayOrder(), encoder)
	if err != nil {
		return
	}
	trainDS = dataset.TrainDataset(baseTrain, cfg.BatchSize, cfg.Seed)
	trainEvalDS = dataset.EvalDataset(baseTrain, "Training (eval)", cfg.EvalBatchSize)
	testEvalDS = dataset.EvalDataset(baseTest, "Validation", cfg.EvalBatchSize)
	return
}
