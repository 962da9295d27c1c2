// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"math/rand"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/shallownet/preprocess"
	"github.com/pkg/errors"
)

// Tensors converts ds into the model inputs (images) and labels (one-hot float32 matrix).
func Tensors(ds *Dataset, order preprocess.ArrayOrder, encoder *LabelEncoder) (inputs, labels *tensors.Tensor, err error) {
	inputs, err = ds.Tensor(order)
	if err != nil {
		return nil, nil, err
	}
	oneHot, err := encoder.Encode(ds.Labels)
	if err != nil {
		inputs.MustFinalizeAll()
		return nil, nil, err
	}
	flat := make([]float32, 0, len(oneHot)*encoder.NumClasses())
	for _, row := range oneHot {
		flat = append(flat, row...)
	}
	labels = tensors.FromFlatDataAndDimensions(flat, len(oneHot), encoder.NumClasses())
	return
}

// InMemory creates a GoMLX in-memory dataset with ds' images and one-hot labels.
// The name must have at least 3 characters.
//
// The returned dataset is not batched: see TrainDataset and EvalDataset.
func InMemory(backend backends.Backend, name string, ds *Dataset, order preprocess.ArrayOrder,
	encoder *LabelEncoder) (*datasets.InMemoryDataset, error) {
	inputs, labels, err := Tensors(ds, order, encoder)
	if err != nil {
		return nil, err
	}
	mds, err := datasets.InMemoryFromData(backend, name, []any{inputs}, []any{labels})
	if err != nil {
		return nil, errors.WithMessagef(err, "creating in-memory dataset %q", name)
	}
	return mds, nil
}

// TrainDataset configures mds for training: shuffled every epoch with an rng seeded with seed
// (set before shuffling, so the epoch order follows the seed), in batches of
// batchSize, keeping the last incomplete batch so every example is seen once per epoch.
func TrainDataset(mds *datasets.InMemoryDataset, batchSize int, seed int64) *datasets.InMemoryDataset {
	return mds.Copy().
		SetName(mds.Name()).
		BatchSize(batchSize, false).
		WithRand(rand.New(rand.NewSource(seed))).
		Shuffle().
		Infinite(false)
}

// EvalDataset configures mds for evaluation under a new name: in order, batches of batchSize.
// The name must have at least 3 characters.
func EvalDataset(mds *datasets.InMemoryDataset, name string, batchSize int) *datasets.InMemoryDataset {
	return mds.Copy().SetName(name).BatchSize(batchSize, false)
}
