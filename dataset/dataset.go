// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dataset loads a directory of labeled images, splits it into train and test
// partitions and encodes the labels.
//
// The expected layout is one sub-directory per class, the directory name being the label:
//
//	animals/
//	  cat/cats_00001.jpg
//	  dog/dogs_00001.jpg
//	  panda/panda_00001.jpg
package dataset

import (
	"image"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/shallownet/preprocess"
	"github.com/pkg/errors"
)

// ErrEmptyDataset is returned when no image could be loaded.
var ErrEmptyDataset = errors.New("dataset is empty: no image could be loaded")

// Dataset holds preprocessed images and their labels.
//
// Images, Labels and Paths are aligned: position i of each refers to the same sample.
type Dataset struct {
	Images []image.Image
	Labels []string
	Paths  []string

	// Skipped holds the paths of the files that could not be read or decoded.
	Skipped []string
}

// Len returns the number of samples.
func (ds *Dataset) Len() int { return len(ds.Images) }

// Append adds one sample.
func (ds *Dataset) Append(img image.Image, label, path string) {
	ds.Images = append(ds.Images, img)
	ds.Labels = append(ds.Labels, label)
	ds.Paths = append(ds.Paths, path)
}

// Subset returns a new Dataset with the samples at the given indices, in the given order.
// The images themselves are shared, not copied.
func (ds *Dataset) Subset(indices []int) (*Dataset, error) {
	sub := &Dataset{
		Images: make([]image.Image, 0, len(indices)),
		Labels: make([]string, 0, len(indices)),
		Paths:  make([]string, 0, len(indices)),
	}
	for _, idx := range indices {
		if idx < 0 || idx >= ds.Len() {
			return nil, errors.Errorf("index %d out of range for dataset with %d samples", idx, ds.Len())
		}
		sub.Append(ds.Images[idx], ds.Labels[idx], ds.Paths[idx])
	}
	return sub, nil
}

// Tensor converts all the images into one float32 tensor scaled to [0, 1], laid out according
// to order.
func (ds *Dataset) Tensor(order preprocess.ArrayOrder) (*tensors.Tensor, error) {
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	return order.Tensor(ds.Images)
}
