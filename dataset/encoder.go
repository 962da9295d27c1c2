// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"slices"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
)

// LabelEncoder maps string labels to class indices and one-hot vectors.
//
// It is fit once, on the labels of the whole dataset, and then shared by the train and test
// partitions, so a class always maps to the same column.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// FitLabelEncoder learns the set of distinct labels, ordered lexically.
func FitLabelEncoder(labels []string) *LabelEncoder {
	index := make(map[string]int)
	for _, label := range labels {
		index[label] = 0
	}
	classes := maps.Keys(index)
	slices.Sort(classes)
	for ii, class := range classes {
		index[class] = ii
	}
	return &LabelEncoder{classes: classes, index: index}
}

// NewLabelEncoder creates an encoder with the given classes, in the given order. Used to restore a
// saved encoder.
func NewLabelEncoder(classes []string) (*LabelEncoder, error) {
	index := make(map[string]int, len(classes))
	for ii, class := range classes {
		if _, found := index[class]; found {
			return nil, errors.Errorf("duplicate class %q", class)
		}
		index[class] = ii
	}
	return &LabelEncoder{classes: slices.Clone(classes), index: index}, nil
}

// Classes returns the class names, in column order.
func (e *LabelEncoder) Classes() []string { return slices.Clone(e.classes) }

// NumClasses returns the number of classes, the width of the one-hot vectors.
func (e *LabelEncoder) NumClasses() int { return len(e.classes) }

// Index returns the class index of label.
func (e *LabelEncoder) Index(label string) (int, error) {
	idx, found := e.index[label]
	if !found {
		return 0, errors.Errorf("unknown label %q, known classes are %q", label, e.classes)
	}
	return idx, nil
}

// Indices returns the class index of each label.
func (e *LabelEncoder) Indices(labels []string) ([]int32, error) {
	indices := make([]int32, len(labels))
	for ii, label := range labels {
		idx, err := e.Index(label)
		if err != nil {
			return nil, err
		}
		indices[ii] = int32(idx)
	}
	return indices, nil
}

// Encode returns the one-hot matrix for labels: one row per label, NumClasses columns.
//
// Even with 2 classes there are 2 columns.
func (e *LabelEncoder) Encode(labels []string) ([][]float32, error) {
	oneHot := make([][]float32, len(labels))
	for ii, label := range labels {
		idx, err := e.Index(label)
		if err != nil {
			return nil, err
		}
		oneHot[ii] = make([]float32, len(e.classes))
		oneHot[ii][idx] = 1
	}
	return oneHot, nil
}

// Decode returns the class with the largest value in vector: usually a one-hot vector or a
// probability distribution.
func (e *LabelEncoder) Decode(vector []float64) (string, error) {
	if len(vector) != len(e.classes) {
		return "", errors.Errorf("vector has %d values, but there are %d classes", len(vector), len(e.classes))
	}
	return e.classes[floats.MaxIdx(vector)], nil
}

// Class returns the name of the class with the given index.
func (e *LabelEncoder) Class(idx int) (string, error) {
	if idx < 0 || idx >= len(e.classes) {
		return "", errors.Errorf("class index %d out of range [0, %d)", idx, len(e.classes))
	}
	return e.classes[idx], nil
}
