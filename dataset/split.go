// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// TestSize returns the number of test examples for n examples and the given test fraction.
// It rounds up, like scikit-learn's train_test_split: 30 examples with fraction 0.25 gives 8.
func TestSize(n int, fraction float64) int {
	return int(math.Ceil(fraction * float64(n)))
}

// Split partitions the indices [0, n) into disjoint train and test sets, with
// TestSize(n, fraction) test indices.
//
// The partition is a pure function of (n, fraction, seed). There is no stratification.
func Split(n int, fraction float64, seed int64) (train, test []int, err error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, errors.Errorf("test fraction must be in the open interval (0, 1), got %g", fraction)
	}
	numTest := TestSize(n, fraction)
	if numTest == 0 || numTest >= n {
		return nil, nil, errors.Errorf("cannot split %d examples with test fraction %g: "+
			"one of the partitions would be empty", n, fraction)
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	test = perm[:numTest]
	train = perm[numTest:]
	return
}

// SplitDataset splits ds into train and test datasets. See Split.
func SplitDataset(ds *Dataset, fraction float64, seed int64) (train, test *Dataset, err error) {
	trainIdx, testIdx, err := Split(ds.Len(), fraction, seed)
	if err != nil {
		return nil, nil, err
	}
	if train, err = ds.Subset(trainIdx); err != nil {
		return nil, nil, err
	}
	if test, err = ds.Subset(testIdx); err != nil {
		return nil, nil, err
	}
	return
}
