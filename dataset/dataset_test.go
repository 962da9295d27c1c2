// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	"io"
	"path/filepath"
	"slices"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/shallownet/internal/synthetic"
	"github.com/gomlx/shallownet/preprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader() *Loader {
	l := NewLoader(preprocess.New(32, 32, images.ChannelsLast)...)
	l.Verbose = 0
	return l
}

func TestListImages(t *testing.T) {
	root := t.TempDir()
	written, err := synthetic.WriteDataset(root, 4, 1)
	require.NoError(t, err)
	require.NoError(t, synthetic.WriteCorrupt(filepath.Join(root, "cat", "notes.txt")))

	paths, err := ListImages(root)
	require.NoError(t, err)
	assert.Len(t, paths, len(written))
	assert.True(t, slices.IsSorted(paths))
	for _, path := range paths {
		assert.Contains(t, synthetic.Classes, LabelFromPath(path))
	}

	_, err = ListImages(filepath.Join(root, "missing"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	_, err := synthetic.WriteDataset(root, 5, 1)
	require.NoError(t, err)

	ds, err := newTestLoader().LoadDir(root)
	require.NoError(t, err)
	require.Equal(t, 15, ds.Len())
	require.Len(t, ds.Labels, 15)
	require.Len(t, ds.Paths, 15)
	assert.Empty(t, ds.Skipped)
	for ii, img := range ds.Images {
		assert.Equal(t, image.Pt(32, 32), img.Bounds().Size())
		assert.Equal(t, LabelFromPath(ds.Paths[ii]), ds.Labels[ii])
	}

	x, err := ds.Tensor(preprocess.ArrayOrder{Axis: images.ChannelsLast})
	require.NoError(t, err)
	assert.Equal(t, []int{15, 32, 32, 3}, x.Shape().Dimensions)
}

func TestLoadSkipsCorrupt(t *testing.T) {
	root := t.TempDir()
	_, err := synthetic.WriteDataset(root, 3, 1)
	require.NoError(t, err)
	corrupt := filepath.Join(root, "dog", "dog_00001_broken.jpg")
	require.NoError(t, synthetic.WriteCorrupt(corrupt))

	paths, err := ListImages(root)
	require.NoError(t, err)
	require.Len(t, paths, 10)

	ds, err := newTestLoader().Load(paths)
	require.NoError(t, err)
	assert.Equal(t, []string{corrupt}, ds.Skipped)
	require.Equal(t, 9, ds.Len())

	// Alignment: every remaining image keeps its own label, in the original order.
	expectedPaths := slices.DeleteFunc(slices.Clone(paths), func(p string) bool { return p == corrupt })
	assert.Equal(t, expectedPaths, ds.Paths)
	for ii := range ds.Len() {
		assert.Equal(t, LabelFromPath(ds.Paths[ii]), ds.Labels[ii])
	}
}

func TestLoadEmpty(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, synthetic.WriteCorrupt(filepath.Join(root, "cat", "a.png")))

	_, err := newTestLoader().LoadDir(root)
	require.ErrorIs(t, err, ErrEmptyDataset)

	_, err = newTestLoader().Load(nil)
	require.ErrorIs(t, err, ErrEmptyDataset)
}

func TestLoadRequiresResize(t *testing.T) {
	root := t.TempDir()
	_, err := synthetic.WriteDataset(root, 3, 7)
	require.NoError(t, err)
	l := NewLoader(preprocess.ArrayOrder{Axis: images.ChannelsLast})
	l.Verbose = 0
	_, err = l.LoadDir(root)
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	for _, n := range []int{2, 10, 30, 101, 1000} {
		train, test, err := Split(n, 0.25, 42)
		require.NoError(t, err)
		assert.Equal(t, n, len(train)+len(test))
		assert.Equal(t, TestSize(n, 0.25), len(test))

		seen := make([]bool, n)
		for _, idx := range slices.Concat(train, test) {
			require.False(t, seen[idx], "index %d appears twice", idx)
			seen[idx] = true
		}
		assert.NotContains(t, seen, false)

		// Reproducible.
		train2, test2, err := Split(n, 0.25, 42)
		require.NoError(t, err)
		assert.Equal(t, train, train2)
		assert.Equal(t, test, test2)
	}

	// Rounds up: 30 * 0.25 = 7.5 -> 8 test examples.
	train, test, err := Split(30, 0.25, 42)
	require.NoError(t, err)
	assert.Len(t, test, 8)
	assert.Len(t, train, 22)

	// Different seeds give different partitions.
	_, otherTest, err := Split(30, 0.25, 43)
	require.NoError(t, err)
	assert.NotEqual(t, test, otherTest)

	for _, fraction := range []float64{0, 1, -0.1, 1.5} {
		_, _, err = Split(30, fraction, 42)
		require.Errorf(t, err, "fraction=%g", fraction)
	}
	_, _, err = Split(1, 0.25, 42)
	require.Error(t, err)
}

func TestSplitDataset(t *testing.T) {
	ds := &Dataset{}
	for ii := range 30 {
		ds.Append(image.NewNRGBA(image.Rect(0, 0, 1, 1)), synthetic.Classes[ii%3], filepath.Join("x", string(rune('a'+ii))))
	}
	train, test, err := SplitDataset(ds, 0.25, 42)
	require.NoError(t, err)
	assert.Equal(t, 22, train.Len())
	assert.Equal(t, 8, test.Len())
	all := slices.Concat(train.Paths, test.Paths)
	slices.Sort(all)
	expected := slices.Clone(ds.Paths)
	slices.Sort(expected)
	assert.Equal(t, expected, all)

	_, err = ds.Subset([]int{30})
	require.Error(t, err)
}

func TestLabelEncoder(t *testing.T) {
	encoder := FitLabelEncoder([]string{"panda", "dog", "cat", "dog", "panda"})
	require.Equal(t, []string{"cat", "dog", "panda"}, encoder.Classes())
	require.Equal(t, 3, encoder.NumClasses())

	trainLabels := []string{"dog", "cat", "panda", "dog"}
	testLabels := []string{"panda", "dog"}
	trainY, err := encoder.Encode(trainLabels)
	require.NoError(t, err)
	testY, err := encoder.Encode(testLabels)
	require.NoError(t, err)
	for _, row := range slices.Concat(trainY, testY) {
		require.Len(t, row, 3)
		var sum float32
		for _, v := range row {
			sum += v
		}
		assert.Equal(t, float32(1), sum)
	}
	// "dog" maps to the same column in both calls.
	assert.Equal(t, trainY[0], testY[1])
	assert.Equal(t, []float32{0, 1, 0}, trainY[0])

	// Round-trip.
	for _, class := range encoder.Classes() {
		oneHot, err := encoder.Encode([]string{class})
		require.NoError(t, err)
		vector := make([]float64, len(oneHot[0]))
		for ii, v := range oneHot[0] {
			vector[ii] = float64(v)
		}
		decoded, err := encoder.Decode(vector)
		require.NoError(t, err)
		assert.Equal(t, class, decoded)
	}

	indices, err := encoder.Indices(testLabels)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 1}, indices)

	_, err = encoder.Encode([]string{"zebra"})
	require.Error(t, err)
	_, err = encoder.Decode([]float64{1, 0})
	require.Error(t, err)
	_, err = encoder.Class(3)
	require.Error(t, err)

	// Binary case keeps 2 columns.
	binary := FitLabelEncoder([]string{"yes", "no", "yes"})
	oneHot, err := binary.Encode([]string{"yes"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0, 1}}, oneHot)

	restored, err := NewLabelEncoder(encoder.Classes())
	require.NoError(t, err)
	assert.Equal(t, encoder.Classes(), restored.Classes())
	_, err = NewLabelEncoder([]string{"a", "a"})
	require.Error(t, err)
}

func TestTensors(t *testing.T) {
	ds := &Dataset{}
	for ii := range 4 {
		ds.Append(image.NewNRGBA(image.Rect(0, 0, 2, 2)), synthetic.Classes[ii%3], "")
	}
	encoder := FitLabelEncoder(ds.Labels)
	x, y, err := Tensors(ds, preprocess.ArrayOrder{Axis: images.ChannelsFirst}, encoder)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 2}, x.Shape().Dimensions)
	assert.Equal(t, []int{4, 3}, y.Shape().Dimensions)
	assert.Equal(t, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1, 1, 0, 0}, tensors.MustCopyFlatData[float32](y))
}

// epochOrder returns the first pixel of every example, in the order yielded over one epoch.
func epochOrder(t *testing.T, ds *datasets.InMemoryDataset) []float32 {
	var order []float32
	for {
		_, inputs, _, err := ds.Yield()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		flat := tensors.MustCopyFlatData[float32](inputs[0])
		exampleSize := inputs[0].Shape().Size() / inputs[0].Shape().Dimensions[0]
		for ii := 0; ii < len(flat); ii += exampleSize {
			order = append(order, flat[ii])
		}
	}
	ds.Reset()
	return order
}

func TestTrainDatasetSeeded(t *testing.T) {
	backend := backends.MustNew()
	ds := &Dataset{}
	for ii := range 20 {
		img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
		for p := range img.Pix {
			img.Pix[p] = uint8(10 * (ii + 1))
		}
		ds.Append(img, synthetic.Classes[ii%3], "")
	}
	encoder := FitLabelEncoder(ds.Labels)
	base, err := InMemory(backend, "Training", ds, preprocess.ArrayOrder{Axis: images.ChannelsLast}, encoder)
	require.NoError(t, err)

	first := epochOrder(t, TrainDataset(base, 8, 42))
	require.Len(t, first, 20)
	assert.Equal(t, first, epochOrder(t, TrainDataset(base, 8, 42)), "same seed, same order")
	assert.NotEqual(t, epochOrder(t, EvalDataset(base, "Evaluation", 8)), first, "training order is shuffled")

	sorted := slices.Clone(first)
	slices.Sort(sorted)
	assert.Equal(t, epochOrder(t, EvalDataset(base, "Evaluation", 8)), sorted, "every example once per epoch")
}
