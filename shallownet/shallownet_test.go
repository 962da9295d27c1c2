// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shallownet

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/shallownet/dataset"
	"github.com/gomlx/shallownet/internal/synthetic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cfg, err := NewConfig(CreateDefaultContext())
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Width)
	assert.Equal(t, 32, cfg.Height)
	assert.Equal(t, 3, cfg.Channels)
	assert.Equal(t, 3, cfg.NumClasses)
	assert.Equal(t, 0.25, cfg.TestFraction)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 0.005, cfg.LearningRate)
	assert.Equal(t, "learning_rate", ParamLearningRate)
	assert.Equal(t, 0.005, context.GetParamOr(CreateDefaultContext(), optimizers.ParamLearningRate, 0.0),
		"the optimizer reads the same hyperparameter")
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Equal(t, 32, cfg.EvalBatchSize)
	assert.Equal(t, 100, cfg.Epochs)
	assert.Equal(t, images.ChannelsLast, cfg.ChannelsAxis)

	ctx := CreateDefaultContext()
	ctx.SetParam(ParamEpochs, 0)
	_, err = NewConfig(ctx)
	require.Error(t, err)

	ctx = CreateDefaultContext()
	ctx.SetParam(ParamTestFraction, 1.0)
	_, err = NewConfig(ctx)
	require.Error(t, err)

	ctx = CreateDefaultContext()
	ctx.SetParam(ParamChannelsFirst, true)
	cfg, err = NewConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, images.ChannelsFirst, cfg.ArrayOrder().Axis)
}

func TestHistory(t *testing.T) {
	h := &History{}
	_, ok := h.Last()
	assert.False(t, ok)
	h.Append(EpochMetrics{Loss: 1.1, Accuracy: 0.3, ValLoss: 1.2, ValAccuracy: 0.25})
	h.Append(EpochMetrics{Loss: 0.9, Accuracy: 0.5, ValLoss: 1.0, ValAccuracy: 0.5})
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, 0.5, last.ValAccuracy)
	assert.True(t, last.IsFinite())
	assert.False(t, EpochMetrics{Loss: math.NaN()}.IsFinite())

	points := h.Points()
	require.Len(t, points, 8)
	assert.Equal(t, 1.0, points[0].Step)
	assert.Equal(t, 2.0, points[7].Step)

	filePath := filepath.Join(t.TempDir(), "points.json")
	require.NoError(t, h.WritePoints(filePath))
	loaded, err := LoadHistory(filePath)
	require.NoError(t, err)
	assert.Equal(t, h, loaded)

	// A missing metric for an epoch is an error.
	_, err = HistoryFromPoints(points[:7])
	require.Error(t, err)
}

func TestCategoricalAccuracy(t *testing.T) {
	backend := backends.MustNew()
	labels := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0, 1, 0}}
	logits := [][]float32{{3, 1, 0}, {0, 2, 5}, {-1, 0, 1}, {0.1, 0.2, 0.0}}
	accuracy := context.MustExecOnce(backend, context.New(), func(ctx *context.Context, labels, logits *graph.Node) *graph.Node {
		return CategoricalAccuracyGraph(ctx, []*graph.Node{labels}, []*graph.Node{logits})
	}, labels, logits)
	assert.InDelta(t, 0.75, tensors.ToScalar[float32](accuracy), 1e-6)
}

func TestStates(t *testing.T) {
	backend := backends.MustNew()
	_, err := NewClassifier(backend, CreateDefaultContext(), []string{"cat", "dog"})
	require.Error(t, err, "3 classes configured, only 2 given")

	c, err := NewClassifier(backend, CreateDefaultContext(), synthetic.Classes)
	require.NoError(t, err)
	assert.Equal(t, Compiled, c.State())
	require.Error(t, c.Save(filepath.Join(t.TempDir(), "model.gmlx")))
	_, _, err = c.Predict(tensors.FromValue([][][][]float32{{{{0, 0, 0}}}}))
	require.Error(t, err)
	assert.Equal(t, "persisted", Persisted.String())
}

// TestFitSaveLoad trains on a small synthetic dataset of 30 images, saves the model, loads it
// back and checks that the predictions match.
func TestFitSaveLoad(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	backend := backends.MustNew()
	ctx := CreateDefaultContext()
	ctx.SetParam(ParamEpochs, 5)
	ctx.SetParam(ParamBatchSize, 8)
	cfg, err := NewConfig(ctx)
	require.NoError(t, err)

	root := t.TempDir()
	_, err = synthetic.WriteDataset(filepath.Join(root, "animals"), 10, 42)
	require.NoError(t, err)
	loader := dataset.NewLoader(cfg.Preprocessors()...)
	data, err := loader.LoadDir(filepath.Join(root, "animals"))
	require.NoError(t, err)
	require.Equal(t, 30, data.Len())
	encoder := dataset.FitLabelEncoder(data.Labels)
	trainData, testData, err := dataset.SplitDataset(data, cfg.TestFraction, cfg.Seed)
	require.NoError(t, err)
	require.Equal(t, 8, testData.Len())

	trainDS, trainEvalDS, testDS, err := CreateDatasets(backend, cfg, trainData, testData, encoder)
	require.NoError(t, err)
	c, err := NewClassifier(backend, ctx, encoder.Classes())
	require.NoError(t, err)
	history, err := c.Fit(trainDS, trainEvalDS, testDS)
	require.NoError(t, err)
	require.Equal(t, 5, history.Len())
	for epoch := range history.Len() {
		m := history.Epoch(epoch)
		require.True(t, m.IsFinite())
		require.GreaterOrEqual(t, m.Accuracy, 0.0)
		require.LessOrEqual(t, m.ValAccuracy, 1.0)
	}
	assert.Equal(t, Trained, c.State())
	require.Error(t, func() error { _, err := c.Fit(trainDS, trainEvalDS, testDS); return err }())

	testX, err := testData.Tensor(cfg.ArrayOrder())
	require.NoError(t, err)
	probs, predicted, err := c.Predict(testX)
	require.NoError(t, err)
	require.Len(t, probs, 8)
	require.Len(t, predicted, 8)
	for ii, p := range probs {
		var sum float32
		for _, v := range p {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
		assert.Less(t, predicted[ii], 3)
	}
	assert.Equal(t, Evaluated, c.State())

	artifactPath := filepath.Join(root, "shallownet_weights.gmlx")
	require.NoError(t, c.Save(artifactPath))
	assert.Equal(t, Persisted, c.State())
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "only the dataset and the artifact, no temporary files left")

	loaded, err := Load(backend, artifactPath)
	require.NoError(t, err)
	assert.Equal(t, encoder.Classes(), loaded.Classes())
	assert.Equal(t, c.RunID(), loaded.RunID())
	assert.Equal(t, c.GlobalStep(), loaded.GlobalStep())
	assert.Equal(t, history, loaded.History())
	loadedProbs, loadedPredicted, err := loaded.Predict(testX)
	require.NoError(t, err)
	assert.Equal(t, predicted, loadedPredicted)
	assert.Equal(t, probs, loadedProbs)

	artifact, err := ReadArtifact(artifactPath)
	require.NoError(t, err)
	assert.Equal(t, 5, artifact.Manifest.Epochs)
	assert.Equal(t, 32, artifact.Manifest.Width)
	assert.False(t, artifact.Manifest.ChannelsFirst)
}

func TestSaveFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	backend := backends.MustNew()
	ctx := CreateDefaultContext()
	ctx.SetParam(ParamEpochs, 1)
	cfg, err := NewConfig(ctx)
	require.NoError(t, err)
	root := t.TempDir()
	_, err = synthetic.WriteDataset(root, 4, 1)
	require.NoError(t, err)
	data, err := dataset.NewLoader(cfg.Preprocessors()...).LoadDir(root)
	require.NoError(t, err)
	encoder := dataset.FitLabelEncoder(data.Labels)
	trainData, testData, err := dataset.SplitDataset(data, cfg.TestFraction, cfg.Seed)
	require.NoError(t, err)
	trainDS, trainEvalDS, testDS, err := CreateDatasets(backend, cfg, trainData, testData, encoder)
	require.NoError(t, err)
	c, err := NewClassifier(backend, ctx, encoder.Classes())
	require.NoError(t, err)
	_, err = c.Fit(trainDS, trainEvalDS, testDS)
	require.NoError(t, err)

	err = c.Save(filepath.Join(root, "missing", "dir", "model.gmlx"))
	require.Error(t, err)
	assert.Equal(t, Trained, c.State())

	_, err = ReadArtifact(filepath.Join(root, "cat", "cat_00000.png"))
	require.Error(t, err)
}
