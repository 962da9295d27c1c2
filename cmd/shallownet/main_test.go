// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/shallownet/internal/synthetic"
	"github.com/gomlx/shallownet/shallownet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageError(t *testing.T) {
	err := stageFailed(StageLoad, os.ErrNotExist)
	assert.Equal(t, `stage "loading images" failed: file does not exist`, err.Error())
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunMissingDataset(t *testing.T) {
	ctx := shallownet.CreateDefaultContext()
	dir := t.TempDir()
	_, err := run(backends.MustNew(), ctx, nil, options{
		datasetDir: filepath.Join(dir, "missing"),
		modelPath:  filepath.Join(dir, "model.gmlx"),
	})
	require.Error(t, err)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageLoad, stageErr.Stage)
}

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	dir := t.TempDir()
	datasetDir := filepath.Join(dir, "animals")
	_, err := synthetic.WriteDataset(datasetDir, 8, 7)
	require.NoError(t, err)

	backend := backends.MustNew()
	ctx := shallownet.CreateDefaultContext()
	paramsSet, err := commandline.ParseContextSettings(ctx, "epochs=3;batch_size=8")
	require.NoError(t, err)
	opts := options{
		datasetDir: datasetDir,
		modelPath:  filepath.Join(dir, "shallownet_weights.gmlx"),
		plotPath:   filepath.Join(dir, "shallownet_training.png"),
		reportCSV:  filepath.Join(dir, "report.csv"),
		verbose:    10,
	}
	r, err := run(backend, ctx, paramsSet, opts)
	require.NoError(t, err)
	assert.Equal(t, 6, r.Total, "ceil(24*0.25)")
	assert.Equal(t, synthetic.Classes, r.ClassNames())
	for _, path := range []string{opts.modelPath, opts.plotPath, opts.reportCSV} {
		assert.FileExists(t, path)
	}

	// Evaluating the saved model on the same split gives the same report.
	opts.evalOnly = true
	opts.plotPath = filepath.Join(dir, "reloaded.svg")
	opts.reportCSV = ""
	reloaded, err := run(backend, shallownet.CreateDefaultContext(), nil, opts)
	require.NoError(t, err)
	assert.Equal(t, r.Confusion, reloaded.Confusion)
	assert.FileExists(t, opts.plotPath)
}

func TestRunSaveFailureIsFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	dir := t.TempDir()
	datasetDir := filepath.Join(dir, "animals")
	_, err := synthetic.WriteDataset(datasetDir, 4, 3)
	require.NoError(t, err)
	ctx := shallownet.CreateDefaultContext()
	ctx.SetParam(shallownet.ParamEpochs, 1)
	plotPath := filepath.Join(dir, "shallownet_training.png")
	r, err := run(backends.MustNew(), ctx, nil, options{
		datasetDir: datasetDir,
		modelPath:  filepath.Join(dir, "missing", "model.gmlx"),
		plotPath:   plotPath,
	})
	require.Error(t, err)
	assert.Nil(t, r)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSerialize, stageErr.Stage)
	assert.Contains(t, err.Error(), `stage "serializing network" failed`)
	assert.NoFileExists(t, filepath.Join(dir, "missing", "model.gmlx"))
	assert.NoFileExists(t, plotPath, "nothing runs after a failed save")
}

func TestRunPlotFailureIsNotFatal(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testing in short mode")
		return
	}
	dir := t.TempDir()
	datasetDir := filepath.Join(dir, "animals")
	_, err := synthetic.WriteDataset(datasetDir, 4, 3)
	require.NoError(t, err)
	ctx := shallownet.CreateDefaultContext()
	ctx.SetParam(shallownet.ParamEpochs, 1)
	modelPath := filepath.Join(dir, "model.gmlx")
	r, err := run(backends.MustNew(), ctx, nil, options{
		datasetDir: datasetDir,
		modelPath:  modelPath,
		plotPath:   filepath.Join(dir, "missing", "chart.png"),
		reportCSV:  filepath.Join(dir, "report.csv"),
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, 3, r.Total)
	assert.FileExists(t, modelPath)
	assert.FileExists(t, filepath.Join(dir, "report.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "missing", "chart.png"))
}

func TestRunEvalOnlyMissingModel(t *testing.T) {
	dir := t.TempDir()
	_, err := run(backends.MustNew(), shallownet.CreateDefaultContext(), nil, options{
		datasetDir: dir,
		modelPath:  filepath.Join(dir, "missing.gmlx"),
		evalOnly:   true,
	})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageLoadModel, stageErr.Stage)
}
