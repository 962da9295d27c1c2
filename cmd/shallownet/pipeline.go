// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"slices"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/shallownet/dataset"
	"github.com/gomlx/shallownet/report"
	"github.com/gomlx/shallownet/shallownet"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Stages of the pipeline, in order.
const (
	StageLoad      = "loading images"
	StageSplit     = "splitting"
	StageEncode    = "encoding labels"
	StageCompile   = "compiling model"
	StageTrain     = "training network"
	StageSerialize = "serializing network"
	StageEvaluate  = "evaluating network"
	StagePlot      = "plotting"

	// StageLoadModel replaces the compile, train and serialize stages with -eval_only.
	StageLoadModel = "loading model"
)

// StageError is a failure of one of the pipeline stages.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageFailed(stage string, err error) error {
	return &StageError{Stage: stage, Err: err}
}

func logStage(stage string) {
	fmt.Printf("[INFO] %s...\n", stage)
}

type options struct {
	datasetDir, modelPath, plotPath, reportCSV string
	display, evalOnly, progressBar             bool
	verbose                                    int
}

// run executes the pipeline and returns the classification report on the test split.
//
// Failing to save the model is fatal. Failing to plot the chart is logged and doesn't stop it.
func run(backend backends.Backend, ctx *context.Context, paramsSet []string, opts options) (*report.ClassificationReport, error) {
	var (
		c   *shallownet.Classifier
		cfg shallownet.Config
		err error
	)
	if opts.evalOnly {
		logStage(StageLoadModel)
		c, err = shallownet.Load(backend, opts.modelPath)
		if err != nil {
			return nil, stageFailed(StageLoadModel, err)
		}
		cfg = c.Config()
	} else {
		// Invalid hyperparameters are reported before any image is read.
		cfg, err = shallownet.NewConfig(ctx)
		if err != nil {
			return nil, stageFailed(StageCompile, err)
		}
	}

	logStage(StageLoad)
	loader := dataset.NewLoader(cfg.Preprocessors()...)
	loader.Verbose = opts.verbose
	loader.ShowProgressBar = opts.progressBar
	data, err := loader.LoadDir(opts.datasetDir)
	if err != nil {
		return nil, stageFailed(StageLoad, err)
	}
	if len(data.Skipped) > 0 {
		klog.Warningf("%d files skipped while loading %q", len(data.Skipped), opts.datasetDir)
	}

	logStage(StageSplit)
	trainData, testData, err := dataset.SplitDataset(data, cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, stageFailed(StageSplit, err)
	}
	klog.V(1).Infof("%d training and %d test images", trainData.Len(), testData.Len())

	logStage(StageEncode)
	var encoder *dataset.LabelEncoder
	if opts.evalOnly {
		encoder, err = dataset.NewLabelEncoder(c.Classes())
		if err != nil {
			return nil, stageFailed(StageEncode, err)
		}
	} else {
		encoder = dataset.FitLabelEncoder(data.Labels)
		if !slices.Contains(paramsSet, shallownet.ParamNumClasses) {
			ctx.SetParam(shallownet.ParamNumClasses, encoder.NumClasses())
		}
	}
	testLabels, err := encoder.Indices(testData.Labels)
	if err != nil {
		return nil, stageFailed(StageEncode, err)
	}

	if !opts.evalOnly {
		if c, err = train(backend, ctx, trainData, testData, encoder, opts); err != nil {
			return nil, err
		}
		cfg = c.Config()
	}

	logStage(StageEvaluate)
	testX, err := testData.Tensor(cfg.ArrayOrder())
	if err != nil {
		return nil, stageFailed(StageEvaluate, err)
	}
	_, predicted, err := c.Predict(testX)
	testX.MustFinalizeAll()
	if err != nil {
		return nil, stageFailed(StageEvaluate, err)
	}
	trueIdx := make([]int, len(testLabels))
	for ii, label := range testLabels {
		trueIdx[ii] = int(label)
	}
	classReport, err := report.NewClassificationReport(encoder.Classes(), trueIdx, predicted)
	if err != nil {
		return nil, stageFailed(StageEvaluate, err)
	}
	fmt.Println(classReport.Render())
	if klog.V(1).Enabled() {
		fmt.Println(classReport.RenderConfusion())
	}
	if opts.reportCSV != "" {
		if err := writeReportCSV(classReport, opts.reportCSV); err != nil {
			return nil, stageFailed(StageEvaluate, err)
		}
	}

	if opts.plotPath != "" {
		logStage(StagePlot)
		if err := plot(c.History(), opts); err != nil {
			klog.Errorf("%v", stageFailed(StagePlot, err))
		}
	}
	return classReport, nil
}

// train builds, trains and saves the classifier.
func train(backend backends.Backend, ctx *context.Context, trainData, testData *dataset.Dataset,
	encoder *dataset.LabelEncoder, opts options) (*shallownet.Classifier, error) {
	logStage(StageCompile)
	c, err := shallownet.NewClassifier(backend, ctx, encoder.Classes())
	if err != nil {
		return nil, stageFailed(StageCompile, err)
	}
	c.ShowProgressBar = opts.progressBar
	cfg := c.Config()
	trainDS, trainEvalDS, testDS, err := shallownet.CreateDatasets(backend, cfg, trainData, testData, encoder)
	if err != nil {
		return nil, stageFailed(StageCompile, err)
	}

	logStage(StageTrain)
	history, err := c.Fit(trainDS, trainEvalDS, testDS)
	if err != nil {
		return nil, stageFailed(StageTrain, err)
	}
	if last, ok := history.Last(); ok {
		klog.Infof("after %d epochs: loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f",
			history.Len(), last.Loss, last.Accuracy, last.ValLoss, last.ValAccuracy)
	}

	logStage(StageSerialize)
	if err := c.Save(opts.modelPath); err != nil {
		klog.Errorf("************************************************************")
		klog.Errorf("the trained model was NOT saved to %q: %d epochs of training are lost",
			opts.modelPath, history.Len())
		klog.Errorf("************************************************************")
		return nil, stageFailed(StageSerialize, err)
	}
	klog.V(1).Infof("model saved to %q (run %s)", opts.modelPath, c.RunID())
	return c, nil
}

func writeReportCSV(r *report.ClassificationReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %q", path)
	}
	if err := r.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %q", path)
}

func plot(history *shallownet.History, opts options) error {
	if history == nil || history.Len() == 0 {
		return errors.New("no training history available")
	}
	chart := report.NewChart(history)
	if err := chart.Save(opts.plotPath); err != nil {
		return err
	}
	klog.V(1).Infof("training curves saved to %q", opts.plotPath)
	if opts.display {
		if err := report.Display(chart.Title, opts.plotPath); err != nil {
			klog.Warningf("not displaying chart: %v", err)
		}
	}
	return nil
}
