// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shallownet implements ShallowNet, a very small convolutional image classifier:
// one convolution with ReLU activation and max-pooling, followed by a dense layer with one
// output per class. It is trained with plain stochastic gradient descent on a categorical
// cross-entropy loss.
//
// Usage:
//
//	ctx := shallownet.CreateDefaultContext()
//	c, err := shallownet.NewClassifier(backend, ctx, encoder.Classes())
//	history, err := c.Fit(trainDS, trainEvalDS, testDS)
//	err = c.Save("shallownet_weights.gmlx")
//	probs, predicted, err := c.Predict(testImages)
package shallownet

import (
	"fmt"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// State of a Classifier.
type State int

const (
	Uninitialized State = iota
	Compiled
	Trained
	Evaluated
	Persisted
)

var stateNames = []string{"uninitialized", "compiled", "trained", "evaluated", "persisted"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ModelScope is the context scope holding the model variables.
const ModelScope = "model"

// Classifier is a ShallowNet model, from compilation to training, persistence and prediction.
//
// It is not safe for concurrent use.
type Classifier struct {
	backend backends.Backend
	ctx     *context.Context
	config  Config
	classes []string
	runID   uuid.UUID

	trainer *train.Trainer
	loop    *train.Loop
	history *History

	predictExec *context.Exec
	state       State

	// ShowProgressBar displays a progress bar over the epochs during Fit.
	ShowProgressBar bool
}

// NewClassifier creates and compiles a ShallowNet classifier: the topology is fixed by the
// hyperparameters in ctx, the loss is the categorical cross-entropy and the optimizer is SGD with
// the configured learning rate (no decay).
//
// classes are the names of the output classes, in the order of the label encoder.
func NewClassifier(backend backends.Backend, ctx *context.Context, classes []string) (*Classifier, error) {
	cfg, err := NewConfig(ctx)
	if err != nil {
		return nil, err
	}
	if len(classes) != cfg.NumClasses {
		return nil, errors.Errorf("model configured for %d classes (%q), but %d class names were given: %q",
			cfg.NumClasses, ParamNumClasses, len(classes), classes)
	}
	c := &Classifier{
		backend: backend,
		ctx:     ctx,
		config:  cfg,
		classes: slices.Clone(classes),
		runID:   uuid.New(),
		state:   Uninitialized,
	}
	c.compile()
	return c, nil
}

func (c *Classifier) compile() {
	sgd := optimizers.StochasticGradientDescent().
		WithDecay(false).
		WithLearningRate(c.config.LearningRate).
		Done()
	c.trainer = train.NewTrainer(c.backend, c.ctx.In(ModelScope), ModelGraph,
		losses.CategoricalCrossEntropyLogits,
		sgd,
		[]metrics.Interface{NewCategoricalAccuracy("Mean Accuracy", "#acc")}, // trainMetrics
		[]metrics.Interface{NewCategoricalAccuracy("Mean Accuracy", "#acc")}) // evalMetrics
	c.loop = train.NewLoop(c.trainer)
	c.state = Compiled
}

// State returns the current state of the classifier.
func (c *Classifier) State() State { return c.state }

// Config returns the hyperparameters the classifier was built with.
func (c *Classifier) Config() Config { return c.config }

// Classes returns the class names, in output order.
func (c *Classifier) Classes() []string { return slices.Clone(c.classes) }

// RunID identifies the training run; it is saved in the artifact.
func (c *Classifier) RunID() uuid.UUID { return c.runID }

// Context returns the context holding the hyperparameters and the variables.
func (c *Classifier) Context() *context.Context { return c.ctx }

// History returns the training history, nil before Fit.
func (c *Classifier) History() *History { return c.history }

// GlobalStep returns the number of training steps taken.
func (c *Classifier) GlobalStep() int64 { return optimizers.GetGlobalStep(c.ctx) }

// Fit trains the model for the configured number of epochs over trainDS, which must be a finite
// batched dataset: one pass is one epoch.
//
// After every epoch the model is evaluated (no weight updates) on trainEvalDS and testDS, and
// the four values are appended to the returned History.
func (c *Classifier) Fit(trainDS, trainEvalDS, testDS train.Dataset) (*History, error) {
	if c.state != Compiled {
		return nil, errors.Errorf("Classifier.Fit: model must be in state %s, it is %s", Compiled, c.state)
	}
	var pBar *progressbar.ProgressBar
	if c.ShowProgressBar {
		pBar = progressbar.NewOptions(c.config.Epochs,
			progressbar.OptionSetDescription("Training"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("epochs"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	history := &History{}
	for epoch := range c.config.Epochs {
		if _, err := c.loop.RunEpochs(trainDS, 1); err != nil {
			return nil, errors.WithMessagef(err, "training epoch %d", epoch+1)
		}
		m, err := c.evaluateEpoch(trainEvalDS, testDS)
		if err != nil {
			return nil, errors.WithMessagef(err, "evaluating epoch %d", epoch+1)
		}
		if !m.IsFinite() {
			return nil, errors.Errorf("numeric overflow at epoch %d: loss=%g val_loss=%g", epoch+1, m.Loss, m.ValLoss)
		}
		history.Append(m)
		klog.V(1).Infof("epoch %d/%d: loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f",
			epoch+1, c.config.Epochs, m.Loss, m.Accuracy, m.ValLoss, m.ValAccuracy)
		if pBar != nil {
			pBar.Describe(fmt.Sprintf("Training [loss %.4f, val_acc %.2f%%]", m.Loss, 100*m.ValAccuracy))
			_ = pBar.Add(1)
		}
	}
	if pBar != nil {
		_ = pBar.Finish()
	}
	c.history = history
	c.state = Trained
	return history, nil
}

// evaluateEpoch returns loss and accuracy over both datasets.
func (c *Classifier) evaluateEpoch(trainEvalDS, testDS train.Dataset) (m EpochMetrics, err error) {
	m.Loss, m.Accuracy, err = c.Evaluate(trainEvalDS)
	if err != nil {
		return
	}
	m.ValLoss, m.ValAccuracy, err = c.Evaluate(testDS)
	return
}

// Evaluate returns the mean loss and accuracy of the model over ds. It doesn't change the weights.
func (c *Classifier) Evaluate(ds train.Dataset) (loss, accuracy float64, err error) {
	if c.trainer == nil {
		return 0, 0, errors.Errorf("Classifier.Evaluate: model not compiled")
	}
	values, err := c.trainer.Eval(ds)
	ds.Reset()
	if err != nil {
		return 0, 0, errors.WithMessagef(err, "evaluating on %q", ds.Name())
	}
	defer func() {
		for _, v := range values {
			v.MustFinalizeAll()
		}
	}()
	loss, accuracy = math.NaN(), math.NaN()
	for ii, metric := range c.trainer.EvalMetrics() {
		switch metric.MetricType() {
		case metrics.LossMetricType:
			loss = scalarValue(values[ii])
		case metrics.AccuracyMetricType:
			accuracy = scalarValue(values[ii])
		}
	}
	return
}

func scalarValue(t *tensors.Tensor) float64 {
	switch t.DType() {
	case dtypes.Float64:
		return tensors.ToScalar[float64](t)
	default:
		return float64(tensors.ToScalar[float32](t))
	}
}

// Predict runs batched inference on images, shaped [N, height, width, 3] (or channels first),
// returning the softmax probabilities ([N][classes]) and the arg-max class index of each example.
func (c *Classifier) Predict(imagesT *tensors.Tensor) (probabilities [][]float32, predicted []int, err error) {
	if c.state == Uninitialized || c.state == Compiled {
		return nil, nil, errors.Errorf("Classifier.Predict: model must be trained or loaded, it is %s", c.state)
	}
	if c.predictExec == nil {
		c.predictExec, err = context.NewExec(c.backend, c.ctx.In(ModelScope).Reuse(),
			func(ctx *context.Context, batch *graph.Node) (probs, choice *graph.Node) {
				logits := ModelGraph(ctx, nil, []*graph.Node{batch})[0]
				probs = graph.Softmax(logits, -1)
				choice = graph.ArgMax(logits, -1, dtypes.Int32)
				return
			})
		if err != nil {
			return nil, nil, errors.WithMessage(err, "creating prediction executor")
		}
	}

	dims := imagesT.Shape().Dimensions
	if len(dims) != 4 {
		return nil, nil, errors.Errorf("Classifier.Predict expects a batch of images (rank 4), got shape %s", imagesT.Shape())
	}
	numExamples := dims[0]
	exampleSize := dims[1] * dims[2] * dims[3]
	flat := tensors.MustCopyFlatData[float32](imagesT)
	batchSize := c.config.EvalBatchSize
	numClasses := len(c.classes)
	for start := 0; start < numExamples; start += batchSize {
		end := min(start+batchSize, numExamples)
		batch := tensors.FromFlatDataAndDimensions(flat[start*exampleSize:end*exampleSize],
			end-start, dims[1], dims[2], dims[3])
		var probsT, choiceT *tensors.Tensor
		var execErr error
		err = exceptions.TryCatch[error](func() {
			probsT, choiceT, execErr = c.predictExec.Exec2(batch)
		})
		if err == nil {
			err = execErr
		}
		batch.MustFinalizeAll()
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "predicting examples [%d, %d)", start, end)
		}
		batchProbs := tensors.MustCopyFlatData[float32](probsT)
		for ii, choice := range tensors.MustCopyFlatData[int32](choiceT) {
			probabilities = append(probabilities, batchProbs[ii*numClasses:(ii+1)*numClasses])
			predicted = append(predicted, int(choice))
		}
		probsT.MustFinalizeAll()
		choiceT.MustFinalizeAll()
	}
	if c.state == Trained {
		c.state = Evaluated
	}
	return
}
