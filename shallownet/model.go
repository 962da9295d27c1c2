// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shallownet

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gopjrt/dtypes"
)

// ModelGraph implements train.ModelFn and returns the logits, given a batch of images.
//
// The topology is fixed by the hyperparameters in ctx:
//
//	conv(conv_filters, conv_kernel_size x conv_kernel_size, same padding) -> relu
//	  -> max-pool 2x2 (if "pool") -> flatten -> dense(num_classes)
//
// Softmax is left to the loss (CategoricalCrossEntropyLogits) and to Classifier.Predict.
func ModelGraph(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	_ = spec // Not used.
	batchedImages := inputs[0]
	batchSize := batchedImages.Shape().Dimensions[0]

	channelsAxis := images.ChannelsLast
	if context.GetParamOr(ctx, ParamChannelsFirst, false) {
		channelsAxis = images.ChannelsFirst
	}
	filters := context.GetParamOr(ctx, ParamConvFilters, 32)
	kernelSize := context.GetParamOr(ctx, ParamConvKernel, 3)
	numClasses := context.GetParamOr(ctx, ParamNumClasses, 3)
	width := context.GetParamOr(ctx, ParamImageWidth, 32)
	height := context.GetParamOr(ctx, ParamImageHeight, 32)
	if channelsAxis == images.ChannelsLast {
		batchedImages.AssertDims(batchSize, height, width, 3)
	} else {
		batchedImages.AssertDims(batchSize, 3, height, width)
	}

	logits := layers.Convolution(ctx.In("conv"), batchedImages).
		Channels(filters).
		KernelSize(kernelSize).
		PadSame().
		ChannelsAxis(channelsAxis).
		Done()
	logits = activations.Relu(logits)
	if context.GetParamOr(ctx, ParamPool, true) {
		logits = graph.MaxPool(logits).ChannelsAxis(channelsAxis).Window(2).Done()
	}

	// Flatten and project to one logit per class.
	logits = graph.Reshape(logits, batchSize, -1)
	logits = layers.Dense(ctx.In("dense"), logits, true, numClasses)
	return []*graph.Node{logits}
}

// CategoricalAccuracyGraph returns the mean accuracy of the logits (or probabilities) against
// one-hot labels: the fraction of examples where the arg-max of both match.
func CategoricalAccuracyGraph(_ *context.Context, labels, predictions []*graph.Node) *graph.Node {
	oneHot := labels[0]
	logits := predictions[0]
	if !oneHot.Shape().Equal(logits.Shape()) {
		exceptions.Panicf("one-hot labels (%s) and logits (%s) must have the same shape", oneHot.Shape(), logits.Shape())
	}
	g := logits.Graph()
	dtype := logits.DType()
	trueClass := graph.ArgMax(oneHot, -1, dtypes.Int32)
	predictedClass := graph.ArgMax(logits, -1, dtypes.Int32)
	correct := graph.ConvertDType(graph.Equal(trueClass, predictedClass), dtype)
	numExamples := graph.Scalar(g, dtype, float64(correct.Shape().Size()))
	return graph.Div(graph.ReduceAllSum(correct), numExamples)
}

func accuracyPPrint(value *tensors.Tensor) string {
	return fmt.Sprintf("%.2f%%", tensors.ToScalar[float32](value)*100.0)
}

// NewCategoricalAccuracy returns a mean accuracy metric for one-hot labels.
func NewCategoricalAccuracy(name, shortName string) metrics.Interface {
	return metrics.NewMeanMetric(name, shortName, metrics.AccuracyMetricType, CategoricalAccuracyGraph, accuracyPPrint)
}
