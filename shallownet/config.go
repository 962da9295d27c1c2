// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shallownet

import (
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// Hyperparameter names, stored in the context.
const (
	ParamImageWidth    = "image_width"
	ParamImageHeight   = "image_height"
	ParamImageChannels = "image_channels"
	ParamNumClasses    = "num_classes"
	ParamTestFraction  = "test_fraction"
	ParamSeed          = "seed"
	ParamBatchSize     = "batch_size"
	ParamEvalBatchSize = "eval_batch_size"
	ParamEpochs        = "epochs"
	ParamConvFilters   = "conv_filters"
	ParamConvKernel    = "conv_kernel_size"
	ParamPool          = "pool"
	ParamChannelsFirst = "channels_first"
)

// ParamLearningRate is the SGD learning rate, shared with the optimizers package.
var ParamLearningRate = optimizers.ParamLearningRate

// CreateDefaultContext returns a context with the default hyperparameters of ShallowNet.
//
// They can be changed with ctx.SetParam, or from the command line with
// commandline.ParseContextSettings.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.ResetRNGState()
	ctx.SetParams(map[string]any{
		ParamImageWidth:    32,
		ParamImageHeight:   32,
		ParamImageChannels: 3,
		ParamNumClasses:    3,

		ParamTestFraction: 0.25,
		ParamSeed:         42,

		ParamLearningRate: 0.005,
		ParamBatchSize:    32,

		// eval_batch_size can be larger than training, it's more efficient. 0 means same as batch_size.
		ParamEvalBatchSize: 0,
		ParamEpochs:        100,

		// Model: conv(filters, kernel x kernel) -> relu -> [max-pool 2x2] -> flatten -> dense(classes).
		ParamConvFilters: 32,
		ParamConvKernel:  3,
		ParamPool:        true,

		// Image tensors layout: [batch, height, width, channels] by default.
		ParamChannelsFirst: false,
	})
	return ctx
}

// Config is a snapshot of the hyperparameters read from a context, passed to the components.
type Config struct {
	Width, Height, Channels int
	NumClasses              int
	TestFraction            float64
	Seed                    int64
	LearningRate            float64
	BatchSize               int
	EvalBatchSize           int
	Epochs                  int
	ConvFilters             int
	ConvKernel              int
	Pool                    bool
	ChannelsAxis            images.ChannelsAxisConfig
}

// NewConfig reads the hyperparameters from ctx and validates them.
func NewConfig(ctx *context.Context) (Config, error) {
	cfg := Config{
		Width:         context.GetParamOr(ctx, ParamImageWidth, 32),
		Height:        context.GetParamOr(ctx, ParamImageHeight, 32),
		Channels:      context.GetParamOr(ctx, ParamImageChannels, 3),
		NumClasses:    context.GetParamOr(ctx, ParamNumClasses, 3),
		TestFraction:  context.GetParamOr(ctx, ParamTestFraction, 0.25),
		Seed:          int64(context.GetParamOr(ctx, ParamSeed, 42)),
		LearningRate:  context.GetParamOr(ctx, ParamLearningRate, 0.005),
		BatchSize:     context.GetParamOr(ctx, ParamBatchSize, 32),
		EvalBatchSize: context.GetParamOr(ctx, ParamEvalBatchSize, 0),
		Epochs:        context.GetParamOr(ctx, ParamEpochs, 100),
		ConvFilters:   context.GetParamOr(ctx, ParamConvFilters, 32),
		ConvKernel:    context.GetParamOr(ctx, ParamConvKernel, 3),
		Pool:          context.GetParamOr(ctx, ParamPool, true),
		ChannelsAxis:  images.ChannelsLast,
	}
	if context.GetParamOr(ctx, ParamChannelsFirst, false) {
		cfg.ChannelsAxis = images.ChannelsFirst
	}
	if cfg.EvalBatchSize <= 0 {
		cfg.EvalBatchSize = cfg.BatchSize
	}
	return cfg, cfg.Validate()
}

// Validate checks that the values are usable.
func (cfg Config) Validate() error {
	switch {
	case cfg.Width <= 0 || cfg.Height <= 0:
		return errors.Errorf("image size must be positive, got %dx%d", cfg.Width, cfg.Height)
	case cfg.Channels != 3:
		return errors.Errorf("only RGB images (3 channels) are supported, got %d channels", cfg.Channels)
	case cfg.NumClasses < 2:
		return errors.Errorf("at least 2 classes are required, got %d", cfg.NumClasses)
	case cfg.TestFraction <= 0 || cfg.TestFraction >= 1:
		return errors.Errorf("test fraction must be in (0, 1), got %g", cfg.TestFraction)
	case cfg.LearningRate <= 0:
		return errors.Errorf("learning rate must be positive, got %g", cfg.LearningRate)
	case cfg.BatchSize <= 0:
		return errors.Errorf("batch size must be > 0 (maybe it was not set?): %d", cfg.BatchSize)
	case cfg.Epochs <= 0:
		return errors.Errorf("number of epochs must be > 0, got %d", cfg.Epochs)
	case cfg.ConvFilters <= 0 || cfg.ConvKernel <= 0:
		return errors.Errorf("convolution filters (%d) and kernel size (%d) must be positive",
			cfg.ConvFilters, cfg.ConvKernel)
	}
	return nil
}
