// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package preprocess implements the image transformations applied to every sample before it
// reaches the model: a fixed-size Resize and the ArrayOrder normalization that lays the pixels
// out the way the convolution layer expects them.
//
// Preprocessors are composed with a Chain, applied in order:
//
//	chain := preprocess.Chain{
//		preprocess.Resize{Width: 32, Height: 32},
//		preprocess.ArrayOrder{Axis: images.ChannelsLast},
//	}
//	img = chain.Apply(img)
package preprocess

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// NumChannels is the number of color channels (RGB) kept after preprocessing. The alpha
// channel is dropped.
const NumChannels = 3

// Preprocessor transforms one image into another.
//
// The set of preprocessors is closed: Resize and ArrayOrder.
type Preprocessor interface {
	Transform(img image.Image) image.Image

	// Validate returns an error if the preprocessor is misconfigured.
	Validate() error

	preprocessor()
}

// Resize stretches (or squashes) an image to exactly Width x Height, ignoring the aspect ratio.
// It always uses the Lanczos filter.
type Resize struct {
	Width, Height int
}

// Transform implements Preprocessor.
func (r Resize) Transform(img image.Image) image.Image {
	return imaging.Resize(img, r.Width, r.Height, imaging.Lanczos)
}

// Validate implements Preprocessor. Both dimensions must be set: imaging.Resize would otherwise
// preserve the aspect ratio.
func (r Resize) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return errors.Errorf("preprocess.Resize requires positive width and height, got %dx%d", r.Width, r.Height)
	}
	return nil
}

func (Resize) preprocessor() {}

// ArrayOrder normalizes the in-memory layout of an image into what the network consumes.
//
// Decoded images come in many color models (YCbCr, paletted, gray, RGBA, ...) and their
// bounds may not start at (0, 0). Transform rewrites them into a dense *image.NRGBA anchored
// at the origin: row-major, 4 interleaved 8-bit channels per pixel, that is, spatial axes first
// and channels last (H x W x C).
//
// Axis selects the ordering of the tensor built by Tensor:
//
//   - images.ChannelsLast: [batch, height, width, channels]; the channel axis stays last.
//   - images.ChannelsFirst: [batch, channels, height, width]; the channel axis moves from last
//     to right after the batch axis.
//
// The convolution layer must be configured with the same Axis.
type ArrayOrder struct {
	Axis images.ChannelsAxisConfig
}

// Transform implements Preprocessor.
func (o ArrayOrder) Transform(img image.Image) image.Image {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) {
		return nrgba
	}
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return dst
}

// Validate implements Preprocessor.
func (o ArrayOrder) Validate() error {
	if o.Axis != images.ChannelsFirst && o.Axis != images.ChannelsLast {
		return errors.Errorf("preprocess.ArrayOrder has invalid channels axis %d", o.Axis)
	}
	return nil
}

func (ArrayOrder) preprocessor() {}

// Tensor converts a batch of images, all with the same size, to a float32 tensor with values
// scaled from [0, 255] to [0, 1], laid out according to o.Axis.
//
// Images are normalized with Transform first, so it is safe to pass images that skipped it.
func (o ArrayOrder) Tensor(imgs []image.Image) (*tensors.Tensor, error) {
	if len(imgs) == 0 {
		return nil, errors.New("preprocess.ArrayOrder.Tensor: no images given")
	}
	normalized := make([]image.Image, len(imgs))
	size := imgs[0].Bounds().Size()
	for ii, img := range imgs {
		if !img.Bounds().Size().Eq(size) {
			return nil, errors.Errorf("image #%d has size %s, but image #0 has size %s: they must all be the same",
				ii, img.Bounds().Size(), size)
		}
		normalized[ii] = o.Transform(img)
	}

	switch o.Axis {
	case images.ChannelsLast:
		return images.ToTensor(dtypes.Float32).Batch(normalized), nil
	case images.ChannelsFirst:
		return channelsFirstTensor(normalized, size), nil
	default:
		return nil, o.Validate()
	}
}

// channelsFirstTensor transposes the interleaved NRGBA pixels into planar [N, C, H, W].
func channelsFirstTensor(imgs []image.Image, size image.Point) *tensors.Tensor {
	planeSize := size.X * size.Y
	exampleSize := NumChannels * planeSize
	flat := make([]float32, len(imgs)*exampleSize)
	for ii, img := range imgs {
		pix := img.(*image.NRGBA)
		base := ii * exampleSize
		for y := 0; y < size.Y; y++ {
			row := pix.Pix[y*pix.Stride:]
			for x := 0; x < size.X; x++ {
				alpha := float32(row[4*x+3]) / 255.0
				for c := 0; c < NumChannels; c++ {
					// Premultiplied, matching images.ToTensor.
					flat[base+c*planeSize+y*size.X+x] = float32(row[4*x+c]) / 255.0 * alpha
				}
			}
		}
	}
	return tensors.FromFlatDataAndDimensions(flat, len(imgs), NumChannels, size.Y, size.X)
}

// Chain is an ordered sequence of preprocessors, applied one after the other.
// Order matters: Resize must come before ArrayOrder.
type Chain []Preprocessor

// Apply runs every preprocessor of the chain, in order.
func (c Chain) Apply(img image.Image) image.Image {
	for _, p := range c {
		img = p.Transform(img)
	}
	return img
}

// Validate checks each preprocessor.
func (c Chain) Validate() error {
	for ii, p := range c {
		if err := p.Validate(); err != nil {
			return errors.WithMessagef(err, "preprocessor #%d (%T)", ii, p)
		}
	}
	return nil
}

// ArrayOrder returns the last ArrayOrder of the chain, or a ChannelsLast one if the chain has none.
func (c Chain) ArrayOrder() ArrayOrder {
	for ii := len(c) - 1; ii >= 0; ii-- {
		if o, ok := c[ii].(ArrayOrder); ok {
			return o
		}
	}
	return ArrayOrder{Axis: images.ChannelsLast}
}

// New returns the standard chain: Resize to width x height, then ArrayOrder with the given axis.
func New(width, height int, axis images.ChannelsAxisConfig) Chain {
	return Chain{
		Resize{Width: width, Height: height},
		ArrayOrder{Axis: axis},
	}
}
