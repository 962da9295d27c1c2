// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	mg "github.com/erkkah/margaid"
	"github.com/gomlx/shallownet/shallownet"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Curve is one named series of the chart, one value per epoch.
type Curve struct {
	Name   string
	Values []float64
}

// Chart of the training curves over the epochs, on a shared axis.
type Chart struct {
	Title, XLabel, YLabel string

	// Width and Height of the rendered image, in points for PNG and pixels for SVG.
	Width, Height int

	Curves []Curve
}

// NewChart returns the chart of the training loss and accuracy in history: the curves
// train_loss, val_loss, train_acc and val_acc, in this order.
func NewChart(history *shallownet.History) *Chart {
	return &Chart{
		Title:  "Training Loss and Accuracy",
		XLabel: "Epoch #",
		YLabel: "Loss/Accuracy",
		Width:  1024,
		Height: 640,
		Curves: []Curve{
			{Name: shallownet.TrainLossName, Values: history.Loss},
			{Name: shallownet.ValLossName, Values: history.ValLoss},
			{Name: shallownet.TrainAccuracyName, Values: history.Accuracy},
			{Name: shallownet.ValAccuracyName, Values: history.ValAccuracy},
		},
	}
}

// NumEpochs returns the length of the longest curve.
func (c *Chart) NumEpochs() int {
	var n int
	for _, curve := range c.Curves {
		n = max(n, len(curve.Values))
	}
	return n
}

// Save renders the chart to filePath: SVG (with margaid) if it has the ".svg" extension, and
// PNG (with gonum plot) otherwise.
func (c *Chart) Save(filePath string) error {
	if strings.EqualFold(filepath.Ext(filePath), ".svg") {
		return c.SaveSVG(filePath)
	}
	return c.SavePNG(filePath)
}

// SavePNG renders the chart with gonum plot. The format is taken from the file extension,
// and defaults to PNG.
func (c *Chart) SavePNG(filePath string) error {
	if c.NumEpochs() == 0 {
		return errors.New("no epochs to plot")
	}
	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.XLabel
	p.Y.Label.Text = c.YLabel
	p.BackgroundColor = color.RGBA{R: 0xeb, G: 0xeb, B: 0xeb, A: 0xff}
	grid := plotter.NewGrid()
	grid.Vertical.Color = color.White
	grid.Horizontal.Color = color.White
	p.Add(grid)
	p.Legend.Top = true

	var lines []any
	for _, curve := range c.Curves {
		xys := make(plotter.XYs, len(curve.Values))
		for epoch, value := range curve.Values {
			xys[epoch].X = float64(epoch)
			xys[epoch].Y = value
		}
		lines = append(lines, curve.Name, xys)
	}
	if err := plotutil.AddLines(p, lines...); err != nil {
		return errors.Wrap(err, "adding curves to plot")
	}
	ext := filepath.Ext(filePath)
	if ext == "" {
		ext = ".png"
	}
	w, err := p.WriterTo(vg.Length(c.Width), vg.Length(c.Height), ext[1:])
	if err != nil {
		return errors.Wrapf(err, "rendering plot to %q", filePath)
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating plot file %q", filePath)
	}
	if _, err = w.WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "writing plot to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "closing plot file %q", filePath)
}

// SVG renders the chart as SVG with margaid.
func (c *Chart) SVG() ([]byte, error) {
	if c.NumEpochs() == 0 {
		return nil, errors.New("no epochs to plot")
	}
	allSeries := make([]*mg.Series, 0, len(c.Curves))
	allPoints := mg.NewSeries()
	for _, curve := range c.Curves {
		s := mg.NewSeries(mg.Titled(curve.Name))
		for epoch, value := range curve.Values {
			s.Add(mg.MakeValue(float64(epoch), value))
			allPoints.Add(mg.MakeValue(float64(epoch), value))
		}
		allSeries = append(allSeries, s)
	}
	diagram := mg.New(c.Width, c.Height,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, c.XLabel)
	diagram.Axis(allPoints, mg.YAxis, diagram.ValueTicker('f', 2, 10), true, c.YLabel)
	diagram.Frame()
	diagram.Title(c.Title)
	diagram.Legend(mg.BottomLeft)

	buf := bytes.NewBuffer(nil)
	if err := diagram.Render(buf); err != nil {
		return nil, errors.Wrap(err, "rendering SVG chart")
	}
	return buf.Bytes(), nil
}

// SaveSVG writes the SVG rendering of the chart to filePath.
func (c *Chart) SaveSVG(filePath string) error {
	svg, err := c.SVG()
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(filePath, svg, 0644), "writing SVG chart to %q", filePath)
}
