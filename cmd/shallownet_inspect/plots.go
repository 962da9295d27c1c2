// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/base64"
	"encoding/json"
	"html/template"
	"io"
	"os"
	"slices"

	grob "github.com/MetalBlueberry/go-plotly/generated/v2.34.0/graph_objects"
	ptypes "github.com/MetalBlueberry/go-plotly/pkg/types"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/janpfeifer/gonb/gonbui/plotly"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// plotLine is one metric of a figure, sorted by step.
type plotLine struct {
	name          string
	steps, values []float64
}

// BuildFigures returns one Plotly figure (serialized as JSON) per metric type found in points,
// sorted by metric type, with one line per metric name.
func BuildFigures(points []plots.Point) ([][]byte, error) {
	linesPerType := make(map[string]map[string]*plotLine)
	for _, pt := range points {
		lines, found := linesPerType[pt.MetricType]
		if !found {
			lines = make(map[string]*plotLine)
			linesPerType[pt.MetricType] = lines
		}
		line, found := lines[pt.MetricName]
		if !found {
			line = &plotLine{name: pt.MetricName}
			lines[pt.MetricName] = line
		}
		line.steps = append(line.steps, pt.Step)
		line.values = append(line.values, pt.Value)
	}
	if len(linesPerType) == 0 {
		return nil, errors.New("no metrics to plot")
	}

	metricTypes := maps.Keys(linesPerType)
	slices.Sort(metricTypes)
	figures := make([][]byte, 0, len(metricTypes))
	for _, metricType := range metricTypes {
		fig := &grob.Fig{
			Layout: &grob.Layout{
				Title: &grob.LayoutTitle{
					Text: ptypes.S(metricType),
				},
				Xaxis: &grob.LayoutXaxis{
					Showgrid: ptypes.B(true),
				},
				Yaxis: &grob.LayoutYaxis{
					Showgrid: ptypes.B(true),
				},
				Legend: &grob.LayoutLegend{},
			},
		}
		lines := linesPerType[metricType]
		names := maps.Keys(lines)
		slices.Sort(names)
		for _, name := range names {
			line := sortedByStep(lines[name])
			fig.Data = append(fig.Data, &grob.Scatter{
				Name: ptypes.S(line.name),
				Line: &grob.ScatterLine{
					Shape: grob.ScatterLineShapeLinear,
				},
				Mode: "lines+markers",
				X:    ptypes.DataArray(line.steps),
				Y:    ptypes.DataArray(line.values),
			})
		}
		figAsJSON, err := json.Marshal(fig)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal plotly figure for metric type %q", metricType)
		}
		figures = append(figures, figAsJSON)
	}
	return figures, nil
}

func sortedByStep(line *plotLine) *plotLine {
	indices := make([]int, len(line.steps))
	for ii := range indices {
		indices[ii] = ii
	}
	slices.SortStableFunc(indices, func(a, b int) int {
		switch {
		case line.steps[a] < line.steps[b]:
			return -1
		case line.steps[a] > line.steps[b]:
			return 1
		}
		return 0
	})
	sorted := &plotLine{
		name:   line.name,
		steps:  make([]float64, len(indices)),
		values: make([]float64, len(indices)),
	}
	for ii, idx := range indices {
		sorted.steps[ii] = line.steps[idx]
		sorted.values[ii] = line.values[idx]
	}
	return sorted
}

var (
	singleFileHTML = `<!DOCTYPE html>
<html>
	<head>
		<meta charset="utf-8">
		<title>{{ .Title }}</title>
		<script src="{{ .CDN }}"></script>
	</head>
	<body>
{{- range $i, $f := .Figures }}
		<div id="plot{{ $i }}"></div>
{{- end }}
	<script>
{{- range $i, $f := .Figures }}
		data = JSON.parse(atob('{{ $f }}'))
		Plotly.newPlot('plot{{ $i }}', data);
{{- end }}
	</script>
	</body>
</html>`
	singleFileHTMLTmpl = template.Must(template.New("plotly").Parse(singleFileHTML))
)

// WritePlotlyAsHTML renders the Plotly figures (given as JSON) to a standalone HTML page.
func WritePlotlyAsHTML(w io.Writer, title string, figuresAsJSON ...[]byte) error {
	data := &struct {
		Title   string
		CDN     string
		Figures []string
	}{
		Title: title,
		CDN:   plotly.PlotlySrc,
	}
	for _, fig := range figuresAsJSON {
		data.Figures = append(data.Figures, base64.StdEncoding.EncodeToString(fig))
	}
	if err := singleFileHTMLTmpl.Execute(w, data); err != nil {
		return errors.Wrap(err, "failed to render plotly")
	}
	return nil
}

// PlotlyToHTMLFile renders the training curves in points to an HTML file.
func PlotlyToHTMLFile(fileName, title string, points []plots.Point) error {
	figures, err := BuildFigures(points)
	if err != nil {
		return err
	}
	f, err := os.Create(fileName)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", fileName)
	}
	if err := WritePlotlyAsHTML(f, title, figures...); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "failed to close %q", fileName)
}
