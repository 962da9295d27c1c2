// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report renders the evaluation of a trained classifier: the per-class classification
// report and the training curves chart.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ClassMetrics holds the metrics of one class.
type ClassMetrics struct {
	Class     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// ClassificationReport holds the per-class precision, recall, F1 and support over a set of
// predictions, plus the overall accuracy and the macro and weighted averages.
//
// Divisions by zero (a class never predicted, or absent) yield 0.
type ClassificationReport struct {
	Classes     []ClassMetrics
	Accuracy    float64
	MacroAvg    ClassMetrics
	WeightedAvg ClassMetrics
	Total       int

	// Confusion[true][predicted] counts.
	Confusion [][]int
}

// NewClassificationReport computes the report for the given true and predicted class indices.
// classes names the indices, in the label encoder order.
func NewClassificationReport(classes []string, trueIdx, predIdx []int) (*ClassificationReport, error) {
	if len(trueIdx) != len(predIdx) {
		return nil, errors.Errorf("got %d true labels but %d predictions", len(trueIdx), len(predIdx))
	}
	if len(trueIdx) == 0 {
		return nil, errors.New("no predictions to report on")
	}
	numClasses := len(classes)
	confusion := make([][]int, numClasses)
	for ii := range confusion {
		confusion[ii] = make([]int, numClasses)
	}
	correct := 0
	for ii, t := range trueIdx {
		p := predIdx[ii]
		if t < 0 || t >= numClasses || p < 0 || p >= numClasses {
			return nil, errors.Errorf("example #%d: class indices (true=%d, predicted=%d) out of range for %d classes",
				ii, t, p, numClasses)
		}
		confusion[t][p]++
		if t == p {
			correct++
		}
	}

	r := &ClassificationReport{
		Classes:   make([]ClassMetrics, numClasses),
		Accuracy:  float64(correct) / float64(len(trueIdx)),
		Total:     len(trueIdx),
		Confusion: confusion,
	}
	precisions := make([]float64, numClasses)
	recalls := make([]float64, numClasses)
	f1s := make([]float64, numClasses)
	supports := make([]float64, numClasses)
	for c := range numClasses {
		truePositives := confusion[c][c]
		var predicted, support int
		for other := range numClasses {
			predicted += confusion[other][c]
			support += confusion[c][other]
		}
		m := ClassMetrics{
			Class:     classes[c],
			Precision: safeDiv(float64(truePositives), float64(predicted)),
			Recall:    safeDiv(float64(truePositives), float64(support)),
			Support:   support,
		}
		m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
		r.Classes[c] = m
		precisions[c], recalls[c], f1s[c], supports[c] = m.Precision, m.Recall, m.F1, float64(support)
	}

	n := float64(numClasses)
	r.MacroAvg = ClassMetrics{
		Class:     "macro avg",
		Precision: floats.Sum(precisions) / n,
		Recall:    floats.Sum(recalls) / n,
		F1:        floats.Sum(f1s) / n,
		Support:   r.Total,
	}
	total := floats.Sum(supports)
	r.WeightedAvg = ClassMetrics{
		Class:     "weighted avg",
		Precision: safeDiv(floats.Dot(precisions, supports), total),
		Recall:    safeDiv(floats.Dot(recalls, supports), total),
		F1:        safeDiv(floats.Dot(f1s, supports), total),
		Support:   r.Total,
	}
	return r, nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// ClassNames returns the names of the classes in the report, in order.
func (r *ClassificationReport) ClassNames() []string {
	names := make([]string, len(r.Classes))
	for ii, m := range r.Classes {
		names[ii] = m.Class
	}
	return names
}

// Render returns the report as a table for the terminal.
func (r *ClassificationReport) Render() string {
	table := newPlainTable(true, lipgloss.Right, lipgloss.Right)
	table.Headers("", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		table.Row(m.Class, fmt.Sprintf("%.2f", m.Precision), fmt.Sprintf("%.2f", m.Recall),
			fmt.Sprintf("%.2f", m.F1), humanize.Comma(int64(m.Support)))
	}
	table.Row("accuracy", "", "", fmt.Sprintf("%.2f", r.Accuracy), humanize.Comma(int64(r.Total)))
	for _, m := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		table.Row(m.Class, fmt.Sprintf("%.2f", m.Precision), fmt.Sprintf("%.2f", m.Recall),
			fmt.Sprintf("%.2f", m.F1), humanize.Comma(int64(m.Support)))
	}
	return titleStyle.Render("Classification Report") + "\n" + table.Render()
}

// RenderConfusion returns the confusion matrix as a table for the terminal: rows are the true
// classes, columns the predicted ones.
func (r *ClassificationReport) RenderConfusion() string {
	table := newPlainTable(true, lipgloss.Right, lipgloss.Right)
	table.Headers(append([]string{"true \\ predicted"}, r.ClassNames()...)...)
	for ii, row := range r.Confusion {
		cells := []string{r.Classes[ii].Class}
		for _, count := range row {
			cells = append(cells, humanize.Comma(int64(count)))
		}
		table.Row(cells...)
	}
	return titleStyle.Render("Confusion Matrix") + "\n" + table.Render()
}

// DataFrame returns the per-class metrics, followed by the averages, as a dataframe.
func (r *ClassificationReport) DataFrame() dataframe.DataFrame {
	rows := append(append([]ClassMetrics{}, r.Classes...), r.MacroAvg, r.WeightedAvg)
	names := make([]string, len(rows))
	precision := make([]float64, len(rows))
	recall := make([]float64, len(rows))
	f1 := make([]float64, len(rows))
	support := make([]int, len(rows))
	for ii, m := range rows {
		names[ii], precision[ii], recall[ii], f1[ii], support[ii] = m.Class, m.Precision, m.Recall, m.F1, m.Support
	}
	return dataframe.New(
		series.New(names, series.String, "class"),
		series.New(precision, series.Float, "precision"),
		series.New(recall, series.Float, "recall"),
		series.New(f1, series.Float, "f1-score"),
		series.New(support, series.Int, "support"),
	)
}

// WriteCSV writes the DataFrame as CSV.
func (r *ClassificationReport) WriteCSV(w io.Writer) error {
	if err := r.DataFrame().WriteCSV(w); err != nil {
		return errors.Wrap(err, "writing classification report as CSV")
	}
	return nil
}

// String implements fmt.Stringer, with a plain text version of the report.
func (r *ClassificationReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%12s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&sb, "%12s %9.2f %9.2f %9.2f %9d\n", m.Class, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&sb, "%12s %9s %9s %9.2f %9d\n", "accuracy", "", "", r.Accuracy, r.Total)
	for _, m := range []ClassMetrics{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&sb, "%12s %9.2f %9.2f %9.2f %9d\n", m.Class, m.Precision, m.Recall, m.F1, m.Support)
	}
	return sb.String()
}
