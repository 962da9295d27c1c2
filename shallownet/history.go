// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shallownet

import (
	"math"

	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/pkg/errors"
)

// Names of the metrics recorded per epoch, as stored in plot points.
const (
	TrainLossName     = "train_loss"
	ValLossName       = "val_loss"
	TrainAccuracyName = "train_acc"
	ValAccuracyName   = "val_acc"
)

// History holds the per-epoch metrics of a training run. All slices have one entry per epoch.
type History struct {
	Loss        []float64
	Accuracy    []float64
	ValLoss     []float64
	ValAccuracy []float64
}

// EpochMetrics are the four values recorded at the end of one epoch.
type EpochMetrics struct {
	Loss, Accuracy, ValLoss, ValAccuracy float64
}

// Len returns the number of epochs recorded.
func (h *History) Len() int { return len(h.Loss) }

// Append records the metrics of one more epoch.
func (h *History) Append(m EpochMetrics) {
	h.Loss = append(h.Loss, m.Loss)
	h.Accuracy = append(h.Accuracy, m.Accuracy)
	h.ValLoss = append(h.ValLoss, m.ValLoss)
	h.ValAccuracy = append(h.ValAccuracy, m.ValAccuracy)
}

// Epoch returns the metrics of the given epoch (starting from 0).
func (h *History) Epoch(epoch int) EpochMetrics {
	return EpochMetrics{
		Loss:        h.Loss[epoch],
		Accuracy:    h.Accuracy[epoch],
		ValLoss:     h.ValLoss[epoch],
		ValAccuracy: h.ValAccuracy[epoch],
	}
}

// Last returns the metrics of the last epoch recorded, or false if there are none.
func (h *History) Last() (EpochMetrics, bool) {
	if h.Len() == 0 {
		return EpochMetrics{}, false
	}
	return h.Epoch(h.Len() - 1), true
}

// IsFinite reports whether all four values are finite numbers.
func (m EpochMetrics) IsFinite() bool {
	for _, v := range []float64{m.Loss, m.Accuracy, m.ValLoss, m.ValAccuracy} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Points converts the history to plot points. Step is the epoch number, starting from 1.
func (h *History) Points() []plots.Point {
	points := make([]plots.Point, 0, 4*h.Len())
	for epoch := range h.Len() {
		m := h.Epoch(epoch)
		step := float64(epoch + 1)
		points = append(points,
			plots.Point{MetricName: TrainLossName, Short: "loss", MetricType: metrics.LossMetricType, Step: step, Value: m.Loss},
			plots.Point{MetricName: ValLossName, Short: "val_loss", MetricType: metrics.LossMetricType, Step: step, Value: m.ValLoss},
			plots.Point{MetricName: TrainAccuracyName, Short: "acc", MetricType: metrics.AccuracyMetricType, Step: step, Value: m.Accuracy},
			plots.Point{MetricName: ValAccuracyName, Short: "val_acc", MetricType: metrics.AccuracyMetricType, Step: step, Value: m.ValAccuracy},
		)
	}
	return points
}

// HistoryFromPoints rebuilds a History from the plot points created by History.Points.
// Points of other metrics are ignored.
func HistoryFromPoints(points []plots.Point) (*History, error) {
	byName := map[string]map[int]float64{
		TrainLossName:     {},
		ValLossName:       {},
		TrainAccuracyName: {},
		ValAccuracyName:   {},
	}
	numEpochs := 0
	for _, p := range points {
		values, found := byName[p.MetricName]
		if !found {
			continue
		}
		epoch := int(p.Step)
		if float64(epoch) != p.Step || epoch < 1 {
			return nil, errors.Errorf("invalid epoch %g for metric %q", p.Step, p.MetricName)
		}
		values[epoch] = p.Value
		numEpochs = max(numEpochs, epoch)
	}
	h := &History{}
	for epoch := 1; epoch <= numEpochs; epoch++ {
		var m EpochMetrics
		for name, dst := range map[string]*float64{
			TrainLossName: &m.Loss, ValLossName: &m.ValLoss,
			TrainAccuracyName: &m.Accuracy, ValAccuracyName: &m.ValAccuracy,
		} {
			v, found := byName[name][epoch]
			if !found {
				return nil, errors.Errorf("missing %q for epoch %d", name, epoch)
			}
			*dst = v
		}
		h.Append(m)
	}
	return h, nil
}

// WritePoints writes the history as plot points to filePath, in the format read by plots.LoadPoints.
func (h *History) WritePoints(filePath string) error {
	pointWriter, errReport := plots.CreatePointsWriter(filePath)
	for _, p := range h.Points() {
		pointWriter <- p
	}
	close(pointWriter)
	if err := <-errReport; err != nil {
		return errors.WithMessagef(err, "writing training history to %q", filePath)
	}
	return nil
}

// LoadHistory reads a history written by WritePoints.
func LoadHistory(filePath string) (*History, error) {
	points, err := plots.LoadPoints(filePath)
	if err != nil {
		return nil, err
	}
	return HistoryFromPoints(points)
}
