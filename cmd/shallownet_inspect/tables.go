// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/shallownet/report"
	"github.com/gomlx/shallownet/shallownet"
	"golang.org/x/exp/maps"
)

// Summary of the model file: manifest, global step and variable sizes under scopedCtx.
func Summary(modelPath string, artifact *shallownet.Artifact, ctx, scopedCtx *context.Context) string {
	m := artifact.Manifest
	table := report.NewTable(false, lipgloss.Right, lipgloss.Left)
	table.Row("model", modelPath)
	table.Row("run id", m.RunID.String())
	table.Row("created", m.Created.Local().Format("2006-01-02 15:04:05"))
	table.Row("classes", strings.Join(m.Classes, ", "))
	table.Row("input", fmt.Sprintf("%dx%dx%d", m.Height, m.Width, m.Channels))
	order := "channels last"
	if m.ChannelsFirst {
		order = "channels first"
	}
	table.Row("array order", order)
	table.Row("epochs", humanize.Comma(int64(m.Epochs)))
	table.Row("global_step", humanize.Comma(optimizers.GetGlobalStep(ctx)))
	table.Row("scope", scopedCtx.Scope())

	var numVars, totalSize int
	var totalMemory uintptr
	scopedCtx.EnumerateVariablesInScope(func(v *context.Variable) {
		numVars++
		totalSize += v.Shape().Size()
		totalMemory += v.Shape().Memory()
	})
	table.Row("# variables", humanize.Comma(int64(numVars)))
	table.Row("# parameters", humanize.Comma(int64(totalSize)))
	table.Row("# bytes", humanize.Bytes(uint64(totalMemory)))
	return report.Title("Summary") + "\n" + table.Render()
}

// Params lists the hyperparameters, sorted by scope and name.
func Params(ctx *context.Context) string {
	type scopeKey struct{ Scope, Key string }
	values := make(map[scopeKey]any)
	ctx.EnumerateParams(func(scope, key string, value any) {
		values[scopeKey{Scope: scope, Key: key}] = value
	})
	keys := maps.Keys(values)
	slices.SortFunc(keys, func(a, b scopeKey) int {
		if cmp := strings.Compare(a.Scope, b.Scope); cmp != 0 {
			return cmp
		}
		return strings.Compare(a.Key, b.Key)
	})

	table := report.NewTable(true, lipgloss.Left)
	table.Headers("Scope", "Name", "Type", "Value")
	for _, k := range keys {
		value := values[k]
		table.Row(k.Scope, k.Key, fmt.Sprintf("%T", value), fmt.Sprintf("%v", value))
	}
	return report.Title("Hyperparameters") + "\n" + table.Render()
}

// Variables lists the variables under scopedCtx, sorted by scope and name.
func Variables(scopedCtx *context.Context) string {
	var rows [][]string
	scopedCtx.EnumerateVariablesInScope(func(v *context.Variable) {
		shape := v.Shape()
		rows = append(rows, []string{
			v.Scope(), v.Name(), shape.String(),
			humanize.Comma(int64(shape.Size())),
			humanize.Bytes(uint64(shape.Memory())),
		})
	})
	slices.SortFunc(rows, func(a, b []string) int {
		if cmp := strings.Compare(a[0], b[0]); cmp != 0 {
			return cmp
		}
		return strings.Compare(a[1], b[1])
	})

	table := report.NewTable(true, lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Scope", "Name", "Shape", "Size", "Bytes")
	for _, row := range rows {
		table.Row(row...)
	}
	return report.Title("Variables") + "\n" + table.Render()
}

// Metrics lists the training history, one row per epoch.
func Metrics(history *shallownet.History) string {
	table := report.NewTable(true, lipgloss.Right)
	table.Headers("Epoch", shallownet.TrainLossName, shallownet.ValLossName,
		shallownet.TrainAccuracyName, shallownet.ValAccuracyName)
	for epoch := range history.Len() {
		m := history.Epoch(epoch)
		table.Row(humanize.Comma(int64(epoch+1)),
			fmt.Sprintf("%.4f", m.Loss), fmt.Sprintf("%.4f", m.ValLoss),
			fmt.Sprintf("%.2f%%", 100*m.Accuracy), fmt.Sprintf("%.2f%%", 100*m.ValAccuracy))
	}
	return report.Title("Metrics") + "\n" + table.Render()
}
