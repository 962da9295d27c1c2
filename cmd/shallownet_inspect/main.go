// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// shallownet_inspect reports on a model file saved by shallownet: its manifest, hyperparameters,
// variables and training history.
//
// Usage:
//
//	shallownet_inspect -summary -params -vars -metrics -plot=curves.html shallownet_weights.gmlx
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/shallownet/report"
	"github.com/gomlx/shallownet/shallownet"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagScope = flag.String("scope", "/"+shallownet.ModelScope,
		"Scope of the variables considered by -summary and -vars. Variables outside it, like the optimizer's, are ignored.")
	flagSummary = flag.Bool("summary", false, "Display a summary of the model: manifest, global step and sizes.")
	flagParams  = flag.Bool("params", false, "Lists the hyperparameters.")
	flagVars    = flag.Bool("vars", false, "Lists the variables under -scope.")
	flagMetrics = flag.Bool("metrics", false, "Lists the training history, one row per epoch.")
	flagPlain   = flag.Bool("plain", false, "Render tables without colors.")
	flagPlot    = flag.String("plot", "",
		"If set, writes the training curves as Plotly figures to this HTML file, one figure per metric type.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		klog.Errorf("Expected exactly one model file to inspect. See 'shallownet_inspect -help'")
		os.Exit(1)
	}
	if !*flagSummary && !*flagParams && !*flagVars && !*flagMetrics && *flagPlot == "" {
		*flagSummary = true
	}
	if *flagPlain {
		report.DisableColors()
	}
	modelPath := args[0]
	artifact := must.M1(shallownet.ReadArtifact(modelPath))

	ctx := context.New()
	if *flagSummary || *flagParams || *flagVars {
		must.M(artifact.Restore(ctx))
	}
	scopedCtx := ctx
	if *flagScope != "" {
		scopedCtx = ctx.InAbsPath(*flagScope)
	}
	if *flagSummary {
		fmt.Println(Summary(modelPath, artifact, ctx, scopedCtx))
	}
	if *flagParams {
		fmt.Println(Params(ctx))
	}
	if *flagVars {
		fmt.Println(Variables(scopedCtx))
	}
	if *flagMetrics {
		if artifact.History == nil {
			klog.Errorf("No training history in %q", modelPath)
			os.Exit(1)
		}
		fmt.Println(Metrics(artifact.History))
	}
	if *flagPlot != "" {
		if artifact.History == nil {
			klog.Errorf("No training history to plot in %q", modelPath)
			os.Exit(1)
		}
		must.M(PlotlyToHTMLFile(*flagPlot, modelPath, artifact.History.Points()))
		fmt.Printf("\nPlots written to:\t%s\n\n", *flagPlot)
	}
}
