// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// shallownet trains the ShallowNet classifier on a directory of labeled images
// (<dataset>/<label>/<image>), saves the model to a single file, and reports its
// classification metrics on the held-out split, along with a chart of the training curves.
//
// Hyperparameters are set with -set, e.g.:
//
//	shallownet -dataset=datasets/animals -set="epochs=50;learning_rate=0.01"
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/gomlx/shallownet/report"
	"github.com/gomlx/shallownet/shallownet"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagDataset = flag.String("dataset", "datasets/animals",
		"Directory with the input images, one subdirectory per class.")
	flagModel = flag.String("model", "shallownet_weights.gmlx",
		"Path of the model file to save to, or to load from with -eval_only.")
	flagPlot = flag.String("plot", "shallownet_training.png",
		"Path of the training curves chart. Use an \".svg\" extension for SVG. Empty disables the chart.")
	flagDisplay   = flag.Bool("display", false, "Display the training curves chart in a window, if a display is available.")
	flagEvalOnly  = flag.Bool("eval_only", false, "Skip training: load the model from -model and evaluate it.")
	flagReportCSV = flag.String("report_csv", "", "If set, also write the classification report as CSV to this path.")
	flagVerbose   = flag.Int("verbose", 500, "Log a progress line every -verbose images loaded. 0 disables it.")
	flagProgress  = flag.Bool("progress", true, "Display progress bars while loading and training.")
)

func main() {
	ctx := shallownet.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
	if len(paramsSet) > 0 {
		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
	}

	opts := options{
		datasetDir:  *flagDataset,
		modelPath:   *flagModel,
		plotPath:    *flagPlot,
		reportCSV:   *flagReportCSV,
		display:     *flagDisplay,
		evalOnly:    *flagEvalOnly,
		verbose:     *flagVerbose,
		progressBar: *flagProgress,
	}
	backend := backends.MustNew()
	klog.V(1).Infof("backend: %s", backend.Description())
	err := report.RunMain(func() error {
		_, err := run(backend, ctx, paramsSet, opts)
		return err
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		klog.Flush()
		os.Exit(1)
	}
}
