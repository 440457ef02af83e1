package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"synthgen/internal/eval"
	"synthgen/internal/prep"
	"synthgen/internal/table"
)

// main loads the synthetic outputs written by the synth command,
// rebuilds the preprocessed real table they were trained against, and
// renders the comparison report (optionally with charts).
func main() {
	var (
		dataPath   string
		outDir     string
		userID     int64
		sampleSize int
		seed       int64
		strategy   string
		charts     bool
	)

	flag.StringVar(&dataPath, "data", "", "input CSV path (required)")
	flag.StringVar(&outDir, "out", "output", "directory holding model outputs")
	flag.Int64Var(&userID, "user", 169, "user id the models were trained on")
	flag.IntVar(&sampleSize, "sample-size", 12000, "training sample cap used at synthesis time")
	flag.Int64Var(&seed, "seed", 42, "seed used at synthesis time")
	flag.StringVar(&strategy, "strategy", prep.StrategyFrequencyBased, "cardinality strategy used at synthesis time")
	flag.BoolVar(&charts, "charts", false, "also write comparison charts under <out>/charts")

	flag.Parse()

	if dataPath == "" {
		fatalf("missing -data")
	}

	data, err := table.ReadFile(dataPath)
	if err != nil {
		fatalf("load %s: %v", dataPath, err)
	}

	// The outputs follow the preprocessed schema, so the comparison
	// baseline must be preprocessed the same way the training run was.
	real, err := prep.Preprocess(data, prep.Options{
		UserID:            userID,
		SampleSize:        sampleSize,
		Seed:              seed,
		ReduceCardinality: true,
		Strategy:          strategy,
	})
	if err != nil {
		fatalf("preprocess: %v", err)
	}

	outputs, err := eval.LoadOutputs(outDir)
	if err != nil {
		fatalf("%v", err)
	}

	reportPath := filepath.Join(outDir, "models_comparison_report.txt")
	rf, err := os.Create(reportPath)
	if err != nil {
		fatalf("%v", err)
	}
	if err := eval.Report(io.MultiWriter(os.Stdout, rf), real, outputs); err != nil {
		_ = rf.Close()
		fatalf("%v", err)
	}
	if err := rf.Close(); err != nil {
		fatalf("write %s: %v", reportPath, err)
	}
	log.Printf("report written to %s", reportPath)

	if !charts {
		return
	}
	chartDir := filepath.Join(outDir, "charts")
	if err := os.MkdirAll(chartDir, 0o755); err != nil {
		fatalf("%v", err)
	}
	for _, o := range outputs {
		if real.HasColumn("indicator") {
			p := filepath.Join(chartDir, o.Model+"_indicator_freq.png")
			if err := eval.FrequencyChart(p, real, o.Rows, "indicator", 10); err != nil {
				log.Printf("%s: indicator chart: %v", o.Model, err)
			}
		}
		if real.HasColumn("value") {
			p := filepath.Join(chartDir, o.Model+"_value_hist.png")
			if err := eval.HistogramChart(p, real, o.Rows, "value"); err != nil {
				log.Printf("%s: value chart: %v", o.Model, err)
			}
		}
	}
	log.Printf("charts written to %s", chartDir)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
