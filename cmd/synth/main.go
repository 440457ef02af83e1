package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"synthgen/internal/eval"
	"synthgen/internal/metrics"
	"synthgen/internal/metrics/datadog"
	"synthgen/internal/prep"
	"synthgen/internal/results"
	"synthgen/internal/synth"
	"synthgen/internal/table"

	// register all backends with the results factory.
	// the flag specifies which to use but support for all is built in.
	_ "synthgen/internal/results/all"
)

// main is the entry point for the synthesis binary. It loads the
// health-record CSV, preprocesses per model, trains and samples each
// requested model, and writes CSV outputs with per-model summaries.
func main() {
	var (
		dataPath          string
		outDir            string
		userID            int64
		modelsFlg         string
		rows              int
		sampleSize        int
		strategy          string
		seed              int64
		noBucketing       bool
		resultsBackendFlg string
		resultsDSNFlg     string
		metricsBackendFlg string
	)

	flag.StringVar(&dataPath, "data", "", "input CSV path (required)")
	flag.StringVar(&outDir, "out", "output", "output directory")
	flag.Int64Var(&userID, "user", 169, "user id to model (0 keeps all users)")
	flag.StringVar(&modelsFlg, "models", strings.Join(synth.ModelNames, ","), "comma-separated models to run")
	flag.IntVar(&rows, "rows", 2000, "synthetic rows to sample (sequences for par)")
	flag.IntVar(&sampleSize, "sample-size", 12000, "training sample cap after user selection")
	flag.StringVar(&strategy, "strategy", prep.StrategyFrequencyBased, "cardinality reduction strategy (frequency_based, adaptive, simple)")
	flag.Int64Var(&seed, "seed", 42, "random seed for sampling and training")
	flag.BoolVar(&noBucketing, "no-bucketing", false, "disable categorical cardinality reduction")
	flag.StringVar(&resultsBackendFlg, "results-backend", "", "run-history backend (sqlite, postgres, mssql; empty disables)")
	flag.StringVar(&resultsDSNFlg, "results-dsn", "", "run-history DSN")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend (datadog, none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if dataPath == "" {
		fatalf("missing -data")
	}

	ctx := context.Background()

	closeMetrics := setupMetrics(metricsBackendFlg, *verbose)
	defer closeMetrics()

	var repo results.Repository
	if resultsBackendFlg != "" {
		var err error
		repo, err = results.New(ctx, results.Config{Kind: resultsBackendFlg, DSN: resultsDSNFlg})
		if err != nil {
			fatalf("results: %v", err)
		}
		defer repo.Close()
		if err := repo.EnsureSchema(ctx); err != nil {
			fatalf("results: ensure schema: %v", err)
		}
	}

	data, err := table.ReadFile(dataPath)
	if err != nil {
		fatalf("load %s: %v", dataPath, err)
	}
	if *verbose {
		log.Printf("loaded %s: %d rows, %d columns", dataPath, data.NumRows(), data.NumCols())
	}

	models := splitModels(modelsFlg)
	if len(models) == 0 {
		fatalf("no models selected")
	}

	failures := 0
	for _, name := range models {
		if err := runModel(ctx, runConfig{
			model:      name,
			data:       data,
			outDir:     outDir,
			userID:     userID,
			rows:       rows,
			sampleSize: sampleSize,
			strategy:   strategy,
			seed:       seed,
			bucketing:  !noBucketing,
			verbose:    *verbose,
			repo:       repo,
		}); err != nil {
			// One model failing must not abort the comparison run.
			log.Printf("%s: %v", name, err)
			metrics.IncCounter(metrics.RunsTotal, 1, metrics.Labels{"model": name, "status": "error"})
			failures++
		}
	}
	if failures == len(models) {
		fatalf("all %d models failed", failures)
	}
}

type runConfig struct {
	model      string
	data       *table.Table
	outDir     string
	userID     int64
	rows       int
	sampleSize int
	strategy   string
	seed       int64
	bucketing  bool
	verbose    bool
	repo       results.Repository
}

func runModel(ctx context.Context, cfg runConfig) error {
	prepped, sampleCount, err := prepare(cfg)
	if err != nil {
		return err
	}
	if cfg.verbose {
		log.Printf("%s: training on %d rows, %d columns", cfg.model, prepped.NumRows(), prepped.NumCols())
	}

	model, err := synth.New(cfg.model, cfg.seed)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := model.Fit(ctx, prepped); err != nil {
		return fmt.Errorf("fit: %w", err)
	}
	trainSeconds := time.Since(start).Seconds()

	out, err := model.Sample(ctx, sampleCount)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}

	dir := filepath.Join(cfg.outDir, cfg.model)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	csvPath := filepath.Join(dir, cfg.model+"_synthetic_data.csv")
	if err := table.WriteFile(csvPath, out); err != nil {
		return fmt.Errorf("write %s: %w", csvPath, err)
	}

	score := eval.Score(prepped, out)
	summaryPath := filepath.Join(dir, cfg.model+"_summary.txt")
	if err := eval.WriteSummary(summaryPath, cfg.model, prepped, out, score, trainSeconds); err != nil {
		return fmt.Errorf("write %s: %w", summaryPath, err)
	}

	labels := metrics.Labels{"model": cfg.model, "status": "ok"}
	metrics.IncCounter(metrics.RunsTotal, 1, labels)
	metrics.IncCounter(metrics.RowsGenerated, float64(out.NumRows()), metrics.Labels{"model": cfg.model})
	metrics.ObserveHistogram(metrics.TrainDurationSeconds, trainSeconds, labels)
	metrics.ObserveHistogram(metrics.QualityScore, score, metrics.Labels{"model": cfg.model})

	if cfg.repo != nil {
		run := results.NewRun(cfg.model, out.NumRows(), out.NumCols(), score, trainSeconds)
		if err := cfg.repo.InsertRun(ctx, run); err != nil {
			log.Printf("%s: record run: %v", cfg.model, err)
		}
	}

	log.Printf("%s: %d rows in %.1fs, score %.4f -> %s",
		cfg.model, out.NumRows(), trainSeconds, score, csvPath)
	return nil
}

// prepare runs the per-model preprocessing pipeline and decides the
// sample count: rows for tabular models, sequences for par.
func prepare(cfg runConfig) (*table.Table, int, error) {
	if cfg.model == "par" {
		// Sequential prep keeps more rows per user; the historical cap
		// for the sequence path is lower than the tabular one.
		sample := cfg.sampleSize
		if sample > 10000 {
			sample = 10000
		}
		prepped, err := prep.PreprocessSequential(cfg.data, prep.SequentialOptions{
			UserID:     cfg.userID,
			SampleSize: sample,
			Seed:       cfg.seed,
		})
		if err != nil {
			return nil, 0, err
		}
		users := distinctCount(prepped.Column("user_id"))
		sequences := cfg.rows
		if sequences > 50 {
			sequences = 50
		}
		if users > 0 && sequences > users {
			sequences = users
		}
		if sequences < 1 {
			sequences = 1
		}
		return prepped, sequences, nil
	}

	prepped, err := prep.Preprocess(cfg.data, prep.Options{
		UserID:            cfg.userID,
		SampleSize:        cfg.sampleSize,
		Seed:              cfg.seed,
		ReduceCardinality: cfg.bucketing,
		Strategy:          cfg.strategy,
	})
	if err != nil {
		return nil, 0, err
	}
	return prepped, cfg.rows, nil
}

// setupMetrics installs the selected metrics backend and returns the
// shutdown func. For Datadog that func stops the flush loop and
// performs the final flush.
func setupMetrics(backendName string, verbose bool) func() {
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "synthgen",
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: backend=datadog tags=%v", extraTags)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
		}
	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
	return func() {}
}

func splitModels(s string) []string {
	var out []string
	for _, m := range strings.Split(s, ",") {
		m = strings.TrimSpace(m)
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

func distinctCount(vals []string) int {
	seen := map[string]bool{}
	for _, v := range vals {
		seen[v] = true
	}
	return len(seen)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
