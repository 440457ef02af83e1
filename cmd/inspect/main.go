package main

import (
	"flag"
	"fmt"
	"os"

	"synthgen/internal/profile"
	"synthgen/internal/table"
)

// main profiles a CSV file: per-column inferred kind, missing ratio,
// coercion rate, and distinct counts. Useful before a synthesis run to
// sanity-check what the preprocessor will do.
func main() {
	var (
		dataPath string
		maxRows  int
		coercion float64
	)

	flag.StringVar(&dataPath, "data", "", "input CSV path (required)")
	flag.IntVar(&maxRows, "max-rows", 0, "profile at most this many rows (0 profiles all)")
	flag.Float64Var(&coercion, "coercion-threshold", profile.DefaultCoercionThreshold, "parse success rate required to call a column numeric/timestamp")

	flag.Parse()

	if dataPath == "" {
		fatalf("missing -data")
	}

	t, err := table.ReadFile(dataPath)
	if err != nil {
		fatalf("load %s: %v", dataPath, err)
	}

	p := profile.Table(t, profile.Options{
		CoercionThreshold: coercion,
		MaxRows:           maxRows,
	})
	fmt.Print(p.Render())
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
