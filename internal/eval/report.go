package eval

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"synthgen/internal/synth"
	"synthgen/internal/table"
)

// LoadOutputs loads previously written synthetic tables from the
// output directory layout <dir>/<model>/<anything>_synthetic_data.csv.
// Models without an output file are skipped; a directory with no
// outputs at all is an error.
func LoadOutputs(dir string) ([]synth.Output, error) {
	var out []synth.Output
	for _, model := range synth.ModelNames {
		matches, err := filepath.Glob(filepath.Join(dir, model, "*_synthetic_data.csv"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			continue
		}
		sort.Strings(matches)
		t, err := table.ReadFile(matches[0])
		if err != nil {
			return nil, fmt.Errorf("eval: load %s: %w", matches[0], err)
		}
		out = append(out, synth.Output{Model: model, Rows: t})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("eval: no synthetic outputs under %s", dir)
	}
	return out, nil
}

// Report writes the model comparison report: per-model shape and
// score, the quality ranking, indicator-frequency grading when the
// data has an indicator column, sequence structure for sequential
// outputs, and per-model notes.
func Report(w io.Writer, real *table.Table, outputs []synth.Output) error {
	if len(outputs) == 0 {
		return fmt.Errorf("eval: nothing to report")
	}

	type scored struct {
		out   synth.Output
		score float64
	}
	ranked := make([]scored, 0, len(outputs))
	for _, o := range outputs {
		ranked = append(ranked, scored{o, Score(real, o.Rows)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	bold := color.New(color.Bold)
	bold.Fprintln(w, "synthetic data comparison")
	fmt.Fprintf(w, "real data: %d rows, %d columns\n\n", real.NumRows(), real.NumCols())

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"rank", "model", "rows", "columns", "score"})
	for i, r := range ranked {
		name := r.out.Model
		if i == 0 {
			name = color.GreenString(name)
		}
		tw.Append([]string{
			strconv.Itoa(i + 1),
			name,
			strconv.Itoa(r.out.Rows.NumRows()),
			strconv.Itoa(r.out.Rows.NumCols()),
			fmt.Sprintf("%.4f", r.score),
		})
	}
	tw.Render()
	fmt.Fprintln(w)

	if real.HasColumn("indicator") {
		bold.Fprintln(w, "indicator frequency (top 5 categories, abs error in percentage points)")
		ft := tablewriter.NewWriter(w)
		ft.SetHeader([]string{"model", "freq error", "verdict"})
		for _, r := range ranked {
			errPts, err := FrequencyError(real, r.out.Rows, "indicator", 5)
			if err != nil {
				ft.Append([]string{r.out.Model, "n/a", "no indicator column"})
				continue
			}
			ft.Append([]string{r.out.Model, fmt.Sprintf("%.2f", errPts), colorGrade(Grade(errPts))})
		}
		ft.Render()
		fmt.Fprintln(w)
	}

	for _, r := range ranked {
		if r.out.Model != "par" || !r.out.Rows.HasColumn("user_id") {
			continue
		}
		s := SequenceStats(r.out.Rows, "user_id")
		bold.Fprintln(w, "sequence structure (par)")
		fmt.Fprintf(w, "  sequences: %d  length min/mean/max: %d/%.1f/%d\n\n",
			s.Sequences, s.MinLen, s.MeanLen, s.MaxLen)
	}

	bold.Fprintln(w, "model notes")
	for _, r := range ranked {
		fmt.Fprintf(w, "  %-16s %s\n", r.out.Model, synth.Descriptions[r.out.Model])
	}
	fmt.Fprintln(w)

	best := ranked[0]
	fmt.Fprintf(w, "recommendation: %s (score %.4f)\n", color.GreenString(best.out.Model), best.score)
	if best.score < 0.7 {
		fmt.Fprintln(w, color.YellowString("warning: best score below 0.7; consider more training epochs or a larger sample"))
	}
	return nil
}

func colorGrade(grade string) string {
	switch grade {
	case "excellent":
		return color.GreenString(grade)
	case "good":
		return color.CyanString(grade)
	case "needs improvement":
		return color.YellowString(grade)
	default:
		return color.RedString(grade)
	}
}

// WriteSummary writes a per-model text summary next to its CSV output.
func WriteSummary(path, model string, real, synthetic *table.Table, score, trainSeconds float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fmt.Fprintf(f, "model: %s\n", model)
	fmt.Fprintf(f, "quality score: %.4f\n", score)
	fmt.Fprintf(f, "train seconds: %.2f\n", trainSeconds)
	fmt.Fprintf(f, "real: %d rows, %d columns\n", real.NumRows(), real.NumCols())
	fmt.Fprintf(f, "synthetic: %d rows, %d columns\n", synthetic.NumRows(), synthetic.NumCols())

	if real.HasColumn("value") && synthetic.HasColumn("value") {
		rs := Describe(real, "value")
		ss := Describe(synthetic, "value")
		fmt.Fprintf(f, "value (real):      mean=%.3f std=%.3f min=%.3f max=%.3f\n", rs.Mean, rs.Std, rs.Min, rs.Max)
		fmt.Fprintf(f, "value (synthetic): mean=%.3f std=%.3f min=%.3f max=%.3f\n", ss.Mean, ss.Std, ss.Min, ss.Max)
	}
	if real.HasColumn("indicator") {
		if errPts, err := FrequencyError(real, synthetic, "indicator", 5); err == nil {
			fmt.Fprintf(f, "indicator freq error: %.2f (%s)\n", errPts, Grade(errPts))
		}
	}
	return nil
}
