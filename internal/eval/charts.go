package eval

import (
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"synthgen/internal/table"
)

var (
	realColor  = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	synthColor = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
)

// FrequencyChart renders a grouped bar chart of category frequencies
// (real vs synthetic) for the topN real categories of the column.
func FrequencyChart(path string, real, synthetic *table.Table, column string, topN int) error {
	rv := real.Column(column)
	sv := synthetic.Column(column)
	if rv == nil || sv == nil {
		return fmt.Errorf("eval: column %q missing from real or synthetic data", column)
	}
	rf := frequencies(rv)
	sf := frequencies(sv)

	cats := make([]string, 0, len(rf))
	for c := range rf {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if rf[cats[i]] != rf[cats[j]] {
			return rf[cats[i]] > rf[cats[j]]
		}
		return cats[i] < cats[j]
	})
	if len(cats) > topN {
		cats = cats[:topN]
	}

	realVals := make(plotter.Values, len(cats))
	synthVals := make(plotter.Values, len(cats))
	for i, c := range cats {
		realVals[i] = rf[c] * 100
		synthVals[i] = sf[c] * 100
	}

	p := plot.New()
	p.Title.Text = column + " frequency: real vs synthetic"
	p.Y.Label.Text = "percent"

	w := vg.Points(12)
	realBars, err := plotter.NewBarChart(realVals, w)
	if err != nil {
		return err
	}
	realBars.Color = realColor
	realBars.Offset = -w / 2

	synthBars, err := plotter.NewBarChart(synthVals, w)
	if err != nil {
		return err
	}
	synthBars.Color = synthColor
	synthBars.Offset = w / 2

	p.Add(realBars, synthBars)
	p.Legend.Add("real", realBars)
	p.Legend.Add("synthetic", synthBars)
	p.Legend.Top = true
	p.NominalX(cats...)

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// HistogramChart renders overlaid normalized histograms of a numeric
// column for real and synthetic data.
func HistogramChart(path string, real, synthetic *table.Table, column string) error {
	rv := real.FloatColumn(column)
	sv := synthetic.FloatColumn(column)
	if len(rv) == 0 || len(sv) == 0 {
		return fmt.Errorf("eval: column %q has no numeric values to plot", column)
	}

	p := plot.New()
	p.Title.Text = column + " distribution (blue=real, orange=synthetic)"
	p.X.Label.Text = column
	p.Y.Label.Text = "density"

	realHist, err := plotter.NewHist(plotter.Values(rv), 30)
	if err != nil {
		return err
	}
	realHist.Normalize(1)
	realHist.FillColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0x80}

	synthHist, err := plotter.NewHist(plotter.Values(sv), 30)
	if err != nil {
		return err
	}
	synthHist.Normalize(1)
	synthHist.FillColor = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0x80}

	// Histograms carry no legend thumbnail; the title names the blue
	// series as real and the orange as synthetic.
	p.Add(realHist, synthHist)

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}
