package render

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultTauBins is the histogram resolution used for tau.
const DefaultTauBins = 200

// Histogram counts values into bins equal-width bins spanning [lo, hi]; the
// last bin is closed. Values outside the range and NaNs are not counted and
// are reported as dropped.
func Histogram(values []float64, bins int, lo, hi float64) (counts []float64, dividers []float64, dropped int) {
	if bins <= 0 || !(hi > lo) {
		return nil, nil, len(values)
	}
	in := make([]float64, 0, len(values))
	for _, v := range values {
		if v >= lo && v <= hi {
			in = append(in, v)
		}
	}
	sort.Float64s(in)

	dividers = floats.Span(make([]float64, bins+1), lo, hi)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts = make([]float64, bins)
	if len(in) > 0 {
		stat.Histogram(counts, dividers, in, nil)
	}
	dividers[bins] = hi
	return counts, dividers, len(values) - len(in)
}

// TauHistogram writes an HTML bar chart of the tau distribution over [0, 1].
func TauHistogram(w io.Writer, taus []float64, bins int) error {
	if bins <= 0 {
		bins = DefaultTauBins
	}
	counts, dividers, dropped := Histogram(taus, bins, 0, 1)

	x := make([]string, bins)
	y := make([]opts.BarData, bins)
	for i := range counts {
		x[i] = fmt.Sprintf("%.3f", (dividers[i]+dividers[i+1])/2)
		y[i] = opts.BarData{Value: counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tau distribution", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Tau",
			Subtitle: fmt.Sprintf("n=%d bins=%d outside [0,1]=%d", len(taus), bins, dropped),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "tau", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "HDUs"}),
	)
	bar.SetXAxis(x).AddSeries("tau", y)

	if err := bar.Render(w); err != nil {
		return fmt.Errorf("render tau histogram: %w", err)
	}
	return nil
}
