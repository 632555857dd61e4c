// Package render draws exposure maps and tau distributions for inspection.
package render

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/fsutil"
	"github.com/banshee-data/astroarchive/internal/healpix"
)

// Which selects one of the two accumulated maps.
type Which string

const (
	Raw      Which = "raw"
	Weighted Which = "weighted"
)

// ParseWhich accepts "raw" or "weighted".
func ParseWhich(s string) (Which, error) {
	switch Which(s) {
	case Raw, Weighted:
		return Which(s), nil
	}
	return "", fmt.Errorf("unknown map %q (want raw or weighted)", s)
}

// HeatmapOptions controls the equirectangular sampling and colour scale.
type HeatmapOptions struct {
	Which  Which
	Cols   int     // RA samples, default 720
	Rows   int     // Dec samples, default 360
	Max    float64 // colour-scale cap in seconds; 0 uses the data maximum
	Title  string
	Colors int // palette size, default 256
}

func (o HeatmapOptions) withDefaults() HeatmapOptions {
	if o.Which == "" {
		o.Which = Raw
	}
	if o.Cols <= 0 {
		o.Cols = 720
	}
	if o.Rows <= 0 {
		o.Rows = 360
	}
	if o.Colors <= 1 {
		o.Colors = 256
	}
	return o
}

// SkyGrid samples a HEALPix map on a regular RA/Dec grid. It implements
// plotter.GridXYZ with X in degrees of RA and Y in degrees of Dec.
type SkyGrid struct {
	cols, rows int
	z          []float64 // row-major, row 0 at Dec -90
}

// NewSkyGrid samples values (one per RING pixel at nside) at the centre of
// every grid cell, clipping at max when max > 0.
func NewSkyGrid(nside int, values []float64, cols, rows int, max float64) (*SkyGrid, error) {
	if err := healpix.ValidNside(nside); err != nil {
		return nil, err
	}
	if len(values) != healpix.NPix(nside) {
		return nil, fmt.Errorf("got %d values for nside %d", len(values), nside)
	}
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("invalid grid %dx%d", cols, rows)
	}

	g := &SkyGrid{cols: cols, rows: rows, z: make([]float64, cols*rows)}
	for r := 0; r < rows; r++ {
		theta := math.Pi/2 - g.Y(r)*math.Pi/180
		for c := 0; c < cols; c++ {
			v := values[healpix.Ang2Pix(nside, theta, g.X(c)*math.Pi/180)]
			if max > 0 && v > max {
				v = max
			}
			g.z[r*cols+c] = v
		}
	}
	return g, nil
}

func (g *SkyGrid) Dims() (c, r int) { return g.cols, g.rows }

func (g *SkyGrid) Z(c, r int) float64 { return g.z[r*g.cols+c] }

func (g *SkyGrid) X(c int) float64 { return (float64(c) + 0.5) * 360 / float64(g.cols) }

func (g *SkyGrid) Y(r int) float64 { return -90 + (float64(r)+0.5)*180/float64(g.rows) }

// Heatmap draws one of maps as an equirectangular heat map.
func Heatmap(maps *exposure.Maps, opts HeatmapOptions) (*plot.Plot, error) {
	if maps == nil {
		return nil, fmt.Errorf("nil maps")
	}
	opts = opts.withDefaults()

	values := maps.Raw
	switch opts.Which {
	case Raw:
	case Weighted:
		values = maps.Weighted
	default:
		return nil, fmt.Errorf("unknown map %q", opts.Which)
	}

	grid, err := NewSkyGrid(maps.Nside, values, opts.Cols, opts.Rows, opts.Max)
	if err != nil {
		return nil, err
	}

	hm := plotter.NewHeatMap(grid, palette.Heat(opts.Colors, 1))
	hm.Min = 0
	hm.Max = opts.Max
	if hm.Max <= 0 {
		hm.Max = maxOf(grid.z)
	}
	if hm.Max <= hm.Min {
		// Empty map: any positive range draws it uniformly.
		hm.Max = 1
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = fmt.Sprintf("%s exposure, nside=%d (cap %.0f s)", opts.Which, maps.Nside, hm.Max)
	}
	p.X.Label.Text = "RA (deg)"
	p.Y.Label.Text = "Dec (deg)"
	p.X.Min, p.X.Max = 0, 360
	p.Y.Min, p.Y.Max = -90, 90
	p.Add(hm)
	return p, nil
}

func maxOf(zs []float64) float64 {
	m := 0.0
	for _, z := range zs {
		if z > m {
			m = z
		}
	}
	return m
}

// SavePNG renders p as a PNG of the given size to path on fsys.
func SavePNG(fsys fsutil.FileSystem, path string, p *plot.Plot, width, height vg.Length) (err error) {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
