package render

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/fsutil"
	"github.com/banshee-data/astroarchive/internal/healpix"
)

func TestHistogram(t *testing.T) {
	values := []float64{0, 0.1, 0.49, 0.5, 0.99, 1, 1.5, -0.2, math.NaN()}
	counts, dividers, dropped := Histogram(values, 2, 0, 1)
	assert.Equal(t, []float64{3, 3}, counts)
	assert.Equal(t, []float64{0, 0.5, 1}, dividers)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, 6.0, floats.Sum(counts))

	counts, _, dropped = Histogram(nil, 4, 0, 1)
	assert.Equal(t, []float64{0, 0, 0, 0}, counts)
	assert.Zero(t, dropped)

	counts, _, dropped = Histogram([]float64{0.5}, 0, 0, 1)
	assert.Nil(t, counts)
	assert.Equal(t, 1, dropped)
}

func TestTauHistogram(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TauHistogram(&buf, []float64{0.2, 0.25, 0.9, 1.4}, 0))

	html := buf.String()
	assert.Contains(t, html, "Tau distribution")
	assert.Contains(t, html, "HDUs")
}

func TestParseWhich(t *testing.T) {
	w, err := ParseWhich("weighted")
	require.NoError(t, err)
	assert.Equal(t, Weighted, w)
	_, err = ParseWhich("teff")
	assert.Error(t, err)
}

func TestSkyGrid(t *testing.T) {
	const nside = 8
	values := make([]float64, healpix.NPix(nside))
	pix := healpix.Vec2Pix(nside, healpix.LonLatToVec(90, 30))
	values[pix] = 500

	g, err := NewSkyGrid(nside, values, 360, 180, 200)
	require.NoError(t, err)
	c, r := g.Dims()
	assert.Equal(t, 360, c)
	assert.Equal(t, 180, r)
	assert.Equal(t, 0.5, g.X(0))
	assert.Equal(t, -89.5, g.Y(0))

	// Exactly the cells falling in the marked pixel are lit, capped, and
	// they lie within a pixel width of its centre.
	centre := healpix.Pix2Vec(nside, pix)
	width := healpix.Resolution(nside).Degrees()
	found := 0
	for cc := 0; cc < c; cc++ {
		for rr := 0; rr < r; rr++ {
			v := healpix.LonLatToVec(g.X(cc), g.Y(rr))
			inPixel := healpix.Vec2Pix(nside, v) == pix
			z := g.Z(cc, rr)
			if !inPixel {
				assert.Zero(t, z, "cell (%v, %v)", g.X(cc), g.Y(rr))
				continue
			}
			found++
			assert.Equal(t, 200.0, z)
			assert.LessOrEqual(t, centre.Angle(v).Degrees(), 1.5*width, "cell (%v, %v)", g.X(cc), g.Y(rr))
		}
	}
	assert.Positive(t, found)

	// The pixel centre itself is lit.
	theta, phi := healpix.Pix2Ang(nside, pix)
	lon, lat := phi*180/math.Pi, 90-theta*180/math.Pi
	assert.Equal(t, 200.0, g.Z(int(lon), int(lat+90)))

	_, err = NewSkyGrid(nside, values[:10], 36, 18, 0)
	assert.Error(t, err)
	_, err = NewSkyGrid(3, values, 36, 18, 0)
	assert.ErrorIs(t, err, healpix.ErrInvalidNside)
	_, err = NewSkyGrid(nside, values, 0, 18, 0)
	assert.Error(t, err)
}

func TestHeatmapAndSavePNG(t *testing.T) {
	m, err := exposure.NewMaps(4)
	require.NoError(t, err)
	for i := range m.Raw {
		m.Raw[i] = float64(i)
		m.Weighted[i] = float64(i) / 2
	}

	p, err := Heatmap(m, HeatmapOptions{Which: Weighted, Cols: 72, Rows: 36, Max: 1000})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.Title.Text, "weighted exposure, nside=4"))
	assert.Equal(t, 360.0, p.X.Max)

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, SavePNG(fsys, "out/map.png", p, 6*vg.Inch, 3*vg.Inch))
	data, err := fsys.ReadFile("out/map.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	empty, err := exposure.NewMaps(1)
	require.NoError(t, err)
	_, err = Heatmap(empty, HeatmapOptions{})
	assert.NoError(t, err)

	_, err = Heatmap(m, HeatmapOptions{Which: "teff"})
	assert.Error(t, err)
	_, err = Heatmap(nil, HeatmapOptions{})
	assert.Error(t, err)
}
