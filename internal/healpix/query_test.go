package healpix

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lonLatPolygon(coords ...[2]float64) []r3.Vector {
	out := make([]r3.Vector, len(coords))
	for i, c := range coords {
		out[i] = LonLatToVec(c[0], c[1])
	}
	return out
}

func bruteForce(nside int, loop *s2.Loop) []int {
	var out []int
	for pix := 0; pix < NPix(nside); pix++ {
		if loop.ContainsPoint(s2.Point{Vector: Pix2Vec(nside, pix)}) {
			out = append(out, pix)
		}
	}
	return out
}

func TestQueryPolygon_MatchesBruteForce(t *testing.T) {
	polygons := map[string][]r3.Vector{
		"equatorial box": lonLatPolygon([2]float64{10, -5}, [2]float64{25, -5}, [2]float64{25, 8}, [2]float64{10, 8}),
		"straddles RA 0": lonLatPolygon([2]float64{-12, 30}, [2]float64{9, 30}, [2]float64{9, 41}, [2]float64{-12, 41}),
		"north cap":      lonLatPolygon([2]float64{0, 75}, [2]float64{90, 75}, [2]float64{180, 75}, [2]float64{270, 75}),
		"south cap":      lonLatPolygon([2]float64{0, -70}, [2]float64{270, -70}, [2]float64{180, -70}, [2]float64{90, -70}),
		"long triangle":  lonLatPolygon([2]float64{200, -44}, [2]float64{230, -47}, [2]float64{230, -41}),
		"concave":        lonLatPolygon([2]float64{100, 0}, [2]float64{120, 0}, [2]float64{110, 5}, [2]float64{120, 10}, [2]float64{100, 10}),
		"clockwise box":  lonLatPolygon([2]float64{10, 8}, [2]float64{25, 8}, [2]float64{25, -5}, [2]float64{10, -5}),
	}

	for name, verts := range polygons {
		verts := verts
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			const nside = 32
			got, err := QueryPolygon(nside, verts)
			require.NoError(t, err)
			require.NotEmpty(t, got)

			loop, err := newLoop(verts)
			require.NoError(t, err)
			assert.Equal(t, bruteForce(nside, loop), got)
		})
	}
}

func TestQueryPolygon_WindingDoesNotMatter(t *testing.T) {
	ccw := lonLatPolygon([2]float64{40, 10}, [2]float64{44, 10}, [2]float64{44, 13}, [2]float64{40, 13})
	cw := []r3.Vector{ccw[3], ccw[2], ccw[1], ccw[0]}

	a, err := QueryPolygon(64, ccw)
	require.NoError(t, err)
	b, err := QueryPolygon(64, cw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestQueryPolygon_PixelCountTracksArea(t *testing.T) {
	verts := lonLatPolygon([2]float64{150, 0}, [2]float64{160, 0}, [2]float64{160, 10}, [2]float64{150, 10})
	loop, err := newLoop(verts)
	require.NoError(t, err)

	const nside = 128
	got, err := QueryPolygon(nside, verts)
	require.NoError(t, err)

	expected := loop.Area() / PixelArea(nside)
	assert.InEpsilon(t, expected, float64(len(got)), 0.05)
}

func TestQueryPolygon_TinyQuadHitsOnePixel(t *testing.T) {
	const nside = 16
	for _, pix := range []int{0, 100, 1500, NPix(nside) - 1} {
		lon, lat := VecToLonLat(Pix2Vec(nside, pix))
		const d = 1e-3
		verts := lonLatPolygon(
			[2]float64{lon - d, lat - d},
			[2]float64{lon + d, lat - d},
			[2]float64{lon + d, lat + d},
			[2]float64{lon - d, lat + d},
		)
		got, err := QueryPolygon(nside, verts)
		require.NoError(t, err)
		assert.Equal(t, []int{pix}, got)
	}
}

func TestQueryPolygon_MissesEveryCentre(t *testing.T) {
	// Much smaller than a pixel and away from its centre.
	const nside = 8
	lon, lat := VecToLonLat(Pix2Vec(nside, 300))
	lat += 2
	const d = 1e-3
	verts := lonLatPolygon([2]float64{lon - d, lat - d}, [2]float64{lon + d, lat - d}, [2]float64{lon + d, lat + d}, [2]float64{lon - d, lat + d})

	got, err := QueryPolygon(nside, verts)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQueryPolygon_Invalid(t *testing.T) {
	p := LonLatToVec(10, 10)
	tests := []struct {
		name  string
		nside int
		verts []r3.Vector
		err   error
	}{
		{"bad nside", 3, lonLatPolygon([2]float64{0, 0}, [2]float64{1, 0}, [2]float64{1, 1}), ErrInvalidNside},
		{"two vertices", 16, lonLatPolygon([2]float64{0, 0}, [2]float64{1, 0}), ErrInvalidPolygon},
		{"all identical", 16, []r3.Vector{p, p, p, p}, ErrInvalidPolygon},
		{"zero vector", 16, []r3.Vector{{}, LonLatToVec(1, 0), LonLatToVec(1, 1)}, ErrInvalidPolygon},
		{"nan vector", 16, []r3.Vector{{X: math.NaN()}, LonLatToVec(1, 0), LonLatToVec(1, 1)}, ErrInvalidPolygon},
		{"bow tie", 16, lonLatPolygon([2]float64{0, 0}, [2]float64{5, 5}, [2]float64{5, 0}, [2]float64{0, 5}), ErrInvalidPolygon},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := QueryPolygon(tc.nside, tc.verts)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
