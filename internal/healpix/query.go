package healpix

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"
)

// ErrInvalidPolygon is returned when the vertices do not describe a simple
// spherical polygon: fewer than three vertices, zero or non-finite vectors,
// repeated or antipodal neighbours, or crossing edges.
var ErrInvalidPolygon = errors.New("invalid polygon")

// QueryPolygon returns, in ascending order, the pixels whose centres lie
// inside the spherical polygon with the given vertices. Edges are great-circle
// arcs between consecutive vertices, closing last to first. Either winding is
// accepted; the polygon is taken to be the smaller of the two regions its
// boundary encloses.
func QueryPolygon(nside int, vertices []r3.Vector) ([]int, error) {
	if err := ValidNside(nside); err != nil {
		return nil, err
	}
	loop, err := newLoop(vertices)
	if err != nil {
		return nil, err
	}

	var pixels []int
	forEachCandidate(nside, loop.RectBound(), func(pix int, centre s2.Point) {
		if loop.ContainsPoint(centre) {
			pixels = append(pixels, pix)
		}
	})
	sort.Ints(pixels)
	return pixels, nil
}

// newLoop validates the vertices and builds a normalised s2 loop from them.
func newLoop(vertices []r3.Vector) (*s2.Loop, error) {
	if len(vertices) < 3 {
		return nil, fmt.Errorf("%w: %d vertices", ErrInvalidPolygon, len(vertices))
	}

	pts := make([]s2.Point, len(vertices))
	for i, v := range vertices {
		n := v.Norm()
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%w: vertex %d is %v", ErrInvalidPolygon, i, v)
		}
		pts[i] = s2.Point{Vector: v.Mul(1 / n)}
	}

	if i, j, ok := findCrossing(pts); ok {
		return nil, fmt.Errorf("%w: edges %d and %d cross", ErrInvalidPolygon, i, j)
	}

	loop := s2.LoopFromPoints(pts)
	if err := loop.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolygon, err)
	}
	loop.Normalize()
	return loop, nil
}

// findCrossing looks for a pair of non-adjacent edges that cross. Edge i runs
// from pts[i] to pts[i+1].
func findCrossing(pts []s2.Point) (int, int, bool) {
	n := len(pts)
	for i := 0; i < n; i++ {
		a, b := pts[i], pts[(i+1)%n]
		for j := i + 2; j < n; j++ {
			if i == 0 && j == n-1 {
				continue // adjacent through the closing vertex
			}
			c, d := pts[j], pts[(j+1)%n]
			if s2.CrossingSign(a, b, c, d) == s2.Cross {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// forEachCandidate visits every pixel whose centre falls inside the
// latitude/longitude rectangle bound, plus a one-pixel margin in longitude.
func forEachCandidate(nside int, bound s2.Rect, fn func(pix int, centre s2.Point)) {
	zLo := math.Sin(bound.Lat.Lo)
	zHi := math.Sin(bound.Lat.Hi)

	first := int(math.Floor(ringIndex(nside, zHi)))
	if first < 1 {
		first = 1
	}
	last := int(math.Ceil(ringIndex(nside, zLo)))
	if last > 4*nside-1 {
		last = 4*nside - 1
	}

	for ring := first; ring <= last; ring++ {
		start, n, z, shift := ringInfo(nside, ring)
		if z < zLo || z > zHi {
			continue
		}

		dphi := 2 * math.Pi / float64(n)
		jLo, jHi := 0, n-1
		if !bound.Lng.IsFull() {
			lo := bound.Lng.Lo
			width := bound.Lng.Length()
			jLo = int(math.Ceil(lo/dphi-shift)) - 1
			jHi = int(math.Floor((lo+width)/dphi-shift)) + 1
			if jHi-jLo+1 >= n {
				jLo, jHi = 0, n-1
			}
		}

		for j := jLo; j <= jHi; j++ {
			jj := mod(j, n)
			phi := (float64(jj) + shift) * dphi
			fn(start+jj, s2.Point{Vector: zPhiToVec(z, phi)})
		}
	}
}
