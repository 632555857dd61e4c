// Package geom orders the four sky corners of a detector footprint so that
// they trace a simple polygon.
//
// Coordinates are treated as planar (x = right ascension, y = declination,
// both in degrees). Footprints span a fraction of a degree, so the planar
// centroid and angles are adequate for ordering; the spherical work happens
// later in the healpix package.
package geom

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDegenerate is returned when a footprint cannot be ordered: a corner
// coincides with the centroid (including the all-corners-identical case) or a
// coordinate is not finite.
var ErrDegenerate = errors.New("degenerate polygon")

// Point is an (x, y) pair: right ascension and declination in degrees.
type Point struct {
	X, Y float64
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Quad holds the four corners of one HDU footprint.
type Quad [4]Point

// QuadFromRADec pairs up corner right ascensions and declinations.
func QuadFromRADec(ra, dec [4]float64) Quad {
	var q Quad
	for i := range q {
		q[i] = Point{X: ra[i], Y: dec[i]}
	}
	return q
}

// RADec splits the corners back into right ascension and declination arrays.
func (q Quad) RADec() (ra, dec [4]float64) {
	for i, p := range q {
		ra[i], dec[i] = p.X, p.Y
	}
	return ra, dec
}

// Distance is the planar Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Centroid is the arithmetic mean of pts, computed per coordinate.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var x, y float64
	for _, p := range pts {
		x += p.X
		y += p.Y
	}
	n := float64(len(pts))
	return Point{X: x / n, Y: y / n}
}

// angleFrom returns the angle of the direction from p towards ref, measured
// clockwise from the +x axis, in (0, 2π]. Sorting by descending angleFrom
// therefore visits points counter-clockwise about ref.
//
// The four branches select the quadrant of (ref - p); the result equals
// -atan2(dy, dx) folded into (0, 2π], so a direction along +x yields 2π
// rather than 0.
func angleFrom(p, ref Point) (float64, error) {
	d := Distance(p, ref)
	if d == 0 {
		return 0, fmt.Errorf("%w: point %v coincides with reference", ErrDegenerate, p)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, fmt.Errorf("%w: non-finite coordinate near %v", ErrDegenerate, p)
	}

	// k is the sine of the angle; clamp rounding excursions past ±1 so asin
	// never yields NaN.
	k := math.Max(-1, math.Min(1, (ref.Y-p.Y)/d))

	if k >= 0 {
		if ref.X >= p.X {
			return 2*math.Pi - math.Asin(k), nil
		}
		return math.Pi + math.Asin(k), nil
	}
	if ref.X >= p.X {
		return math.Asin(-k), nil
	}
	return math.Pi - math.Asin(-k), nil
}

// Order permutes the corners into counter-clockwise order about their
// centroid. For a non-degenerate quadrilateral the result traces its boundary
// without edge crossings. Collinear or repeated corners that do not sit on the
// centroid produce a deterministic but unspecified order; a corner on the
// centroid returns ErrDegenerate.
func Order(q Quad) (Quad, error) {
	ref := Centroid(q[:])

	type keyed struct {
		p     Point
		angle float64
	}
	ks := make([]keyed, len(q))
	for i, p := range q {
		a, err := angleFrom(p, ref)
		if err != nil {
			return Quad{}, err
		}
		ks[i] = keyed{p: p, angle: a}
	}

	sort.SliceStable(ks, func(i, j int) bool { return ks[i].angle > ks[j].angle })

	var out Quad
	for i, k := range ks {
		out[i] = k.p
	}
	return out, nil
}

// OrderRADec orders a footprint given as corner right ascension and
// declination arrays. Corners straddling RA 0/360 are unwrapped relative to
// the first corner before ordering so the planar centroid stays inside the
// footprint; the returned right ascensions are wrapped back into [0, 360).
func OrderRADec(ra, dec [4]float64) (Quad, error) {
	var unwrapped [4]float64
	base := ra[0]
	for i, r := range ra {
		switch {
		case r-base > 180:
			r -= 360
		case r-base < -180:
			r += 360
		}
		unwrapped[i] = r
	}

	q, err := Order(QuadFromRADec(unwrapped, dec))
	if err != nil {
		return Quad{}, err
	}
	for i := range q {
		q[i].X = wrapRA(q[i].X)
	}
	return q, nil
}

func wrapRA(ra float64) float64 {
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	return ra
}

// SignedArea is the shoelace area of the polygon traced by q in order.
// Positive means counter-clockwise.
func SignedArea(q Quad) float64 {
	var s float64
	for i := range q {
		j := (i + 1) % len(q)
		s += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return s / 2
}

// SelfIntersects reports whether either pair of opposite edges of q cross.
func SelfIntersects(q Quad) bool {
	return segmentsCross(q[0], q[1], q[2], q[3]) || segmentsCross(q[1], q[2], q[3], q[0])
}

// segmentsCross reports a proper crossing of segments ab and cd.
func segmentsCross(a, b, c, d Point) bool {
	d1 := orient(c, d, a)
	d2 := orient(c, d, b)
	d3 := orient(a, b, c)
	d4 := orient(a, b, d)
	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func orient(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}
