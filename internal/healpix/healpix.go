// Package healpix implements the RING-ordered HEALPix equal-area
// pixelisation of the sphere: pixel geometry, point-to-pixel lookup and the
// set of pixels whose centres fall inside a spherical polygon.
//
// Angles follow the usual HEALPix convention: theta is colatitude in
// [0, π] measured from the north pole, phi is longitude in [0, 2π).
// Direction vectors share the s2 convention (x towards lon 0, z north).
package healpix

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

// MaxNside is the largest resolution parameter supported by 64-bit indices.
const MaxNside = 1 << 29

// ErrInvalidNside is returned for a resolution parameter that is not a
// power of two in [1, MaxNside].
var ErrInvalidNside = errors.New("invalid nside")

// ValidNside checks that nside is a power of two within range.
func ValidNside(nside int) error {
	if nside < 1 || nside > MaxNside || nside&(nside-1) != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidNside, nside)
	}
	return nil
}

// NPix is the number of pixels at resolution nside: 12·nside².
func NPix(nside int) int {
	return 12 * nside * nside
}

// PixelArea is the solid angle of one pixel in steradians.
func PixelArea(nside int) float64 {
	return 4 * math.Pi / float64(NPix(nside))
}

// Resolution is the square root of the pixel area, the customary linear
// pixel size.
func Resolution(nside int) s1.Angle {
	return s1.Angle(math.Sqrt(PixelArea(nside))) * s1.Radian
}

// ringInfo describes iso-latitude ring i (1 ≤ i ≤ 4·nside-1): the index of
// its first pixel, its pixel count, the z of its centres and the longitude
// shift of pixel centres in units of the ring's pixel spacing.
func ringInfo(nside, i int) (start, n int, z, shift float64) {
	fn := float64(nside)
	switch {
	case i < nside:
		fi := float64(i)
		return 2 * i * (i - 1), 4 * i, 1 - fi*fi/(3*fn*fn), 0.5
	case i <= 3*nside:
		ncap := 2 * nside * (nside - 1)
		shift = 0
		if (i-nside)&1 == 0 {
			shift = 0.5
		}
		return ncap + (i-nside)*4*nside, 4 * nside, 4.0/3 - 2*float64(i)/(3*fn), shift
	default:
		ip := 4*nside - i
		fi := float64(ip)
		return NPix(nside) - 2*ip*(ip+1), 4 * ip, -(1 - fi*fi/(3*fn*fn)), 0.5
	}
}

// ringOfPixel returns the ring containing pixel pix.
func ringOfPixel(nside, pix int) int {
	npix := NPix(nside)
	ncap := 2 * nside * (nside - 1)
	switch {
	case pix < ncap:
		return (1 + isqrt(1+2*pix)) >> 1
	case pix < npix-ncap:
		return (pix-ncap)/(4*nside) + nside
	default:
		ip := (1 + isqrt(2*(npix-pix)-1)) >> 1
		return 4*nside - ip
	}
}

// ringIndex is the (fractional) ring number at height z. It increases from
// the north pole (z = 1) to the south pole.
func ringIndex(nside int, z float64) float64 {
	fn := float64(nside)
	switch {
	case z > 2.0/3:
		return fn * math.Sqrt(3*(1-z))
	case z < -2.0/3:
		return 4*fn - fn*math.Sqrt(3*(1+z))
	default:
		return fn * (2 - 1.5*z)
	}
}

func isqrt(v int) int {
	r := int(math.Sqrt(float64(v) + 0.5))
	for r*r > v {
		r--
	}
	for (r+1)*(r+1) <= v {
		r++
	}
	return r
}

// pixZPhi returns the height and longitude of the centre of pixel pix.
func pixZPhi(nside, pix int) (z, phi float64) {
	i := ringOfPixel(nside, pix)
	start, n, z, shift := ringInfo(nside, i)
	return z, (float64(pix-start) + shift) * (2 * math.Pi / float64(n))
}

// Pix2Ang returns the colatitude and longitude of the centre of pixel pix.
func Pix2Ang(nside, pix int) (theta, phi float64) {
	z, phi := pixZPhi(nside, pix)
	return math.Acos(z), phi
}

// Pix2Vec returns the unit vector towards the centre of pixel pix.
func Pix2Vec(nside, pix int) r3.Vector {
	z, phi := pixZPhi(nside, pix)
	return zPhiToVec(z, phi)
}

func zPhiToVec(z, phi float64) r3.Vector {
	st := math.Sqrt((1 - z) * (1 + z))
	return r3.Vector{X: st * math.Cos(phi), Y: st * math.Sin(phi), Z: z}
}

// Ang2Pix returns the pixel containing the direction (theta, phi).
func Ang2Pix(nside int, theta, phi float64) int {
	return zPhi2Pix(nside, math.Cos(theta), phi)
}

// Vec2Pix returns the pixel containing direction v (need not be unit length).
func Vec2Pix(nside int, v r3.Vector) int {
	return zPhi2Pix(nside, v.Z/v.Norm(), math.Atan2(v.Y, v.X))
}

func zPhi2Pix(nside int, z, phi float64) int {
	za := math.Abs(z)
	tt := math.Mod(phi, 2*math.Pi)
	if tt < 0 {
		tt += 2 * math.Pi
	}
	tt *= 2 / math.Pi // in [0, 4)

	if za <= 2.0/3 {
		fn := float64(nside)
		temp1 := fn * (0.5 + tt)
		temp2 := fn * z * 0.75
		jp := int(temp1 - temp2) // ascending edge line index
		jm := int(temp1 + temp2) // descending edge line index

		ir := nside + 1 + jp - jm // ring number counted from z = 2/3, in [1, 2nside+1]
		kshift := 1 - (ir & 1)
		ip := (jp + jm - nside + kshift + 1) >> 1
		ip = mod(ip, 4*nside)

		return 2*nside*(nside-1) + (ir-1)*4*nside + ip
	}

	tp := tt - math.Floor(tt)
	tmp := float64(nside) * math.Sqrt(3*(1-za))
	jp := int(tp * tmp)
	jm := int((1 - tp) * tmp)

	ir := jp + jm + 1 // ring number counted from the closest pole
	ip := mod(int(tt*float64(ir)), 4*ir)

	if z > 0 {
		return 2*ir*(ir-1) + ip
	}
	return NPix(nside) - 2*ir*(ir+1) + ip
}

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// LonLatToVec converts longitude and latitude in degrees to a unit vector.
func LonLatToVec(lon, lat float64) r3.Vector {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon)).Vector
}

// VecToLonLat converts a direction to longitude in [0, 360) and latitude,
// both in degrees.
func VecToLonLat(v r3.Vector) (lon, lat float64) {
	ll := s2.LatLngFromPoint(s2.Point{Vector: v})
	lon = ll.Lng.Degrees()
	if lon < 0 {
		lon += 360
	}
	return lon, ll.Lat.Degrees()
}
