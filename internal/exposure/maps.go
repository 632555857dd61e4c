package exposure

import (
	"fmt"
	"math"

	"github.com/banshee-data/astroarchive/internal/healpix"
	"gonum.org/v1/gonum/floats"
)

// Maps holds the two per-pixel accumulators for one resolution. The slices
// are sized once by NewMaps and never resized.
type Maps struct {
	Nside    int
	Raw      []float64 // summed exposure time, seconds
	Weighted []float64 // summed tau × exposure time, seconds
}

// NewMaps allocates zeroed maps for nside.
func NewMaps(nside int) (*Maps, error) {
	if err := healpix.ValidNside(nside); err != nil {
		return nil, err
	}
	n := healpix.NPix(nside)
	return &Maps{
		Nside:    nside,
		Raw:      make([]float64, n),
		Weighted: make([]float64, n),
	}, nil
}

// Len is the number of pixels in each map.
func (m *Maps) Len() int {
	return len(m.Raw)
}

// ClipTau clamps tau into [0, 1]. NaN maps to 0.
func ClipTau(tau float64) float64 {
	switch {
	case math.IsNaN(tau) || tau < 0:
		return 0
	case tau > 1:
		return 1
	}
	return tau
}

// Add credits exposure seconds to each pixel, and the clipped-tau-weighted
// exposure to the same pixels of the weighted map.
func (m *Maps) Add(pixels []int, exposure, tau float64) {
	w := ClipTau(tau) * exposure
	for _, p := range pixels {
		m.Raw[p] += exposure
		m.Weighted[p] += w
	}
}

// Merge adds src into dst. Both must share the same nside.
func Merge(dst, src *Maps) error {
	if dst.Nside != src.Nside || dst.Len() != src.Len() {
		return fmt.Errorf("cannot merge nside %d map into nside %d map", src.Nside, dst.Nside)
	}
	floats.Add(dst.Raw, src.Raw)
	floats.Add(dst.Weighted, src.Weighted)
	return nil
}
