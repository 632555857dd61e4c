package exposure

import (
	"fmt"

	"github.com/banshee-data/astroarchive/internal/healpix"
	"github.com/banshee-data/astroarchive/internal/units"
	"gonum.org/v1/gonum/floats"
)

// Summary describes the coverage of a pair of maps.
type Summary struct {
	Nside         int
	Pixels        int
	Covered       int     // pixels with non-zero raw exposure
	CoveredArea   float64 // square degrees
	MaxExposure   float64 // seconds
	MeanExposure  float64 // seconds, over covered pixels
	MaxWeighted   float64
	TotalExposure float64 // pixel-seconds
	TotalWeighted float64
}

func (s Summary) String() string {
	return fmt.Sprintf("nside=%d covered=%d/%d (%.2f deg²) max=%.1fs mean=%.1fs teff_max=%.1fs",
		s.Nside, s.Covered, s.Pixels, s.CoveredArea, s.MaxExposure, s.MeanExposure, s.MaxWeighted)
}

// Summarise computes coverage statistics for m.
func Summarise(m *Maps) Summary {
	s := Summary{Nside: m.Nside, Pixels: m.Len()}
	if m.Len() == 0 {
		return s
	}
	for _, v := range m.Raw {
		if v != 0 {
			s.Covered++
		}
	}
	s.CoveredArea = units.SquareDegrees(float64(s.Covered) * healpix.PixelArea(m.Nside))
	s.MaxExposure = floats.Max(m.Raw)
	s.MaxWeighted = floats.Max(m.Weighted)
	s.TotalExposure = floats.Sum(m.Raw)
	s.TotalWeighted = floats.Sum(m.Weighted)
	if s.Covered > 0 {
		s.MeanExposure = s.TotalExposure / float64(s.Covered)
	}
	return s
}
