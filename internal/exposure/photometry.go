package exposure

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidPhotometry is returned when tau cannot be derived from the
// supplied photometric quantities.
var ErrInvalidPhotometry = errors.New("invalid photometry")

// Reference values for the DECam instcal pipeline.
const (
	DefaultPixelScale = 0.263 // arcsec per pixel
	DefaultSeeingRef  = 0.9   // arcsec
	DefaultSkyRef     = 3.0   // sky counts per second
)

// Photometry carries the per-HDU quantities tau is derived from.
type Photometry struct {
	Transparency float64 // fractional atmospheric transparency
	FWHM         float64 // PSF width, pixels
	AvgSky       float64 // average sky background, counts
	Exposure     float64 // seconds
}

// TauParams are the instrument and reference constants of the tau formula.
type TauParams struct {
	PixelScale float64
	SeeingRef  float64
	SkyRef     float64
}

// DefaultTauParams returns the reference-instrument constants.
func DefaultTauParams() TauParams {
	return TauParams{
		PixelScale: DefaultPixelScale,
		SeeingRef:  DefaultSeeingRef,
		SkyRef:     DefaultSkyRef,
	}
}

// SkyRate is the sky background per second of exposure.
func (p Photometry) SkyRate() float64 {
	return p.AvgSky / p.Exposure
}

// Tau derives the effective-depth factor
//
//	tau = T² / (FWHM·scale/seeingRef)² / (skyRate/skyRef)
//
// The result is not clipped; Maps.Add clips when weighting.
func (tp TauParams) Tau(p Photometry) (float64, error) {
	for _, v := range []float64{p.Transparency, p.FWHM, p.AvgSky, p.Exposure} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: non-finite value in %+v", ErrInvalidPhotometry, p)
		}
	}
	if p.FWHM <= 0 || p.AvgSky <= 0 || p.Exposure <= 0 {
		return 0, fmt.Errorf("%w: fwhm, avsky and exposure must be positive, got %+v", ErrInvalidPhotometry, p)
	}

	seeing := p.FWHM * tp.PixelScale / tp.SeeingRef
	sky := p.SkyRate() / tp.SkyRef
	return p.Transparency * p.Transparency / (seeing * seeing) / sky, nil
}
