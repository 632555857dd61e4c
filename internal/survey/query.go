// Package survey turns archive search results into exposure records: it
// builds the file- and HDU-level searches for a survey, joins HDUs to their
// parent files and derives tau for every footprint.
package survey

import (
	"fmt"
	"time"

	"github.com/banshee-data/astroarchive/internal/archive"
)

// HDU output fields the join relies on.
const (
	FieldMD5          = "md5sum"
	FieldTransparency = "G-TRANSP"
	FieldAirmass      = "AIRMASS"
	FieldFitsFile     = "fitsfile"
	FieldHDUIndex     = "hdu_idx"
	FieldArchiveName  = "fitsfile__archive_filename"
	FieldExposure     = "fitsfile__exposure"
	FieldFilter       = "fitsfile__ifilter"
	FieldFWHM         = "FWHM"
	FieldAvgSky       = "AVSKY"
	FieldCentreRA     = "CENRA1"
	FieldCentreDec    = "CENDEC1"
)

// CornerRA and CornerDec are the HDU corner fields, in archive order.
var (
	CornerRA  = [4]string{"COR1RA1", "COR2RA1", "COR3RA1", "COR4RA1"}
	CornerDec = [4]string{"COR1DEC1", "COR2DEC1", "COR3DEC1", "COR4DEC1"}
)

// Options select the exposures that make up a survey.
type Options struct {
	Instrument string // e.g. "decam"
	ProcType   string // e.g. "instcal"
	ProdType   string // e.g. "image"
	ObsType    string // e.g. "object"
	Proposal   string // e.g. "2012B-0001"
	Filter     string // substring of ifilter, e.g. "r DECam"
	// CalDateFrom and CalDateTo bound the HDU search by calendar date
	// (YYYY-MM-DD, inclusive). Both empty means no date constraint.
	CalDateFrom string
	CalDateTo   string
}

// DefaultOptions are the DECam r-band wide-survey selection.
func DefaultOptions() Options {
	return Options{
		Instrument:  "decam",
		ProcType:    "instcal",
		ProdType:    "image",
		ObsType:     "object",
		Proposal:    "2012B-0001",
		Filter:      "r DECam",
		CalDateFrom: "2018-09-01",
		CalDateTo:   "2020-09-01",
	}
}

// Validate checks the options can form a query.
func (o Options) Validate() error {
	if o.Instrument == "" {
		return fmt.Errorf("instrument is required")
	}
	if (o.CalDateFrom == "") != (o.CalDateTo == "") {
		return fmt.Errorf("caldat range needs both ends, got %q..%q", o.CalDateFrom, o.CalDateTo)
	}
	if o.CalDateFrom != "" {
		from, err := time.Parse(time.DateOnly, o.CalDateFrom)
		if err != nil {
			return fmt.Errorf("invalid caldat_from: %w", err)
		}
		to, err := time.Parse(time.DateOnly, o.CalDateTo)
		if err != nil {
			return fmt.Errorf("invalid caldat_to: %w", err)
		}
		if to.Before(from) {
			return fmt.Errorf("caldat range is reversed: %s..%s", o.CalDateFrom, o.CalDateTo)
		}
	}
	return nil
}

// criteria builds the shared constraints, with prefix applied to each field
// name ("" for file searches, "fitsfile__" for HDU searches).
func (o Options) criteria(prefix string) []archive.Criterion {
	var cs []archive.Criterion
	add := func(field, value string) {
		if value != "" {
			cs = append(cs, archive.Eq(prefix+field, value))
		}
	}
	add("instrument", o.Instrument)
	add("proc_type", o.ProcType)
	add("prod_type", o.ProdType)
	add("obs_type", o.ObsType)
	add("proposal", o.Proposal)
	if o.Filter != "" {
		cs = append(cs, archive.Contains(prefix+"ifilter", o.Filter))
	}
	return cs
}

// FileQuery selects the survey's files with their transparency.
func FileQuery(o Options) archive.SearchSpec {
	return archive.SearchSpec{
		Outfields: []string{FieldMD5, FieldAirmass, FieldTransparency},
		Search:    o.criteria(""),
	}
}

// HDUQuery selects the survey's HDUs with footprint and photometry fields.
func HDUQuery(o Options) archive.SearchSpec {
	out := []string{
		FieldFitsFile, FieldHDUIndex, FieldArchiveName, FieldExposure, FieldFilter,
		FieldCentreRA, FieldCentreDec,
	}
	out = append(out, CornerRA[:]...)
	out = append(out, CornerDec[:]...)
	out = append(out, FieldFWHM, FieldAvgSky)

	var cs []archive.Criterion
	if o.CalDateFrom != "" {
		cs = append(cs, archive.Between("fitsfile__caldat", o.CalDateFrom, o.CalDateTo))
	}
	cs = append(cs, o.criteria("fitsfile__")...)
	return archive.SearchSpec{Outfields: out, Search: cs}
}

// NightQuery selects every file taken with one telescope and instrument on a
// calendar date.
func NightQuery(telescope, instrument, caldat string, outfields []string) archive.SearchSpec {
	return archive.SearchSpec{
		Outfields: outfields,
		Search: []archive.Criterion{
			archive.Eq("telescope", telescope),
			archive.Eq("instrument", instrument),
			archive.Between("caldat", caldat, caldat),
		},
	}
}

// ExposureNumberQuery selects raw DECam files by exposure number.
func ExposureNumberQuery(expnum int) archive.SearchSpec {
	return archive.SearchSpec{
		Outfields: []string{FieldMD5, "archive_filename", "EXPNUM"},
		Search: []archive.Criterion{
			archive.Eq("instrument", "decam"),
			archive.Eq("proc_type", "raw"),
			archive.Between("EXPNUM", expnum, expnum),
		},
	}
}
