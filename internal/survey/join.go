package survey

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/astroarchive/internal/archive"
	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/geom"
	"github.com/banshee-data/astroarchive/internal/monitoring"
)

var logf = monitoring.Prefixed("survey: ")

// Footprint is one joined HDU: its exposure record plus the archive
// identifiers and photometry it was derived from.
type Footprint struct {
	exposure.Record
	MD5         string
	HDU         int
	ArchiveName string
	Filter      string
	Airmass     float64
	Photometry  exposure.Photometry
	CentreRA    float64
	CentreDec   float64
}

// Key builds the record key for an HDU of a file.
func Key(md5 string, hdu int) string {
	return fmt.Sprintf("%s:%d", md5, hdu)
}

// Drop reasons reported in JoinStats.
const (
	DropNoFile     = "no_file"
	DropMissing    = "missing_value"
	DropPhotometry = "photometry"
)

// JoinStats counts what the join kept and discarded.
type JoinStats struct {
	Files          int
	HDUs           int
	DuplicateFiles int
	Joined         int
	Dropped        map[string]int
}

func (s JoinStats) String() string {
	return fmt.Sprintf("files=%d hdus=%d joined=%d dropped=%v", s.Files, s.HDUs, s.Joined, s.Dropped)
}

type fileInfo struct {
	airmass      float64
	transparency float64
}

// Join matches each HDU row to its file row (HDU fitsfile = file md5sum),
// drops pairs with any missing value and derives tau. HDUs keep their input
// order. If a file appears more than once the first row wins.
func Join(files, hdus []archive.Row, tp exposure.TauParams) ([]Footprint, JoinStats) {
	stats := JoinStats{Files: len(files), HDUs: len(hdus), Dropped: make(map[string]int)}

	byMD5 := make(map[string]fileInfo, len(files))
	for _, row := range files {
		md5, ok := row.Text(FieldMD5)
		if !ok || md5 == "" {
			continue
		}
		if _, dup := byMD5[md5]; dup {
			stats.DuplicateFiles++
			continue
		}
		airmass, ok1 := row.Float(FieldAirmass)
		transp, ok2 := row.Float(FieldTransparency)
		if !ok1 || !ok2 {
			airmass, transp = math.NaN(), math.NaN()
		}
		byMD5[md5] = fileInfo{airmass: airmass, transparency: transp}
	}

	out := make([]Footprint, 0, len(hdus))
	for _, row := range hdus {
		md5, _ := row.Text(FieldFitsFile)
		fi, ok := byMD5[md5]
		if !ok {
			stats.Dropped[DropNoFile]++
			continue
		}
		fp, ok := footprintFromRow(row, md5, fi)
		if !ok {
			stats.Dropped[DropMissing]++
			continue
		}
		tau, err := tp.Tau(fp.Photometry)
		if err != nil {
			stats.Dropped[DropPhotometry]++
			continue
		}
		fp.Tau = tau
		out = append(out, fp)
	}
	stats.Joined = len(out)

	if n := stats.HDUs - stats.Joined; n > 0 {
		logf("dropped %d of %d HDUs: %v", n, stats.HDUs, stats.Dropped)
	}
	return out, stats
}

// footprintFromRow extracts every field of a joined row, reporting false if
// any is missing.
func footprintFromRow(row archive.Row, md5 string, fi fileInfo) (Footprint, bool) {
	if math.IsNaN(fi.airmass) || math.IsNaN(fi.transparency) {
		return Footprint{}, false
	}

	fp := Footprint{MD5: md5, Airmass: fi.airmass}
	var ok bool
	if fp.HDU, ok = row.Int(FieldHDUIndex); !ok {
		return Footprint{}, false
	}
	if fp.ArchiveName, ok = row.Text(FieldArchiveName); !ok {
		return Footprint{}, false
	}
	if fp.Filter, ok = row.Text(FieldFilter); !ok {
		return Footprint{}, false
	}

	floats := map[string]*float64{
		FieldExposure:  &fp.Exposure,
		FieldFWHM:      &fp.Photometry.FWHM,
		FieldAvgSky:    &fp.Photometry.AvgSky,
		FieldCentreRA:  &fp.CentreRA,
		FieldCentreDec: &fp.CentreDec,
	}
	for name, dst := range floats {
		if *dst, ok = row.Float(name); !ok {
			return Footprint{}, false
		}
	}

	var ra, dec [4]float64
	for i := range ra {
		if ra[i], ok = row.Float(CornerRA[i]); !ok {
			return Footprint{}, false
		}
		if dec[i], ok = row.Float(CornerDec[i]); !ok {
			return Footprint{}, false
		}
	}
	fp.Corners = geom.QuadFromRADec(ra, dec)
	fp.Key = Key(md5, fp.HDU)
	fp.Photometry.Transparency = fi.transparency
	fp.Photometry.Exposure = fp.Exposure
	return fp, true
}

// Records extracts the exposure records from footprints.
func Records(fps []Footprint) []exposure.Record {
	out := make([]exposure.Record, len(fps))
	for i := range fps {
		out[i] = fps[i].Record
	}
	return out
}

// Taus extracts the unclipped tau values, e.g. for a histogram.
func Taus(fps []Footprint) []float64 {
	out := make([]float64, len(fps))
	for i := range fps {
		out[i] = fps[i].Tau
	}
	return out
}

// Limits bound the two searches Fetch runs.
type Limits struct {
	Files int
	HDUs  int
}

// Fetch runs the file and HDU searches for a survey concurrently and joins
// the results.
func Fetch(ctx context.Context, c *archive.Client, o Options, lim Limits, tp exposure.TauParams) ([]Footprint, JoinStats, error) {
	if err := o.Validate(); err != nil {
		return nil, JoinStats{}, err
	}

	var files, hdus *archive.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		files, err = c.Search(gctx, archive.File, FileQuery(o), lim.Files)
		if err != nil {
			return fmt.Errorf("file search: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		hdus, err = c.Search(gctx, archive.HDU, HDUQuery(o), lim.HDUs)
		if err != nil {
			return fmt.Errorf("hdu search: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, JoinStats{}, err
	}

	fps, stats := Join(files.Rows, hdus.Rows, tp)
	return fps, stats, nil
}

// NightFiles lists the files taken with one telescope and instrument on a
// calendar date.
func NightFiles(ctx context.Context, c *archive.Client, telescope, instrument, caldat string, outfields []string) ([]archive.Row, error) {
	res, err := c.Search(ctx, archive.File, NightQuery(telescope, instrument, caldat, outfields), archive.NoLimit)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
