// Package mapio reads and writes exposure maps as FITS files: an empty
// primary HDU followed by a binary table holding one row per RING-ordered
// HEALPix pixel.
package mapio

import (
	"errors"
	"fmt"
	"io"

	"github.com/astrogo/fitsio"
	"github.com/google/uuid"

	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/fsutil"
	"github.com/banshee-data/astroarchive/internal/healpix"
)

// Table and column names.
const (
	ExtName        = "EXPMAP"
	ColumnExposure = "EXPOSURE"
	ColumnWeighted = "TEFF"
)

// ErrNotAMap is returned when a FITS file lacks the EXPMAP table or its
// HEALPix description.
var ErrNotAMap = errors.New("not an exposure map")

// Meta is the provenance written alongside a map.
type Meta struct {
	RunID   uuid.UUID // zero when the map was not catalogued
	Filter  string
	Records int
}

// Write encodes maps as FITS into w.
func Write(w io.Writer, maps *exposure.Maps, meta Meta) (err error) {
	if maps == nil {
		return errors.New("nil maps")
	}
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("create fits: %w", err)
	}
	defer closeHDU(f, "fits file", &err)

	primary := fitsio.NewImage(8, nil)
	defer closeHDU(primary, "primary hdu", &err)
	if err := f.Write(primary); err != nil {
		return fmt.Errorf("write primary hdu: %w", err)
	}

	cols := []fitsio.Column{
		{Name: ColumnExposure, Format: "D", Unit: "s"},
		{Name: ColumnWeighted, Format: "D", Unit: "s"},
	}
	tbl, err := fitsio.NewTable(ExtName, cols, fitsio.BINARY_TBL)
	if err != nil {
		return fmt.Errorf("create %s table: %w", ExtName, err)
	}
	defer closeHDU(tbl, ExtName+" table", &err)

	if err := tbl.Header().Append(cards(maps, meta)...); err != nil {
		return fmt.Errorf("write %s header: %w", ExtName, err)
	}
	for i := range maps.Raw {
		if err := tbl.Write(&maps.Raw[i], &maps.Weighted[i]); err != nil {
			return fmt.Errorf("write pixel %d: %w", i, err)
		}
	}
	if err := f.Write(tbl); err != nil {
		return fmt.Errorf("write %s table: %w", ExtName, err)
	}
	return nil
}

// closeHDU closes c, reporting its error through err unless one is
// already set.
func closeHDU(c io.Closer, what string, err *error) {
	if cerr := c.Close(); *err == nil && cerr != nil {
		*err = fmt.Errorf("close %s: %w", what, cerr)
	}
}

func cards(maps *exposure.Maps, meta Meta) []fitsio.Card {
	cs := []fitsio.Card{
		{Name: "PIXTYPE", Value: "HEALPIX", Comment: "HEALPIX pixelisation"},
		{Name: "ORDERING", Value: "RING", Comment: "Pixel ordering scheme"},
		{Name: "NSIDE", Value: maps.Nside, Comment: "Resolution parameter"},
		{Name: "FIRSTPIX", Value: 0, Comment: "First pixel # (0 based)"},
		{Name: "LASTPIX", Value: maps.Len() - 1, Comment: "Last pixel # (0 based)"},
		{Name: "INDXSCHM", Value: "IMPLICIT", Comment: "Indexing: IMPLICIT or EXPLICIT"},
		{Name: "COORDSYS", Value: "C", Comment: "Celestial (RA/Dec)"},
		{Name: "NRECORD", Value: meta.Records, Comment: "Footprints accumulated"},
	}
	if meta.RunID != uuid.Nil {
		cs = append(cs, fitsio.Card{Name: "RUNID", Value: meta.RunID.String(), Comment: "Map run identifier"})
	}
	if meta.Filter != "" {
		cs = append(cs, fitsio.Card{Name: "FILTER", Value: meta.Filter, Comment: "Filter selection"})
	}
	return cs
}

// Read decodes a map written by Write.
func Read(r io.Reader) (*exposure.Maps, Meta, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	var tbl *fitsio.Table
	for _, hdu := range f.HDUs() {
		if t, ok := hdu.(*fitsio.Table); ok && t.Name() == ExtName {
			tbl = t
			break
		}
	}
	if tbl == nil {
		return nil, Meta{}, fmt.Errorf("%w: no %s table", ErrNotAMap, ExtName)
	}

	hdr := tbl.Header()
	if v := stringCard(hdr, "PIXTYPE"); v != "HEALPIX" {
		return nil, Meta{}, fmt.Errorf("%w: PIXTYPE %q", ErrNotAMap, v)
	}
	if v := stringCard(hdr, "ORDERING"); v != "RING" {
		return nil, Meta{}, fmt.Errorf("%w: unsupported ORDERING %q", ErrNotAMap, v)
	}
	nside, ok := intCard(hdr, "NSIDE")
	if !ok {
		return nil, Meta{}, fmt.Errorf("%w: missing NSIDE", ErrNotAMap)
	}
	maps, err := exposure.NewMaps(nside)
	if err != nil {
		return nil, Meta{}, err
	}
	if n := tbl.NumRows(); n != int64(healpix.NPix(nside)) {
		return nil, Meta{}, fmt.Errorf("%w: %d rows for nside %d", ErrNotAMap, n, nside)
	}

	var meta Meta
	meta.Records, _ = intCard(hdr, "NRECORD")
	meta.Filter = stringCard(hdr, "FILTER")
	if id := stringCard(hdr, "RUNID"); id != "" {
		if meta.RunID, err = uuid.Parse(id); err != nil {
			return nil, Meta{}, fmt.Errorf("invalid RUNID %q: %w", id, err)
		}
	}

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, Meta{}, fmt.Errorf("read %s: %w", ExtName, err)
	}
	defer rows.Close()
	for i := 0; rows.Next(); i++ {
		if err := rows.Scan(&maps.Raw[i], &maps.Weighted[i]); err != nil {
			return nil, Meta{}, fmt.Errorf("read pixel %d: %w", i, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, Meta{}, fmt.Errorf("read %s: %w", ExtName, err)
	}
	return maps, meta, nil
}

func stringCard(hdr *fitsio.Header, name string) string {
	c := hdr.Get(name)
	if c == nil {
		return ""
	}
	s, _ := c.Value.(string)
	return s
}

func intCard(hdr *fitsio.Header, name string) (int, bool) {
	c := hdr.Get(name)
	if c == nil {
		return 0, false
	}
	switch v := c.Value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), v == float64(int(v))
	}
	return 0, false
}

// WriteFile writes maps to path on fsys.
func WriteFile(fsys fsutil.FileSystem, path string, maps *exposure.Maps, meta Meta) (err error) {
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	return Write(w, maps, meta)
}

// ReadFile reads a map from path on fsys.
func ReadFile(fsys fsutil.FileSystem, path string) (*exposure.Maps, Meta, error) {
	r, err := fsys.Open(path)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()
	maps, meta, err := Read(r)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%s: %w", path, err)
	}
	return maps, meta, nil
}

// MergeFiles sums the maps stored at paths. All must share one nside; the
// merged Meta counts every record and keeps the first file's filter.
func MergeFiles(fsys fsutil.FileSystem, paths []string) (*exposure.Maps, Meta, error) {
	if len(paths) == 0 {
		return nil, Meta{}, errors.New("no maps to merge")
	}
	var total *exposure.Maps
	var meta Meta
	for _, p := range paths {
		m, md, err := ReadFile(fsys, p)
		if err != nil {
			return nil, Meta{}, err
		}
		if total == nil {
			total, meta.Filter = m, md.Filter
		} else if err := exposure.Merge(total, m); err != nil {
			return nil, Meta{}, fmt.Errorf("%s: %w", p, err)
		}
		meta.Records += md.Records
	}
	return total, meta, nil
}
