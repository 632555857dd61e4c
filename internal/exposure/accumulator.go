package exposure

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/astroarchive/internal/geom"
	"github.com/banshee-data/astroarchive/internal/healpix"
	"github.com/banshee-data/astroarchive/internal/monitoring"
	"github.com/golang/geo/r3"
)

var logf = monitoring.Prefixed("exposure: ")

// DefaultChunkSize bounds how many resolved pixel lists are held in memory
// between the parallel resolve step and the ordered reduction.
const DefaultChunkSize = 4096

// Record is one HDU footprint. Key identifies the HDU for joins and fixes the
// canonical reduction order; the geometry does not use it.
type Record struct {
	Key      string
	Corners  geom.Quad // (RA, Dec) degrees, any order
	Exposure float64   // seconds, > 0
	Tau      float64   // clipped to [0, 1] when weighting
}

// SkipReason classifies why a record contributed nothing.
type SkipReason string

const (
	SkipInvalidExposure SkipReason = "invalid_exposure"
	SkipDegenerate      SkipReason = "degenerate"
	SkipPolygon         SkipReason = "polygon"
)

// Stats summarises one accumulation pass.
type Stats struct {
	Records       int
	Accumulated   int
	Skipped       int
	SkippedBy     map[SkipReason]int
	PixelsTouched int // sum over accumulated records of pixels touched
}

func (s Stats) String() string {
	return fmt.Sprintf("records=%d accumulated=%d skipped=%d %v pixels_touched=%d",
		s.Records, s.Accumulated, s.Skipped, s.SkippedBy, s.PixelsTouched)
}

// Combine adds the counts of o to s.
func (s *Stats) Combine(o Stats) {
	s.Records += o.Records
	s.Accumulated += o.Accumulated
	s.Skipped += o.Skipped
	s.PixelsTouched += o.PixelsTouched
	for k, v := range o.SkippedBy {
		if s.SkippedBy == nil {
			s.SkippedBy = make(map[SkipReason]int)
		}
		s.SkippedBy[k] += v
	}
}

// Accumulator rasterises records into Maps.
type Accumulator struct {
	// Workers bounds concurrent pixel resolution; <= 0 means runtime.NumCPU().
	Workers int
	// ChunkSize is the number of records resolved per reduction step;
	// <= 0 means DefaultChunkSize.
	ChunkSize int
	// LogSkipped logs each skipped record through the monitoring logger.
	LogSkipped bool
	// OnSkip, when set, is called for every skipped record in canonical order.
	OnSkip func(rec Record, reason SkipReason, err error)
}

type resolved struct {
	pixels []int
	reason SkipReason
	err    error
}

// Accumulate adds every record to m and reports what was accumulated or
// skipped. Stats accumulates across calls only through the caller; each call
// returns the counts for its own records. The only error is context
// cancellation, in which case m holds the contributions of the chunks that
// completed.
func (a *Accumulator) Accumulate(ctx context.Context, m *Maps, records []Record) (Stats, error) {
	if m == nil {
		return Stats{}, errors.New("exposure: nil maps")
	}
	stats := Stats{Records: len(records), SkippedBy: make(map[SkipReason]int)}

	order := canonicalOrder(records)

	chunk := a.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	workers := a.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	buf := make([]resolved, chunk)
	for lo := 0; lo < len(order); lo += chunk {
		hi := min(lo+chunk, len(order))
		idx := order[lo:hi]
		out := buf[:len(idx)]

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, ri := range idx {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				out[i] = resolve(m.Nside, records[ri])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		for i, ri := range idx {
			rec := records[ri]
			r := out[i]
			if r.err != nil {
				stats.Skipped++
				stats.SkippedBy[r.reason]++
				if a.LogSkipped {
					logf("skipped record %q (%s): %v", rec.Key, r.reason, r.err)
				}
				if a.OnSkip != nil {
					a.OnSkip(rec, r.reason, r.err)
				}
				continue
			}
			m.Add(r.pixels, rec.Exposure, rec.Tau)
			stats.Accumulated++
			stats.PixelsTouched += len(r.pixels)
			out[i] = resolved{}
		}
	}

	if stats.Skipped > 0 {
		logf("skipped %d of %d records: %v", stats.Skipped, stats.Records, stats.SkippedBy)
	}
	return stats, nil
}

// Generate allocates maps for nside and accumulates records into them.
func Generate(ctx context.Context, nside int, records []Record, acc *Accumulator) (*Maps, Stats, error) {
	m, err := NewMaps(nside)
	if err != nil {
		return nil, Stats{}, err
	}
	if acc == nil {
		acc = &Accumulator{}
	}
	stats, err := acc.Accumulate(ctx, m, records)
	return m, stats, err
}

// resolve orders the corners of rec and finds the pixels its footprint covers.
func resolve(nside int, rec Record) resolved {
	if math.IsNaN(rec.Exposure) || math.IsInf(rec.Exposure, 0) || rec.Exposure <= 0 {
		return resolved{reason: SkipInvalidExposure, err: fmt.Errorf("exposure %v is not a positive duration", rec.Exposure)}
	}

	ra, dec := rec.Corners.RADec()
	q, err := geom.OrderRADec(ra, dec)
	if err != nil {
		return resolved{reason: SkipDegenerate, err: err}
	}

	verts := make([]r3.Vector, len(q))
	for i, p := range q {
		verts[i] = healpix.LonLatToVec(p.X, p.Y)
	}
	pixels, err := healpix.QueryPolygon(nside, verts)
	if err != nil {
		return resolved{reason: SkipPolygon, err: err}
	}
	return resolved{pixels: pixels}
}

// canonicalOrder returns record indices sorted by content, so that any
// permutation of the same records reduces in the same order.
func canonicalOrder(records []Record) []int {
	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(i, j int) int {
		return compareRecords(&records[i], &records[j])
	})
	return idx
}

func compareRecords(a, b *Record) int {
	if c := cmp.Compare(a.Key, b.Key); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Exposure, b.Exposure); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Tau, b.Tau); c != 0 {
		return c
	}
	for k := range a.Corners {
		if c := cmp.Compare(a.Corners[k].X, b.Corners[k].X); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Corners[k].Y, b.Corners[k].Y); c != 0 {
			return c
		}
	}
	return 0
}
