package exposure

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/banshee-data/astroarchive/internal/geom"
	"github.com/banshee-data/astroarchive/internal/healpix"
	"github.com/banshee-data/astroarchive/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// boxAround returns a footprint of half-width d degrees centred on (ra, dec),
// with its corners deliberately out of order.
func boxAround(ra, dec, d float64) geom.Quad {
	return geom.Quad{
		{X: ra + d, Y: dec + d},
		{X: ra - d, Y: dec - d},
		{X: ra - d, Y: dec + d},
		{X: ra + d, Y: dec - d},
	}
}

func randomRecords(rng *rand.Rand, n int) []Record {
	records := make([]Record, n)
	for i := range records {
		ra := 30 + rng.Float64()*4
		dec := -10 + rng.Float64()*4
		records[i] = Record{
			Key:      fmt.Sprintf("rec%03d:%d", i, rng.Intn(60)+1),
			Corners:  boxAround(ra, dec, 0.05+rng.Float64()*0.2),
			Exposure: 10 + rng.Float64()*200,
			Tau:      rng.Float64()*1.4 - 0.2,
		}
	}
	return records
}

func TestClipTau(t *testing.T) {
	assert.Equal(t, 0.0, ClipTau(-0.5))
	assert.Equal(t, 0.5, ClipTau(0.5))
	assert.Equal(t, 1.0, ClipTau(1.5))
	assert.Equal(t, 0.0, ClipTau(math.NaN()))
	assert.Equal(t, 1.0, ClipTau(math.Inf(1)))
}

func TestGenerate_EmptyBatch(t *testing.T) {
	m, stats, err := Generate(context.Background(), 8, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, healpix.NPix(8), m.Len())
	assert.Len(t, m.Weighted, healpix.NPix(8))
	assert.Zero(t, floats.Sum(m.Raw))
	assert.Zero(t, floats.Sum(m.Weighted))
	assert.Equal(t, 0, stats.Records)
	assert.Equal(t, 0, stats.Skipped)
}

func TestGenerate_InvalidNside(t *testing.T) {
	_, _, err := Generate(context.Background(), 12, nil, nil)
	assert.ErrorIs(t, err, healpix.ErrInvalidNside)
}

func TestAccumulate_SingleTinyFootprint(t *testing.T) {
	const nside = 16
	const pix = 100
	lon, lat := healpix.VecToLonLat(healpix.Pix2Vec(nside, pix))

	rec := Record{Key: "a:1", Corners: boxAround(lon, lat, 1e-3), Exposure: 90, Tau: 0.5}
	m, stats, err := Generate(context.Background(), nside, []Record{rec}, &Accumulator{Workers: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Accumulated)
	assert.Equal(t, 1, stats.PixelsTouched)
	assert.Equal(t, 90.0, m.Raw[pix])
	assert.Equal(t, 45.0, m.Weighted[pix])
	assert.Equal(t, 90.0, floats.Sum(m.Raw))
	assert.Equal(t, 45.0, floats.Sum(m.Weighted))
}

func TestAccumulate_TauClippedIntoWeightedMap(t *testing.T) {
	const nside = 16
	lon, lat := healpix.VecToLonLat(healpix.Pix2Vec(nside, 200))
	records := []Record{
		{Key: "hi", Corners: boxAround(lon, lat, 1e-3), Exposure: 10, Tau: 1.5},
		{Key: "lo", Corners: boxAround(lon, lat, 1e-3), Exposure: 30, Tau: -0.5},
	}
	m, _, err := Generate(context.Background(), nside, records, nil)
	require.NoError(t, err)

	assert.Equal(t, 40.0, m.Raw[200])
	assert.Equal(t, 10.0, m.Weighted[200])
}

func TestAccumulate_SkipsBadRecords(t *testing.T) {
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	const nside = 32
	good := Record{Key: "c", Corners: boxAround(45, 20, 1), Exposure: 60, Tau: 1}
	records := []Record{
		good,
		{Key: "b", Corners: geom.Quad{{X: 10, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 10}}, Exposure: 60, Tau: 1},
		{Key: "a", Corners: boxAround(45, 20, 1), Exposure: 0, Tau: 1},
		{Key: "d", Corners: boxAround(45, 20, 1), Exposure: math.NaN(), Tau: 1},
		{Key: "e", Corners: geom.Quad{{X: math.NaN(), Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}, Exposure: 60, Tau: 1},
	}

	var skipped []string
	acc := &Accumulator{
		LogSkipped: true,
		OnSkip: func(rec Record, reason SkipReason, err error) {
			require.Error(t, err)
			skipped = append(skipped, rec.Key+"/"+string(reason))
		},
	}
	m, stats, err := Generate(context.Background(), nside, records, acc)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Records)
	assert.Equal(t, 1, stats.Accumulated)
	assert.Equal(t, 4, stats.Skipped)
	assert.Equal(t, map[SkipReason]int{SkipInvalidExposure: 2, SkipDegenerate: 2}, stats.SkippedBy)
	assert.Equal(t, []string{"a/invalid_exposure", "b/degenerate", "d/invalid_exposure", "e/degenerate"}, skipped)

	ref, _, err := Generate(context.Background(), nside, []Record{good}, nil)
	require.NoError(t, err)
	assert.Equal(t, ref.Raw, m.Raw)
	assert.Equal(t, ref.Weighted, m.Weighted)
}

func TestAccumulate_PermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	records := randomRecords(rng, 300)

	const nside = 256
	want, wantStats, err := Generate(context.Background(), nside, records, &Accumulator{Workers: 1})
	require.NoError(t, err)
	require.Equal(t, len(records), wantStats.Accumulated)
	require.Positive(t, wantStats.PixelsTouched)

	for trial := 0; trial < 3; trial++ {
		shuffled := append([]Record(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		acc := &Accumulator{Workers: 1 + trial*3, ChunkSize: 7 + trial*50}
		got, stats, err := Generate(context.Background(), nside, shuffled, acc)
		require.NoError(t, err)

		assert.Equal(t, wantStats, stats)
		// Exact equality: summation order per pixel is fixed.
		assert.True(t, floats.Equal(want.Raw, got.Raw), "raw map differs on trial %d", trial)
		assert.True(t, floats.Equal(want.Weighted, got.Weighted), "weighted map differs on trial %d", trial)
	}
}

func TestAccumulate_TotalsMatchPixelCounts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	records := randomRecords(rng, 50)

	m, err := NewMaps(128)
	require.NoError(t, err)

	var wantRaw, wantWeighted float64
	acc := &Accumulator{}
	for _, rec := range records {
		before := Summarise(m)
		stats, err := acc.Accumulate(context.Background(), m, []Record{rec})
		require.NoError(t, err)
		require.Equal(t, 1, stats.Accumulated)
		wantRaw += rec.Exposure * float64(stats.PixelsTouched)
		wantWeighted += ClipTau(rec.Tau) * rec.Exposure * float64(stats.PixelsTouched)
		assert.GreaterOrEqual(t, Summarise(m).Covered, before.Covered)
	}
	assert.InEpsilon(t, wantRaw, floats.Sum(m.Raw), 1e-12)
	assert.InEpsilon(t, wantWeighted, floats.Sum(m.Weighted), 1e-12)
}

func TestAccumulate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := NewMaps(16)
	require.NoError(t, err)
	records := randomRecords(rand.New(rand.NewSource(1)), 10)

	_, err = (&Accumulator{}).Accumulate(ctx, m, records)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, floats.Sum(m.Raw))
}

func TestAccumulate_NilMaps(t *testing.T) {
	_, err := (&Accumulator{}).Accumulate(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestStatsCombine(t *testing.T) {
	var total Stats
	total.Combine(Stats{Records: 3, Accumulated: 2, Skipped: 1, SkippedBy: map[SkipReason]int{SkipDegenerate: 1}, PixelsTouched: 10})
	total.Combine(Stats{Records: 2, Accumulated: 1, Skipped: 1, SkippedBy: map[SkipReason]int{SkipDegenerate: 1}, PixelsTouched: 4})

	assert.Equal(t, Stats{Records: 5, Accumulated: 3, Skipped: 2, SkippedBy: map[SkipReason]int{SkipDegenerate: 2}, PixelsTouched: 14}, total)
	assert.Contains(t, total.String(), "skipped=2")
}
