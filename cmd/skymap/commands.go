package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/yargevad/filepathx"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/astroarchive/internal/archive"
	"github.com/banshee-data/astroarchive/internal/db"
	"github.com/banshee-data/astroarchive/internal/exposure"
	"github.com/banshee-data/astroarchive/internal/fsutil"
	"github.com/banshee-data/astroarchive/internal/healpix"
	"github.com/banshee-data/astroarchive/internal/mapio"
	"github.com/banshee-data/astroarchive/internal/render"
	"github.com/banshee-data/astroarchive/internal/survey"
	"github.com/banshee-data/astroarchive/internal/timeutil"
	"github.com/banshee-data/astroarchive/internal/units"
	"github.com/banshee-data/astroarchive/internal/version"
)

func runFetch(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Map configuration JSON (default: built-in defaults)")
	dbPath := fs.String("db", defaultDBPath, "Footprint database")
	var cf clientFlags
	cf.register(fs)
	opts := registerSurveyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fps, err := fetchFootprints(ctx, &cf, cfg, *opts)
	if err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.UpsertFootprints(fps)
	if err != nil {
		return err
	}
	total, err := store.FootprintCount()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Stored %d footprints (%d in %s)\n", n, total, *dbPath)
	return nil
}

func runBuild(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Map configuration JSON (default: built-in defaults)")
	dbPath := fs.String("db", defaultDBPath, "Footprint database")
	out := fs.String("out", "expmap.fits", "Output FITS map")
	nside := fs.Int("nside", 0, "HEALPix nside (default from config)")
	fetch := fs.Bool("fetch", false, "Query the archive and store the footprints before building")
	var cf clientFlags
	cf.register(fs)
	opts := registerSurveyFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *nside > 0 {
		cfg.Nside = nside
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var recs []exposure.Record
	if *fetch {
		fps, err := fetchFootprints(ctx, &cf, cfg, *opts)
		if err != nil {
			return err
		}
		n, err := store.UpsertFootprints(fps)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Stored %d footprints in %s\n", n, *dbPath)
		recs = survey.Records(fps)
	} else {
		if recs, err = store.Footprints(opts.Filter); err != nil {
			return err
		}
		if len(recs) == 0 {
			return fmt.Errorf("no footprints matching %q in %s; run fetch first", opts.Filter, *dbPath)
		}
	}

	n := cfg.GetNside()
	fmt.Fprintf(stdout, "Resolution is %5.2f arcmin\n", units.ConvertAngle(healpix.Resolution(n), units.Arcmin))

	clock := timeutil.RealClock{}
	start := clock.Now()
	maps, stats, err := exposure.Generate(ctx, n, recs, cfg.Accumulator())
	if err != nil {
		return err
	}
	log.Printf("accumulated in %s", clock.Since(start).Round(time.Millisecond))

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	run := &db.MapRun{
		RunID:      uuid.New(),
		Nside:      n,
		Stats:      stats,
		Config:     cfgJSON,
		OutputPath: *out,
	}
	meta := mapio.Meta{RunID: run.RunID, Filter: opts.Filter, Records: stats.Accumulated}
	if err := mapio.WriteFile(fsutil.OSFileSystem{}, *out, maps, meta); err != nil {
		return err
	}
	if err := store.RecordMapRun(run); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%s\n%s\n", stats, exposure.Summarise(maps))
	fmt.Fprintf(stdout, "Wrote %s (run %s)\n", *out, run.RunID)
	return nil
}

func runMerge(_ context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	out := fs.String("out", "merged.fits", "Output FITS map")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("at least one glob pattern is required")
	}

	paths, err := globAll(fs.Args(), *out)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no maps match %v", fs.Args())
	}

	fsys := fsutil.OSFileSystem{}
	maps, meta, err := mapio.MergeFiles(fsys, paths)
	if err != nil {
		return err
	}
	if err := mapio.WriteFile(fsys, *out, maps, meta); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Merged %d maps into %s\n%s\n", len(paths), *out, exposure.Summarise(maps))
	return nil
}

// globAll expands patterns (with ** support), dropping duplicates and the
// output path, in sorted order.
func globAll(patterns []string, exclude string) ([]string, error) {
	seen := map[string]bool{exclude: true}
	var paths []string
	for _, p := range patterns {
		matches, err := filepathx.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func runRender(_ context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Map configuration JSON (default: built-in defaults)")
	in := fs.String("in", "expmap.fits", "Input FITS map")
	out := fs.String("out", "expmap.png", "Output PNG")
	which := fs.String("which", string(render.Raw), "Map to draw: raw or weighted")
	renderMax := fs.Float64("max", 0, "Colour-scale cap in seconds (default from config)")
	cols := fs.Int("cols", 720, "RA samples")
	rows := fs.Int("rows", 360, "Dec samples")
	width := fs.Float64("width", 12, "Image width in inches")
	tauHTML := fs.String("tau-html", "", "Also write a tau histogram (HTML) from stored footprints")
	dbPath := fs.String("db", defaultDBPath, "Footprint database, for --tau-html")
	filter := fs.String("filter", "", "Filter substring, for --tau-html")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	w, err := render.ParseWhich(*which)
	if err != nil {
		return err
	}
	if *renderMax <= 0 {
		*renderMax = cfg.GetRenderMax()
	}

	fsys := fsutil.OSFileSystem{}
	maps, meta, err := mapio.ReadFile(fsys, *in)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("%s exposure, nside=%d", w, maps.Nside)
	if meta.Filter != "" {
		title += ", " + meta.Filter
	}
	p, err := render.Heatmap(maps, render.HeatmapOptions{Which: w, Cols: *cols, Rows: *rows, Max: *renderMax, Title: title})
	if err != nil {
		return err
	}
	wd := vg.Length(*width) * vg.Inch
	if err := render.SavePNG(fsys, *out, p, wd, wd/2); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", *out)

	if *tauHTML == "" {
		return nil
	}
	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	recs, err := store.Footprints(*filter)
	if err != nil {
		return err
	}
	taus := make([]float64, len(recs))
	for i, r := range recs {
		taus[i] = r.Tau
	}
	f, err := fsys.Create(*tauHTML)
	if err != nil {
		return err
	}
	if err := render.TauHistogram(f, taus, render.DefaultTauBins); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (%d footprints)\n", *tauHTML, len(taus))
	return nil
}

func runRetrieve(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("retrieve", flag.ContinueOnError)
	outDir := fs.String("out", ".", "Output directory")
	hdu := fs.Int("hdu", -1, "Retrieve only this HDU (default: whole file)")
	header := fs.Bool("header", true, "Print the primary header of the retrieved file")
	var cf clientFlags
	cf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one file ID is required")
	}

	client, err := cf.newClient(ctx)
	if err != nil {
		return err
	}
	var hduPtr *int
	if *hdu >= 0 {
		hduPtr = hdu
	}

	fsys := fsutil.OSFileSystem{}
	path, err := client.RetrieveFile(ctx, fsys, *outDir, fs.Arg(0), hduPtr)
	if err != nil {
		if errors.Is(err, archive.ErrForbidden) || errors.Is(err, archive.ErrUnauthorized) {
			return fmt.Errorf("%w (proprietary files need ARCHIVE_USERNAME and ARCHIVE_PASSWORD)", err)
		}
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	if !*header {
		return nil
	}

	r, err := fsys.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	cards, err := archive.ReadHeader(r, 0)
	if err != nil {
		return err
	}
	for _, c := range cards {
		if c.Comment != "" {
			fmt.Fprintf(stdout, "%-8s = %v / %s\n", c.Name, c.Value, c.Comment)
		} else {
			fmt.Fprintf(stdout, "%-8s = %v\n", c.Name, c.Value)
		}
	}
	return nil
}

func runRuns(_ context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", defaultDBPath, "Footprint database")
	limit := fs.Int("limit", 20, "Most recent runs to list (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.MapRuns(*limit)
	if err != nil {
		return err
	}
	for i := range runs {
		fmt.Fprintf(stdout, "%s  %s\n", runs[i].Created.Format("2006-01-02 15:04:05"), &runs[i])
	}
	return nil
}

func runVersion(_ context.Context, _ []string, stdout io.Writer) error {
	fmt.Fprintf(stdout, "skymap version %s\n", version.String())
	return nil
}
