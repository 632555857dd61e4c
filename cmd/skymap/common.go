package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/astroarchive/internal/archive"
	"github.com/banshee-data/astroarchive/internal/config"
	"github.com/banshee-data/astroarchive/internal/survey"
	"github.com/banshee-data/astroarchive/internal/version"
)

const defaultDBPath = "skymap.db"

// loadConfig reads path, or returns the built-in defaults when path is empty.
func loadConfig(path string) (*config.MapConfig, error) {
	if path == "" {
		return config.DefaultMapConfig(), nil
	}
	return config.LoadMapConfig(path)
}

// clientFlags are the archive overrides shared by commands that talk to it.
type clientFlags struct {
	url     string
	verbose bool
}

func (c *clientFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.url, "url", "", "Archive base URL (overrides ARCHIVE_URL)")
	fs.BoolVar(&c.verbose, "verbose", false, "Log every archive request")
}

// newClient builds an archive client from the environment and flags, logging
// in when credentials are present.
func (c *clientFlags) newClient(ctx context.Context) (*archive.Client, error) {
	env, err := config.LoadArchiveEnv()
	if err != nil {
		return nil, err
	}
	base := env.URL
	if c.url != "" {
		base = c.url
	}
	client := archive.New(base,
		archive.WithTimeout(env.Timeout),
		archive.WithVerbose(env.Verbose || c.verbose),
		archive.WithUserAgent(version.UserAgent()),
	)
	if env.HasCredentials() {
		if err := client.Login(ctx, env.Username, env.Password); err != nil {
			return nil, err
		}
	}
	return client, nil
}

// checkVersion warns when the archive API differs from the one this client
// was written against.
func checkVersion(ctx context.Context, client *archive.Client) error {
	ok, v, err := client.CheckVersion(ctx)
	if err != nil {
		return fmt.Errorf("archive version: %w", err)
	}
	if !ok {
		log.Printf("warning: archive API version %v, expected %v", v, archive.ExpectedAPIVersion)
	}
	return nil
}

// registerSurveyFlags binds the survey selection to fs, defaulting to
// survey.DefaultOptions.
func registerSurveyFlags(fs *flag.FlagSet) *survey.Options {
	o := survey.DefaultOptions()
	fs.StringVar(&o.Instrument, "instrument", o.Instrument, "Instrument")
	fs.StringVar(&o.ProcType, "proc-type", o.ProcType, "Processing type")
	fs.StringVar(&o.ProdType, "prod-type", o.ProdType, "Product type")
	fs.StringVar(&o.ObsType, "obs-type", o.ObsType, "Observation type")
	fs.StringVar(&o.Proposal, "proposal", o.Proposal, "Proposal ID (empty for any)")
	fs.StringVar(&o.Filter, "filter", o.Filter, "Filter substring")
	fs.StringVar(&o.CalDateFrom, "from", o.CalDateFrom, "First calendar date (YYYY-MM-DD)")
	fs.StringVar(&o.CalDateTo, "to", o.CalDateTo, "Last calendar date (YYYY-MM-DD)")
	return &o
}

// fetchFootprints runs the survey searches with the configured limits.
func fetchFootprints(ctx context.Context, cf *clientFlags, cfg *config.MapConfig, o survey.Options) ([]survey.Footprint, error) {
	client, err := cf.newClient(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(ctx, client); err != nil {
		return nil, err
	}
	lim := survey.Limits{Files: cfg.GetFileSearchLimit(), HDUs: cfg.GetHDUSearchLimit()}
	fps, stats, err := survey.Fetch(ctx, client, o, lim, cfg.GetTauParams())
	if err != nil {
		return nil, err
	}
	log.Printf("fetched %s", stats)
	return fps, nil
}
