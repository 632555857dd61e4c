// Command skymap fetches survey footprints from the astro data archive and
// builds HEALPix exposure maps from them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
)

type command func(ctx context.Context, args []string, stdout io.Writer) error

var commands = map[string]command{
	"fetch":    runFetch,
	"build":    runBuild,
	"merge":    runMerge,
	"render":   runRender,
	"retrieve": runRetrieve,
	"runs":     runRuns,
	"version":  runVersion,
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	name := flag.Arg(0)
	if name == "help" {
		printUsage()
		return
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, flag.Args()[1:], os.Stdout); err != nil {
		log.Fatalf("%s: %v", name, err)
	}
}

func printUsage() {
	fmt.Println(`skymap - exposure maps from the astro data archive

Usage: skymap <command> [options]

Commands:
  fetch      Query the archive and store survey footprints in sqlite
  build      Accumulate footprints into a HEALPix exposure map (FITS)
  merge      Sum partial maps matching glob patterns (** supported)
  render     Draw a map as a PNG heat map, optionally a tau histogram
  retrieve   Download a FITS file by ID and print its header
  runs       List catalogued map builds
  version    Show skymap version
  help       Show this help message

Environment:
  ARCHIVE_URL        Archive base URL (default https://astroarchive.noao.edu)
  ARCHIVE_USERNAME   Archive account email, for proprietary data
  ARCHIVE_PASSWORD   Archive account password
  ARCHIVE_TIMEOUT    HTTP timeout (default 60s)
  ARCHIVE_VERBOSE    Log every request (default false)

Examples:
  skymap fetch --db skymap.db --filter "r DECam"
  skymap build --db skymap.db --out r.fits --nside 1024
  skymap merge --out all.fits 'maps/**/*.fits'
  skymap render --in r.fits --out r.png --which weighted
  skymap retrieve --out downloads 0000f0c5015263610a75f0affed377d0`)
}
