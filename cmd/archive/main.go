// Command archive is a thin command-line client for the astro data archive
// search API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/astroarchive/internal/archive"
	"github.com/banshee-data/astroarchive/internal/config"
	"github.com/banshee-data/astroarchive/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, command string, args []string, stdin io.Reader, stdout io.Writer) error {
	switch command {
	case "search":
		return runSearch(ctx, args, stdin, stdout)
	case "vosearch":
		return runVOSearch(ctx, args, stdout)
	case "cats":
		return runCats(ctx, args, stdout)
	case "fields":
		return runFields(ctx, args, stdout)
	case "api-version":
		return runAPIVersion(ctx, args, stdout)
	case "version":
		fmt.Fprintf(stdout, "archive version %s\n", version.String())
		return nil
	case "help":
		printUsage()
		return nil
	}
	printUsage()
	return fmt.Errorf("unknown command %q", command)
}

func printUsage() {
	fmt.Println(`archive - query the astro data archive

Usage: archive <command> [options]

Commands:
  search       Advanced search; reads a JSON {"outfields":[...],"search":[...]} spec
  vosearch     Simple image access search around a position
  cats         List categorical field values
  fields       List core or auxiliary fields
  api-version  Show the archive API version and whether it is supported
  version      Show archive CLI version
  help         Show this help message

Environment:
  ARCHIVE_URL, ARCHIVE_USERNAME, ARCHIVE_PASSWORD, ARCHIVE_TIMEOUT, ARCHIVE_VERBOSE

Examples:
  echo '{"outfields":["md5sum"],"search":[["instrument","decam"]]}' | archive search --kind file --limit 5
  archive vosearch --kind hdu --ra 10.5 --dec -30 --size 0.1
  archive fields --kind hdu --instrument decam --proc-type instcal`)
}

func newClient(ctx context.Context) (*archive.Client, error) {
	env, err := config.LoadArchiveEnv()
	if err != nil {
		return nil, err
	}
	client := archive.New(env.URL,
		archive.WithTimeout(env.Timeout),
		archive.WithVerbose(env.Verbose),
		archive.WithUserAgent(version.UserAgent()),
	)
	if env.HasCredentials() {
		if err := client.Login(ctx, env.Username, env.Password); err != nil {
			return nil, err
		}
	}
	return client, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFormat(s string) (archive.Format, error) {
	switch f := archive.Format(s); f {
	case archive.JSON, archive.CSV, archive.XML, archive.VOTable:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

func runSearch(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	kind := fs.String("kind", "file", "Search files or hdus")
	limit := fs.Int("limit", 0, "Maximum rows (0: client default, -1: none)")
	format := fs.String("format", "json", "Response format: json, csv or xml")
	specPath := fs.String("spec", "-", "Search spec JSON file, - for stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, err := archive.ParseKind(*kind)
	if err != nil {
		return err
	}
	f, err := parseFormat(*format)
	if err != nil {
		return err
	}

	r := stdin
	if *specPath != "-" {
		file, err := os.Open(*specPath)
		if err != nil {
			return err
		}
		defer file.Close()
		r = file
	}
	var spec archive.SearchSpec
	if err := json.NewDecoder(r).Decode(&spec); err != nil {
		return fmt.Errorf("invalid search spec: %w", err)
	}
	if len(spec.Outfields) == 0 {
		return errors.New("search spec needs outfields")
	}

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	if f == archive.JSON {
		res, err := client.Search(ctx, k, spec, *limit)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)
	}
	body, err := client.SearchRaw(ctx, k, spec, *limit, f)
	if err != nil {
		return err
	}
	_, err = stdout.Write(body)
	return err
}

func runVOSearch(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("vosearch", flag.ContinueOnError)
	kind := fs.String("kind", "hdu", "Search files or hdus")
	ra := fs.Float64("ra", 0, "Right ascension (deg)")
	dec := fs.Float64("dec", 0, "Declination (deg)")
	size := fs.Float64("size", 0.1, "Search box size (deg)")
	limit := fs.Int("limit", 0, "Maximum rows (0: client default, -1: none)")
	format := fs.String("format", "json", "Response format: json, csv, xml or votable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	k, err := archive.ParseKind(*kind)
	if err != nil {
		return err
	}
	f, err := parseFormat(*format)
	if err != nil {
		return err
	}
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	if f == archive.JSON {
		res, err := client.VOSearch(ctx, k, *ra, *dec, *size, *limit)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)
	}
	body, err := client.VOSearchRaw(ctx, k, *ra, *dec, *size, *limit, f)
	if err != nil {
		return err
	}
	_, err = stdout.Write(body)
	return err
}

func runCats(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("cats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	cats, err := client.Categoricals(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, cats)
}

func runFields(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fields", flag.ContinueOnError)
	kind := fs.String("kind", "file", "Fields of files or hdus")
	instrument := fs.String("instrument", "", "Instrument, for auxiliary fields")
	procType := fs.String("proc-type", "", "Processing type, for auxiliary fields")
	if err := fs.Parse(args); err != nil {
		return err
	}
	k, err := archive.ParseKind(*kind)
	if err != nil {
		return err
	}
	if (*instrument == "") != (*procType == "") {
		return errors.New("auxiliary fields need both --instrument and --proc-type")
	}

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	var fields []archive.Field
	if *instrument == "" {
		fields, err = client.CoreFields(ctx, k)
	} else {
		fields, err = client.AuxFields(ctx, k, *instrument, *procType)
	}
	if err != nil {
		return err
	}
	return printJSON(stdout, fields)
}

func runAPIVersion(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("api-version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	ok, v, err := client.CheckVersion(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "archive API %v (client expects %v, supported=%t)\n", v, archive.ExpectedAPIVersion, ok)
	return nil
}
