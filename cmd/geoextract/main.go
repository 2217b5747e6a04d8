// Command geoextract extracts metadata, tables and a knowledge graph from geological reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/geodata-extractor/internal/common"
)

const (
	exitOK          = 0
	exitDocFailures = 1
	exitConfig      = 2
)

type options struct {
	inputFile   string
	inputDir    string
	outputDir   string
	configPath  string
	workers     int
	loadGraph   bool
	exportXLSX  bool
	inmemCache  bool
	includeText bool
	watch       bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("geoextract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.inputFile, "input-file", "", "process a single PDF")
	fs.StringVar(&o.inputDir, "input-dir", "", "process every PDF under this directory (default paths.raw_dir)")
	fs.StringVar(&o.outputDir, "output-dir", "", "where result files are written (default paths.processed_dir)")
	fs.StringVar(&o.configPath, "config", "", "optional YAML config file")
	fs.IntVar(&o.workers, "workers", 0, "documents processed concurrently (default from config)")
	fs.BoolVar(&o.loadGraph, "load-graph", false, "load knowledge graphs into PostgreSQL (DB_URL)")
	fs.BoolVar(&o.exportXLSX, "export-xlsx", false, "write <stem>_tables.xlsx next to each result")
	fs.BoolVar(&o.inmemCache, "inmem-cache", false, "keep the result cache in memory only")
	fs.BoolVar(&o.includeText, "include-text", false, "also process .txt and .md files")
	fs.BoolVar(&o.watch, "watch", false, "after the initial pass, keep processing new files in the input directory")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, common.InvalidArgumentError(fmt.Sprintf("unexpected arguments: %v", fs.Args()))
	}
	if o.inputFile != "" && o.inputDir != "" {
		return o, common.InvalidArgumentError("-input-file and -input-dir are mutually exclusive")
	}
	if o.watch && o.inputFile != "" {
		return o, common.InvalidArgumentError("-watch needs an input directory")
	}
	if o.workers < 0 {
		return o, common.InvalidArgumentError("-workers must be positive")
	}
	return o, nil
}

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(w io.Writer, format string, args ...interface{}) {
	if _, err := fmt.Fprintf(w, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

// exitCodeFor maps startup errors: configuration and usage problems exit 2, anything else 1.
func exitCodeFor(err error) int {
	if common.IsConfigError(err) || common.CodeOf(err) == codes.InvalidArgument {
		return exitConfig
	}
	return exitDocFailures
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		printError(stderr, "Error: %v\n", err)
		return exitConfig
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		printError(stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	defer a.close()

	paths, err := a.inputs()
	if err != nil {
		printError(stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}

	summary, err := a.run(ctx, paths)
	if err != nil {
		a.logger.Error("geoextract.failed", "error", err)
		return exitDocFailures
	}
	if summary.Failed > 0 {
		return exitDocFailures
	}
	return exitOK
}
