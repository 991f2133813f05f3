// Command softedge extrapolates color into the transparent border of an
// image in one pass.
//
//	softedge [-workers N] [-quiet] <input-image> <output-image> [kernel-radius]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"go-softedge/pkg/pipeline"
	"go-softedge/pkg/softedge"
)

// UsageError reports malformed command-line arguments.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

type options struct {
	input   string
	output  string
	radius  int
	workers int
	quiet   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "", 0)

	fs := flag.NewFlagSet("softedge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(fs) }

	opts, err := parseArgs(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		logger.Printf("ERROR: %v", err)
		printUsage(fs)
		return 1
	}

	progress := func(percent int) {
		fmt.Fprintf(stdout, "%d%%\n", percent)
	}
	if opts.quiet {
		progress = nil
	}

	startTime := time.Now()
	res, err := pipeline.Run(context.Background(), pipeline.Request{
		Input:    opts.input,
		Output:   opts.output,
		Radius:   opts.radius,
		Workers:  opts.workers,
		Progress: progress,
	})
	if err != nil {
		logger.Printf("ERROR: %v", err)
		return 1
	}

	if !opts.quiet {
		fmt.Fprintf(stdout, "%s: %dx%d, radius %d, alpha rewritten %d, color extrapolated %d (%.2fs)\n",
			opts.output, res.Width, res.Height, opts.radius,
			res.Stats.AlphaUpdated, res.Stats.ColorExtrapolated, time.Since(startTime).Seconds())
	}
	return 0
}

func parseArgs(fs *flag.FlagSet, args []string) (*options, error) {
	opts := &options{radius: softedge.DefaultRadius}
	fs.IntVar(&opts.workers, "workers", 0, "Number of row bands processed in parallel (0 = all CPUs)")
	fs.BoolVar(&opts.quiet, "quiet", false, "Do not print progress")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	rest := fs.Args()
	if len(rest) < 2 || len(rest) > 3 {
		return nil, &UsageError{Msg: fmt.Sprintf("expected 2 or 3 arguments, got %d", len(rest))}
	}
	opts.input, opts.output = rest[0], rest[1]

	if len(rest) == 3 {
		r, err := strconv.Atoi(rest[2])
		if err != nil || r < 0 {
			return nil, &UsageError{Msg: fmt.Sprintf("kernel radius must be a non-negative integer, got %q", rest[2])}
		}
		opts.radius = r
	}

	return opts, nil
}

func printUsage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "USAGE: softedge [flags] <input-image> <output-image> [kernel-radius]")
	fmt.Fprintf(out, "  kernel-radius defaults to %d\n", softedge.DefaultRadius)
	fs.PrintDefaults()
}
