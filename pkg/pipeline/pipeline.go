// Package pipeline runs a single extrapolation pass from one image file to
// another.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go-softedge/pkg/imageio"
	"go-softedge/pkg/softedge"
)

type Request struct {
	Input    string
	Output   string
	Radius   int
	Workers  int
	Progress func(percent int)
}

type Result struct {
	Width       int
	Height      int
	Stats       softedge.Stats
	LoadTime    time.Duration
	ProcessTime time.Duration
	WriteTime   time.Duration
}

// Run loads Input, extrapolates one pass and writes Output. Nothing is
// written when the input lacks any of R, G, B, A.
func Run(ctx context.Context, req Request) (*Result, error) {
	var res Result

	start := time.Now()
	img, err := imageio.Load(req.Input)
	if err != nil {
		return nil, err
	}
	current, err := img.Store()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Input, err)
	}
	res.LoadTime = time.Since(start)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	next, stats := softedge.ExtrapolateWithStats(current, softedge.Options{
		Radius:   req.Radius,
		Workers:  req.Workers,
		Progress: req.Progress,
	})
	res.ProcessTime = time.Since(start)
	res.Stats = stats
	res.Width, res.Height = next.Extent()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start = time.Now()
	if err := imageio.Write(req.Output, next, img.Depth); err != nil {
		return nil, err
	}
	res.WriteTime = time.Since(start)

	return &res, nil
}

// Process is Run for in-memory images: it decodes r and encodes the result
// to w in the given format.
func Process(r io.Reader, w io.Writer, format string, radius, workers int) (*Result, error) {
	var res Result

	start := time.Now()
	img, err := imageio.Decode(r)
	if err != nil {
		return nil, err
	}
	current, err := img.Store()
	if err != nil {
		return nil, err
	}
	res.LoadTime = time.Since(start)

	start = time.Now()
	next, stats := softedge.ExtrapolateWithStats(current, softedge.Options{Radius: radius, Workers: workers})
	res.ProcessTime = time.Since(start)
	res.Stats = stats
	res.Width, res.Height = next.Extent()

	// Encode into a buffer first so a failed encode writes nothing to w.
	start = time.Now()
	var buf bytes.Buffer
	if err := imageio.Encode(&buf, format, next, img.Depth); err != nil {
		return nil, err
	}
	if _, err := buf.WriteTo(w); err != nil {
		return nil, err
	}
	res.WriteTime = time.Since(start)

	return &res, nil
}
