// Package softedge extrapolates color into the transparent border of an
// image so that resampling or compositing does not pull in black from
// fully transparent pixels.
//
// One pass visits every pixel. Pixels that are not fully opaque get the mean
// alpha of their kernel. Pixels that had zero alpha additionally get the
// mean color of the kernel pixels that carry some alpha. Every pixel reads
// the state before the pass and writes into a separate buffer, so the result
// does not depend on the order pixels are visited in.
package softedge

import (
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"go-softedge/pkg/channels"
	"go-softedge/pkg/kernel"
)

const DefaultRadius = 1

type Options struct {
	// Radius is the Chebyshev radius of the kernel. Negative values are treated as 0.
	Radius int
	// Workers is the number of row bands processed concurrently; <= 0 uses NumCPU.
	Workers int
	// Progress receives 0, 10, ..., 100 from the calling goroutine.
	Progress func(percent int)
}

// Stats counts what one pass changed.
type Stats struct {
	Pixels            int64
	AlphaUpdated      int64
	ColorExtrapolated int64
}

type outcome int

const (
	untouched outcome = iota
	alphaUpdated
	colorExtrapolated
)

// pass holds the read-only planes of the current state and the planes of
// the next state. Workers write disjoint rows of next.
type pass struct {
	r, g, b, a     *channels.Plane
	nr, ng, nb, na *channels.Plane
	width, height  int
	radius         int
}

type scratch struct {
	kernel   []image.Point
	relevant []image.Point
}

type counters struct {
	pixels            atomic.Int64
	alphaUpdated      atomic.Int64
	colorExtrapolated atomic.Int64
}

func newPass(current *channels.Store, radius int) *pass {
	if radius < 0 {
		radius = 0
	}
	width, height := current.Extent()
	next := current.Clone()

	return &pass{
		r:      current.Plane("R"),
		g:      current.Plane("G"),
		b:      current.Plane("B"),
		a:      current.Plane("A"),
		nr:     next.Plane("R"),
		ng:     next.Plane("G"),
		nb:     next.Plane("B"),
		na:     next.Plane("A"),
		width:  width,
		height: height,
		radius: radius,
	}
}

// Extrapolate runs one pass over current and returns a store whose R, G, B
// and A planes hold the result. current is not modified and any other
// channels are carried over as they are.
func Extrapolate(current *channels.Store, opts Options) *channels.Store {
	out, _ := ExtrapolateWithStats(current, opts)
	return out
}

func ExtrapolateWithStats(current *channels.Store, opts Options) (*channels.Store, Stats) {
	p := newPass(current, opts.Radius)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > p.height {
		workers = p.height
	}

	progress := newProgressReporter(p.height, opts.Progress)
	progress.start()

	var c counters
	rowsDone := make(chan int, workers+1)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		y0 := i * p.height / workers
		y1 := (i + 1) * p.height / workers

		wg.Add(1)
		go func() {
			defer wg.Done()
			p.rows(y0, y1, &scratch{}, &c, rowsDone)
		}()
	}

	go func() {
		wg.Wait()
		close(rowsDone)
	}()

	for n := range rowsDone {
		progress.add(n)
	}
	progress.finish()

	out := current.WithPlanes(map[string]*channels.Plane{
		"R": p.nr,
		"G": p.ng,
		"B": p.nb,
		"A": p.na,
	})

	return out, Stats{
		Pixels:            c.pixels.Load(),
		AlphaUpdated:      c.alphaUpdated.Load(),
		ColorExtrapolated: c.colorExtrapolated.Load(),
	}
}

// rows processes the band [y0, y1) and reports each finished row on done.
func (p *pass) rows(y0, y1 int, s *scratch, c *counters, done chan<- int) {
	var pixels, alpha, color int64

	for y := y0; y < y1; y++ {
		for x := 0; x < p.width; x++ {
			switch p.pixel(x, y, s) {
			case alphaUpdated:
				alpha++
			case colorExtrapolated:
				alpha++
				color++
			}
		}
		pixels += int64(p.width)
		done <- 1
	}

	c.pixels.Add(pixels)
	c.alphaUpdated.Add(alpha)
	c.colorExtrapolated.Add(color)
}

// pixel recomputes (x, y). It reads only the current planes and writes only
// the next planes.
func (p *pass) pixel(x, y int, s *scratch) outcome {
	s.kernel = kernel.AppendTo(s.kernel, x, y, p.width, p.height, p.radius)
	if len(s.kernel) == 0 {
		return untouched
	}

	alphaOld := p.a.At(x, y)
	if alphaOld >= 1 {
		return untouched
	}

	var alphaSum float32
	s.relevant = s.relevant[:0]
	for _, c := range s.kernel {
		alpha := p.a.At(c.X, c.Y)
		alphaSum += alpha
		if alpha > 0 {
			s.relevant = append(s.relevant, c)
		}
	}

	alphaNew := alphaSum / float32(len(s.kernel))
	if alphaNew == alphaOld {
		return untouched
	}
	p.na.SetAt(x, y, alphaNew)

	// Color is only invented where there was none.
	if alphaOld > 0 {
		return alphaUpdated
	}
	if len(s.relevant) == 0 {
		return alphaUpdated
	}

	var sumR, sumG, sumB float32
	for _, c := range s.relevant {
		sumR += p.r.At(c.X, c.Y)
		sumG += p.g.At(c.X, c.Y)
		sumB += p.b.At(c.X, c.Y)
	}

	n := float32(len(s.relevant))
	p.nr.SetAt(x, y, sumR/n)
	p.ng.SetAt(x, y, sumG/n)
	p.nb.SetAt(x, y, sumB/n)

	return colorExtrapolated
}
