package main

import (
	"bytes"
	"errors"
	"flag"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		radius  int
		workers int
		usage   bool
	}{
		{"default radius", []string{"in.png", "out.png"}, 1, 0, false},
		{"explicit radius", []string{"in.png", "out.png", "4"}, 4, 0, false},
		{"zero radius", []string{"in.png", "out.png", "0"}, 0, 0, false},
		{"flags", []string{"-workers", "3", "in.png", "out.png"}, 1, 3, false},
		{"too few", []string{"in.png"}, 0, 0, true},
		{"too many", []string{"a", "b", "1", "c"}, 0, 0, true},
		{"negative radius", []string{"in.png", "out.png", "-1"}, 0, 0, true},
		{"malformed radius", []string{"in.png", "out.png", "two"}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			opts, err := parseArgs(fs, tt.args)

			if tt.usage {
				var ue *UsageError
				if !errors.As(err, &ue) {
					t.Fatalf("err = %v, want *UsageError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseArgs: %v", err)
			}
			if opts.radius != tt.radius || opts.workers != tt.workers {
				t.Errorf("radius=%d workers=%d, want %d %d", opts.radius, opts.workers, tt.radius, tt.workers)
			}
		})
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestRunExitCodes(t *testing.T) {
	dir := t.TempDir()

	rgba := image.NewNRGBA(image.Rect(0, 0, 5, 5))
	rgba.SetNRGBA(2, 2, color.NRGBA{R: 200, A: 255})
	good := filepath.Join(dir, "good.png")
	writePNG(t, good, rgba)

	rgb := image.NewRGBA(image.Rect(0, 0, 5, 5))
	for i := range rgb.Pix {
		rgb.Pix[i] = 0xff
	}
	noAlpha := filepath.Join(dir, "rgb.png")
	writePNG(t, noAlpha, rgb)

	tests := []struct {
		name   string
		args   []string
		code   int
		output string
		stderr string
	}{
		{"success", []string{good, filepath.Join(dir, "out.png"), "2"}, 0, filepath.Join(dir, "out.png"), ""},
		{"usage", []string{good}, 1, "", "USAGE"},
		{"bad radius", []string{good, filepath.Join(dir, "x.png"), "abc"}, 1, "", "non-negative"},
		{"missing alpha", []string{noAlpha, filepath.Join(dir, "never.png")}, 1, "", "unexpected channel layout"},
		{"missing input", []string{filepath.Join(dir, "nope.png"), filepath.Join(dir, "y.png")}, 1, "", "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)
			if code != tt.code {
				t.Fatalf("exit code = %d, want %d (stderr %s)", code, tt.code, stderr.String())
			}
			if tt.stderr != "" && !strings.Contains(stderr.String(), tt.stderr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr.String(), tt.stderr)
			}
			if tt.output != "" {
				if _, err := os.Stat(tt.output); err != nil {
					t.Errorf("output missing: %v", err)
				}
				if !strings.Contains(stdout.String(), "100%") {
					t.Errorf("stdout = %q, want progress", stdout.String())
				}
			}
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "never.png")); !os.IsNotExist(err) {
		t.Error("output written for image without alpha")
	}
}
