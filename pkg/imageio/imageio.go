// Package imageio reads images into named float32 channel planes and writes
// them back.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-softedge/pkg/channels"
)

var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrUnencodableChannel = errors.New("channel cannot be encoded")
)

// Error is returned for any decode or encode failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Image is a decoded image split into one plane per channel.
type Image struct {
	Format string
	Names  []string
	Planes map[string]*channels.Plane
	// Depth is the bits per sample of the source, 8 or 16.
	Depth int
}

// Store validates the channel layout and returns the planes as a store.
func (img *Image) Store() (*channels.Store, error) {
	return channels.NewStore(img.Names, img.Planes)
}

func Load(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Op: "open", Path: path, Err: err}
	}
	defer file.Close()

	img, err := Decode(file)
	if err != nil {
		var ioErr *Error
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return nil, err
	}
	return img, nil
}

func Decode(r io.Reader) (*Image, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}

	names := Channels(src, format)
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	planes := make(map[string]*channels.Plane, len(names))
	for _, name := range names {
		planes[name] = channels.NewPlane(width, height)
	}

	if len(names) == 1 {
		y := planes[names[0]]
		for py := 0; py < height; py++ {
			for px := 0; px < width; px++ {
				c := color.Gray16Model.Convert(src.At(bounds.Min.X+px, bounds.Min.Y+py)).(color.Gray16)
				y.SetAt(px, py, unit(c.Y))
			}
		}
	} else {
		r, g, b, a := planes["R"], planes["G"], planes["B"], planes["A"]
		for py := 0; py < height; py++ {
			for px := 0; px < width; px++ {
				c := straight(src.At(bounds.Min.X+px, bounds.Min.Y+py))
				r.SetAt(px, py, unit(c.R))
				g.SetAt(px, py, unit(c.G))
				b.SetAt(px, py, unit(c.B))
				if a != nil {
					a.SetAt(px, py, unit(c.A))
				}
			}
		}
	}

	return &Image{
		Format: format,
		Names:  names,
		Planes: planes,
		Depth:  depth(src),
	}, nil
}

// straight returns c with non-premultiplied color. Colors that already
// store straight alpha are widened directly; converting them through
// RGBA() would zero the color of transparent pixels.
func straight(c color.Color) color.NRGBA64 {
	switch v := c.(type) {
	case color.NRGBA:
		return color.NRGBA64{
			R: uint16(v.R) * 0x101,
			G: uint16(v.G) * 0x101,
			B: uint16(v.B) * 0x101,
			A: uint16(v.A) * 0x101,
		}
	case color.NRGBA64:
		return v
	case color.NYCbCrA:
		r, g, b, _ := v.YCbCr.RGBA()
		return color.NRGBA64{R: uint16(r), G: uint16(g), B: uint16(b), A: uint16(v.A) * 0x101}
	}
	return color.NRGBA64Model.Convert(c).(color.NRGBA64)
}

// Channels reports the channel layout of a decoded image. Premultiplied
// RGBA types only carry a real alpha channel when they come from TIFF with
// associated alpha; the PNG and BMP decoders use them for opaque images.
func Channels(img image.Image, format string) []string {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return []string{"Y"}
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA:
		return []string{"R", "G", "B", "A"}
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return []string{"R", "G", "B", "A"}
			}
		}
		return []string{"R", "G", "B"}
	case *image.RGBA, *image.RGBA64:
		if format == "tiff" {
			return []string{"R", "G", "B", "A"}
		}
		return []string{"R", "G", "B"}
	}
	return []string{"R", "G", "B"}
}

func depth(img image.Image) int {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return 16
	}
	return 8
}

// FormatFromPath maps a file extension to an encoder name.
func FormatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "png", nil
	case ".tif", ".tiff":
		return "tiff", nil
	case ".bmp":
		return "bmp", nil
	case ".jpg", ".jpeg":
		return "jpeg", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Write encodes the store to path, choosing the format from the extension.
// A partially written file is removed.
func Write(path string, s *channels.Store, depth int) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return &Error{Op: "encode", Path: path, Err: err}
	}

	file, err := os.Create(path)
	if err != nil {
		return &Error{Op: "create", Path: path, Err: err}
	}

	if err := Encode(file, format, s, depth); err != nil {
		file.Close()
		os.Remove(path)
		var ioErr *Error
		if errors.As(err, &ioErr) {
			ioErr.Path = path
		}
		return err
	}

	if err := file.Close(); err != nil {
		os.Remove(path)
		return &Error{Op: "close", Path: path, Err: err}
	}
	return nil
}

// Encode writes the store as format. Only R, G, B and A can be encoded; a
// store carrying any other channel is rejected before anything is written.
func Encode(w io.Writer, format string, s *channels.Store, depth int) error {
	for _, name := range s.Names() {
		switch name {
		case "R", "G", "B", "A":
		default:
			return &Error{Op: "encode", Err: fmt.Errorf("%w: %q", ErrUnencodableChannel, name)}
		}
	}

	img := compose(s, depth)

	var err error
	switch format {
	case "png":
		err = (&png.Encoder{CompressionLevel: png.DefaultCompression}).Encode(w, img)
	case "tiff":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case "bmp":
		err = bmp.Encode(w, img)
	case "jpeg":
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return &Error{Op: "encode", Err: err}
	}
	return nil
}

// compose interleaves the R, G, B and A planes into a straight-alpha image.
// Encode has already rejected stores with other channels.
func compose(s *channels.Store, depth int) image.Image {
	width, height := s.Extent()
	r, g, b, a := s.Plane("R"), s.Plane("G"), s.Plane("B"), s.Plane("A")
	rect := image.Rect(0, 0, width, height)

	if depth == 16 {
		out := image.NewNRGBA64(rect)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				out.SetNRGBA64(x, y, color.NRGBA64{
					R: sample16(r.At(x, y)),
					G: sample16(g.At(x, y)),
					B: sample16(b.At(x, y)),
					A: sample16(a.At(x, y)),
				})
			}
		}
		return out
	}

	out := image.NewNRGBA(rect)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			out.SetNRGBA(x, y, color.NRGBA{
				R: sample8(r.At(x, y)),
				G: sample8(g.At(x, y)),
				B: sample8(b.At(x, y)),
				A: sample8(a.At(x, y)),
			})
		}
	}
	return out
}

func unit(v uint16) float32 {
	return float32(v) / 0xffff
}

func clamp(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sample16(v float32) uint16 {
	return uint16(clamp(v)*0xffff + 0.5)
}

func sample8(v float32) uint8 {
	return uint8(clamp(v)*0xff + 0.5)
}
