package channels

import "fmt"

// Required lists the channels the extrapolator reads and writes.
var Required = []string{"R", "G", "B", "A"}

// MissingChannelError reports an image whose channel set lacks one of R, G, B, A.
type MissingChannelError struct {
	Channel string
	Have    []string
}

func (e *MissingChannelError) Error() string {
	return fmt.Sprintf("unexpected channel layout: missing channel %q (have %v)", e.Channel, e.Have)
}

// Plane is a single channel of float32 samples stored row-major.
type Plane struct {
	Width  int
	Height int
	Pix    []float32
}

func NewPlane(width, height int) *Plane {
	return &Plane{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height),
	}
}

func (p *Plane) At(x, y int) float32 {
	return p.Pix[y*p.Width+x]
}

func (p *Plane) SetAt(x, y int, v float32) {
	p.Pix[y*p.Width+x] = v
}

func (p *Plane) Clone() *Plane {
	pix := make([]float32, len(p.Pix))
	copy(pix, p.Pix)
	return &Plane{Width: p.Width, Height: p.Height, Pix: pix}
}

// Store maps channel names to planes. Channel order follows the source image
// so an encoder can write channels back in the order they were read.
type Store struct {
	names  []string
	planes map[string]*Plane
	width  int
	height int
}

// NewStore builds a store from ordered channel names and their planes. It fails
// with *MissingChannelError if any of R, G, B, A is absent.
func NewStore(names []string, planes map[string]*Plane) (*Store, error) {
	for _, name := range Required {
		if _, ok := planes[name]; !ok {
			return nil, &MissingChannelError{Channel: name, Have: append([]string(nil), names...)}
		}
	}

	s := &Store{
		names:  append([]string(nil), names...),
		planes: make(map[string]*Plane, len(planes)),
	}
	for name, p := range planes {
		s.planes[name] = p
	}

	s.width = s.planes["A"].Width
	s.height = s.planes["A"].Height
	for _, name := range Required {
		s.width = min(s.width, s.planes[name].Width)
		s.height = min(s.height, s.planes[name].Height)
	}

	return s, nil
}

// Extent returns the working width and height shared by R, G, B and A.
func (s *Store) Extent() (int, int) {
	return s.width, s.height
}

func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Plane returns the named plane or nil.
func (s *Store) Plane(name string) *Plane {
	return s.planes[name]
}

// Get reads one sample. Out-of-range coordinates panic.
func (s *Store) Get(channel string, x, y int) float32 {
	return s.planes[channel].At(x, y)
}

func (s *Store) Set(channel string, x, y int, v float32) {
	s.planes[channel].SetAt(x, y, v)
}

// Clone deep-copies R, G, B and A. Other channels are shared.
func (s *Store) Clone() *Store {
	c := s.shallow()
	for _, name := range Required {
		c.planes[name] = s.planes[name].Clone()
	}
	return c
}

// WithPlanes returns a store that uses the given planes in place of the
// current ones. Channels not named in replaced are carried over unchanged.
func (s *Store) WithPlanes(replaced map[string]*Plane) *Store {
	c := s.shallow()
	for name, p := range replaced {
		if _, ok := c.planes[name]; !ok {
			c.names = append(c.names, name)
		}
		c.planes[name] = p
	}
	return c
}

func (s *Store) shallow() *Store {
	c := &Store{
		names:  append([]string(nil), s.names...),
		planes: make(map[string]*Plane, len(s.planes)),
		width:  s.width,
		height: s.height,
	}
	for name, p := range s.planes {
		c.planes[name] = p
	}
	return c
}
