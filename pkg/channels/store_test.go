package channels

import (
	"errors"
	"testing"
)

func planes(w, h int, names ...string) map[string]*Plane {
	m := make(map[string]*Plane, len(names))
	for _, name := range names {
		m[name] = NewPlane(w, h)
	}
	return m
}

func TestNewStoreMissingChannel(t *testing.T) {
	tests := []struct {
		name    string
		names   []string
		missing string
	}{
		{"rgb only", []string{"R", "G", "B"}, "A"},
		{"gray", []string{"Y"}, "R"},
		{"no green", []string{"R", "B", "A"}, "G"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(tt.names, planes(2, 2, tt.names...))
			var mce *MissingChannelError
			if !errors.As(err, &mce) {
				t.Fatalf("NewStore error = %v, want *MissingChannelError", err)
			}
			if mce.Channel != tt.missing {
				t.Errorf("missing channel = %q, want %q", mce.Channel, tt.missing)
			}
		})
	}
}

func TestExtentIsMinimumAcrossRGBA(t *testing.T) {
	p := planes(4, 4, "R", "G", "B")
	p["A"] = NewPlane(3, 5)
	p["Z"] = NewPlane(1, 1)

	s, err := NewStore([]string{"R", "G", "B", "A", "Z"}, p)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	w, h := s.Extent()
	if w != 3 || h != 4 {
		t.Errorf("Extent() = (%d, %d), want (3, 4)", w, h)
	}
}

func TestGetSetAndClone(t *testing.T) {
	names := []string{"R", "G", "B", "A", "Z"}
	s, err := NewStore(names, planes(3, 2, names...))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	s.Set("G", 2, 1, 0.5)
	if got := s.Get("G", 2, 1); got != 0.5 {
		t.Fatalf("Get = %v, want 0.5", got)
	}

	c := s.Clone()
	c.Set("G", 2, 1, 0.25)
	if got := s.Get("G", 2, 1); got != 0.5 {
		t.Errorf("clone write leaked into source: %v", got)
	}
	if c.Plane("Z") != s.Plane("Z") {
		t.Errorf("extra channel should be shared, not copied")
	}
}

func TestWithPlanesKeepsOrderAndExtras(t *testing.T) {
	names := []string{"A", "B", "G", "R", "Z"}
	s, err := NewStore(names, planes(2, 2, names...))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	a := NewPlane(2, 2)
	out := s.WithPlanes(map[string]*Plane{"A": a})

	if out.Plane("A") != a {
		t.Errorf("A plane not replaced")
	}
	if out.Plane("Z") != s.Plane("Z") {
		t.Errorf("Z plane not carried over")
	}
	got := out.Names()
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("Names() = %v, want %v", got, names)
		}
	}
}
