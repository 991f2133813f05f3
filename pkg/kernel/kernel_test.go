package kernel

import (
	"image"
	"testing"
)

func TestBuildSizes(t *testing.T) {
	tests := []struct {
		name          string
		x, y          int
		width, height int
		radius        int
		want          int
	}{
		{"interior r1", 5, 5, 10, 10, 1, 9},
		{"interior r2", 5, 5, 10, 10, 2, 25},
		{"corner r1", 0, 0, 10, 10, 1, 4},
		{"corner r3", 0, 0, 10, 10, 3, 16},
		{"far corner r2", 9, 9, 10, 10, 2, 9},
		{"edge r1", 0, 5, 10, 10, 1, 6},
		{"radius zero", 3, 3, 10, 10, 0, 1},
		{"single pixel image", 0, 0, 1, 1, 4, 1},
		{"radius larger than image", 1, 0, 3, 2, 10, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := Build(tt.x, tt.y, tt.width, tt.height, tt.radius)
			if len(k) != tt.want {
				t.Errorf("len(Build) = %d, want %d", len(k), tt.want)
			}
			for _, c := range k {
				if !InBounds(c.X, c.Y, tt.width, tt.height) {
					t.Errorf("coordinate %v out of bounds", c)
				}
				dx, dy := c.X-tt.x, c.Y-tt.y
				if dx < -tt.radius || dx > tt.radius || dy < -tt.radius || dy > tt.radius {
					t.Errorf("coordinate %v outside radius %d", c, tt.radius)
				}
			}
		})
	}
}

func TestBuildIncludesCenter(t *testing.T) {
	k := Build(2, 1, 4, 4, 1)
	for _, c := range k {
		if c == (image.Point{X: 2, Y: 1}) {
			return
		}
	}
	t.Errorf("kernel %v does not contain center", k)
}

func TestAppendToClearsBuffer(t *testing.T) {
	buf := Build(5, 5, 10, 10, 2)
	buf = AppendTo(buf, 0, 0, 10, 10, 1)
	if len(buf) != 4 {
		t.Fatalf("len = %d, want 4", len(buf))
	}
	want := Build(0, 0, 10, 10, 1)
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("buf[%d] = %v, want %v", i, buf[i], want[i])
		}
	}
}

func TestArea(t *testing.T) {
	for r, want := range []int{1, 9, 25, 49} {
		if got := Area(r); got != want {
			t.Errorf("Area(%d) = %d, want %d", r, got, want)
		}
	}
}
