package kernel

import "image"

// Build returns every coordinate within Chebyshev distance radius of (x, y)
// that lies inside a width x height image, the center included.
func Build(x, y, width, height, radius int) []image.Point {
	return AppendTo(nil, x, y, width, height, radius)
}

// AppendTo is Build writing into dst[:0], so a caller can reuse one buffer
// across pixels.
func AppendTo(dst []image.Point, x, y, width, height, radius int) []image.Point {
	dst = dst[:0]
	for hOffset := -radius; hOffset <= radius; hOffset++ {
		for vOffset := -radius; vOffset <= radius; vOffset++ {
			if InBounds(x+hOffset, y+vOffset, width, height) {
				dst = append(dst, image.Point{X: x + hOffset, Y: y + vOffset})
			}
		}
	}
	return dst
}

func InBounds(x, y, width, height int) bool {
	return x >= 0 && x < width && y >= 0 && y < height
}

// Area is the unclipped kernel size, (2r+1)^2.
func Area(radius int) int {
	side := 2*radius + 1
	return side * side
}
