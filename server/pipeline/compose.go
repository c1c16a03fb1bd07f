package pipeline

import (
	"github.com/bmharper/cimg/v2"
)

// Compose places two images side by side on a black canvas. The canvas is
// as wide as the two images together, and as tall as the taller of the two.
// The shorter image leaves black padding below it.
func Compose(left, right *cimg.Image) (*cimg.Image, error) {
	if left.NChan() != 3 {
		left = left.ToRGB()
	}
	if right.NChan() != 3 {
		right = right.ToRGB()
	}
	height := left.Height
	if right.Height > height {
		height = right.Height
	}
	dst := cimg.NewImage(left.Width+right.Width, height, cimg.PixelFormatRGB)
	dst.CopyImageRect(left, 0, 0, left.Width, left.Height, 0, 0)
	dst.CopyImageRect(right, 0, 0, right.Width, right.Height, left.Width, 0)
	return dst, nil
}
