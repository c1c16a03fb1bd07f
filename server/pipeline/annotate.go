package pipeline

import (
	"image"
	"image/color"
	"sort"

	"github.com/bmharper/cimg/v2"
	"github.com/fillsight/fillsight/pkg/nn"
	"github.com/fogleman/gg"
)

// Marker colors per label. The dot in the top-left corner of the box makes
// the two kinds distinguishable on a monochrome print.
var labelColors = map[string]struct {
	Box color.Color
	Dot color.Color
}{
	LabelVial: {Box: color.White, Dot: color.Black},
	LabelPFS:  {Box: color.Black, Dot: color.White},
}

const boxLineWidth = 2
const cornerDotSize = 5

// Detections are drawn (and numbered by the eye) top-left to bottom-right
func sortDetections(objects []nn.ObjectDetection) {
	sort.Slice(objects, func(i, j int) bool {
		a, b := objects[i].Box, objects[j].Box
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
}

// annotate returns a copy of the image with a box drawn around every
// detection whose class has a label. Unlabeled classes are not drawn.
func annotate(src *cimg.Image, objects []nn.ObjectDetection, classLabels map[int]string) *cimg.Image {
	rgba := toRGBA(src)
	dc := gg.NewContextForRGBA(rgba)
	for _, obj := range objects {
		colors, known := labelColors[classLabels[obj.Class]]
		if !known {
			continue
		}
		x := float64(obj.Box.X)
		y := float64(obj.Box.Y)
		dc.SetColor(colors.Box)
		dc.SetLineWidth(boxLineWidth)
		dc.DrawRectangle(x, y, float64(obj.Box.Width), float64(obj.Box.Height))
		dc.Stroke()
		dc.SetColor(colors.Dot)
		dc.DrawRectangle(x, y, cornerDotSize, cornerDotSize)
		dc.Fill()
	}
	return fromRGBA(rgba)
}

func toRGBA(src *cimg.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	nchan := src.NChan()
	for y := 0; y < src.Height; y++ {
		srcRow := src.Pixels[y*src.Stride:]
		dstRow := dst.Pix[y*dst.Stride:]
		for x := 0; x < src.Width; x++ {
			dstRow[x*4] = srcRow[x*nchan]
			dstRow[x*4+1] = srcRow[x*nchan+1]
			dstRow[x*4+2] = srcRow[x*nchan+2]
			dstRow[x*4+3] = 255
		}
	}
	return dst
}

func fromRGBA(src *image.RGBA) *cimg.Image {
	width := src.Rect.Dx()
	height := src.Rect.Dy()
	dst := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	for y := 0; y < height; y++ {
		srcRow := src.Pix[y*src.Stride:]
		dstRow := dst.Pixels[y*dst.Stride:]
		for x := 0; x < width; x++ {
			dstRow[x*3] = srcRow[x*4]
			dstRow[x*3+1] = srcRow[x*4+1]
			dstRow[x*3+2] = srcRow[x*4+2]
		}
	}
	return dst
}
