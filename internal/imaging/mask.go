package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
)

// PointsToPixels converts a rectangle in PDF points (origin top-left) to
// pixels at dpi, rounding outward so the whole glyph area is covered.
func PointsToPixels(x1, y1, x2, y2 float64, dpi int) image.Rectangle {
	scale := float64(dpi) / 72.0
	return image.Rect(
		int(math.Floor(x1*scale)),
		int(math.Floor(y1*scale)),
		int(math.Ceil(x2*scale)),
		int(math.Ceil(y2*scale)),
	)
}

// Pad grows r by n pixels on every side.
func Pad(r image.Rectangle, n int) image.Rectangle {
	return image.Rect(r.Min.X-n, r.Min.Y-n, r.Max.X+n, r.Max.Y+n)
}

// Mask returns a copy of img with every rectangle filled solid with fill.
// Rectangles are clipped to the image; a rectangle entirely outside it is
// an error so that a misplaced redaction is never silently ignored.
func Mask(img image.Image, rects []image.Rectangle, fill color.Color) (*image.NRGBA, error) {
	bounds := img.Bounds()
	out := imaging.Clone(img)
	src := image.NewUniform(fill)
	for _, r := range rects {
		r = r.Canon()
		clipped := r.Add(bounds.Min).Intersect(bounds)
		if clipped.Empty() {
			return nil, fmt.Errorf("mask region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
				r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
		}
		draw.Draw(out, clipped.Sub(bounds.Min), src, image.Point{}, draw.Src)
	}
	return out, nil
}
