package preprocess

import (
	"image"
	"math"

	"github.com/pkg/errors"
)

// Letterbox defines the aspect preserving transform that places a source
// image, uncropped and centered, inside a fixed size model input.  Scale and
// offset are fractions of the target dimensions, exactly one axis is scaled
// down and padded (the letterboxed axis) unless the aspects match.
type Letterbox struct {
	// ScaleX and ScaleY are the fractions of the target width and height
	// occupied by the source image, both within (0,1]
	ScaleX float64
	ScaleY float64
	// OffsetX and OffsetY are the fractions of the target width and height
	// used as padding before the source image, both within [0,0.5]
	OffsetX float64
	OffsetY float64
	// source and target dimensions the transform was derived from
	srcWidth  int
	srcHeight int
	dstWidth  int
	dstHeight int
}

// NewLetterbox computes the letterbox transform to map a source image of
// srcWidth x srcHeight into a target of dstWidth x dstHeight.  All dimensions
// must be positive.
func NewLetterbox(srcWidth, srcHeight, dstWidth, dstHeight int) (Letterbox, error) {

	if srcWidth <= 0 || srcHeight <= 0 || dstWidth <= 0 || dstHeight <= 0 {
		return Letterbox{}, errors.Errorf("letterbox dimensions must be positive, got source %dx%d target %dx%d",
			srcWidth, srcHeight, dstWidth, dstHeight)
	}

	l := Letterbox{
		ScaleX:    1,
		ScaleY:    1,
		srcWidth:  srcWidth,
		srcHeight: srcHeight,
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
	}

	srcAspect := float64(srcWidth) / float64(srcHeight)
	dstAspect := float64(dstWidth) / float64(dstHeight)

	if srcAspect > dstAspect {
		// source is wider, shrink vertically and pad top and bottom
		l.ScaleY = dstAspect / srcAspect
		l.OffsetY = (1 - l.ScaleY) / 2
	} else {
		l.ScaleX = srcAspect / dstAspect
		l.OffsetX = (1 - l.ScaleX) / 2
	}

	return l, nil
}

// SrcWidth returns the width of the source image
func (l Letterbox) SrcWidth() int {
	return l.srcWidth
}

// SrcHeight returns the height of the source image
func (l Letterbox) SrcHeight() int {
	return l.srcHeight
}

// DstWidth returns the width of the target
func (l Letterbox) DstWidth() int {
	return l.dstWidth
}

// DstHeight returns the height of the target
func (l Letterbox) DstHeight() int {
	return l.dstHeight
}

// ContentRect returns the region of the target covered by the source image,
// the remainder of the target is padding
func (l Letterbox) ContentRect() image.Rectangle {

	x0 := int(math.Round(l.OffsetX * float64(l.dstWidth)))
	y0 := int(math.Round(l.OffsetY * float64(l.dstHeight)))
	x1 := int(math.Round((l.OffsetX + l.ScaleX) * float64(l.dstWidth)))
	y1 := int(math.Round((l.OffsetY + l.ScaleY) * float64(l.dstHeight)))

	return image.Rect(x0, y0, x1, y1)
}

// ToTarget maps a point in source pixel coordinates to target pixel
// coordinates
func (l Letterbox) ToTarget(x, y float64) (float64, float64) {

	tx := (x/float64(l.srcWidth)*l.ScaleX + l.OffsetX) * float64(l.dstWidth)
	ty := (y/float64(l.srcHeight)*l.ScaleY + l.OffsetY) * float64(l.dstHeight)

	return tx, ty
}

// ToSource maps a point in target pixel coordinates back to source pixel
// coordinates
func (l Letterbox) ToSource(mx, my float64) (float64, float64) {
	return l.ToView(mx, my, l.srcWidth, l.srcHeight)
}

// ToView maps a point in target pixel coordinates into a view of
// viewWidth x viewHeight showing the whole source image.  The letterbox
// padding is removed first, then the remaining content is scaled to the view.
func (l Letterbox) ToView(mx, my float64, viewWidth, viewHeight int) (float64, float64) {

	nx := (mx/float64(l.dstWidth) - l.OffsetX) / l.ScaleX
	ny := (my/float64(l.dstHeight) - l.OffsetY) / l.ScaleY

	return nx * float64(viewWidth), ny * float64(viewHeight)
}

// SizeToView maps a width and height in target pixels to the size they cover
// in a view of viewWidth x viewHeight
func (l Letterbox) SizeToView(w, h float64, viewWidth, viewHeight int) (float64, float64) {

	vw := w / float64(l.dstWidth) / l.ScaleX * float64(viewWidth)
	vh := h / float64(l.dstHeight) / l.ScaleY * float64(viewHeight)

	return vw, vh
}
