package preprocess

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// PadColor is the neutral grey used to fill letterbox padding, matching the
// value YOLO models are trained with
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 255}

// Blit resamples src into dst using the letterbox transform l.  The padded
// regions of dst are filled with pad.  dst must match the transform target
// dimensions.
func Blit(dst *image.RGBA, src image.Image, l Letterbox, pad color.Color) error {

	if dst == nil || src == nil {
		return errors.New("blit requires source and destination images")
	}

	b := dst.Bounds()

	if b.Dx() != l.DstWidth() || b.Dy() != l.DstHeight() {
		return errors.Errorf("destination %dx%d does not match letterbox target %dx%d",
			b.Dx(), b.Dy(), l.DstWidth(), l.DstHeight())
	}

	// fill padding first, then draw the content region over it
	draw.Draw(dst, b, image.NewUniform(pad), image.Point{}, draw.Src)

	content := l.ContentRect().Add(b.Min)
	draw.ApproxBiLinear.Scale(dst, content, src, src.Bounds(), draw.Src, nil)

	return nil
}
