package preprocess

import (
	"image"

	"gorgonia.org/tensor"
)

// ToTensor converts an RGBA image into a normalized float32 tensor of shape
// (1, 3, height, width), channel first in RGB order with values in [0,1]
func ToTensor(img *image.RGBA) *tensor.Dense {

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {

		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):]

		for x := 0; x < w; x++ {
			p := row[x*4:]
			i := y*w + x

			data[i] = float32(p[0]) / 255
			data[plane+i] = float32(p[1]) / 255
			data[2*plane+i] = float32(p[2]) / 255
		}
	}

	return tensor.New(tensor.WithShape(1, 3, h, w), tensor.WithBacking(data))
}
