package source

import (
	"image"
	"os"
	"time"

	// register decoders for the still image formats
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Still is a source that supplies a single image as frame 1
type Still struct {
	*Slot
}

// NewStill returns a source holding img
func NewStill(img image.Image) *Still {
	s := &Still{Slot: NewSlot()}
	s.Publish(img, time.Now())
	return s
}

// OpenStill decodes an image file (jpeg, png, bmp or webp) into a Still
// source
func OpenStill(file string) (*Still, error) {

	f, err := os.Open(file)

	if err != nil {
		return nil, errors.Wrap(err, "error opening image")
	}

	defer f.Close()

	img, _, err := image.Decode(f)

	if err != nil {
		return nil, errors.Wrapf(err, "error decoding image %s", file)
	}

	return NewStill(img), nil
}
