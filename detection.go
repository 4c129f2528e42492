package detectstream

import "fmt"

// Rect is an axis aligned rectangle defined by its top left corner and size
type Rect struct {
	X      float32
	Y      float32
	Width  float32
	Height float32
}

// Center returns the center point of the rectangle
func (r Rect) Center() (float32, float32) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Right returns the x coordinate of the right edge
func (r Rect) Right() float32 {
	return r.X + r.Width
}

// Bottom returns the y coordinate of the bottom edge
func (r Rect) Bottom() float32 {
	return r.Y + r.Height
}

// String returns a readable representation of the rectangle
func (r Rect) String() string {
	return fmt.Sprintf("(x:%.2f, y:%.2f, width:%.2f, height:%.2f)",
		r.X, r.Y, r.Width, r.Height)
}

// Detection is a single object recognised by a model.  Detections are values,
// they are produced by a model processor and only ever copied downstream.
type Detection struct {
	// Label is the class name the object was recognised as
	Label string
	// Score is the confidence score in the range [0,1]
	Score float32
	// BoundingBox is the object location in model input pixel coordinates
	BoundingBox Rect
}

// String returns a readable representation of the detection
func (d Detection) String() string {
	return fmt.Sprintf("%s (%.2f%%) at %s", d.Label, d.Score*100, d.BoundingBox)
}

// Best returns the highest scoring detection.  On equal scores the earliest
// detection wins.  The boolean is false when dets is empty.
func Best(dets []Detection) (Detection, bool) {

	if len(dets) == 0 {
		return Detection{}, false
	}

	best := dets[0]

	for _, d := range dets[1:] {
		if d.Score > best.Score {
			best = d
		}
	}

	return best, true
}
