package orchestrator

import (
	"fmt"

	"github.com/swdee/go-detectstream"
)

// DisplayBox is a detection in display space.  The centre is relative to
// the centre of the display viewport with x to the right and y down, the
// renderer decides whether to invert y.
type DisplayBox struct {
	CenterX float32
	CenterY float32
	Width   float32
	Height  float32
	Label   string
	Score   float32
}

// Display is the viewport detections are remapped to
type Display struct {
	Width  int
	Height int
}

// remap converts detections in model input pixels to display boxes.  The
// letterbox padding of the session is removed before scaling each axis to
// the display, so a box covers the same part of the picture on screen as
// it did in the source frame.
func remap(s *Session, dets []detectstream.Detection, d Display) ([]DisplayBox, error) {

	if d.Width <= 0 || d.Height <= 0 {
		return nil, detectstream.RemapError(nil,
			fmt.Sprintf("invalid display size %dx%d", d.Width, d.Height))
	}

	lb := s.Letterbox

	if lb.DstWidth() <= 0 || lb.DstHeight() <= 0 {
		return nil, detectstream.RemapError(nil,
			fmt.Sprintf("invalid model input size %dx%d", lb.DstWidth(), lb.DstHeight()))
	}

	halfW := float64(d.Width) / 2
	halfH := float64(d.Height) / 2

	boxes := make([]DisplayBox, len(dets))

	for i, det := range dets {

		cx, cy := det.BoundingBox.Center()
		vx, vy := lb.ToView(float64(cx), float64(cy), d.Width, d.Height)
		vw, vh := lb.SizeToView(float64(det.BoundingBox.Width),
			float64(det.BoundingBox.Height), d.Width, d.Height)

		boxes[i] = DisplayBox{
			CenterX: float32(vx - halfW),
			CenterY: float32(vy - halfH),
			Width:   float32(vw),
			Height:  float32(vh),
			Label:   det.Label,
			Score:   det.Score,
		}
	}

	return boxes, nil
}

// Summary describes a detection result for display, the best detection's
// label and score with the number of detections, or "no detections"
func Summary(dets []detectstream.Detection) string {

	best, ok := detectstream.Best(dets)

	if !ok {
		return NoDetections
	}

	return fmt.Sprintf("%s %.0f%%. %d detected", best.Label, best.Score*100, len(dets))
}

// NoDetections is the summary of an empty result
const NoDetections = "no detections"
