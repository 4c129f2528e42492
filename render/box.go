// Package render draws detection results onto OpenCV images.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/swdee/go-detectstream/orchestrator"
	"gocv.io/x/gocv"
)

// boxLabel is a label laid out above a box, drawn after all boxes
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// BoxRect converts a display box, whose centre is relative to the centre
// of a width x height viewport, to pixel coordinates with the origin top
// left.  When yUp is set the box centre has y increasing upwards.
func BoxRect(b orchestrator.DisplayBox, width, height int, yUp bool) image.Rectangle {

	cx := float64(b.CenterX) + float64(width)/2
	cy := float64(b.CenterY)

	if yUp {
		cy = -cy
	}

	cy += float64(height) / 2

	hw := float64(b.Width) / 2
	hh := float64(b.Height) / 2

	return image.Rect(
		int(math.Round(cx-hw)), int(math.Round(cy-hh)),
		int(math.Round(cx+hw)), int(math.Round(cy+hh)),
	)
}

// DisplayBoxes renders display space boxes and their labels onto img, which
// is the viewport the boxes were remapped to
func DisplayBoxes(img *gocv.Mat, boxes []orchestrator.DisplayBox, font Font,
	lineThickness int) {

	boxLabels := make([]boxLabel, 0, len(boxes))

	for _, b := range boxes {

		useClr := LabelColor(b.Label)

		rect := BoxRect(b, img.Cols(), img.Rows(), false)
		gocv.Rectangle(img, rect, useClr, lineThickness)

		text := fmt.Sprintf("%s %.2f", b.Label, b.Score)
		boxLabels = append(boxLabels, layoutLabel(rect, text, useClr, font, lineThickness))
	}

	// labels go on top so later boxes do not cover them
	for _, l := range boxLabels {
		gocv.Rectangle(img, l.rect, l.clr, -1)

		gocv.PutTextWithParams(img, l.text, l.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// layoutLabel positions the label text and its background above rect
func layoutLabel(rect image.Rectangle, text string, clr color.RGBA, font Font,
	lineThickness int) boxLabel {

	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (rect.Min.X + rect.Max.X) / 2

	case Right:
		centerX = rect.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = rect.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	return boxLabel{
		rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
			rect.Min.Y-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, rect.Min.Y),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-textSize.X/2, rect.Min.Y-font.BottomPad),
	}
}

// Summary writes the result summary in the top left corner of img
func Summary(img *gocv.Mat, text string, font Font) {

	textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

	bg := image.Rect(0, 0, textSize.X+font.LeftPad+font.RightPad,
		textSize.Y+font.TopPad+font.BottomPad)
	gocv.Rectangle(img, bg, Black, -1)

	gocv.PutTextWithParams(img, text, image.Pt(font.LeftPad, textSize.Y+font.TopPad),
		font.Face, font.Scale, font.Color, font.Thickness, font.LineType, false)
}

// Event draws an orchestrator event, its boxes and summary, onto img
func Event(img *gocv.Mat, ev orchestrator.Event, font Font) {
	DisplayBoxes(img, ev.Boxes, font, 2)
	Summary(img, ev.Summary, SummaryFont())
}
