package orchestrator

import (
	"errors"
	"testing"

	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/preprocess"
)

func TestRemap(t *testing.T) {

	tests := []struct {
		name    string
		src     [2]int
		display Display
		det     detectstream.Rect
		want    DisplayBox
	}{
		{
			name:    "square source into square display",
			src:     [2]int{640, 640},
			display: Display{Width: 1280, Height: 1280},
			det:     detectstream.Rect{X: 0, Y: 0, Width: 64, Height: 32},
			want:    DisplayBox{CenterX: -576, CenterY: -608, Width: 128, Height: 64},
		},
		{
			name:    "wide source removes vertical padding",
			src:     [2]int{1920, 1080},
			display: Display{Width: 1920, Height: 1080},
			det:     detectstream.Rect{X: 300, Y: 300, Width: 40, Height: 40},
			want:    DisplayBox{CenterX: 0, CenterY: 0, Width: 120, Height: 120},
		},
		{
			name:    "tall source removes horizontal padding",
			src:     [2]int{480, 640},
			display: Display{Width: 480, Height: 640},
			det:     detectstream.Rect{X: 80, Y: 0, Width: 480, Height: 640},
			want:    DisplayBox{CenterX: 0, CenterY: 0, Width: 480, Height: 640},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			lb, err := preprocess.NewLetterbox(tc.src[0], tc.src[1], 640, 640)

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			boxes, err := remap(newSession(lb), []detectstream.Detection{
				{Label: "person", Score: 0.5, BoundingBox: tc.det},
			}, tc.display)

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got := boxes[0]

			if !near(got.CenterX, tc.want.CenterX) || !near(got.CenterY, tc.want.CenterY) ||
				!near(got.Width, tc.want.Width) || !near(got.Height, tc.want.Height) {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}

			if got.Label != "person" || got.Score != 0.5 {
				t.Errorf("label or score not carried over: %+v", got)
			}
		})
	}
}

func TestRemapInvalid(t *testing.T) {

	lb, _ := preprocess.NewLetterbox(640, 480, 640, 640)

	if _, err := remap(newSession(lb), nil, Display{}); !errors.Is(err, detectstream.ErrRemap) {
		t.Errorf("expected remap error for missing display, got %v", err)
	}

	// zero letterbox has no model input dimensions
	if _, err := remap(newSession(preprocess.Letterbox{}), nil, Display{Width: 10, Height: 10}); !errors.Is(err, detectstream.ErrRemap) {
		t.Errorf("expected remap error for invalid model input, got %v", err)
	}
}

func TestSummary(t *testing.T) {

	if s := Summary(nil); s != NoDetections {
		t.Errorf("expected %q, got %q", NoDetections, s)
	}

	dets := []detectstream.Detection{
		{Label: "car", Score: 0.55},
		{Label: "dog", Score: 0.875},
		{Label: "cat", Score: 0.875},
	}

	if s := Summary(dets); s != "dog 88%. 3 detected" {
		t.Errorf("unexpected summary %q", s)
	}
}

func TestStateStrings(t *testing.T) {

	if Ready.String() != "ready" || Disabled.String() != "disabled" {
		t.Error("unexpected state names")
	}

	if !SessionFailed.Terminal() || SessionInferring.Terminal() {
		t.Error("unexpected terminal states")
	}
}
