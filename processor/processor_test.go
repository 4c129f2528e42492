package processor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/backend"
	"github.com/swdee/go-detectstream/postprocess"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorgonia.org/tensor"
)

var testLabels = []string{"person", "car"}

// mockOpener returns an opener that always hands out mock
func mockOpener(mock *backend.Mock) backend.OpenFunc {
	return func(kind backend.Kind, modelFile string, opts backend.Options) (backend.Backend, error) {
		return mock, nil
	}
}

// yoloRaw builds a (1, 4+classes, anchors) output from per anchor rows
func yoloRaw(rows [][]float32) *tensor.Dense {

	anchors := len(rows)
	channels := len(rows[0])
	data := make([]float32, channels*anchors)

	for a, row := range rows {
		for c, v := range row {
			data[c*anchors+a] = v
		}
	}

	return tensor.New(tensor.WithShape(1, channels, anchors), tensor.WithBacking(data))
}

func frame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{255, 0, 0, 255}), image.Point{}, draw.Src)
	return img
}

func receive(t *testing.T, ch <-chan []detectstream.Detection) []detectstream.Detection {

	t.Helper()

	select {
	case dets := <-ch:
		return dets
	case <-time.After(2 * time.Second):
		t.Fatal("process did not complete")
	}

	return nil
}

func TestYOLOProcess(t *testing.T) {

	mock := backend.NewMock([]int{1, 3, 64, 64}, map[string]*tensor.Dense{
		postprocess.YOLOOutput: yoloRaw([][]float32{
			{32, 32, 16, 8, 0.9, 0.1},
			{10, 10, 4, 4, 0.2, 0.7},
			{50, 50, 4, 4, 0.1, 0.1},
		}),
	})

	p := NewYOLO(Options{Open: mockOpener(mock)})

	if err := p.LoadModel("yolov8n.onnx", testLabels, backend.KindMock, 0.45, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if p.InputWidth() != 64 || p.InputHeight() != 64 {
		t.Fatalf("expected input 64x64, got %dx%d", p.InputWidth(), p.InputHeight())
	}

	scratch := image.NewRGBA(image.Rect(0, 0, 64, 64))
	dets := receive(t, p.Process(context.Background(), frame(128, 72), scratch))

	want := []detectstream.Detection{
		{Label: "person", Score: 0.9, BoundingBox: detectstream.Rect{X: 24, Y: 28, Width: 16, Height: 8}},
		{Label: "car", Score: 0.7, BoundingBox: detectstream.Rect{X: 8, Y: 8, Width: 4, Height: 4}},
	}

	if len(dets) != len(want) {
		t.Fatalf("expected %d detections, got %d: %v", len(want), len(dets), dets)
	}

	for i := range want {
		if dets[i] != want[i] {
			t.Errorf("detection %d: expected %v, got %v", i, want[i], dets[i])
		}
	}

	// 128x72 letterboxed into 64x64 pads 14 rows above the content
	in := mock.LastInput()

	if in == nil || !in.Shape().Eq(tensor.Shape{1, 3, 64, 64}) {
		t.Fatalf("unexpected input tensor %v", in)
	}

	data := in.Data().([]float32)

	if data[0] != float32(114)/255 {
		t.Errorf("expected pad value at origin, got %f", data[0])
	}

	if data[32*64+32] < 0.99 || data[64*64+32*64+32] > 0.01 {
		t.Errorf("expected red content at centre, got r=%f g=%f",
			data[32*64+32], data[64*64+32*64+32])
	}
}

func TestProcessBeforeLoad(t *testing.T) {

	p := NewYOLO(Options{})

	dets := receive(t, p.Process(context.Background(), frame(8, 8), image.NewRGBA(image.Rect(0, 0, 8, 8))))

	if dets == nil || len(dets) != 0 {
		t.Errorf("expected empty non nil detections, got %v", dets)
	}
}

func TestProcessNilSource(t *testing.T) {

	mock := backend.NewMock([]int{1, 3, 8, 8}, nil)
	p := NewYOLO(Options{Open: mockOpener(mock)})

	if err := p.LoadModel("m", testLabels, backend.KindMock, 0.45, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	dets := receive(t, p.Process(context.Background(), nil, image.NewRGBA(image.Rect(0, 0, 8, 8))))

	if dets == nil || len(dets) != 0 {
		t.Errorf("expected empty non nil detections, got %v", dets)
	}

	if mock.Scheduled() != 0 {
		t.Error("nil source should not be scheduled")
	}
}

func TestProcessTimeout(t *testing.T) {

	core, logs := observer.New(zapcore.WarnLevel)

	mock := backend.NewMock([]int{1, 3, 8, 8}, nil)
	mock.SetGate(make(chan struct{}))

	p := NewYOLO(Options{
		Open:            mockOpener(mock),
		Logger:          zap.New(core).Sugar(),
		ScheduleTimeout: 20 * time.Millisecond,
	})

	if err := p.LoadModel("m", testLabels, backend.KindMock, 0.45, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	dets := receive(t, p.Process(context.Background(), frame(8, 8), image.NewRGBA(image.Rect(0, 0, 8, 8))))

	if dets == nil || len(dets) != 0 {
		t.Errorf("expected empty non nil detections, got %v", dets)
	}

	if logs.FilterMessage("Backend did not signal ready outputs in time").Len() != 1 {
		t.Errorf("expected timeout warning, got %v", logs.All())
	}
}

func TestProcessMissingOutput(t *testing.T) {

	core, logs := observer.New(zapcore.ErrorLevel)

	mock := backend.NewMock([]int{1, 3, 8, 8}, nil)
	p := NewYOLO(Options{Open: mockOpener(mock), Logger: zap.New(core).Sugar()})

	if err := p.LoadModel("m", testLabels, backend.KindMock, 0.45, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	dets := receive(t, p.Process(context.Background(), frame(8, 8), image.NewRGBA(image.Rect(0, 0, 8, 8))))

	if dets == nil || len(dets) != 0 {
		t.Errorf("expected empty non nil detections, got %v", dets)
	}

	if logs.FilterMessage("Error reading model outputs").Len() != 1 {
		t.Errorf("expected postprocess error log, got %v", logs.All())
	}
}

func TestProcessClassOutOfRange(t *testing.T) {

	mock := backend.NewMock([]int{1, 3, 8, 8}, map[string]*tensor.Dense{
		postprocess.YOLOOutput: yoloRaw([][]float32{
			{4, 4, 2, 2, 0.1, 0.1, 0.9},
		}),
	})

	p := NewYOLO(Options{Open: mockOpener(mock)})

	if err := p.LoadModel("m", testLabels, backend.KindMock, 0.45, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	dets := receive(t, p.Process(context.Background(), frame(8, 8), image.NewRGBA(image.Rect(0, 0, 8, 8))))

	if dets == nil || len(dets) != 0 {
		t.Errorf("expected empty non nil detections, got %v", dets)
	}
}

func TestLoadModelErrors(t *testing.T) {

	tests := []struct {
		name   string
		shape  []int
		labels []string
		iou    float32
	}{
		{"zero input", []int{1, 3, 0, 0}, testLabels, 0.45},
		{"bad rank", []int{3, 64, 64}, testLabels, 0.45},
		{"no labels", []int{1, 3, 64, 64}, nil, 0.45},
		{"bad threshold", []int{1, 3, 64, 64}, testLabels, 1.5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {

			mock := backend.NewMock(tc.shape, nil)
			p := NewYOLO(Options{Open: mockOpener(mock)})

			err := p.LoadModel("m", tc.labels, backend.KindMock, tc.iou, 0.5)

			if !errors.Is(err, detectstream.ErrLoad) {
				t.Fatalf("expected load error, got %v", err)
			}

			if mock.Closed() != 1 {
				t.Errorf("expected backend closed after failed load")
			}
		})
	}
}

func TestLoadModelOpenError(t *testing.T) {

	p := NewYOLO(Options{
		Open: func(kind backend.Kind, modelFile string, opts backend.Options) (backend.Backend, error) {
			return nil, errors.New("no such file")
		},
	})

	if err := p.LoadModel("missing.onnx", testLabels, backend.KindOpenCVCPU, 0.45, 0.5); !errors.Is(err, detectstream.ErrLoad) {
		t.Errorf("expected load error, got %v", err)
	}

	if p.InputWidth() != 0 || p.InputHeight() != 0 {
		t.Error("failed load must not establish input dimensions")
	}
}

func TestDisposeIdempotent(t *testing.T) {

	mock := backend.NewMock([]int{1, 3, 8, 8}, nil)
	p := NewYOLO(Options{Open: mockOpener(mock)})

	// dispose before load is a no-op
	p.Dispose()

	if err := p.LoadModel("m", testLabels, backend.KindMock, 0.45, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	p.Dispose()
	p.Dispose()

	if mock.Closed() != 1 {
		t.Errorf("expected backend closed once, got %d", mock.Closed())
	}
}

func TestEfficientDetProcess(t *testing.T) {

	mock := backend.NewMock([]int{1, 3, 32, 32}, map[string]*tensor.Dense{
		postprocess.EfficientDetBoxes: tensor.New(tensor.WithShape(1, 2, 4),
			tensor.WithBacking([]float32{
				0.25, 0.25, 0.75, 0.75,
				0, 0, 0.1, 0.1,
			})),
		postprocess.EfficientDetClasses: tensor.New(tensor.WithShape(1, 2),
			tensor.WithBacking([]float32{1, 0})),
		postprocess.EfficientDetScores: tensor.New(tensor.WithShape(1, 2),
			tensor.WithBacking([]float32{0.75, 0.25})),
	})

	var requested backend.Options

	p := NewEfficientDet(Options{
		Open: func(kind backend.Kind, modelFile string, opts backend.Options) (backend.Backend, error) {
			requested = opts
			return mock, nil
		},
	})

	if err := p.LoadModel("efficientdet.onnx", testLabels, backend.KindMock, 0.5, 0.5); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if requested.InputWidth != 512 || requested.InputHeight != 512 || len(requested.OutputNames) != 3 {
		t.Errorf("unexpected backend options %+v", requested)
	}

	dets := receive(t, p.Process(context.Background(), frame(32, 32), image.NewRGBA(image.Rect(0, 0, 32, 32))))

	want := detectstream.Detection{
		Label: "car", Score: 0.75,
		BoundingBox: detectstream.Rect{X: 8, Y: 8, Width: 16, Height: 16},
	}

	if len(dets) != 1 || dets[0] != want {
		t.Errorf("expected %v, got %v", want, dets)
	}
}

func TestNewVariant(t *testing.T) {

	p, err := New(PrimaryDetector, Options{})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := p.(*YOLO); !ok {
		t.Errorf("expected *YOLO, got %T", p)
	}

	p, err = New(AlternateDetector, Options{})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := p.(*EfficientDet); !ok {
		t.Errorf("expected *EfficientDet, got %T", p)
	}

	if _, err := New("segmenter", Options{}); !errors.Is(err, detectstream.ErrLoad) {
		t.Errorf("expected load error for unknown variant, got %v", err)
	}
}
