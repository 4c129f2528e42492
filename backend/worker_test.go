package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/postprocess"
	"gorgonia.org/tensor"
)

func yoloOutput() *tensor.Dense {
	// two anchors, cx cy w h and a single class
	return tensor.New(tensor.WithShape(1, 5, 2), tensor.WithBacking([]float32{
		320, 100,
		320, 100,
		64, 20,
		64, 20,
		0.8, 0.1,
	}))
}

func inputTensor() *tensor.Dense {
	return tensor.New(tensor.WithShape(1, 3, 4, 4), tensor.WithBacking(make([]float32, 48)))
}

func TestWorkerSchedule(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, map[string]*tensor.Dense{
		postprocess.YOLOOutput: yoloOutput(),
	})

	w := NewWorker(mock, postprocess.NewYOLOGraph("", postprocess.NMSParams{
		IoUThreshold: 0.45, ScoreThreshold: 0.5,
	}))

	in := inputTensor()

	job, err := w.Schedule(context.Background(), in)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not complete")
	}

	sel, err := job.Result()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sel.Len() != 1 || sel.Boxes[0] != [4]float32{320, 320, 64, 64} {
		t.Errorf("unexpected selection %+v", sel)
	}

	if mock.LastInput() != in || mock.Scheduled() != 1 {
		t.Errorf("input not passed to backend")
	}
}

func TestWorkerWaitsForReadiness(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, map[string]*tensor.Dense{
		postprocess.YOLOOutput: yoloOutput(),
	})

	gate := make(chan struct{})
	mock.SetGate(gate)

	w := NewWorker(mock, postprocess.NewYOLOGraph("", postprocess.NMSParams{
		IoUThreshold: 0.45, ScoreThreshold: 0.5,
	}))

	job, err := w.Schedule(context.Background(), inputTensor())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-job.Done():
		t.Fatal("job completed before backend was ready")
	case <-time.After(20 * time.Millisecond):
	}

	close(gate)

	select {
	case <-job.Done():
	case <-time.After(time.Second):
		t.Fatal("job did not complete after backend was ready")
	}

	if _, err := job.Result(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWorkerCancelled(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, nil)
	mock.SetGate(make(chan struct{}))

	w := NewWorker(mock, postprocess.NewYOLOGraph("", postprocess.NMSParams{}))

	ctx, cancel := context.WithCancel(context.Background())

	job, err := w.Schedule(ctx, inputTensor())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancel()
	<-job.Done()

	if _, err := job.Result(); !errors.Is(err, detectstream.ErrSchedule) {
		t.Errorf("expected schedule error, got %v", err)
	}
}

func TestWorkerMissingOutput(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, nil)

	w := NewWorker(mock, postprocess.NewYOLOGraph("", postprocess.NMSParams{}))

	job, err := w.Schedule(context.Background(), inputTensor())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-job.Done()

	if _, err := job.Result(); !errors.Is(err, detectstream.ErrPostprocess) {
		t.Errorf("expected postprocess error, got %v", err)
	}
}

func TestWorkerScheduleError(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, nil)
	mock.SetScheduleError(errors.New("device lost"))

	w := NewWorker(mock, postprocess.NewYOLOGraph("", postprocess.NMSParams{}))

	if _, err := w.Schedule(context.Background(), inputTensor()); !errors.Is(err, detectstream.ErrSchedule) {
		t.Errorf("expected schedule error, got %v", err)
	}
}

func TestWorkerCloseOnce(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, nil)
	w := NewWorker(mock, postprocess.NewYOLOGraph("", postprocess.NMSParams{}))

	for i := 0; i < 3; i++ {
		if err := w.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if mock.Closed() != 1 {
		t.Errorf("expected backend closed once, got %d", mock.Closed())
	}
}

func TestOpenUnknownKind(t *testing.T) {

	if _, err := Open("tpu", "model.onnx", Options{}); err == nil {
		t.Error("expected error for unknown backend kind")
	}
}

func TestRegister(t *testing.T) {

	mock := NewMock([]int{1, 3, 4, 4}, nil)

	Register(KindMock, func(kind Kind, modelFile string, opts Options) (Backend, error) {
		return mock, nil
	})

	b, err := Open(KindMock, "", Options{})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b != mock {
		t.Error("expected registered backend")
	}

	found := false

	for _, k := range Kinds() {
		if k == KindMock {
			found = true
		}
	}

	if !found {
		t.Errorf("mock kind not listed in %v", Kinds())
	}
}

func TestHalfToFloat32(t *testing.T) {

	// 1.0, -2.0, 0.5 in little endian half precision
	raw := []byte{0x00, 0x3c, 0x00, 0xc0, 0x00, 0x38}

	got := halfToFloat32(raw)
	want := []float32{1, -2, 0.5}

	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: expected %f, got %f", i, want[i], got[i])
		}
	}
}
