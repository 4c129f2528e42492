package source

import (
	"context"
	"image"
	"testing"
	"time"
)

func TestSlotLatest(t *testing.T) {

	s := NewSlot()

	if _, ok := s.Latest(); ok {
		t.Fatal("expected no frame before first publish")
	}

	img := image.NewRGBA(image.Rect(0, 0, 4, 2))

	if seq := s.Publish(img, time.Now()); seq != 1 {
		t.Errorf("expected sequence 1, got %d", seq)
	}

	f, ok := s.Latest()

	if !ok || f.Seq != 1 || f.Image != img {
		t.Fatalf("unexpected frame %+v", f)
	}

	if f.Width() != 4 || f.Height() != 2 {
		t.Errorf("expected 4x2 frame, got %dx%d", f.Width(), f.Height())
	}

	// reading again returns the same frame, consumers compare sequences
	f2, _ := s.Latest()

	if f2.Seq != f.Seq {
		t.Errorf("expected same sequence, got %d", f2.Seq)
	}
}

func TestSlotDrops(t *testing.T) {

	s := NewSlot()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	s.Publish(img, time.Now())
	s.Publish(img, time.Now()) // first frame never read
	s.Latest()
	s.Publish(img, time.Now())

	st := s.Stats()

	if st.Published != 3 || st.Dropped != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSlotWait(t *testing.T) {

	s := NewSlot()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Publish(img, time.Now())
	}()

	f, ok := s.Wait(context.Background(), 0)

	if !ok || f.Seq != 1 {
		t.Fatalf("expected frame 1, got %+v %v", f, ok)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, ok := s.Wait(ctx, 1); ok {
		t.Error("expected wait to end without a newer frame")
	}
}

func TestSlotClose(t *testing.T) {

	s := NewSlot()

	done := make(chan bool)

	go func() {
		_, ok := s.Wait(context.Background(), 0)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	s.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected no frame after close")
		}
	case <-time.After(time.Second):
		t.Fatal("close did not wake waiter")
	}

	if seq := s.Publish(image.NewRGBA(image.Rect(0, 0, 1, 1)), time.Now()); seq != 0 {
		t.Errorf("expected publish after close to be ignored, got %d", seq)
	}
}

func TestStill(t *testing.T) {

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	s := NewStill(img)

	f, ok := s.Latest()

	if !ok || f.Seq != 1 || f.Image != img {
		t.Errorf("unexpected frame %+v", f)
	}

	if _, err := OpenStill("testdata/missing.png"); err == nil {
		t.Error("expected error opening missing file")
	}
}
