// Package processor provides the model processors that turn a source image
// into detections by driving an inference backend.
package processor

import (
	"context"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/backend"
	"go.uber.org/zap"
)

// ModelProcessor is the capability every detector family implements
type ModelProcessor interface {
	// InputWidth and InputHeight are the model input dimensions, positive
	// once LoadModel has succeeded
	InputWidth() int
	InputHeight() int
	// LoadModel opens the model on the given backend kind and compiles the
	// postprocessing graph with the thresholds.  On error the processor is
	// unusable.
	LoadModel(modelFile string, labels []string, kind backend.Kind,
		iouThreshold, scoreThreshold float32) error
	// Process letterboxes src into scratch, which must be sized to the model
	// input, and schedules inference.  The source image is not retained
	// after Process returns.  The returned channel always receives exactly
	// one non nil slice of detections ordered by detection index, empty on
	// failure.  Process must not be called again until that value has been
	// received.
	Process(ctx context.Context, src image.Image, scratch *image.RGBA) <-chan []detectstream.Detection
	// Dispose releases backend resources, it is safe to call more than once
	Dispose()
}

// Variant is the closed set of detector families
type Variant string

const (
	// PrimaryDetector is an anchor free single stage YOLO detector
	PrimaryDetector Variant = "primary-detector"
	// AlternateDetector is an EfficientDet style detector with built in box
	// decoding
	AlternateDetector Variant = "alternate-detector"
)

// Options are the construction settings shared by all processors
type Options struct {
	// Logger for load and processing failures, nil disables logging
	Logger *zap.SugaredLogger
	// Open creates the backend, defaults to backend.Open
	Open backend.OpenFunc
	// ScheduleTimeout bounds the wait for backend outputs, defaults to
	// detectstream.DefaultScheduleTimeout
	ScheduleTimeout time.Duration
	// InputWidth and InputHeight override the variant's default model input
	// size requested from the backend
	InputWidth  int
	InputHeight int
}

// Factory creates a processor of a variant
type Factory func(opts Options) ModelProcessor

var (
	factoriesMu sync.RWMutex
	factories   = map[Variant]Factory{
		PrimaryDetector: func(opts Options) ModelProcessor {
			return NewYOLO(opts)
		},
		AlternateDetector: func(opts Options) ModelProcessor {
			return NewEfficientDet(opts)
		},
	}
)

// Register adds or replaces the factory for a variant
func Register(v Variant, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[v] = f
}

// New creates an unloaded processor for the variant
func New(v Variant, opts Options) (ModelProcessor, error) {

	factoriesMu.RLock()
	f, ok := factories[v]
	factoriesMu.RUnlock()

	if !ok {
		return nil, detectstream.LoadError(errors.Errorf("variants available: %v", Variants()),
			"unknown model variant "+string(v))
	}

	return f(opts), nil
}

// Variants returns the registered variants in sorted order
func Variants() []Variant {

	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	vs := make([]Variant, 0, len(factories))

	for v := range factories {
		vs = append(vs, v)
	}

	sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })

	return vs
}

func (o Options) withDefaults() Options {

	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}

	if o.Open == nil {
		o.Open = backend.Open
	}

	if o.ScheduleTimeout <= 0 {
		o.ScheduleTimeout = detectstream.DefaultScheduleTimeout
	}

	return o
}
