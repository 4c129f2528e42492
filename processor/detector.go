package processor

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/backend"
	"github.com/swdee/go-detectstream/postprocess"
	"github.com/swdee/go-detectstream/preprocess"
	"go.uber.org/zap"
)

// graphBuilder compiles the postprocessing graph for a loaded model
type graphBuilder func(cfg detectstream.ModelConfig) postprocess.Graph

// detector is the processing pipeline shared by the detector families.  The
// families differ in their default input size, the model outputs they read
// and the postprocessing graph run over them.
type detector struct {
	name     string
	width    int
	height   int
	outputs  []string
	newGraph graphBuilder
	opts     Options
	log      *zap.SugaredLogger

	mu     sync.Mutex
	cfg    detectstream.ModelConfig
	worker *backend.Worker
}

func newDetector(name string, width, height int, outputs []string,
	g graphBuilder, opts Options) *detector {

	opts = opts.withDefaults()

	if opts.InputWidth > 0 && opts.InputHeight > 0 {
		width = opts.InputWidth
		height = opts.InputHeight
	}

	return &detector{
		name:     name,
		width:    width,
		height:   height,
		outputs:  outputs,
		newGraph: g,
		opts:     opts,
		log:      opts.Logger.With("processor", name),
	}
}

// InputWidth returns the model input width, zero until loaded
func (d *detector) InputWidth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.InputWidth
}

// InputHeight returns the model input height, zero until loaded
func (d *detector) InputHeight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.InputHeight
}

// Config returns the loaded model configuration
func (d *detector) Config() detectstream.ModelConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// LoadModel opens the backend, reads the model input shape from it and
// compiles the postprocessing graph
func (d *detector) LoadModel(modelFile string, labels []string, kind backend.Kind,
	iouThreshold, scoreThreshold float32) error {

	b, err := d.opts.Open(kind, modelFile, backend.Options{
		InputWidth:    d.width,
		InputHeight:   d.height,
		OutputNames:   d.outputs,
		DefaultOutput: d.outputs[0],
		Logger:        d.log,
	})

	if err != nil {
		return detectstream.LoadError(err, "opening "+string(kind)+" backend")
	}

	shape := b.InputShape()

	if len(shape) != 4 || shape[0] != 1 || shape[1] != 3 {
		b.Close()
		return detectstream.LoadError(nil, "unresolvable model input shape")
	}

	cfg := detectstream.ModelConfig{
		InputWidth:      shape[3],
		InputHeight:     shape[2],
		IoUThreshold:    iouThreshold,
		ScoreThreshold:  scoreThreshold,
		Labels:          labels,
		ScheduleTimeout: d.opts.ScheduleTimeout,
	}

	if err := cfg.Validate(); err != nil {
		b.Close()
		return err
	}

	w := backend.NewWorker(b, d.newGraph(cfg))

	d.mu.Lock()
	d.cfg = cfg
	d.worker = w
	d.mu.Unlock()

	d.log.Infow("Model loaded",
		"model", modelFile,
		"backend", kind,
		"width", cfg.InputWidth,
		"height", cfg.InputHeight,
		"labels", len(labels),
	)

	return nil
}

// Process preprocesses src into scratch and schedules it before returning,
// the wait for the backend and decoding run in the background
func (d *detector) Process(ctx context.Context, src image.Image,
	scratch *image.RGBA) <-chan []detectstream.Detection {

	out := make(chan []detectstream.Detection, 1)

	d.mu.Lock()
	cfg := d.cfg
	w := d.worker
	d.mu.Unlock()

	job, err := d.schedule(ctx, w, cfg, src, scratch)

	if err != nil {
		d.log.Errorw("Error scheduling frame", "error", err)
		out <- []detectstream.Detection{}
		return out
	}

	go func() {
		out <- d.await(ctx, job, cfg)
	}()

	return out
}

// schedule letterboxes the source into the scratch buffer, converts it to
// a tensor and submits it to the worker
func (d *detector) schedule(ctx context.Context, w *backend.Worker,
	cfg detectstream.ModelConfig, src image.Image, scratch *image.RGBA) (*backend.Job, error) {

	if w == nil {
		return nil, detectstream.ScheduleError(nil, "model not loaded")
	}

	if src == nil {
		return nil, detectstream.ScheduleError(nil, "nil source image")
	}

	if scratch == nil {
		return nil, detectstream.ScheduleError(nil, "nil scratch buffer")
	}

	b := src.Bounds()

	lb, err := preprocess.NewLetterbox(b.Dx(), b.Dy(), cfg.InputWidth, cfg.InputHeight)

	if err != nil {
		return nil, detectstream.ScheduleError(err, "computing letterbox")
	}

	if err := preprocess.Blit(scratch, src, lb, preprocess.PadColor); err != nil {
		return nil, detectstream.ScheduleError(err, "letterboxing source")
	}

	return w.Schedule(ctx, preprocess.ToTensor(scratch))
}

// await blocks until the job completes, the schedule timeout passes or ctx
// is cancelled and decodes the result
func (d *detector) await(ctx context.Context, job *backend.Job,
	cfg detectstream.ModelConfig) []detectstream.Detection {

	timer := time.NewTimer(cfg.ScheduleTimeout)
	defer timer.Stop()

	select {
	case <-job.Done():
	case <-timer.C:
		d.log.Warnw("Backend did not signal ready outputs in time",
			"timeout", cfg.ScheduleTimeout)
		return []detectstream.Detection{}
	case <-ctx.Done():
		d.log.Warnw("Frame processing cancelled", "error", ctx.Err())
		return []detectstream.Detection{}
	}

	sel, err := job.Result()

	if err != nil {
		d.log.Errorw("Error reading model outputs", "error", err)
		return []detectstream.Detection{}
	}

	dets, err := decode(sel, cfg.Labels)

	if err != nil {
		d.log.Errorw("Error decoding detections", "error", err)
		return []detectstream.Detection{}
	}

	return dets
}

// Dispose closes the worker and backend
func (d *detector) Dispose() {

	d.mu.Lock()
	w := d.worker
	d.worker = nil
	d.mu.Unlock()

	if w == nil {
		return
	}

	if err := w.Close(); err != nil {
		d.log.Errorw("Error closing backend", "error", err)
	}
}

// decode converts the center format selection into detections with top
// left bounding boxes in model input pixels
func decode(sel postprocess.Selection, labels []string) ([]detectstream.Detection, error) {

	n := sel.Len()

	if len(sel.Boxes) != n || len(sel.ClassIDs) != n {
		return nil, detectstream.PostprocessError(nil, "mismatched selection outputs")
	}

	dets := make([]detectstream.Detection, 0, n)

	for i := 0; i < n; i++ {

		id := sel.ClassIDs[i]

		if id < 0 || id >= len(labels) {
			return nil, detectstream.PostprocessError(nil, "class id out of label range")
		}

		b := sel.Boxes[i]

		dets = append(dets, detectstream.Detection{
			Label: labels[id],
			Score: sel.Scores[i],
			BoundingBox: detectstream.Rect{
				X:      b[0] - b[2]/2,
				Y:      b[1] - b[3]/2,
				Width:  b[2],
				Height: b[3],
			},
		})
	}

	return dets, nil
}
