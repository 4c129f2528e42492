// Package orchestrator schedules detection requests onto a model processor,
// at most one at a time, and remaps the results into display space.
package orchestrator

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/backend"
	"github.com/swdee/go-detectstream/preprocess"
	"github.com/swdee/go-detectstream/processor"
	"github.com/swdee/go-detectstream/source"
	"go.uber.org/zap"
)

// Event is emitted once per completed session
type Event struct {
	SessionID uuid.UUID
	// Detections in model input pixels, in processor order
	Detections []detectstream.Detection
	// Boxes are the detections remapped to display space in the same order,
	// nil when the remap was skipped
	Boxes []DisplayBox
	// Summary is a human readable description of the result
	Summary string
	// State is SessionCompleted, or SessionFailed when the remap was skipped
	State SessionState
	// Elapsed is the time from request to completion
	Elapsed time.Duration
}

// Options configure an Orchestrator
type Options struct {
	// Logger, nil disables logging
	Logger *zap.SugaredLogger
	// Processor are the options the model processor is created with
	Processor processor.Options
	// Handler receives events on the completing goroutine.  When nil
	// events are delivered on the Events channel.
	Handler func(Event)
	// EventBuffer is the capacity of the Events channel, default 16
	EventBuffer int
}

// Orchestrator owns a model processor and its scratch buffer.  It accepts a
// detection request only when no other is in flight.
type Orchestrator struct {
	state   atomic.Int32
	proc    processor.ModelProcessor
	scratch *image.RGBA
	loadErr error

	// mu guards display and orders request admission against Close
	mu      sync.Mutex
	display Display

	handler func(Event)
	events  chan Event
	log     *zap.SugaredLogger

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates the processor for cfg.ModelVariant, loads the model and
// allocates the scratch buffer.  A failure is logged and leaves the
// orchestrator Disabled, see Err.
func New(cfg detectstream.Config, opts Options) *Orchestrator {

	log := opts.Logger

	if log == nil {
		log = zap.NewNop().Sugar()
	}

	bufSize := opts.EventBuffer

	if bufSize <= 0 {
		bufSize = 16
	}

	o := &Orchestrator{
		display: Display{Width: cfg.DisplayWidth, Height: cfg.DisplayHeight},
		handler: opts.Handler,
		events:  make(chan Event, bufSize),
		log:     log,
	}

	if err := o.load(cfg, opts); err != nil {
		o.loadErr = err
		o.state.Store(int32(Disabled))

		log.Errorw("Detection disabled, model failed to load",
			"variant", cfg.ModelVariant,
			"model", cfg.ModelPath,
			"error", err,
		)

		return o
	}

	o.state.Store(int32(Ready))

	return o
}

// load initializes the processor and scratch buffer
func (o *Orchestrator) load(cfg detectstream.Config, opts Options) error {

	if err := cfg.Validate(); err != nil {
		return detectstream.LoadError(err, "invalid config")
	}

	labels, err := cfg.ResolveLabels()

	if err != nil {
		return err
	}

	popts := opts.Processor

	if popts.Logger == nil {
		popts.Logger = o.log
	}

	if popts.ScheduleTimeout <= 0 {
		popts.ScheduleTimeout = time.Duration(cfg.ScheduleTimeout)
	}

	proc, err := processor.New(processor.Variant(cfg.ModelVariant), popts)

	if err != nil {
		return err
	}

	err = proc.LoadModel(cfg.ModelPath, labels, backend.Kind(cfg.Backend),
		cfg.IoUThreshold, cfg.ScoreThreshold)

	if err != nil {
		proc.Dispose()
		return err
	}

	w, h := proc.InputWidth(), proc.InputHeight()

	if w <= 0 || h <= 0 {
		proc.Dispose()
		return detectstream.LoadError(nil, "processor did not establish input dimensions")
	}

	o.proc = proc
	o.scratch = image.NewRGBA(image.Rect(0, 0, w, h))

	return nil
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Err returns the error that disabled the orchestrator at load
func (o *Orchestrator) Err() error {
	return o.loadErr
}

// Events returns the channel events are delivered on when no Handler is
// set.  It is closed by Close.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// SetDisplay changes the viewport later sessions are remapped to
func (o *Orchestrator) SetDisplay(width, height int) {
	o.mu.Lock()
	o.display = Display{Width: width, Height: height}
	o.mu.Unlock()
}

// Display returns the current viewport
func (o *Orchestrator) Display() Display {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.display
}

// ExecuteDetection starts a session processing img.  It returns false
// without side effects when the orchestrator is Disabled or Busy, requests
// are dropped rather than queued.  The image must not be modified until
// ExecuteDetection returns.
func (o *Orchestrator) ExecuteDetection(ctx context.Context, img image.Image) bool {

	if img == nil {
		o.log.Errorw("Detection request without a source image")
		return false
	}

	o.mu.Lock()

	if !o.state.CompareAndSwap(int32(Ready), int32(Busy)) {
		o.mu.Unlock()
		o.log.Warnw("Detection request dropped", "state", o.State())
		return false
	}

	o.wg.Add(1)
	o.mu.Unlock()

	b := img.Bounds()

	lb, err := preprocess.NewLetterbox(b.Dx(), b.Dy(), o.proc.InputWidth(), o.proc.InputHeight())

	if err != nil {
		o.log.Errorw("Detection request rejected", "error", err)
		o.state.CompareAndSwap(int32(Busy), int32(Ready))
		o.wg.Done()
		return false
	}

	sess := newSession(lb)
	sess.setState(SessionPreprocessing)

	results := o.proc.Process(ctx, img, o.scratch)

	sess.setState(SessionInferring)

	go func() {
		defer o.wg.Done()
		o.complete(sess, <-results)
	}()

	return true
}

// complete is the session continuation.  It always returns the
// orchestrator to Ready, then remaps and emits the result.
func (o *Orchestrator) complete(s *Session, dets []detectstream.Detection) {

	// a Close during the session leaves the orchestrator Disabled
	o.state.CompareAndSwap(int32(Busy), int32(Ready))

	if dets == nil {
		dets = []detectstream.Detection{}
	}

	s.setState(SessionPostprocessing)

	ev := Event{
		SessionID:  s.ID,
		Detections: dets,
		Summary:    Summary(dets),
	}

	boxes, err := remap(s, dets, o.Display())

	if err != nil {
		o.log.Warnw("Remap skipped", "session", s.ID, "error", err)
		s.setState(SessionFailed)
	} else {
		ev.Boxes = boxes
		s.setState(SessionCompleted)
	}

	ev.State = s.State()
	ev.Elapsed = time.Since(s.Started)

	o.emit(ev)
}

func (o *Orchestrator) emit(ev Event) {

	if o.handler != nil {
		o.handler(ev)
		return
	}

	select {
	case o.events <- ev:
	default:
		o.log.Warnw("Event dropped, consumer too slow", "session", ev.SessionID)
	}
}

// Run submits frames from src every interval until ctx is done.  A frame is
// only submitted once, a frame that arrives while a session is in flight is
// submitted on a later tick if it is still the latest.
func (o *Orchestrator) Run(ctx context.Context, src source.Source, interval time.Duration) error {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		switch o.State() {
		case Disabled:
			if o.loadErr != nil {
				return errors.Wrap(o.loadErr, "detection disabled")
			}
			return errors.New("detection disabled")
		case Busy:
			continue
		}

		f, ok := src.Latest()

		if !ok || f.Seq <= last {
			continue
		}

		if o.ExecuteDetection(ctx, f.Image) {
			last = f.Seq
		}
	}
}

// Close disables the orchestrator, waits for an in-flight session to
// complete and disposes the processor.  It is safe to call more than once.
func (o *Orchestrator) Close() {

	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.state.Store(int32(Disabled))
		o.mu.Unlock()

		o.wg.Wait()

		if o.proc != nil {
			o.proc.Dispose()
		}

		close(o.events)
	})
}
