package backend

import (
	"context"
	"sync"

	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/postprocess"
	"gorgonia.org/tensor"
)

// Worker couples a Backend with the post processing Graph that reduces its
// raw outputs to a Selection, so a model and its decoding are scheduled as
// one unit
type Worker struct {
	backend   Backend
	graph     postprocess.Graph
	closeOnce sync.Once
	closeErr  error
}

// Job is a single scheduled execution of a Worker
type Job struct {
	done chan struct{}
	sel  postprocess.Selection
	err  error
}

// NewWorker returns a worker running graph over the outputs of b
func NewWorker(b Backend, g postprocess.Graph) *Worker {
	return &Worker{
		backend: b,
		graph:   g,
	}
}

// InputShape returns the backend input shape (N, C, H, W)
func (w *Worker) InputShape() []int {
	return w.backend.InputShape()
}

// Schedule submits the input to the backend.  The returned job completes
// once the backend outputs are ready and the graph has run over them, or
// once ctx is cancelled.
func (w *Worker) Schedule(ctx context.Context, input *tensor.Dense) (*Job, error) {

	ready, err := w.backend.Schedule(input)

	if err != nil {
		return nil, detectstream.ScheduleError(err, "submitting input to backend")
	}

	job := &Job{done: make(chan struct{})}

	go func() {
		defer close(job.done)

		select {
		case <-ready:
		case <-ctx.Done():
			job.err = detectstream.ScheduleError(ctx.Err(), "waiting for backend outputs")
			return
		}

		outputs := make(map[string]*tensor.Dense)

		for _, name := range w.graph.Inputs() {
			t := w.backend.PeekOutput(name)

			if t == nil {
				job.err = detectstream.PostprocessError(nil, "output "+name+" not available")
				return
			}

			outputs[name] = t
		}

		sel, err := w.graph.Run(outputs)

		if err != nil {
			job.err = detectstream.PostprocessError(err, "running postprocess graph")
			return
		}

		job.sel = sel
	}()

	return job, nil
}

// Close releases the backend, later calls return the first result
func (w *Worker) Close() error {

	w.closeOnce.Do(func() {
		w.closeErr = w.backend.Close()
	})

	return w.closeErr
}

// Done returns a channel that is closed when the job has completed
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the selection produced by the job.  It must only be called
// after Done is closed.
func (j *Job) Result() (postprocess.Selection, error) {
	return j.sel, j.err
}
