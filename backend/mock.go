package backend

import (
	"sync"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Mock is a Backend that replays canned outputs.  It is used to exercise
// processors and the detection pipeline without a model runtime.
type Mock struct {
	mu      sync.Mutex
	shape   []int
	outputs map[string]*tensor.Dense
	// gate, when set, holds every execution until a value is received or
	// the channel is closed
	gate        chan struct{}
	scheduleErr error
	last        *tensor.Dense
	scheduled   int
	closed      int
}

// NewMock returns a mock backend with the given input shape that produces
// outputs on every execution
func NewMock(shape []int, outputs map[string]*tensor.Dense) *Mock {
	return &Mock{
		shape:   append([]int(nil), shape...),
		outputs: outputs,
	}
}

// SetOutputs replaces the outputs produced by later executions
func (m *Mock) SetOutputs(outputs map[string]*tensor.Dense) {
	m.mu.Lock()
	m.outputs = outputs
	m.mu.Unlock()
}

// SetGate holds executions until gate yields, pass nil to run immediately
func (m *Mock) SetGate(gate chan struct{}) {
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()
}

// SetScheduleError makes Schedule fail with err
func (m *Mock) SetScheduleError(err error) {
	m.mu.Lock()
	m.scheduleErr = err
	m.mu.Unlock()
}

// InputShape returns the configured input shape
func (m *Mock) InputShape() []int {
	return append([]int(nil), m.shape...)
}

// Schedule records the input and completes in the background
func (m *Mock) Schedule(input *tensor.Dense) (<-chan struct{}, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scheduleErr != nil {
		return nil, m.scheduleErr
	}

	if m.closed > 0 {
		return nil, errors.New("backend is closed")
	}

	m.last = input
	m.scheduled++

	gate := m.gate
	done := make(chan struct{})

	go func() {
		if gate != nil {
			<-gate
		}
		close(done)
	}()

	return done, nil
}

// PeekOutput returns the canned output of the given name
func (m *Mock) PeekOutput(name string) *tensor.Dense {

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.outputs[name]
}

// Close counts the number of times the backend was closed
func (m *Mock) Close() error {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed++
	return nil
}

// LastInput returns the most recently scheduled input
func (m *Mock) LastInput() *tensor.Dense {

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.last
}

// Scheduled returns the number of executions submitted
func (m *Mock) Scheduled() int {

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.scheduled
}

// Closed returns the number of times Close was called
func (m *Mock) Closed() int {

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.closed
}
