// Package backend defines the inference backend capability used by model
// processors and provides an OpenCV DNN implementation of it.
package backend

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

// Backend is an opaque numeric executor.  An input tensor is scheduled for
// execution and once the returned channel is closed the named outputs of that
// execution can be read.
type Backend interface {
	// InputShape returns the model input shape as (N, C, H, W)
	InputShape() []int
	// Schedule submits the input tensor for execution.  The returned channel
	// is closed when the outputs are ready to be read
	Schedule(input *tensor.Dense) (<-chan struct{}, error)
	// PeekOutput returns the named output of the last completed execution,
	// or nil if it does not exist or the execution failed
	PeekOutput(name string) *tensor.Dense
	// Close releases all resources held by the backend
	Close() error
}

// Kind is the compute kind a model is run on
type Kind string

const (
	// KindOpenCVCPU runs the model with OpenCV DNN on the CPU
	KindOpenCVCPU Kind = "opencv-cpu"
	// KindOpenCVOpenCL runs the model with OpenCV DNN using OpenCL
	KindOpenCVOpenCL Kind = "opencv-opencl"
	// KindOpenCVCUDA runs the model with OpenCV DNN on a CUDA device
	KindOpenCVCUDA Kind = "opencv-cuda"
	// KindOpenCVCUDAFP16 runs the model with OpenCV DNN on a CUDA device
	// in half precision
	KindOpenCVCUDAFP16 Kind = "opencv-cuda-fp16"
	// KindMock replays canned outputs, see Mock
	KindMock Kind = "mock"
)

// Options are the load time settings passed to a backend
type Options struct {
	// InputWidth and InputHeight are the model input dimensions, used by
	// backends that can not read the input shape from the model file
	InputWidth  int
	InputHeight int
	// OutputNames are the model outputs to fetch.  When empty the first
	// output is fetched and named after DefaultOutput
	OutputNames []string
	// DefaultOutput is the name given to the first output when OutputNames
	// is empty
	DefaultOutput string
	// Logger receives backend errors, nil disables logging
	Logger *zap.SugaredLogger
}

// OpenFunc creates a backend of the given kind for a model file
type OpenFunc func(kind Kind, modelFile string, opts Options) (Backend, error)

var (
	openersMu sync.RWMutex
	openers   = map[Kind]OpenFunc{
		KindOpenCVCPU:      openOpenCV,
		KindOpenCVOpenCL:   openOpenCV,
		KindOpenCVCUDA:     openOpenCV,
		KindOpenCVCUDAFP16: openOpenCV,
	}
)

// Register makes a backend kind available to Open, replacing any existing
// opener for that kind
func Register(kind Kind, fn OpenFunc) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[kind] = fn
}

// Open creates a backend of the given kind for the model file
func Open(kind Kind, modelFile string, opts Options) (Backend, error) {

	openersMu.RLock()
	fn, ok := openers[kind]
	openersMu.RUnlock()

	if !ok {
		return nil, errors.Errorf("unknown backend kind %q, available: %v", kind, Kinds())
	}

	return fn(kind, modelFile, opts)
}

// Kinds returns the registered backend kinds in sorted order
func Kinds() []Kind {

	openersMu.RLock()
	defer openersMu.RUnlock()

	kinds := make([]Kind, 0, len(openers))

	for k := range openers {
		kinds = append(kinds, k)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// logger returns the options logger or a no-op logger
func (o Options) logger() *zap.SugaredLogger {

	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}

	return o.Logger
}
