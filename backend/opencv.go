package backend

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// matTypeCV16F is the OpenCV CV_16F depth returned by half precision targets
const matTypeCV16F gocv.MatType = 7

// OpenCV is a Backend that runs an ONNX model with the OpenCV DNN module
type OpenCV struct {
	net gocv.Net
	// mu serialises access to the network and outputs
	mu sync.Mutex
	// shape is the model input shape (N, C, H, W)
	shape []int
	// outputNames to fetch on each forward pass
	outputNames []string
	// outputs of the last completed execution
	outputs map[string]*tensor.Dense
	closed  bool
	log     *zap.SugaredLogger
}

// netTargets maps the OpenCV backend kinds to the DNN backend and target
var netTargets = map[Kind]struct {
	backend gocv.NetBackendType
	target  gocv.NetTargetType
}{
	KindOpenCVCPU:      {gocv.NetBackendDefault, gocv.NetTargetCPU},
	KindOpenCVOpenCL:   {gocv.NetBackendOpenCV, gocv.NetTargetFP32},
	KindOpenCVCUDA:     {gocv.NetBackendCUDA, gocv.NetTargetCUDA},
	KindOpenCVCUDAFP16: {gocv.NetBackendCUDA, gocv.NetTargetCUDAFP16},
}

func openOpenCV(kind Kind, modelFile string, opts Options) (Backend, error) {
	return NewOpenCV(kind, modelFile, opts)
}

// NewOpenCV loads the ONNX model file and prepares it for execution on the
// compute target given by kind
func NewOpenCV(kind Kind, modelFile string, opts Options) (*OpenCV, error) {

	nt, ok := netTargets[kind]

	if !ok {
		return nil, errors.Errorf("backend kind %q is not an OpenCV kind", kind)
	}

	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, errors.Errorf("invalid model input size %dx%d",
			opts.InputWidth, opts.InputHeight)
	}

	net := gocv.ReadNetFromONNX(modelFile)

	if net.Empty() {
		net.Close()
		return nil, errors.Errorf("error reading ONNX model %s", modelFile)
	}

	net.SetPreferableBackend(nt.backend)
	net.SetPreferableTarget(nt.target)

	names := opts.OutputNames

	if len(names) == 0 {
		names = []string{opts.DefaultOutput}
	}

	return &OpenCV{
		net:         net,
		shape:       []int{1, 3, opts.InputHeight, opts.InputWidth},
		outputNames: names,
		outputs:     make(map[string]*tensor.Dense),
		log:         opts.logger(),
	}, nil
}

// InputShape returns the model input shape (N, C, H, W)
func (o *OpenCV) InputShape() []int {
	return append([]int(nil), o.shape...)
}

// Schedule copies the input tensor into a blob and runs a forward pass in
// the background.  The returned channel is closed once the pass completes.
func (o *OpenCV) Schedule(input *tensor.Dense) (<-chan struct{}, error) {

	if input == nil {
		return nil, errors.New("nil input tensor")
	}

	if !input.Shape().Eq(tensor.Shape(o.shape)) {
		return nil, errors.Errorf("input shape %v does not match model shape %v",
			input.Shape(), o.shape)
	}

	src, ok := input.Data().([]float32)

	if !ok {
		return nil, errors.Errorf("input tensor type %v is not float32", input.Dtype())
	}

	blob := gocv.NewMatWithSizes(o.shape, gocv.MatTypeCV32F)

	dst, err := blob.DataPtrFloat32()

	if err != nil {
		blob.Close()
		return nil, errors.Wrap(err, "error accessing float32 blob memory")
	}

	copy(dst, src)

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()

	if closed {
		blob.Close()
		return nil, errors.New("backend is closed")
	}

	done := make(chan struct{})

	go func() {
		defer close(done)
		defer blob.Close()
		o.forward(blob)
	}()

	return done, nil
}

// forward runs the network on the blob and stores the converted outputs
func (o *OpenCV) forward(blob gocv.Mat) {

	o.mu.Lock()
	defer o.mu.Unlock()

	// clear outputs of the previous run so a failed pass is not mistaken
	// for a stale result
	o.outputs = make(map[string]*tensor.Dense)

	if o.closed {
		return
	}

	o.net.SetInput(blob, "")

	var mats []gocv.Mat

	if len(o.outputNames) == 1 {
		mats = []gocv.Mat{o.net.Forward("")}
	} else {
		mats = o.net.ForwardLayers(o.outputNames)
	}

	for i, m := range mats {

		if i >= len(o.outputNames) {
			m.Close()
			continue
		}

		t, err := matToTensor(m)
		m.Close()

		if err != nil {
			o.log.Errorw("Error reading model output",
				"output", o.outputNames[i], "error", err)
			continue
		}

		o.outputs[o.outputNames[i]] = t
	}
}

// PeekOutput returns the named output of the last completed forward pass
func (o *OpenCV) PeekOutput(name string) *tensor.Dense {

	o.mu.Lock()
	defer o.mu.Unlock()

	return o.outputs[name]
}

// Close releases the network, it is safe to call more than once
func (o *OpenCV) Close() error {

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	o.closed = true
	o.outputs = nil

	return o.net.Close()
}

// matToTensor copies a DNN output blob into a float32 tensor of the same
// shape.  Half precision blobs are widened to float32.
func matToTensor(m gocv.Mat) (*tensor.Dense, error) {

	if m.Empty() {
		return nil, errors.New("empty output blob")
	}

	shape := m.Size()
	n := 1

	for _, d := range shape {
		n *= d
	}

	var data []float32

	switch m.Type() {
	case gocv.MatTypeCV32F:
		src, err := m.DataPtrFloat32()

		if err != nil {
			return nil, errors.Wrap(err, "error getting float32 data from blob")
		}

		data = make([]float32, len(src))
		copy(data, src)

	case matTypeCV16F:
		data = halfToFloat32(m.ToBytes())

	default:
		return nil, errors.Errorf("unsupported output blob type %v", m.Type())
	}

	if len(data) != n || n == 0 {
		return nil, errors.Errorf("output blob has %d elements, shape %v", len(data), shape)
	}

	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}
