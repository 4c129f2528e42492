package postprocess

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// Model output names of an EfficientDet style detector with a built in box
// decoder
const (
	EfficientDetBoxes   = "detection_boxes"
	EfficientDetClasses = "detection_classes"
	EfficientDetScores  = "detection_scores"
)

// EfficientDetGraph is the postprocessing graph for detectors that emit
// already decoded boxes.  The model outputs are boxes (1,N,4) as normalized
// [ymin, xmin, ymax, xmax], classes (1,N) and scores (1,N).
type EfficientDetGraph struct {
	// Params are the NMS thresholds baked into the graph
	Params NMSParams
	// width and height of the model input used to scale normalized boxes
	// to model input pixels
	width  int
	height int
}

// NewEfficientDetGraph compiles the graph for a model with the given input
// dimensions
func NewEfficientDetGraph(width, height int, p NMSParams) *EfficientDetGraph {
	return &EfficientDetGraph{
		Params: p,
		width:  width,
		height: height,
	}
}

// Inputs returns the model outputs consumed by the graph
func (g *EfficientDetGraph) Inputs() []string {
	return []string{EfficientDetBoxes, EfficientDetClasses, EfficientDetScores}
}

// Run scales the boxes to model input pixels, discards low scores, applies
// NMS and gathers the survivors in center format
func (g *EfficientDetGraph) Run(outputs map[string]*tensor.Dense) (Selection, error) {

	boxes, err := float32Output(outputs, EfficientDetBoxes)

	if err != nil {
		return Selection{}, err
	}

	classes, err := float32Output(outputs, EfficientDetClasses)

	if err != nil {
		return Selection{}, err
	}

	scores, err := float32Output(outputs, EfficientDetScores)

	if err != nil {
		return Selection{}, err
	}

	n := len(scores)

	if len(classes) != n || len(boxes) != n*4 {
		return Selection{}, errors.Errorf("mismatched output sizes, boxes=%d classes=%d scores=%d",
			len(boxes), len(classes), n)
	}

	w := float32(g.width)
	h := float32(g.height)

	corners := make([]Corners, n)
	classIDs := make([]int, n)

	for i := 0; i < n; i++ {
		b := boxes[i*4:]
		corners[i] = Corners{b[1] * w, b[0] * h, b[3] * w, b[2] * h}
		classIDs[i] = int(classes[i])
	}

	indices := NMS(corners, scores, g.Params)

	sel := Selection{
		Boxes:    make([][4]float32, len(indices)),
		ClassIDs: make([]int, len(indices)),
		Scores:   make([]float32, len(indices)),
	}

	for i, idx := range indices {
		c := corners[idx]
		sel.Boxes[i] = [4]float32{
			(c[0] + c[2]) / 2,
			(c[1] + c[3]) / 2,
			c[2] - c[0],
			c[3] - c[1],
		}
		sel.ClassIDs[i] = classIDs[idx]
		sel.Scores[i] = scores[idx]
	}

	return sel, nil
}

// float32Output returns the backing data of a named float32 output
func float32Output(outputs map[string]*tensor.Dense, name string) ([]float32, error) {

	t, ok := outputs[name]

	if !ok || t == nil {
		return nil, errors.Errorf("model output %q missing", name)
	}

	data, ok := t.Data().([]float32)

	if !ok {
		return nil, errors.Errorf("model output %q has type %v, expected float32",
			name, t.Dtype())
	}

	return data, nil
}
