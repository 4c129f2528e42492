package postprocess

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// YOLOOutput is the name of the single raw output tensor of an anchor free
// YOLO model
const YOLOOutput = "output0"

// YOLOGraph is the fused postprocessing graph for an anchor free single
// stage detector (YOLOv8 style) whose raw output is shaped
// (1, 4+numClasses, numAnchors)
type YOLOGraph struct {
	// Params are the NMS thresholds baked into the graph
	Params NMSParams
	// output is the name of the raw model output consumed
	output string
	// centersToCorners is a constant 4x4 matrix mapping a (cx,cy,w,h) row
	// vector to (x0,y0,x1,y1)
	centersToCorners *mat.Dense
}

// NewYOLOGraph compiles the postprocessing graph with the given thresholds
// reading from the named model output.  An empty name uses YOLOOutput.
func NewYOLOGraph(output string, p NMSParams) *YOLOGraph {

	if output == "" {
		output = YOLOOutput
	}

	return &YOLOGraph{
		Params: p,
		output: output,
		centersToCorners: mat.NewDense(4, 4, []float64{
			1, 0, 1, 0,
			0, 1, 0, 1,
			-0.5, 0, 0.5, 0,
			0, -0.5, 0, 0.5,
		}),
	}
}

// Inputs returns the model output consumed by the graph
func (g *YOLOGraph) Inputs() []string {
	return []string{g.output}
}

// Run splits the box parameters from the class scores, reduces the class
// scores per anchor to (max, argmax), converts boxes to corner format,
// applies NMS and gathers the surviving anchors
func (g *YOLOGraph) Run(outputs map[string]*tensor.Dense) (Selection, error) {

	raw, ok := outputs[g.output]

	if !ok || raw == nil {
		return Selection{}, errors.Errorf("model output %q missing", g.output)
	}

	shape := raw.Shape()

	if len(shape) != 3 || shape[0] != 1 || shape[1] < 5 || shape[2] < 1 {
		return Selection{}, errors.Errorf("model output %q has shape %v, expected (1, 4+classes, anchors)",
			g.output, shape)
	}

	data, ok := raw.Data().([]float32)

	if !ok {
		return Selection{}, errors.Errorf("model output %q has type %v, expected float32",
			g.output, raw.Dtype())
	}

	channels := shape[1]
	anchors := shape[2]

	if len(data) != channels*anchors {
		return Selection{}, errors.Errorf("model output %q has %d elements, expected %d",
			g.output, len(data), channels*anchors)
	}

	// split and transpose the first four channels to (anchors, 4)
	boxCoords := mat.NewDense(anchors, 4, nil)

	for k := 0; k < 4; k++ {
		for a := 0; a < anchors; a++ {
			boxCoords.Set(a, k, float64(data[k*anchors+a]))
		}
	}

	// reduce remaining class channels per anchor
	scores := make([]float32, anchors)
	classIDs := make([]int, anchors)

	for a := 0; a < anchors; a++ {

		best := data[4*anchors+a]
		bestID := 0

		for c := 1; c < channels-4; c++ {
			if s := data[(4+c)*anchors+a]; s > best {
				best = s
				bestID = c
			}
		}

		scores[a] = best
		classIDs[a] = bestID
	}

	var boxCorners mat.Dense
	boxCorners.Mul(boxCoords, g.centersToCorners)

	corners := make([]Corners, anchors)

	for a := 0; a < anchors; a++ {
		corners[a] = Corners{
			float32(boxCorners.At(a, 0)),
			float32(boxCorners.At(a, 1)),
			float32(boxCorners.At(a, 2)),
			float32(boxCorners.At(a, 3)),
		}
	}

	indices := NMS(corners, scores, g.Params)

	return gather(boxCoords, classIDs, scores, indices), nil
}

// gather selects rows of the center format boxes, class ids and scores at
// the given indices
func gather(boxCoords *mat.Dense, classIDs []int, scores []float32, indices []int) Selection {

	sel := Selection{
		Boxes:    make([][4]float32, len(indices)),
		ClassIDs: make([]int, len(indices)),
		Scores:   make([]float32, len(indices)),
	}

	for i, idx := range indices {
		sel.Boxes[i] = [4]float32{
			float32(boxCoords.At(idx, 0)),
			float32(boxCoords.At(idx, 1)),
			float32(boxCoords.At(idx, 2)),
			float32(boxCoords.At(idx, 3)),
		}
		sel.ClassIDs[i] = classIDs[idx]
		sel.Scores[i] = scores[idx]
	}

	return sel
}
