package postprocess

import (
	"gorgonia.org/tensor"
)

// Selection holds the three outputs of a postprocessing graph, the boxes,
// class ids and scores of the N anchors that survived suppression.  All
// slices have the same length.
type Selection struct {
	// Boxes are the selected boxes (N,4) in center format (cx, cy, w, h)
	// using model input pixel coordinates
	Boxes [][4]float32
	// ClassIDs are the selected class ids (N)
	ClassIDs []int
	// Scores are the selected scores (N)
	Scores []float32
}

// Len returns the number of selected boxes
func (s Selection) Len() int {
	return len(s.Scores)
}

// Graph is a compiled postprocessing computation run over the raw output
// tensors of a model
type Graph interface {
	// Inputs returns the names of the model outputs the graph consumes
	Inputs() []string
	// Run executes the graph over the named model outputs
	Run(outputs map[string]*tensor.Dense) (Selection, error)
}
