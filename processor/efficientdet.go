package processor

import (
	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/postprocess"
)

// EfficientDet is the processor for detectors that output decoded boxes,
// classes and scores
type EfficientDet struct {
	*detector
}

// NewEfficientDet returns an unloaded EfficientDet processor with a default
// 512x512 input
func NewEfficientDet(opts Options) *EfficientDet {

	graph := func(cfg detectstream.ModelConfig) postprocess.Graph {
		return postprocess.NewEfficientDetGraph(cfg.InputWidth, cfg.InputHeight,
			postprocess.NMSParams{
				IoUThreshold:   cfg.IoUThreshold,
				ScoreThreshold: cfg.ScoreThreshold,
			})
	}

	outputs := []string{
		postprocess.EfficientDetBoxes,
		postprocess.EfficientDetClasses,
		postprocess.EfficientDetScores,
	}

	return &EfficientDet{
		detector: newDetector("efficientdet", 512, 512, outputs, graph, opts),
	}
}
