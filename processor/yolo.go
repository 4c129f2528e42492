package processor

import (
	"github.com/swdee/go-detectstream"
	"github.com/swdee/go-detectstream/postprocess"
)

// YOLO is the processor for anchor free single stage YOLO detectors with a
// (1, 4+classes, anchors) raw output
type YOLO struct {
	*detector
}

// NewYOLO returns an unloaded YOLO processor with a default 640x640 input
func NewYOLO(opts Options) *YOLO {

	graph := func(cfg detectstream.ModelConfig) postprocess.Graph {
		return postprocess.NewYOLOGraph(postprocess.YOLOOutput, postprocess.NMSParams{
			IoUThreshold:   cfg.IoUThreshold,
			ScoreThreshold: cfg.ScoreThreshold,
		})
	}

	return &YOLO{
		detector: newDetector("yolo", 640, 640,
			[]string{postprocess.YOLOOutput}, graph, opts),
	}
}
