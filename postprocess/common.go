package postprocess

import (
	"math"
	"sort"
)

// NMSParams defines the thresholds used for Non-Maximum Suppression
type NMSParams struct {
	// IoUThreshold is the maximum allowed Intersection Over Union between
	// two kept boxes.  A box overlapping a higher scoring kept box by more
	// than this is suppressed
	IoUThreshold float32
	// ScoreThreshold is the minimum score a box needs to be considered,
	// boxes scoring below it are discarded before suppression
	ScoreThreshold float32
}

// Corners is a box in corner format (x0, y0, x1, y1)
type Corners [4]float32

// IoU works out the Intersection over Union value of two corner format boxes
func IoU(a, b Corners) float32 {

	w := math.Max(0, math.Min(float64(a[2]), float64(b[2]))-math.Max(float64(a[0]), float64(b[0])))
	h := math.Max(0, math.Min(float64(a[3]), float64(b[3]))-math.Max(float64(a[1]), float64(b[1])))
	intersection := w * h

	area0 := math.Max(0, float64(a[2]-a[0])) * math.Max(0, float64(a[3]-a[1]))
	area1 := math.Max(0, float64(b[2]-b[0])) * math.Max(0, float64(b[3]-b[1]))

	union := area0 + area1 - intersection

	if union <= 0 {
		return 0
	}

	return float32(intersection / union)
}

// NMS implements a class agnostic Non-Maximum Suppression algorithm over
// boxes and their scores.  Boxes scoring below the score threshold are
// discarded, the remainder are visited in descending score order and any box
// overlapping an already kept box by more than the IoU threshold is
// suppressed.  Equal scores are visited lowest index first so the result is
// deterministic.  The indices of kept boxes are returned in ascending order.
func NMS(boxes []Corners, scores []float32, p NMSParams) []int {

	order := make([]int, 0, len(scores))

	for i := range scores {
		if i < len(boxes) && scores[i] >= p.ScoreThreshold {
			order = append(order, i)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	kept := make([]int, 0, len(order))

	for _, n := range order {

		suppressed := false

		for _, k := range kept {
			if IoU(boxes[k], boxes[n]) > p.IoUThreshold {
				suppressed = true
				break
			}
		}

		if !suppressed {
			kept = append(kept, n)
		}
	}

	sort.Ints(kept)

	return kept
}
