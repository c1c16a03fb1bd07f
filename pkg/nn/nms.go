package nn

import (
	"sort"
)

// NonMaxSuppression filters out overlapping detections of the same class.
// Candidates are processed in order of decreasing confidence, and any candidate
// whose IoU with an already-accepted box exceeds iouThreshold is discarded.
// The input slice is not modified. Results are ordered by decreasing confidence.
func NonMaxSuppression(input []ObjectDetection, iouThreshold float32) []ObjectDetection {
	sorted := make([]ObjectDetection, len(input))
	copy(sorted, input)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	keep := []ObjectDetection{}
	suppressed := make([]bool, len(sorted))
	for i := 0; i < len(sorted); i++ {
		if suppressed[i] {
			continue
		}
		keep = append(keep, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].Class != sorted[i].Class {
				continue
			}
			if sorted[i].Box.IOU(sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}
