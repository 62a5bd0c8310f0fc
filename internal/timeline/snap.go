package timeline

import "math"

// SnapEdge names which edge of the dragged clip locked onto a snap
// candidate.
type SnapEdge int

const (
	SnapEdgeStart SnapEdge = iota
	SnapEdgeEnd
)

// Snap is a snapping decision: the adjusted start time for the dragged
// clip and the edge that matched.
type Snap struct {
	Time float64
	Edge SnapEdge
}

// SnapPoint evaluates a drag of the given clip to proposedStart on a
// track and returns the snapped start time, if any candidate edge lies
// within the pixel threshold. Candidates are timeline zero plus the
// start and end of every other clip on the same track; both edges of
// the dragged clip compete, and the smallest absolute distance wins.
// Exact ties go to the candidate found first, so iteration order is
// kept stable (zero, then track order). Returns false when nothing is
// within range.
func SnapPoint(tl Timeline, draggedID string, trackIndex int, proposedStart, pixelThreshold, pxPerSecond float64) (Snap, bool) {
	dragged, ok := tl.Clips[draggedID]
	if !ok || pxPerSecond <= 0 {
		return Snap{}, false
	}

	threshold := pixelThreshold / pxPerSecond
	proposedEnd := proposedStart + dragged.Duration

	candidates := []float64{0}
	ti, ok := tl.track(trackIndex)
	if ok {
		for _, id := range tl.Tracks[ti].ClipIDs {
			if id == draggedID {
				continue
			}
			c := tl.Clips[id]
			candidates = append(candidates, c.StartTime, c.EndTime())
		}
	}

	best := Snap{}
	bestDist := math.Inf(1)
	found := false

	for _, cand := range candidates {
		if d := math.Abs(proposedStart - cand); d <= threshold && d < bestDist {
			best = Snap{Time: cand, Edge: SnapEdgeStart}
			bestDist = d
			found = true
		}
		if d := math.Abs(proposedEnd - cand); d <= threshold && d < bestDist {
			best = Snap{Time: cand - dragged.Duration, Edge: SnapEdgeEnd}
			bestDist = d
			found = true
		}
	}

	return best, found
}
