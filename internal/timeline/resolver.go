package timeline

import "sort"

// ActiveClipAt returns the clip visible at timeline time t: among clips
// whose [StartTime, StartTime+Duration) interval contains t, the one on
// the highest track. The second return is false over a gap.
func ActiveClipAt(tl Timeline, t float64) (Clip, bool) {
	var best Clip
	found := false
	for _, c := range tl.Clips {
		if !c.Contains(t) {
			continue
		}
		if !found || c.TrackIndex > best.TrackIndex {
			best = c
			found = true
		}
	}
	return best, found
}

// SourceTimeInClip maps timeline time t to the offset inside the clip's
// original media. Monotonically increasing in t across the clip's span:
// TrimStart at the clip start, OriginalDuration-TrimEnd at the end.
func SourceTimeInClip(c Clip, t float64) float64 {
	return c.TrimStart + (t-c.StartTime)*c.Speed
}

// Duration returns the total timeline duration: the furthest clip end,
// or 0 for an empty timeline.
func Duration(tl Timeline) float64 {
	var max float64
	for _, c := range tl.Clips {
		if end := c.EndTime(); end > max {
			max = end
		}
	}
	return max
}

// HasContent reports whether the timeline holds any clips at all.
func HasContent(tl Timeline) bool {
	return len(tl.Clips) > 0
}

// ClipsSorted returns every clip ordered by start time, ties broken by
// track index. This is the "timeline order" used for prefetch decisions.
func ClipsSorted(tl Timeline) []Clip {
	out := make([]Clip, 0, len(tl.Clips))
	for _, c := range tl.Clips {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].TrackIndex < out[j].TrackIndex
	})
	return out
}

// NextClip returns the clip that follows the given one in timeline
// order, or false if it is the last.
func NextClip(tl Timeline, after Clip) (Clip, bool) {
	sorted := ClipsSorted(tl)
	for i, c := range sorted {
		if c.ID == after.ID {
			if i+1 < len(sorted) {
				return sorted[i+1], true
			}
			return Clip{}, false
		}
	}
	return Clip{}, false
}

// ClipsNear returns all clips whose start time lies within the window
// around the given playhead position. Used while scrubbing.
func ClipsNear(tl Timeline, playhead, window float64) []Clip {
	out := make([]Clip, 0)
	for _, c := range ClipsSorted(tl) {
		d := c.StartTime - playhead
		if d >= -window && d <= window {
			out = append(out, c)
		}
	}
	return out
}
