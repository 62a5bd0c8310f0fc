package timeline

import "github.com/google/uuid"

// TrimHandle selects which edge of a clip a trim drag adjusts.
type TrimHandle int

const (
	TrimStartHandle TrimHandle = iota
	TrimEndHandle
)

// AddClip places a clip on the track matching its TrackIndex, keeping
// the track's id list ordered by start time. Returns the input timeline
// unchanged if the clip is invalid or the track does not exist.
func AddClip(tl Timeline, c Clip) (Timeline, bool) {
	if c.Validate() != nil {
		return tl, false
	}
	ti, ok := tl.track(c.TrackIndex)
	if !ok {
		return tl, false
	}

	out := tl.Clone()
	out.Clips[c.ID] = c
	tr := &out.Tracks[ti]

	pos := len(tr.ClipIDs)
	for i, id := range tr.ClipIDs {
		if out.Clips[id].StartTime > c.StartTime {
			pos = i
			break
		}
	}
	tr.ClipIDs = append(tr.ClipIDs[:pos], append([]string{c.ID}, tr.ClipIDs[pos:]...)...)
	return out, true
}

// RemoveClip deletes a clip from the model and its owning track. The
// caller is responsible for releasing any buffer-pool entry keyed by the
// removed id.
func RemoveClip(tl Timeline, clipID string) (Timeline, bool) {
	if _, ok := tl.Clips[clipID]; !ok {
		return tl, false
	}

	out := tl.Clone()
	delete(out.Clips, clipID)
	if ti, ok := out.trackOf(clipID); ok {
		tr := &out.Tracks[ti]
		for i, id := range tr.ClipIDs {
			if id == clipID {
				tr.ClipIDs = append(tr.ClipIDs[:i], tr.ClipIDs[i+1:]...)
				break
			}
		}
	}
	return out, true
}

// Split cuts a clip in two at the given timeline time. A no-op unless
// atTime falls strictly inside the clip's interval. The left piece keeps
// the material before the cut, the right piece the material after; both
// inherit speed and source fields, and the track's id list replaces the
// original id with the pair in place.
func Split(tl Timeline, clipID string, atTime float64) (Timeline, bool) {
	c, ok := tl.Clips[clipID]
	if !ok {
		return tl, false
	}
	if atTime <= c.StartTime || atTime >= c.EndTime() {
		return tl, false
	}

	offset := atTime - c.StartTime

	left := c
	left.ID = uuid.New().String()
	left.TrimEnd = c.TrimEnd + (c.Duration-offset)*c.Speed
	left.Duration = deriveDuration(left.OriginalDuration, left.TrimStart, left.TrimEnd, left.Speed)

	right := c
	right.ID = uuid.New().String()
	right.StartTime = atTime
	right.TrimStart = c.TrimStart + offset*c.Speed
	right.Duration = deriveDuration(right.OriginalDuration, right.TrimStart, right.TrimEnd, right.Speed)

	out := tl.Clone()
	delete(out.Clips, clipID)
	out.Clips[left.ID] = left
	out.Clips[right.ID] = right

	ti, ok := out.trackOf(clipID)
	if !ok {
		return tl, false
	}
	tr := &out.Tracks[ti]
	for i, id := range tr.ClipIDs {
		if id == clipID {
			ids := make([]string, 0, len(tr.ClipIDs)+1)
			ids = append(ids, tr.ClipIDs[:i]...)
			ids = append(ids, left.ID, right.ID)
			ids = append(ids, tr.ClipIDs[i+1:]...)
			tr.ClipIDs = ids
			break
		}
	}
	return out, true
}

// Trim adjusts one edge of a clip by deltaTime timeline seconds,
// clamping so the clip never shrinks below MinClipDuration and trims
// never leave the source. The input clip must be the snapshot taken at
// drag start; applying successive drag deltas against live state
// compounds rounding error.
func Trim(c Clip, handle TrimHandle, deltaTime float64) Clip {
	out := c

	switch handle {
	case TrimStartHandle:
		// Dragging the start edge moves trim-in through the source at
		// the clip's playback rate.
		newTrimStart := clamp(
			c.TrimStart+deltaTime*c.Speed,
			0,
			c.OriginalDuration-c.TrimEnd-MinClipDuration*c.Speed,
		)
		out.TrimStart = newTrimStart
		out.Duration = deriveDuration(out.OriginalDuration, out.TrimStart, out.TrimEnd, out.Speed)
		out.StartTime = c.StartTime + (c.Duration - out.Duration)

	case TrimEndHandle:
		newTrimEnd := clamp(
			c.TrimEnd-deltaTime*c.Speed,
			0,
			c.OriginalDuration-c.TrimStart-MinClipDuration*c.Speed,
		)
		out.TrimEnd = newTrimEnd
		out.Duration = deriveDuration(out.OriginalDuration, out.TrimStart, out.TrimEnd, out.Speed)
	}

	return out
}

// TrimClip applies Trim to a clip inside the timeline, replacing it
// wholesale. A no-op when the clip does not exist.
func TrimClip(tl Timeline, clipID string, handle TrimHandle, deltaTime float64) (Timeline, bool) {
	c, ok := tl.Clips[clipID]
	if !ok {
		return tl, false
	}
	out := tl.Clone()
	out.Clips[clipID] = Trim(c, handle, deltaTime)
	return out, true
}

// MoveClip repositions a clip to a new start time, and optionally a new
// track. A no-op for unknown clips, negative starts, or missing tracks.
func MoveClip(tl Timeline, clipID string, newStart float64, newTrackIndex int) (Timeline, bool) {
	c, ok := tl.Clips[clipID]
	if !ok || newStart < 0 {
		return tl, false
	}
	if _, ok := tl.track(newTrackIndex); !ok {
		return tl, false
	}

	out, removed := RemoveClip(tl, clipID)
	if !removed {
		return tl, false
	}
	c.StartTime = newStart
	c.TrackIndex = newTrackIndex
	return AddClip(out, c)
}

// SetSpeed changes a clip's playback rate, clamped to the legal range,
// and recomputes the derived duration.
func SetSpeed(tl Timeline, clipID string, speed float64) (Timeline, bool) {
	c, ok := tl.Clips[clipID]
	if !ok {
		return tl, false
	}

	c.Speed = clamp(speed, MinSpeed, MaxSpeed)
	c.Duration = deriveDuration(c.OriginalDuration, c.TrimStart, c.TrimEnd, c.Speed)

	out := tl.Clone()
	out.Clips[clipID] = c
	return out, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
