package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleClipTimeline(t *testing.T, c Clip) Timeline {
	t.Helper()
	tl, ok := AddClip(New(), c)
	require.True(t, ok)
	return tl
}

func TestSplitBasic(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 0, 10)
	tl := singleClipTimeline(t, c)

	out, ok := Split(tl, c.ID, 4)
	require.True(t, ok)

	ids := out.Tracks[0].ClipIDs
	require.Len(t, ids, 2)

	left := out.Clips[ids[0]]
	right := out.Clips[ids[1]]

	assert.InDelta(t, 0, left.StartTime, 1e-6)
	assert.InDelta(t, 4, left.Duration, 1e-6)
	assert.InDelta(t, 6, left.TrimEnd, 1e-6)

	assert.InDelta(t, 4, right.StartTime, 1e-6)
	assert.InDelta(t, 6, right.Duration, 1e-6)
	assert.InDelta(t, 4, right.TrimStart, 1e-6)

	// No gap or overlap on the track, and the original is gone.
	assert.InDelta(t, right.StartTime, left.EndTime(), 1e-6)
	_, exists := out.Clips[c.ID]
	assert.False(t, exists)

	// Input timeline untouched.
	assert.Len(t, tl.Tracks[0].ClipIDs, 1)
}

func TestSplitDurationsSum(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 2, 8)
	tl := singleClipTimeline(t, c)

	out, ok := Split(tl, c.ID, 5.3)
	require.True(t, ok)

	var sum float64
	for _, id := range out.Tracks[0].ClipIDs {
		sum += out.Clips[id].Duration
	}
	assert.InDelta(t, c.Duration, sum, 1e-6)
}

func TestSplitAtSpeed(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 0, 10)
	tl := singleClipTimeline(t, c)
	tl, ok := SetSpeed(tl, c.ID, 2)
	require.True(t, ok)
	require.InDelta(t, 5, tl.Clips[c.ID].Duration, 1e-9)

	out, ok := Split(tl, c.ID, 2)
	require.True(t, ok)

	ids := out.Tracks[0].ClipIDs
	left, right := out.Clips[ids[0]], out.Clips[ids[1]]

	assert.InDelta(t, 2, left.Duration, 1e-6)
	assert.InDelta(t, 6, left.TrimEnd, 1e-6, "trim-out moves through the source at playback rate")
	assert.InDelta(t, 4, right.TrimStart, 1e-6)
	assert.InDelta(t, 3, right.Duration, 1e-6)
	assert.NoError(t, left.Validate())
	assert.NoError(t, right.Validate())
}

func TestSplitOutsideBoundsIsNoop(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 1, 10)
	tl := singleClipTimeline(t, c)

	for _, at := range []float64{0.5, 1, 11, 15} {
		out, ok := Split(tl, c.ID, at)
		assert.False(t, ok, "split at %v should be rejected", at)
		assert.Len(t, out.Tracks[0].ClipIDs, 1)
	}

	_, ok := Split(tl, "nope", 5)
	assert.False(t, ok)
}

func TestTrimZeroDeltaLeavesClipUnchanged(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 5, 10)

	assert.Equal(t, c, Trim(c, TrimStartHandle, 0))
	assert.Equal(t, c, Trim(c, TrimEndHandle, 0))
}

func TestTrimStart(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 5, 10)

	out := Trim(c, TrimStartHandle, 2)
	assert.InDelta(t, 2, out.TrimStart, 1e-9)
	assert.InDelta(t, 8, out.Duration, 1e-9)
	assert.InDelta(t, 7, out.StartTime, 1e-9)
	assert.NoError(t, out.Validate())

	// Dragging left past the source clamps at zero.
	out = Trim(c, TrimStartHandle, -3)
	assert.Zero(t, out.TrimStart)
	assert.Equal(t, c.Duration, out.Duration)
}

func TestTrimEnd(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 5, 10)

	out := Trim(c, TrimEndHandle, -3)
	assert.InDelta(t, 3, out.TrimEnd, 1e-9)
	assert.InDelta(t, 7, out.Duration, 1e-9)
	assert.InDelta(t, 5, out.StartTime, 1e-9, "end trims never move the clip")
}

func TestTrimClampsAtMinDuration(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 0, 10)

	out := Trim(c, TrimStartHandle, 50)
	assert.InDelta(t, MinClipDuration, out.Duration, 1e-9)
	assert.NoError(t, out.Validate())

	out = Trim(c, TrimEndHandle, -50)
	assert.InDelta(t, MinClipDuration, out.Duration, 1e-9)
	assert.NoError(t, out.Validate())
}

func TestTrimAtSpeedConsumesSourceAtRate(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 0, 10)
	c.Speed = 2
	c.Duration = 5

	out := Trim(c, TrimStartHandle, 1)
	assert.InDelta(t, 2, out.TrimStart, 1e-9, "one timeline second is two source seconds at 2x")
	assert.InDelta(t, 4, out.Duration, 1e-9)
	assert.InDelta(t, 1, out.StartTime, 1e-9)
}

func TestSetSpeedRecomputesDuration(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 0, 10)
	tl := singleClipTimeline(t, c)

	out, ok := SetSpeed(tl, c.ID, 2)
	require.True(t, ok)
	assert.InDelta(t, 5, out.Clips[c.ID].Duration, 1e-9)

	// Clamped to the legal range.
	out, ok = SetSpeed(tl, c.ID, 100)
	require.True(t, ok)
	assert.Equal(t, MaxSpeed, out.Clips[c.ID].Speed)

	out, ok = SetSpeed(tl, c.ID, 0.01)
	require.True(t, ok)
	assert.Equal(t, MinSpeed, out.Clips[c.ID].Speed)
}

func TestMoveClip(t *testing.T) {
	a := NewClip("/media/a.mp4", 0, 0, 5)
	b := NewClip("/media/b.mp4", 0, 10, 5)
	tl, ok := AddClip(New(), a)
	require.True(t, ok)
	tl, ok = AddClip(tl, b)
	require.True(t, ok)

	out, ok := MoveClip(tl, a.ID, 20, 0)
	require.True(t, ok)
	assert.InDelta(t, 20, out.Clips[a.ID].StartTime, 1e-9)
	// Track list re-sorted by start time.
	assert.Equal(t, []string{b.ID, a.ID}, out.Tracks[0].ClipIDs)

	_, ok = MoveClip(tl, a.ID, -1, 0)
	assert.False(t, ok)
	_, ok = MoveClip(tl, a.ID, 5, 9)
	assert.False(t, ok, "unknown track")
}

func TestRemoveClip(t *testing.T) {
	c := NewClip("/media/a.mp4", 0, 0, 5)
	tl := singleClipTimeline(t, c)

	out, ok := RemoveClip(tl, c.ID)
	require.True(t, ok)
	assert.Empty(t, out.Clips)
	assert.Empty(t, out.Tracks[0].ClipIDs)

	_, ok = RemoveClip(tl, "missing")
	assert.False(t, ok)
}

func TestAddClipKeepsTrackOrdered(t *testing.T) {
	late := NewClip("/media/a.mp4", 0, 10, 5)
	early := NewClip("/media/b.mp4", 0, 0, 5)

	tl, ok := AddClip(New(), late)
	require.True(t, ok)
	tl, ok = AddClip(tl, early)
	require.True(t, ok)

	assert.Equal(t, []string{early.ID, late.ID}, tl.Tracks[0].ClipIDs)
}
