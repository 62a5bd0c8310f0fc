// Package timeline holds the editing timeline model and the pure
// time-mapping functions that decide what is visible at any instant.
// A Timeline value is immutable per revision: every edit operation
// returns a fresh copy and leaves the input untouched.
package timeline

import (
	"errors"

	"github.com/google/uuid"
)

// All times and durations are in seconds of timeline or source time.

const (
	// MinClipDuration is the shortest a clip may become through trimming.
	MinClipDuration = 0.1

	// MinSpeed and MaxSpeed bound the playback-rate multiplier.
	MinSpeed = 0.25
	MaxSpeed = 4.0
)

var (
	ErrClipNotFound  = errors.New("clip not found")
	ErrOutOfBounds   = errors.New("time outside clip bounds")
	ErrInvalidClip   = errors.New("clip violates model invariants")
	ErrTrackNotFound = errors.New("track not found")
)

// Clip is a timeline placement of a trimmed, speed-adjusted segment of a
// source media file. It is a value, not a handle: it owns no resources.
type Clip struct {
	ID               string
	SourcePath       string
	ProxyPath        string
	TrackIndex       int
	StartTime        float64
	Duration         float64
	TrimStart        float64
	TrimEnd          float64
	OriginalDuration float64
	Speed            float64
	Width            int
	Height           int
	FPS              float64
}

// NewClip places a freshly imported source on a track. Duration derives
// from the untouched source length at speed 1.
func NewClip(sourcePath string, trackIndex int, startTime, originalDuration float64) Clip {
	c := Clip{
		ID:               uuid.New().String(),
		SourcePath:       sourcePath,
		TrackIndex:       trackIndex,
		StartTime:        startTime,
		TrimStart:        0,
		TrimEnd:          0,
		OriginalDuration: originalDuration,
		Speed:            1.0,
	}
	c.Duration = deriveDuration(c.OriginalDuration, c.TrimStart, c.TrimEnd, c.Speed)
	return c
}

// deriveDuration is the single place the timeline duration of a clip is
// computed from its source-domain fields. Every mutation path (trim,
// split, speed change) goes through it so the model invariant cannot be
// violated by omission.
func deriveDuration(originalDuration, trimStart, trimEnd, speed float64) float64 {
	return (originalDuration - trimStart - trimEnd) / speed
}

// EndTime returns the exclusive end of the clip's timeline interval.
func (c Clip) EndTime() float64 {
	return c.StartTime + c.Duration
}

// Contains reports whether t falls inside [StartTime, StartTime+Duration).
func (c Clip) Contains(t float64) bool {
	return t >= c.StartTime && t < c.EndTime()
}

// Source returns the path playback should read from: the proxy when one
// exists, otherwise the original file.
func (c Clip) Source() string {
	if c.ProxyPath != "" {
		return c.ProxyPath
	}
	return c.SourcePath
}

// Validate checks the clip against the model invariants.
func (c Clip) Validate() error {
	switch {
	case c.StartTime < 0,
		c.Duration <= 0,
		c.TrimStart < 0,
		c.TrimEnd < 0,
		c.TrimStart+c.TrimEnd >= c.OriginalDuration,
		c.Speed < MinSpeed,
		c.Speed > MaxSpeed:
		return ErrInvalidClip
	}
	return nil
}

// Track is an ordered lane of clip references. Clips on one track do not
// overlap by convention; overlap across tracks is legal and resolved by
// z-order (higher TrackIndex wins).
type Track struct {
	ID         string
	TrackIndex int
	ClipIDs    []string
}

// Timeline is the whole edited program: every clip, the tracks that own
// them, and the playhead position.
type Timeline struct {
	Clips       map[string]Clip
	Tracks      []Track
	CurrentTime float64
}

// New returns an empty timeline with a single track.
func New() Timeline {
	return Timeline{
		Clips: make(map[string]Clip),
		Tracks: []Track{
			{ID: uuid.New().String(), TrackIndex: 0},
		},
	}
}

// Clone makes a copy whose clip map and track slices are independent of
// the receiver. Edit operations mutate the clone, never the original.
func (tl Timeline) Clone() Timeline {
	out := Timeline{
		Clips:       make(map[string]Clip, len(tl.Clips)),
		Tracks:      make([]Track, len(tl.Tracks)),
		CurrentTime: tl.CurrentTime,
	}
	for id, c := range tl.Clips {
		out.Clips[id] = c
	}
	for i, tr := range tl.Tracks {
		ids := make([]string, len(tr.ClipIDs))
		copy(ids, tr.ClipIDs)
		out.Tracks[i] = Track{ID: tr.ID, TrackIndex: tr.TrackIndex, ClipIDs: ids}
	}
	return out
}

// Clip looks up a clip by id.
func (tl Timeline) Clip(id string) (Clip, bool) {
	c, ok := tl.Clips[id]
	return c, ok
}

// track finds the track at the given z index.
func (tl Timeline) track(trackIndex int) (int, bool) {
	for i, tr := range tl.Tracks {
		if tr.TrackIndex == trackIndex {
			return i, true
		}
	}
	return 0, false
}

// trackOf finds the track owning the given clip id.
func (tl Timeline) trackOf(clipID string) (int, bool) {
	for i, tr := range tl.Tracks {
		for _, id := range tr.ClipIDs {
			if id == clipID {
				return i, true
			}
		}
	}
	return 0, false
}
