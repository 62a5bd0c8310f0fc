package media

import (
	"sync"
	"time"
)

// ClockHandle tracks playback position over probed metadata using a
// monotonic wall clock. The renderer asks it where the source should be
// at any instant; actual frame decode happens downstream of that
// position.
type ClockHandle struct {
	mu       sync.Mutex
	meta     Metadata
	position float64
	playing  bool
	playedAt time.Time
	closed   bool
}

// NewClockHandle returns a paused handle positioned at zero.
func NewClockHandle(meta Metadata) *ClockHandle {
	return &ClockHandle{meta: meta}
}

// Metadata returns the probed file metadata.
func (h *ClockHandle) Metadata() Metadata {
	return h.meta
}

// Seek moves the position, clamped to the media duration. Seeking while
// playing restarts the clock from the new position.
func (h *ClockHandle) Seek(t float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if t < 0 {
		t = 0
	}
	if t > h.meta.Duration {
		t = h.meta.Duration
	}
	h.position = t
	if h.playing {
		h.playedAt = time.Now()
	}
	return nil
}

// Play starts the position clock. Playing an already-playing handle is
// a no-op.
func (h *ClockHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if h.playing {
		return nil
	}
	h.playing = true
	h.playedAt = time.Now()
	return nil
}

// Pause freezes the position clock.
func (h *ClockHandle) Pause() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHandleClosed
	}
	if !h.playing {
		return nil
	}
	h.position = h.currentLocked()
	h.playing = false
	return nil
}

// CurrentTime returns the position the source should be displaying now.
func (h *ClockHandle) CurrentTime() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentLocked()
}

func (h *ClockHandle) currentLocked() float64 {
	if !h.playing {
		return h.position
	}
	pos := h.position + time.Since(h.playedAt).Seconds()
	if pos > h.meta.Duration {
		return h.meta.Duration
	}
	return pos
}

// Close freezes the position and rejects further Seek/Play/Pause.
// Closing twice is a no-op.
func (h *ClockHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.position = h.currentLocked()
	h.playing = false
	h.closed = true
	return nil
}
