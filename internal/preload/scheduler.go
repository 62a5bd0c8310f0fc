// Package preload decides which clips the buffer pool should hold
// ahead of time, based on what the user is doing with the playhead.
package preload

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/playcut/internal/timeline"
)

// Mode classifies current input activity.
type Mode int

const (
	// ModePlayback preloads the active clip and the next few after it.
	ModePlayback Mode = iota
	// ModeScrubbing preloads everything near the playhead.
	ModeScrubbing
	// ModeIdle preloads the whole timeline at the lowest priority.
	ModeIdle
)

func (m Mode) String() string {
	switch m {
	case ModePlayback:
		return "playback"
	case ModeScrubbing:
		return "scrubbing"
	case ModeIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Loader is the pool-facing side of the scheduler: fire-and-forget
// buffer warmup for one clip.
type Loader interface {
	Preload(ctx context.Context, clipID, source string)
}

// Config tunes candidate selection and per-mode throttling.
type Config struct {
	// PlaybackAhead is how many clips past the active one to warm
	// during playback.
	PlaybackAhead int
	// ScrubWindow is the half-width, in seconds, of the scrubbing
	// preload window around the playhead.
	ScrubWindow float64

	PlaybackThrottle  time.Duration
	ScrubbingThrottle time.Duration
	IdleThrottle      time.Duration
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		PlaybackAhead:     5,
		ScrubWindow:       10,
		PlaybackThrottle:  500 * time.Millisecond,
		ScrubbingThrottle: 200 * time.Millisecond,
		IdleThrottle:      2 * time.Second,
	}
}

type request struct {
	clips []timeline.Clip
	mode  Mode
}

// Scheduler throttles and serializes preload batches. At most one batch
// is in flight; a request arriving during a batch queues behind it
// (replacing any earlier queued request) instead of overlapping.
type Scheduler struct {
	logger zerolog.Logger
	loader Loader
	cfg    Config

	mu       sync.Mutex
	lastRun  map[Mode]time.Time
	inFlight bool
	pending  *request
}

// New creates a scheduler feeding the given loader.
func New(logger zerolog.Logger, loader Loader, cfg Config) *Scheduler {
	if cfg.PlaybackAhead <= 0 {
		cfg.PlaybackAhead = DefaultConfig().PlaybackAhead
	}
	return &Scheduler{
		logger:  logger.With().Str("component", "preload").Logger(),
		loader:  loader,
		cfg:     cfg,
		lastRun: make(map[Mode]time.Time),
	}
}

// Schedule computes the candidate set for the mode and playhead and
// kicks off a preload batch, subject to the mode's throttle interval.
func (s *Scheduler) Schedule(ctx context.Context, tl timeline.Timeline, playhead float64, mode Mode) {
	clips := s.candidates(tl, playhead, mode)
	if len(clips) == 0 {
		return
	}

	s.mu.Lock()
	if time.Since(s.lastRun[mode]) < s.throttle(mode) {
		s.mu.Unlock()
		return
	}
	s.lastRun[mode] = time.Now()

	if s.inFlight {
		// Queue behind the running batch rather than overlapping it.
		s.pending = &request{clips: clips, mode: mode}
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	go s.run(ctx, &request{clips: clips, mode: mode})
}

// run executes batches until none are queued.
func (s *Scheduler) run(ctx context.Context, req *request) {
	for req != nil {
		s.logger.Debug().
			Stringer("mode", req.mode).
			Int("clips", len(req.clips)).
			Msg("preloading batch")

		for _, c := range req.clips {
			if ctx.Err() != nil {
				break
			}
			s.loader.Preload(ctx, c.ID, c.Source())
		}

		s.mu.Lock()
		req = s.pending
		s.pending = nil
		if req == nil {
			s.inFlight = false
		}
		s.mu.Unlock()
	}
}

// candidates selects the clip set for a mode.
func (s *Scheduler) candidates(tl timeline.Timeline, playhead float64, mode Mode) []timeline.Clip {
	switch mode {
	case ModePlayback:
		sorted := timeline.ClipsSorted(tl)
		start := len(sorted)
		for i, c := range sorted {
			if c.Contains(playhead) || c.StartTime > playhead {
				start = i
				break
			}
		}
		end := start + s.cfg.PlaybackAhead + 1
		if end > len(sorted) {
			end = len(sorted)
		}
		return sorted[start:end]

	case ModeScrubbing:
		return timeline.ClipsNear(tl, playhead, s.cfg.ScrubWindow)

	default:
		return timeline.ClipsSorted(tl)
	}
}

func (s *Scheduler) throttle(mode Mode) time.Duration {
	switch mode {
	case ModePlayback:
		return s.cfg.PlaybackThrottle
	case ModeScrubbing:
		return s.cfg.ScrubbingThrottle
	default:
		return s.cfg.IdleThrottle
	}
}
