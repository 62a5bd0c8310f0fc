// Package player owns the playback clock and the dual-buffer protocol
// that keeps clip boundaries seamless: two slots borrowing entries from
// the media buffer pool, one active and one prefetching the next clip,
// swapped in O(1) when the playhead crosses over.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/playcut/internal/pool"
	"github.com/keagan/playcut/internal/timeline"
)

// Frame is what one synchronization pass decided to display.
type Frame struct {
	ClipID     string
	SourceTime float64
	Gap        bool
}

// Buffers is the pool-facing side of the synchronizer. Slots borrow
// entries from here; the pool keeps ownership of the handles, so a
// borrow dropped by eviction is detected and re-acquired, never closed
// by the player.
type Buffers interface {
	Acquire(ctx context.Context, clipID, source string) *pool.Entry
	Get(clipID string) (*pool.Entry, bool)
}

// slot is one of the two buffer borrows. A slot is owned by whichever
// load generation last claimed it; results from superseded loads are
// discarded on arrival.
type slot struct {
	clipID string
	entry  *pool.Entry
	ready  bool
	err    error
	gen    uint64
	cancel context.CancelFunc
}

// Config tunes the synchronizer.
type Config struct {
	// TickInterval is how often the run loop synchronizes.
	TickInterval time.Duration
	// SeekTolerance is the drift, in seconds, beyond which a ready
	// handle is re-seeked before playing. Small drifts ride along to
	// avoid redundant seeks.
	SeekTolerance float64
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		TickInterval:  33 * time.Millisecond,
		SeekTolerance: 0.1,
	}
}

// Player is the playback synchronizer. It is the single authority on
// the current timeline time; the UI reads time from here, never the
// other way around. Ticks are serialized: the per-tick decision is
// deterministic given the timeline, the clock, and the slot states.
type Player struct {
	logger  zerolog.Logger
	buffers Buffers
	cfg     Config

	mu       sync.Mutex
	tl       timeline.Timeline
	current  float64
	playing  bool
	ended    bool
	slots    [2]*slot
	active   int
	nextGen  uint64
	lastTick time.Time

	onFrame func(Frame)
	onStop  func()
}

// New creates a stopped player borrowing from the given buffer pool.
func New(logger zerolog.Logger, buffers Buffers, cfg Config) *Player {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.SeekTolerance <= 0 {
		cfg.SeekTolerance = DefaultConfig().SeekTolerance
	}
	return &Player{
		logger:  logger.With().Str("component", "player").Logger(),
		buffers: buffers,
		cfg:     cfg,
		tl:      timeline.New(),
		slots:   [2]*slot{{}, {}},
	}
}

// SetTimeline swaps in a new timeline revision. The clock is clamped
// into the new duration.
func (p *Player) SetTimeline(tl timeline.Timeline) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tl = tl
	if dur := timeline.Duration(tl); p.current > dur {
		p.current = dur
	}
	p.ended = false
}

// OnFrame registers the render callback, invoked once per tick with
// the display decision.
func (p *Player) OnFrame(fn func(Frame)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFrame = fn
}

// OnStop registers a callback fired exactly once when playback reaches
// the end of the timeline.
func (p *Player) OnStop(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStop = fn
}

// Play starts the clock.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return
	}
	if p.current >= timeline.Duration(p.tl) {
		// Replaying from the end restarts from the top.
		p.current = 0
		p.ended = false
	}
	p.playing = true
	p.lastTick = time.Now()
}

// Pause stops the clock and pauses both slots.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

func (p *Player) pauseLocked() {
	p.playing = false
	for _, s := range p.slots {
		if s.entry == nil {
			continue
		}
		if h := s.entry.Handle(); h != nil {
			_ = h.Pause()
		}
	}
}

// Seek moves the playhead. The next tick reconciles the slots.
func (p *Player) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	dur := timeline.Duration(p.tl)
	if t < 0 {
		t = 0
	}
	if t > dur {
		t = dur
	}
	p.current = t
	if t < dur {
		p.ended = false
	}
}

// CurrentTime is the authoritative playhead position. The timeline's
// own CurrentTime field is a UI projection of this value.
func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// IsPlaying reports whether the clock is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Err returns the terminal load error for the clip under the playhead,
// if its slot failed. The UI shows an error indicator from this rather
// than crashing playback.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clip, ok := timeline.ActiveClipAt(p.tl, p.current)
	if !ok {
		return nil
	}
	for _, s := range p.slots {
		if s.clipID == clip.ID && s.err != nil {
			return s.err
		}
	}
	return nil
}

// ActiveClipID returns the clip under the playhead, or "" over a gap.
func (p *Player) ActiveClipID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := timeline.ActiveClipAt(p.tl, p.current); ok {
		return c.ID
	}
	return ""
}

// Run drives the synchronizer until the context ends.
func (p *Player) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.Close()
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick advances the clock by the wall time since the previous tick and
// runs one synchronization pass.
func (p *Player) Tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var dt float64
	if p.playing && !p.lastTick.IsZero() {
		dt = now.Sub(p.lastTick).Seconds()
	}
	p.lastTick = now
	p.stepLocked(ctx, dt)
}

// Step advances the clock by an explicit amount and synchronizes.
func (p *Player) Step(ctx context.Context, dt float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stepLocked(ctx, dt)
}

func (p *Player) stepLocked(ctx context.Context, dt float64) {
	dur := timeline.Duration(p.tl)

	if p.playing {
		p.current += dt
		if p.current >= dur {
			p.current = dur
			p.pauseLocked()
			if !p.ended {
				p.ended = true
				if p.onStop != nil {
					p.onStop()
				}
				p.logger.Debug().Float64("duration", dur).Msg("reached end of timeline")
			}
		}
	}

	p.syncLocked(ctx)
}

// syncLocked is the per-tick decision of the dual-buffer protocol.
func (p *Player) syncLocked(ctx context.Context) {
	p.reconcileBorrowsLocked()

	activeClip, ok := timeline.ActiveClipAt(p.tl, p.current)
	if !ok {
		// Over a gap: render blank, touch no buffers.
		p.emitFrame(Frame{Gap: true})
		return
	}

	act := p.slots[p.active]
	inact := p.slots[1-p.active]

	switch {
	case act.clipID == activeClip.ID && act.ready:
		// Right clip already loaded.

	case inact.clipID == activeClip.ID && inact.ready:
		// Seamless boundary: swap labels, no load latency.
		p.active = 1 - p.active
		act, inact = inact, act
		p.logger.Debug().Str("clip", activeClip.ID).Msg("swapped to prefetched buffer")

	case inact.clipID == activeClip.ID && inact.err == nil:
		// The prefetch for this clip is still in flight. Swap labels
		// and wait on it rather than borrowing twice.
		p.active = 1 - p.active
		act, inact = inact, act

	case act.clipID != activeClip.ID:
		if inact.clipID == activeClip.ID {
			// Stale failed claim; the active slot retakes the clip.
			p.clearSlot(inact)
		}
		p.startLoad(ctx, act, activeClip)

	default:
		// Load for the right clip is already in flight.
	}

	// Prefetch exactly one clip ahead into the inactive slot.
	if next, ok := timeline.NextClip(p.tl, activeClip); ok {
		if inact.clipID != next.ID {
			p.startLoad(ctx, inact, next)
		}
	}

	p.commandPlayback(activeClip, act)
}

// reconcileBorrowsLocked drops borrows whose pool entries were evicted
// underneath us and refreshes the LRU position of the live ones.
func (p *Player) reconcileBorrowsLocked() {
	for _, s := range p.slots {
		if !s.ready || s.entry == nil {
			continue
		}
		if e, ok := p.buffers.Get(s.clipID); !ok || e != s.entry {
			p.logger.Debug().Str("clip", s.clipID).Msg("borrowed buffer evicted, dropping slot")
			p.clearSlot(s)
		}
	}
}

// commandPlayback drives the handle under the active clip: seek when
// drifted past tolerance, then mirror the play/pause state.
func (p *Player) commandPlayback(clip timeline.Clip, s *slot) {
	if s.clipID != clip.ID || !s.ready || s.entry == nil {
		// Not ready yet; show the gap until the load lands.
		p.emitFrame(Frame{Gap: true})
		return
	}
	h := s.entry.Handle()
	if h == nil {
		p.emitFrame(Frame{Gap: true})
		return
	}

	want := timeline.SourceTimeInClip(clip, p.current)
	got := h.CurrentTime()
	if diff := want - got; diff > p.cfg.SeekTolerance || diff < -p.cfg.SeekTolerance {
		_ = h.Seek(want)
	}

	if p.playing {
		_ = h.Play()
	} else {
		_ = h.Pause()
	}

	p.emitFrame(Frame{ClipID: clip.ID, SourceTime: want})
}

func (p *Player) emitFrame(f Frame) {
	if p.onFrame != nil {
		p.onFrame(f)
	}
}

// startLoad claims the slot for a clip and borrows its pool entry,
// waiting out the load in the background. The generation token guards
// the slot: if another load claims it before this one lands, the late
// result is discarded. Canceling the wait never cancels the pool's own
// load; other borrowers may still want it.
func (p *Player) startLoad(ctx context.Context, s *slot, clip timeline.Clip) {
	if s.cancel != nil {
		s.cancel()
	}

	p.nextGen++
	gen := p.nextGen
	waitCtx, cancel := context.WithCancel(ctx)

	s.clipID = clip.ID
	s.entry = nil
	s.ready = false
	s.err = nil
	s.gen = gen
	s.cancel = cancel

	source := clip.Source()
	entry := p.buffers.Acquire(ctx, clip.ID, source)
	p.logger.Debug().Str("clip", clip.ID).Str("source", source).Msg("borrowing buffer for slot")

	go func() {
		err := entry.Wait(waitCtx)

		p.mu.Lock()
		defer p.mu.Unlock()

		if s.gen != gen {
			// Superseded: this result no longer owns the slot.
			return
		}

		if err != nil {
			// Terminal: keep the claim so the tick loop does not
			// hot-loop fresh loads for the same clip.
			s.err = err
			s.ready = false
			p.logger.Warn().Str("clip", clip.ID).Err(err).Msg("slot load failed")
			return
		}

		s.entry = entry
		s.ready = true
	}()
}

// clearSlot drops a slot's claim, abandoning any pending wait and
// invalidating its generation so a late result cannot land. The pool
// entry itself is untouched.
func (p *Player) clearSlot(s *slot) {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	p.nextGen++
	s.gen = p.nextGen
	s.clipID = ""
	s.entry = nil
	s.ready = false
	s.err = nil
}

// Close drops both borrows. Handles stay owned by the pool.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = false
	for _, s := range p.slots {
		p.clearSlot(s)
	}
}
