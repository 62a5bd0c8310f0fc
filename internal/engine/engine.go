// Package engine wires the playback services into one editor session:
// timeline model, buffer pool, preload scheduler, pressure monitor and
// player, constructed once and torn down together. This is the surface
// the UI layer talks to.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/playcut/internal/config"
	"github.com/keagan/playcut/internal/media"
	"github.com/keagan/playcut/internal/player"
	"github.com/keagan/playcut/internal/pool"
	"github.com/keagan/playcut/internal/preload"
	"github.com/keagan/playcut/internal/pressure"
	"github.com/keagan/playcut/internal/proxycache"
	"github.com/keagan/playcut/internal/timeline"
)

// scrubbingHold is how long after a seek the scheduler still treats
// input as scrubbing.
const scrubbingHold = time.Second

// proxyGenerator renders preview proxies; the media backend implements
// it alongside media.Backend.
type proxyGenerator interface {
	CreateProxy(ctx context.Context, srcPath, dstPath string, srcFPS float64) error
}

// Engine owns one editing session's services.
type Engine struct {
	logger    zerolog.Logger
	cfg       *config.Config
	backend   media.Backend
	proxyGen  proxyGenerator
	pool      *pool.Pool
	scheduler *preload.Scheduler
	monitor   *pressure.Monitor
	player    *player.Player
	proxies   *proxycache.Cache

	unsubCritical func()

	mu       sync.Mutex
	tl       timeline.Timeline
	lastSeek time.Time
}

// New constructs a session from configuration. No hidden globals: every
// service is owned here and released by Close.
func New(logger zerolog.Logger, cfg *config.Config) (*Engine, error) {
	backend, err := media.NewFFmpegBackend(
		logger,
		cfg.FFmpeg.BinaryPath,
		cfg.FFmpeg.ProbePath,
		cfg.FFmpeg.ProxyWidth,
		cfg.FFmpeg.ProxyFPSCap,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize media backend: %w", err)
	}
	return newEngine(logger, cfg, backend, backend)
}

func newEngine(logger zerolog.Logger, cfg *config.Config, backend media.Backend, gen proxyGenerator) (*Engine, error) {
	proxies, err := proxycache.New(logger, filepath.Join(cfg.WorkDir, "proxies"))
	if err != nil {
		return nil, err
	}

	bufferPool := pool.New(logger, backend, cfg.Pool.Capacity)

	scheduler := preload.New(logger, bufferPool, preload.Config{
		PlaybackAhead:     cfg.Preload.PlaybackAhead,
		ScrubWindow:       cfg.Preload.ScrubWindow,
		PlaybackThrottle:  cfg.Preload.PlaybackThrottle,
		ScrubbingThrottle: cfg.Preload.ScrubbingThrottle,
		IdleThrottle:      cfg.Preload.IdleThrottle,
	})

	monitor := pressure.New(logger, nil, pressure.Thresholds{
		Medium:   cfg.Pressure.MediumThreshold,
		High:     cfg.Pressure.HighThreshold,
		Critical: cfg.Pressure.CriticalThreshold,
	}, cfg.Pressure.SampleInterval)

	// The synchronizer borrows its slots from the same pool the
	// scheduler warms, so a preloaded clip starts without a fresh open.
	pl := player.New(logger, bufferPool, player.Config{
		TickInterval:  cfg.Playback.TickInterval,
		SeekTolerance: cfg.Playback.SeekTolerance,
	})

	e := &Engine{
		logger:    logger.With().Str("component", "engine").Logger(),
		cfg:       cfg,
		backend:   backend,
		proxyGen:  gen,
		pool:      bufferPool,
		scheduler: scheduler,
		monitor:   monitor,
		player:    pl,
		proxies:   proxies,
		tl:        timeline.New(),
	}

	// Critical pressure shrinks the pool to the clip on screen.
	e.unsubCritical = monitor.OnLevel(pressure.LevelCritical, func(pressure.Level) {
		bufferPool.ReleaseAllExcept(pl.ActiveClipID())
	})

	return e, nil
}

// Timeline returns the current model revision.
func (e *Engine) Timeline() timeline.Timeline {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tl
}

// SetTimeline replaces the model wholesale and hands the revision to
// the player.
func (e *Engine) SetTimeline(tl timeline.Timeline) {
	e.mu.Lock()
	e.tl = tl
	e.mu.Unlock()
	e.player.SetTimeline(tl)
}

// Import probes a source file, generates a preview proxy, and appends a
// clip for it at the end of track 0. The extension check is the only
// gate before the probe; the probe itself retries to absorb files still
// being flushed by a recorder.
func (e *Engine) Import(ctx context.Context, path string) (timeline.Clip, error) {
	if err := media.ValidateSource(path); err != nil {
		return timeline.Clip{}, err
	}

	meta, err := media.ProbeWithRetry(ctx, e.backend, path)
	if err != nil {
		return timeline.Clip{}, err
	}

	tl := e.Timeline()
	c := timeline.NewClip(path, 0, timeline.Duration(tl), meta.Duration)
	c.Width = meta.Width
	c.Height = meta.Height
	c.FPS = meta.FPS

	if proxyPath, err := e.generateProxy(ctx, c.ID, path, meta.FPS); err != nil {
		// Proxies are an optimization; playback falls back to the original.
		e.logger.Warn().Str("path", path).Err(err).Msg("proxy generation failed")
	} else {
		c.ProxyPath = proxyPath
	}

	next, ok := timeline.AddClip(tl, c)
	if !ok {
		return timeline.Clip{}, timeline.ErrInvalidClip
	}
	e.SetTimeline(next)

	e.logger.Info().
		Str("clip", c.ID).
		Str("path", path).
		Float64("duration", meta.Duration).
		Msg("imported media")

	return c, nil
}

func (e *Engine) generateProxy(ctx context.Context, clipID, src string, fps float64) (string, error) {
	dst, exists := e.proxies.Path(clipID)
	if exists {
		return dst, nil
	}
	if err := e.proxyGen.CreateProxy(ctx, src, dst, fps); err != nil {
		return "", err
	}
	return dst, nil
}

// Split cuts a clip at the given time; a no-op outside the clip bounds.
func (e *Engine) Split(clipID string, atTime float64) bool {
	next, ok := timeline.Split(e.Timeline(), clipID, atTime)
	if ok {
		e.SetTimeline(next)
	}
	return ok
}

// Trim drags one clip edge by deltaTime against the drag-start snapshot.
func (e *Engine) Trim(clipID string, handle timeline.TrimHandle, deltaTime float64) bool {
	next, ok := timeline.TrimClip(e.Timeline(), clipID, handle, deltaTime)
	if ok {
		e.SetTimeline(next)
	}
	return ok
}

// Remove deletes a clip and everything keyed by its id: pool entry and
// cached proxy included.
func (e *Engine) Remove(clipID string) bool {
	next, ok := timeline.RemoveClip(e.Timeline(), clipID)
	if !ok {
		return false
	}
	e.SetTimeline(next)
	e.pool.Release(clipID)
	e.proxies.Delete(clipID)
	return true
}

// Play starts playback.
func (e *Engine) Play() {
	e.player.Play()
}

// Pause pauses playback.
func (e *Engine) Pause() {
	e.player.Pause()
}

// Seek moves the playhead and marks scrubbing activity.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	e.lastSeek = time.Now()
	e.mu.Unlock()
	e.player.Seek(t)
}

// CurrentTime is the authoritative playback clock, read-only for the UI.
func (e *Engine) CurrentTime() float64 {
	return e.player.CurrentTime()
}

// Player exposes the synchronizer for frame/stop callbacks.
func (e *Engine) Player() *player.Player {
	return e.player
}

// PoolStats reports buffer pool occupancy.
func (e *Engine) PoolStats() pool.Stats {
	return e.pool.Stats()
}

// IsReady reports whether a clip's buffer is loaded.
func (e *Engine) IsReady(clipID string) bool {
	return e.pool.IsReady(clipID)
}

// OnPressureLevel registers a pressure listener; the returned function
// unsubscribes it.
func (e *Engine) OnPressureLevel(level pressure.Level, fn func(pressure.Level)) func() {
	return e.monitor.OnLevel(level, fn)
}

// Mode classifies current input activity for the preload scheduler.
func (e *Engine) Mode() preload.Mode {
	if e.player.IsPlaying() {
		return preload.ModePlayback
	}
	e.mu.Lock()
	scrubbing := time.Since(e.lastSeek) < scrubbingHold
	e.mu.Unlock()
	if scrubbing {
		return preload.ModeScrubbing
	}
	return preload.ModeIdle
}

// Run drives the background loops until the context ends: the player
// tick loop, the pressure sampler, and periodic preload passes.
func (e *Engine) Run(ctx context.Context) {
	go e.monitor.Run(ctx)
	go e.player.Run(ctx)

	ticker := time.NewTicker(e.cfg.Preload.ScrubbingThrottle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scheduler.Schedule(ctx, e.Timeline(), e.player.CurrentTime(), e.Mode())
		}
	}
}

// Close tears the session down, releasing every handle.
func (e *Engine) Close() {
	if e.unsubCritical != nil {
		e.unsubCritical()
	}
	e.player.Close()
	e.pool.Close()
}
