package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/playcut/internal/media"
	"github.com/keagan/playcut/internal/pool"
	"github.com/keagan/playcut/internal/timeline"
)

// recordingHandle counts seeks so tests can observe the drift-tolerance
// behavior.
type recordingHandle struct {
	*media.ClockHandle
	mu    sync.Mutex
	seeks int
}

func (h *recordingHandle) Seek(t float64) error {
	h.mu.Lock()
	h.seeks++
	h.mu.Unlock()
	return h.ClockHandle.Seek(t)
}

func (h *recordingHandle) seekCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seeks
}

// stubBackend opens instant handles and counts opens per path; paths
// listed in block wait until the corresponding channel closes.
type stubBackend struct {
	mu      sync.Mutex
	block   map[string]chan struct{}
	opens   map[string]int
	handles map[string]*recordingHandle
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		block:   make(map[string]chan struct{}),
		opens:   make(map[string]int),
		handles: make(map[string]*recordingHandle),
	}
}

func (b *stubBackend) Probe(ctx context.Context, path string) (media.Metadata, error) {
	return media.Metadata{Path: path, Duration: 100, Width: 640, Height: 360, FPS: 30}, nil
}

func (b *stubBackend) OpenHandle(ctx context.Context, path string) (media.Handle, error) {
	b.mu.Lock()
	b.opens[path]++
	gate := b.block[path]
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	meta, _ := b.Probe(ctx, path)
	h := &recordingHandle{ClockHandle: media.NewClockHandle(meta)}
	b.mu.Lock()
	b.handles[path] = h
	b.mu.Unlock()
	return h, nil
}

func (b *stubBackend) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	return nil, nil
}

func (b *stubBackend) handle(path string) *recordingHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[path]
}

func (b *stubBackend) openCalls(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens[path]
}

// frameSink keeps the frames emitted by the synchronizer.
type frameSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *frameSink) collect(f Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) last() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return Frame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

func (s *frameSink) all() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

func newTestPlayer(t *testing.T, backend media.Backend) (*Player, *pool.Pool, *frameSink) {
	t.Helper()
	buffers := pool.New(zerolog.Nop(), backend, 4)
	t.Cleanup(buffers.Close)
	p := New(zerolog.Nop(), buffers, DefaultConfig())
	t.Cleanup(p.Close)
	sink := &frameSink{}
	p.OnFrame(sink.collect)
	return p, buffers, sink
}

// stepUntilClip ticks without advancing time until the sink shows a
// frame for the wanted clip.
func stepUntilClip(t *testing.T, p *Player, sink *frameSink, clipID string) Frame {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.Step(ctx, 0)
		if f, ok := sink.last(); ok && !f.Gap && f.ClipID == clipID {
			return f
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("clip %s never reached the display", clipID)
	return Frame{}
}

// twoClipTimeline is two contiguous clips: A [0,2), B [2,4).
func twoClipTimeline(t *testing.T) (timeline.Timeline, timeline.Clip, timeline.Clip) {
	t.Helper()
	a := timeline.NewClip("/media/a.mp4", 0, 0, 2)
	b := timeline.NewClip("/media/b.mp4", 0, 2, 2)

	tl, ok := timeline.AddClip(timeline.New(), a)
	require.True(t, ok)
	tl, ok = timeline.AddClip(tl, b)
	require.True(t, ok)
	return tl, a, b
}

func TestEmptyTimelineRendersGap(t *testing.T) {
	p, _, sink := newTestPlayer(t, newStubBackend())

	p.Step(context.Background(), 0)

	f, ok := sink.last()
	require.True(t, ok)
	assert.True(t, f.Gap)
}

func TestLoadsActiveClipAndReportsSourceTime(t *testing.T) {
	backend := newStubBackend()
	p, _, sink := newTestPlayer(t, backend)
	tl, a, _ := twoClipTimeline(t)
	p.SetTimeline(tl)
	p.Seek(0.5)

	f := stepUntilClip(t, p, sink, a.ID)
	assert.InDelta(t, 0.5, f.SourceTime, 1e-9)
	assert.Equal(t, a.ID, p.ActiveClipID())
}

func TestPooledBufferIsBorrowedNotReopened(t *testing.T) {
	backend := newStubBackend()
	p, buffers, sink := newTestPlayer(t, backend)
	tl, a, _ := twoClipTimeline(t)
	p.SetTimeline(tl)

	// Warm the buffer the way the preload scheduler would.
	ctx := context.Background()
	e := buffers.Acquire(ctx, a.ID, a.SourcePath)
	require.NoError(t, e.Wait(ctx))
	require.Equal(t, 1, backend.openCalls(a.SourcePath))

	stepUntilClip(t, p, sink, a.ID)

	assert.Equal(t, 1, backend.openCalls(a.SourcePath),
		"a warmed buffer is borrowed, never reopened")
	assert.True(t, buffers.IsReady(a.ID))
}

func TestEvictedBorrowIsReacquired(t *testing.T) {
	backend := newStubBackend()
	buffers := pool.New(zerolog.Nop(), backend, 1)
	t.Cleanup(buffers.Close)
	p := New(zerolog.Nop(), buffers, DefaultConfig())
	t.Cleanup(p.Close)
	sink := &frameSink{}
	p.OnFrame(sink.collect)

	a := timeline.NewClip("/media/a.mp4", 0, 0, 2)
	tl, ok := timeline.AddClip(timeline.New(), a)
	require.True(t, ok)
	p.SetTimeline(tl)

	stepUntilClip(t, p, sink, a.ID)

	// Another borrower squeezes A out of the capacity-1 pool.
	ctx := context.Background()
	e := buffers.Acquire(ctx, "other", "/media/other.mp4")
	require.NoError(t, e.Wait(ctx))
	require.False(t, buffers.IsReady(a.ID))

	// The player notices the dead borrow and loads A again.
	stepUntilClip(t, p, sink, a.ID)
	assert.GreaterOrEqual(t, backend.openCalls("/media/a.mp4"), 2)
}

func TestGapBetweenClipsRendersBlank(t *testing.T) {
	backend := newStubBackend()
	p, _, sink := newTestPlayer(t, backend)

	a := timeline.NewClip("/media/a.mp4", 0, 0, 2)
	c := timeline.NewClip("/media/c.mp4", 0, 10, 2)
	tl, ok := timeline.AddClip(timeline.New(), a)
	require.True(t, ok)
	tl, ok = timeline.AddClip(tl, c)
	require.True(t, ok)
	p.SetTimeline(tl)

	p.Seek(5)
	p.Step(context.Background(), 0)

	f, ok := sink.last()
	require.True(t, ok)
	assert.True(t, f.Gap)
	assert.Empty(t, p.ActiveClipID())
}

func TestBoundaryCrossingSwapsWithoutGap(t *testing.T) {
	backend := newStubBackend()
	p, _, sink := newTestPlayer(t, backend)
	tl, a, b := twoClipTimeline(t)
	p.SetTimeline(tl)

	// Settle on clip A; the prefetch of B lands in the inactive slot.
	stepUntilClip(t, p, sink, a.ID)
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		inact := p.slots[1-p.active]
		return inact.clipID == b.ID && inact.ready
	}, 2*time.Second, time.Millisecond, "B never prefetched")
	require.NotNil(t, backend.handle(b.SourcePath))

	// Cross the boundary while playing: the very next tick must show B
	// with no gap frame in between.
	before := len(sink.all())
	p.Play()
	p.Step(context.Background(), 2.1)

	frames := sink.all()[before:]
	require.NotEmpty(t, frames)
	for _, f := range frames {
		assert.False(t, f.Gap, "boundary crossing must not flash a gap frame")
	}
	last := frames[len(frames)-1]
	assert.Equal(t, b.ID, last.ClipID)
	assert.InDelta(t, 0.1, last.SourceTime, 1e-6)
}

func TestStopsExactlyOnceAtTimelineEnd(t *testing.T) {
	backend := newStubBackend()
	p, _, sink := newTestPlayer(t, backend)
	tl, a, _ := twoClipTimeline(t)
	p.SetTimeline(tl)

	var stops int
	p.OnStop(func() { stops++ })

	stepUntilClip(t, p, sink, a.ID)
	p.Play()

	ctx := context.Background()
	p.Step(ctx, 10)
	p.Step(ctx, 1)
	p.Step(ctx, 1)

	assert.Equal(t, 1, stops)
	assert.False(t, p.IsPlaying())
	assert.InDelta(t, 4, p.CurrentTime(), 1e-9, "clock parks at the timeline end")
}

func TestSeekWithinToleranceAvoidsRedundantSeeks(t *testing.T) {
	backend := newStubBackend()
	p, _, sink := newTestPlayer(t, backend)
	tl, a, _ := twoClipTimeline(t)
	p.SetTimeline(tl)

	stepUntilClip(t, p, sink, a.ID)
	h := backend.handle(a.SourcePath)
	require.NotNil(t, h)
	base := h.seekCount()

	// 50ms of drift rides along.
	p.Seek(0.05)
	p.Step(context.Background(), 0)
	assert.Equal(t, base, h.seekCount())

	// A real jump seeks.
	p.Seek(1.5)
	p.Step(context.Background(), 0)
	assert.Equal(t, base+1, h.seekCount())
}

func TestSupersededLoadIsDiscarded(t *testing.T) {
	backend := newStubBackend()
	gate := make(chan struct{})
	backend.block["/media/a.mp4"] = gate

	p, _, sink := newTestPlayer(t, backend)
	tl, _, b := twoClipTimeline(t)
	p.SetTimeline(tl)

	ctx := context.Background()

	// Claim the active slot for A; the open hangs on the gate.
	p.Step(ctx, 0)
	f, ok := sink.last()
	require.True(t, ok)
	require.True(t, f.Gap, "A is still loading")

	// Jump to B before A's load lands. B is instant.
	p.Seek(3)
	stepUntilClip(t, p, sink, b.ID)

	// Now let the late A result arrive; it must land in the slot that
	// still owns the A claim, never the one displaying B.
	close(gate)
	time.Sleep(20 * time.Millisecond)
	p.Step(ctx, 0)

	f, ok = sink.last()
	require.True(t, ok)
	assert.Equal(t, b.ID, f.ClipID, "late load must not write into a slot it no longer owns")
	assert.InDelta(t, 1, f.SourceTime, 1e-9)

	p.mu.Lock()
	act := p.slots[p.active]
	assert.Equal(t, b.ID, act.clipID)
	assert.True(t, act.ready)
	p.mu.Unlock()
}

func TestPlayFromEndRestartsFromTop(t *testing.T) {
	backend := newStubBackend()
	p, _, sink := newTestPlayer(t, backend)
	tl, a, _ := twoClipTimeline(t)
	p.SetTimeline(tl)

	stepUntilClip(t, p, sink, a.ID)
	p.Play()
	p.Step(context.Background(), 10)
	require.False(t, p.IsPlaying())

	p.Play()
	assert.Zero(t, p.CurrentTime())
	assert.True(t, p.IsPlaying())
}

func TestFailedLoadSurfacesErrorWithoutCrashingPlayback(t *testing.T) {
	backend := newStubBackend()
	gate := make(chan struct{})
	backend.block["/media/a.mp4"] = gate

	p, _, sink := newTestPlayer(t, backend)
	tl, _, b := twoClipTimeline(t)
	p.SetTimeline(tl)

	ctx, cancel := context.WithCancel(context.Background())
	p.Step(ctx, 0) // claims the slot for A
	cancel()       // A's load dies with the context

	require.Eventually(t, func() bool {
		return p.Err() != nil
	}, 2*time.Second, time.Millisecond)

	// The other clip still plays.
	p.Seek(3)
	stepUntilClip(t, p, sink, b.ID)
	assert.NoError(t, p.Err(), "error belongs to A, not the clip on screen")
}
