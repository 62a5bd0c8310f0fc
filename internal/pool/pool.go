// Package pool implements the bounded media-buffer pool: a fixed
// number of loaded, seekable handles keyed by clip id, with LRU
// eviction when the capacity bound is hit.
package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/playcut/internal/media"
)

var (
	ErrNotFound = errors.New("no pool entry for clip")
	ErrReleased = errors.New("entry released before load completed")
)

// Stats is the pool occupancy snapshot exposed to the UI layer.
type Stats struct {
	Count    int
	Capacity int
}

// Entry is one loaded buffer. The pool owns it exclusively; borrowers
// must not retain the handle past eviction.
type Entry struct {
	ClipID       string
	SizeEstimate int64

	mu       sync.Mutex
	handle   media.Handle
	lastUsed time.Time
	seq      uint64
	ready    bool
	err      error
	done     chan struct{}
	cancel   context.CancelFunc
}

// Handle returns the loaded media handle, nil until the entry is ready.
func (e *Entry) Handle() media.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handle
}

// Ready reports whether metadata has loaded and the handle is usable.
func (e *Entry) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// Err returns the terminal load error, if the load failed.
func (e *Entry) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Wait blocks until the load settles or the context is canceled.
func (e *Entry) Wait(ctx context.Context) error {
	select {
	case <-e.done:
		return e.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool is the fixed-capacity cache. Bookkeeping mutations are
// serialized behind one mutex; the mutex is never held across the
// asynchronous open itself.
type Pool struct {
	logger   zerolog.Logger
	backend  media.Backend
	capacity int

	mu      sync.Mutex
	entries map[string]*Entry
	nextSeq uint64
}

// New creates an empty pool over the given backend.
func New(logger zerolog.Logger, backend media.Backend, capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{
		logger:   logger.With().Str("component", "pool").Logger(),
		backend:  backend,
		capacity: capacity,
		entries:  make(map[string]*Entry),
	}
}

// Get returns the existing entry for a clip and refreshes its LRU
// position, or false when the clip is not pooled.
func (p *Pool) Get(clipID string) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[clipID]
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
	return e, true
}

// Acquire returns the entry for a clip, creating one if needed. A new
// entry starts loading asynchronously: the source is opened and its
// metadata read in the background, and the entry becomes ready when
// that completes. At capacity the least-recently-used entry is evicted
// first, ties broken by insertion order.
func (p *Pool) Acquire(ctx context.Context, clipID, source string) *Entry {
	p.mu.Lock()

	if e, ok := p.entries[clipID]; ok {
		e.mu.Lock()
		e.lastUsed = time.Now()
		e.mu.Unlock()
		p.mu.Unlock()
		return e
	}

	if len(p.entries) >= p.capacity {
		p.evictOldestLocked()
	}

	loadCtx, cancel := context.WithCancel(ctx)
	p.nextSeq++
	e := &Entry{
		ClipID:   clipID,
		lastUsed: time.Now(),
		seq:      p.nextSeq,
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	p.entries[clipID] = e
	p.mu.Unlock()

	go p.load(loadCtx, e, source)
	return e
}

// load opens the source off the pool lock and publishes the result,
// unless the entry was evicted or released while the open was in
// flight.
func (p *Pool) load(ctx context.Context, e *Entry, source string) {
	handle, err := media.OpenWithRetry(ctx, p.backend, e.ClipID, source)

	p.mu.Lock()
	current := p.entries[e.ClipID] == e
	if err != nil && current {
		// Failed loads leave no entry behind.
		delete(p.entries, e.ClipID)
	}
	p.mu.Unlock()

	e.mu.Lock()
	switch {
	case err != nil && current:
		e.err = err
	case err != nil, !current:
		e.err = ErrReleased
	default:
		e.handle = handle
		e.ready = true
		e.SizeEstimate = estimateSize(handle.Metadata())
	}
	e.mu.Unlock()
	close(e.done)

	if err == nil && !current {
		// Superseded while loading; the handle belongs to nobody.
		_ = handle.Close()
		return
	}

	if err != nil {
		p.logger.Warn().Str("clip", e.ClipID).Err(err).Msg("media load failed")
	} else {
		p.logger.Debug().Str("clip", e.ClipID).Str("source", source).Msg("media loaded")
	}
}

// estimateSize guesses the decode-buffer footprint of a source from its
// dimensions, for pressure accounting.
func estimateSize(meta media.Metadata) int64 {
	// A few RGBA frames' worth per open handle.
	return int64(meta.Width) * int64(meta.Height) * 4 * 3
}

// Release evicts a clip's entry regardless of capacity, canceling any
// in-flight load.
func (p *Pool) Release(clipID string) {
	p.mu.Lock()
	e, ok := p.entries[clipID]
	if ok {
		delete(p.entries, clipID)
	}
	p.mu.Unlock()

	if ok {
		p.closeEntry(e)
	}
}

// ReleaseAllExcept shrinks the pool to a minimal working set, keeping
// only the named clips. Called under critical memory pressure.
func (p *Pool) ReleaseAllExcept(keep ...string) {
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	p.mu.Lock()
	var victims []*Entry
	for id, e := range p.entries {
		if !keepSet[id] {
			victims = append(victims, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()

	for _, e := range victims {
		p.closeEntry(e)
	}
	if len(victims) > 0 {
		p.logger.Info().Int("evicted", len(victims)).Msg("pool shrunk to working set")
	}
}

// IsReady reports whether a clip's buffer is loaded and usable.
func (p *Pool) IsReady(clipID string) bool {
	p.mu.Lock()
	e, ok := p.entries[clipID]
	p.mu.Unlock()
	return ok && e.Ready()
}

// Stats returns current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Count: len(p.entries), Capacity: p.capacity}
}

// Close releases every entry. The pool is unusable afterwards only by
// convention; a session owns exactly one pool and tears it down once.
func (p *Pool) Close() {
	p.mu.Lock()
	victims := make([]*Entry, 0, len(p.entries))
	for id, e := range p.entries {
		victims = append(victims, e)
		delete(p.entries, id)
	}
	p.mu.Unlock()

	for _, e := range victims {
		p.closeEntry(e)
	}
}

// evictOldestLocked removes the entry with the oldest lastUsed stamp.
// Caller holds p.mu.
func (p *Pool) evictOldestLocked() {
	var victim *Entry
	for _, e := range p.entries {
		if victim == nil {
			victim = e
			continue
		}
		e.mu.Lock()
		eUsed, eSeq := e.lastUsed, e.seq
		e.mu.Unlock()
		victim.mu.Lock()
		vUsed, vSeq := victim.lastUsed, victim.seq
		victim.mu.Unlock()

		if eUsed.Before(vUsed) || (eUsed.Equal(vUsed) && eSeq < vSeq) {
			victim = e
		}
	}
	if victim == nil {
		return
	}

	delete(p.entries, victim.ClipID)
	p.logger.Debug().Str("clip", victim.ClipID).Msg("evicting least recently used entry")
	go p.closeEntry(victim)
}

// closeEntry cancels any in-flight load and closes the handle once the
// load has settled.
func (p *Pool) closeEntry(e *Entry) {
	e.cancel()
	<-e.done

	e.mu.Lock()
	handle := e.handle
	e.handle = nil
	e.ready = false
	e.mu.Unlock()

	if handle != nil {
		_ = handle.Close()
	}
}
