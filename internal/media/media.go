// Package media is the boundary to the media backend: probing files,
// opening seekable playback handles, and generating preview proxies.
// Decoding itself happens behind the Backend; the engine only ever sees
// metadata and handle state.
package media

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrFileNotFound     = errors.New("file does not exist")
	ErrUnsupportedMedia = errors.New("unsupported media format")
	ErrNoVideoStream    = errors.New("no video stream found")
	ErrHandleClosed     = errors.New("handle is closed")
)

// Metadata describes a probed media file.
type Metadata struct {
	Path       string
	Duration   float64
	Width      int
	Height     int
	FPS        float64
	Codec      string
	HasAudio   bool
	AudioCodec string
	Bitrate    int64
	FileSize   int64
}

// Handle is a loaded, seekable media resource. Implemented once per
// backend; the engine never reaches around it to the decoder.
type Handle interface {
	Metadata() Metadata
	Seek(t float64) error
	Play() error
	Pause() error
	CurrentTime() float64
	Close() error
}

// Backend produces metadata and handles for source files.
type Backend interface {
	Probe(ctx context.Context, path string) (Metadata, error)
	OpenHandle(ctx context.Context, path string) (Handle, error)
	ReadBytes(ctx context.Context, path string) ([]byte, error)
}

// LoadError is a terminal media-load failure tagged with the clip that
// requested it, so stale errors from superseded loads stay attributable.
type LoadError struct {
	ClipID string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed for clip %s (%s): %v", e.ClipID, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
