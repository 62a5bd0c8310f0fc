package media

import (
	"context"
	"time"
)

// retryDelays absorbs the race where a just-written file is not yet
// readable: five attempts, spaced out enough for the writer to flush.
var retryDelays = []time.Duration{
	200 * time.Millisecond,
	500 * time.Millisecond,
	800 * time.Millisecond,
	1100 * time.Millisecond,
	1400 * time.Millisecond,
}

// OpenWithRetry opens a handle, retrying transient failures with the
// bounded backoff schedule. The returned error after the final attempt
// is a LoadError tagged with the requesting clip.
func OpenWithRetry(ctx context.Context, backend Backend, clipID, path string) (Handle, error) {
	var lastErr error

	for _, delay := range retryDelays {
		handle, err := backend.OpenHandle(ctx, path)
		if err == nil {
			return handle, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, &LoadError{ClipID: clipID, Path: path, Err: lastErr}
}

// ProbeWithRetry probes a file under the same backoff schedule, for
// import paths racing a file still being written.
func ProbeWithRetry(ctx context.Context, backend Backend, path string) (Metadata, error) {
	var lastErr error

	for _, delay := range retryDelays {
		meta, err := backend.Probe(ctx, path)
		if err == nil {
			return meta, nil
		}
		if ctx.Err() != nil {
			return Metadata{}, ctx.Err()
		}
		lastErr = err

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}

	return Metadata{}, &LoadError{Path: path, Err: lastErr}
}
