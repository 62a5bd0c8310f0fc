package pool

import "context"

// Preload warms the buffer for a clip without waiting on the result.
// This is the loader side of the preload scheduler.
func (p *Pool) Preload(ctx context.Context, clipID, source string) {
	p.Acquire(ctx, clipID, source)
}
