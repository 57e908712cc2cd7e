package files

import (
	"context"
	"time"

	"gofile/internal/core"
)

// WaitOptions configures WaitProcessed polling.
type WaitOptions struct {
	// PollInterval between retrieves (default: 2s)
	PollInterval time.Duration
	// MaxWait bounds the total wait; 0 waits until ctx ends
	MaxWait time.Duration
}

// WaitProcessed polls Retrieve until the file leaves its pending state or
// the context ends. Upload is acknowledged before server-side processing
// finishes, so content reads immediately after Create may race processing
// on some backends; this helper closes that gap for callers that need it.
// The returned object may report status "error" - callers should check.
func (c *Client) WaitProcessed(ctx context.Context, id string, opts WaitOptions) (*core.FileObject, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}

	for {
		obj, err := c.Retrieve(ctx, id)
		if err != nil {
			return nil, err
		}
		if !isPendingStatus(obj.Status) {
			return obj, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// isPendingStatus reports whether a file status still needs polling.
// An absent status is treated as terminal: newer API versions omit the
// field entirely once uploads are immediately usable.
func isPendingStatus(status string) bool {
	switch status {
	case "", core.FileStatusProcessed, core.FileStatusError, "deleted":
		return false
	}
	return true
}
