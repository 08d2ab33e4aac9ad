package nodes

import (
	"context"
	"errors"
	"time"

	"github.com/flowcraft/chatagent/internal/graph/interrupt"
)

// contextWithTimeout derives a deadline-bound context for a blocking HITL
// wait. Split out from withHITLDeadline only so each WaitX call site names
// its own deadline helper without duplicating the zero-value fallback.
func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}

// classifyHITLWait turns a Controller wait's error into either
// interrupt.ErrLongPollTimeout (so Execute routes to status=timeout, spec
// §5) or the original error, unwrapped of the context package's own
// DeadlineExceeded so callers only ever see the one sentinel.
func classifyHITLWait(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return interrupt.ErrLongPollTimeout
	}
	return err
}
