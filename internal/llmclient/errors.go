package llmclient

import (
	"context"
	"errors"
	"net"
)

// Transport-level failures of the model gateway. Callers retry these with
// backoff before escalating into PlanningError or a sub-task failure.
var (
	// ErrModelUnavailable marks transport errors and provider-side
	// failures (5xx, quota exhaustion after retries).
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrModelTimeout marks calls that exceeded the configured deadline.
	ErrModelTimeout = errors.New("model timeout")
)

// classifyTransportError folds an error from an HTTP or SDK call into the
// gateway taxonomy, keeping the original as the wrapped cause.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrModelTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrModelTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return errors.Join(ErrModelUnavailable, err)
}
