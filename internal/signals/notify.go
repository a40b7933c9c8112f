package signals

import (
	"context"
	"os/signal"
)

// NotifyContext returns a copy of parent that is cancelled on the first
// shutdown signal. A second signal falls through to the default handler
// once stop has been called.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, ShutdownSignals()...)
}
