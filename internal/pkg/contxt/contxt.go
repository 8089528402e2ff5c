package contxt

import (
	"context"
	"time"
)

// NewContext returns a context that expires after timeout. A zero or
// negative timeout returns a plain background context, which keeps
// scheduled jobs interruptible in tests.
func NewContext(timeout time.Duration) context.Context {
	if timeout <= 0 {
		return context.Background()
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ctx
}
