// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context derived from primary, so it keeps the CDP
// values chromedp stores there, that is also cancelled when secondary is done.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// Detach returns a context that carries ctx's values but is never cancelled by it.
// Cleanup that must outlive a cancelled run uses it.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
