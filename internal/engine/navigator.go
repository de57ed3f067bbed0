// internal/engine/navigator.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Navigator loads a URL in a tab and waits for the page's load event.
type Navigator struct {
	host   schemas.Host
	buffer time.Duration
	logger *zap.Logger
}

// NewNavigator returns a Navigator that pauses for buffer after every load,
// giving late in-page scripts time to run.
func NewNavigator(host schemas.Host, buffer time.Duration, logger *zap.Logger) *Navigator {
	return &Navigator{host: host, buffer: buffer, logger: logger.Named("navigator")}
}

// Goto navigates tab to url and returns after the first load-complete event
// plus the buffer. The listener is registered before the navigation is issued
// so a fast load cannot be missed, and it is released on every return path.
//
// There is no load timeout: a page that never finishes loading blocks until
// ctx is cancelled.
func (n *Navigator) Goto(ctx context.Context, tab schemas.TabID, url string) error {
	sub, err := n.host.SubscribeLoadComplete(ctx, tab)
	if err != nil {
		return fmt.Errorf("failed to subscribe to load events: %w", err)
	}
	defer sub.Cancel()

	n.logger.Debug("Navigating.", zap.String("tab", string(tab)), zap.String("url", url))
	if err := n.host.Navigate(ctx, tab, url); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	select {
	case <-sub.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	n.logger.Debug("Page loaded.", zap.String("url", url))

	return sleep(ctx, n.buffer)
}

// sleep pauses for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
