// internal/browser/manager.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// NavigationError is returned when the browser rejects a navigation request,
// for example on a DNS failure or a refused connection.
type NavigationError struct {
	URL  string
	Text string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %s", e.URL, e.Text)
}

// tab is one chromedp target owned by the Manager.
type tab struct {
	id     schemas.TabID
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager is the chromedp implementation of schemas.Host. The browser process
// is launched lazily on the first tab request.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	// rootCtx is the first chromedp context; it owns the browser process.
	rootCtx     context.Context
	rootCancel  context.CancelFunc
	allocCancel context.CancelFunc

	mu     sync.RWMutex
	tabs   map[schemas.TabID]*tab
	active schemas.TabID
	// launched is set once rootCtx is usable.
	launched atomic.Bool

	initOnce sync.Once
	initErr  error
}

var _ schemas.Host = (*Manager)(nil)

const shutdownGracePeriod = 10 * time.Second

// NewManager creates a browser manager. Nothing is launched until a tab is needed.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.Named("browser"),
		tabs:   make(map[schemas.TabID]*tab),
	}
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless))

		// The allocator outlives any single request, so it hangs off Background.
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), DefaultAllocatorOptions(m.cfg)...)
		rootCtx, rootCancel := chromedp.NewContext(allocCtx,
			chromedp.WithLogf(m.logger.Sugar().Debugf),
			chromedp.WithErrorf(m.logger.Sugar().Debugf),
		)

		startCtx, cancel := CombineContext(rootCtx, ctx)
		defer cancel()
		if err := chromedp.Run(startCtx); err != nil {
			rootCancel()
			allocCancel()
			m.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		m.rootCtx, m.rootCancel, m.allocCancel = rootCtx, rootCancel, allocCancel
		m.launched.Store(true)
	})
	return m.initErr
}

func (m *Manager) opTimeout() time.Duration {
	if m.cfg.OpTimeout > 0 {
		return m.cfg.OpTimeout
	}
	return 30 * time.Second
}

// run executes actions against t, bounded by ctx and the operation timeout.
func (m *Manager) run(ctx context.Context, t *tab, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	opCtx, opCancel := context.WithTimeout(runCtx, m.opTimeout())
	defer opCancel()
	return chromedp.Run(opCtx, actions...)
}

func (m *Manager) lookup(id schemas.TabID) (*tab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tabs[id]
	if !ok {
		return nil, fmt.Errorf("unknown tab %q", id)
	}
	return t, nil
}

// CreateTab opens a blank tab and brings it to the front.
func (m *Manager) CreateTab(ctx context.Context) (schemas.TabID, error) {
	if err := m.initialize(ctx); err != nil {
		return "", err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.rootCtx)
	t := &tab{ctx: tabCtx, cancel: tabCancel}
	// The first Run allocates the target.
	if err := m.run(ctx, t, page.BringToFront()); err != nil {
		tabCancel()
		return "", fmt.Errorf("failed to create tab: %w", err)
	}
	t.id = schemas.TabID(chromedp.FromContext(tabCtx).Target.TargetID)

	m.mu.Lock()
	m.tabs[t.id] = t
	m.active = t.id
	m.mu.Unlock()

	m.logger.Debug("Tab created.", zap.String("tab", string(t.id)))
	return t.id, nil
}

// Navigate issues Page.navigate and returns once the browser accepts it.
// Load completion is observed separately through SubscribeLoadComplete.
func (m *Manager) Navigate(ctx context.Context, id schemas.TabID, url string) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	var res page.NavigateReturns
	err = m.run(ctx, t, chromedp.ActionFunc(func(c context.Context) error {
		return cdp.Execute(c, page.CommandNavigate, page.Navigate(url), &res)
	}))
	if err != nil {
		return fmt.Errorf("navigate command failed: %w", err)
	}
	if res.ErrorText != "" {
		return &NavigationError{URL: url, Text: res.ErrorText}
	}
	return nil
}

// loadSubscription is a one-shot listener for Page.loadEventFired.
type loadSubscription struct {
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func (s *loadSubscription) Done() <-chan struct{} { return s.done }

// Cancel removes the listener; chromedp drops listeners whose context is done.
func (s *loadSubscription) Cancel() { s.cancel() }

func (s *loadSubscription) fire() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
	})
}

// SubscribeLoadComplete listens for the tab's next load event.
func (m *Manager) SubscribeLoadComplete(ctx context.Context, id schemas.TabID) (schemas.LoadSubscription, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	listenCtx, cancel := context.WithCancel(t.ctx)
	sub := &loadSubscription{done: make(chan struct{}), cancel: cancel}
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			sub.fire()
		}
	})
	return sub, nil
}

// RemoveTab closes the target and forgets it. Closing an unknown tab is an error.
func (m *Manager) RemoveTab(ctx context.Context, id schemas.TabID) error {
	m.mu.Lock()
	t, ok := m.tabs[id]
	delete(m.tabs, id)
	if m.active == id {
		m.active = ""
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	defer t.cancel()

	// Closing must work even when the caller's context is already done.
	closeCtx, cancel := context.WithTimeout(Detach(t.ctx), m.opTimeout())
	defer cancel()
	if err := chromedp.Run(closeCtx, page.Close()); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}
	m.logger.Debug("Tab closed.", zap.String("tab", string(id)))
	return nil
}

// RunInPage calls fn, a JavaScript function expression, with JSON encoded args
// and returns its JSON result. Promises are awaited.
func (m *Manager) RunInPage(ctx context.Context, id schemas.TabID, fn string, args ...interface{}) (json.RawMessage, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	expr, err := callExpression(fn, args)
	if err != nil {
		return nil, err
	}
	var res json.RawMessage
	err = m.run(ctx, t, chromedp.Evaluate(expr, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	}))
	if err != nil {
		return nil, fmt.Errorf("in-page evaluation failed: %w", err)
	}
	return res, nil
}

// callExpression renders "(fn)(arg0, arg1, ...)".
func callExpression(fn string, args []interface{}) (string, error) {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	return fmt.Sprintf("(%s)(%s)", strings.TrimSpace(fn), strings.Join(encoded, ", ")), nil
}

// ActiveURL reports the URL of the most recently created tab that is still
// open. Without one it reports the browser's initial page. It never launches
// the browser.
func (m *Manager) ActiveURL(ctx context.Context) (string, error) {
	if !m.launched.Load() {
		return "", schemas.ErrNoActivePage
	}
	m.mu.RLock()
	t := m.tabs[m.active]
	m.mu.RUnlock()

	var url string
	if t != nil {
		if err := m.run(ctx, t, chromedp.Location(&url)); err != nil {
			return "", fmt.Errorf("failed to read tab location: %w", err)
		}
		return url, nil
	}
	runCtx, cancel := CombineContext(m.rootCtx, ctx)
	defer cancel()
	opCtx, opCancel := context.WithTimeout(runCtx, m.opTimeout())
	defer opCancel()
	if err := chromedp.Run(opCtx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read page location: %w", err)
	}
	return url, nil
}

// Close closes every tab and shuts the browser down.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[schemas.TabID]*tab)
	m.active = ""
	m.mu.Unlock()
	m.launched.Store(false)
	for _, t := range tabs {
		t.cancel()
	}

	if m.rootCtx == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(m.rootCtx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(shutdownGracePeriod):
		err = fmt.Errorf("browser did not shut down within %s", shutdownGracePeriod)
	}
	m.rootCancel()
	m.allocCancel()
	m.logger.Info("Browser closed.")
	return err
}
