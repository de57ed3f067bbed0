// Package rodhost implements schemas.Host on top of go-rod. It is selected with
// browser.driver = "rod" and behaves like the chromedp manager.
package rodhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// windowSize has no named constant in the flags package.
const windowSize flags.Flag = "window-size"

// Host drives a Chrome instance through go-rod.
type Host struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu       sync.RWMutex
	launch   *launcher.Launcher
	browser  *rod.Browser
	pages    map[schemas.TabID]*rod.Page
	active   schemas.TabID
	initOnce sync.Once
	initErr  error
}

var _ schemas.Host = (*Host)(nil)

// New returns a Host. The browser is launched on first use.
func New(cfg config.BrowserConfig, logger *zap.Logger) *Host {
	return &Host{
		cfg:    cfg,
		logger: logger.Named("rod"),
		pages:  make(map[schemas.TabID]*rod.Page),
	}
}

// newLauncher translates the browser config into launcher settings.
func newLauncher(cfg config.BrowserConfig) *launcher.Launcher {
	l := launcher.New().Headless(cfg.Headless).Leakless(false)
	if cfg.ExecPath != "" {
		l = l.Bin(cfg.ExecPath)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.ViewportW > 0 && cfg.ViewportH > 0 {
		l = l.Set(windowSize, fmt.Sprintf("%d,%d", cfg.ViewportW, cfg.ViewportH))
	}
	for _, raw := range cfg.Args {
		name := strings.TrimLeft(raw, "-")
		if name == "" {
			continue
		}
		if key, val, ok := strings.Cut(name, "="); ok {
			l = l.Set(flags.Flag(key), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

func (h *Host) initialize(ctx context.Context) error {
	h.initOnce.Do(func() {
		h.logger.Info("Launching browser.", zap.Bool("headless", h.cfg.Headless))
		l := newLauncher(h.cfg)
		controlURL, err := l.Launch()
		if err != nil {
			h.initErr = fmt.Errorf("failed to launch browser: %w", err)
			return
		}
		// The connection outlives the request that triggered the launch.
		b := rod.New().ControlURL(controlURL)
		if err := b.Connect(); err != nil {
			l.Kill()
			h.initErr = fmt.Errorf("failed to connect to browser: %w", err)
			return
		}
		h.mu.Lock()
		h.launch, h.browser = l, b
		h.mu.Unlock()
	})
	return h.initErr
}

func (h *Host) opTimeout() time.Duration {
	if h.cfg.OpTimeout > 0 {
		return h.cfg.OpTimeout
	}
	return 30 * time.Second
}

func (h *Host) lookup(id schemas.TabID) (*rod.Page, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.pages[id]
	if !ok {
		return nil, fmt.Errorf("unknown tab %q", id)
	}
	return p, nil
}

// CreateTab opens a blank page and activates it.
func (h *Host) CreateTab(ctx context.Context) (schemas.TabID, error) {
	if err := h.initialize(ctx); err != nil {
		return "", err
	}
	opCtx, cancel := context.WithTimeout(ctx, h.opTimeout())
	defer cancel()

	p, err := h.browser.Context(opCtx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("failed to create tab: %w", err)
	}
	if _, err := p.Activate(); err != nil {
		_ = p.Close()
		return "", fmt.Errorf("failed to activate tab: %w", err)
	}
	// Drop the op context so later calls are not bound to it.
	p = p.Context(context.Background())

	id := schemas.TabID(p.TargetID)
	h.mu.Lock()
	h.pages[id] = p
	h.active = id
	h.mu.Unlock()
	h.logger.Debug("Tab created.", zap.String("tab", string(id)))
	return id, nil
}

// Navigate issues the navigation without waiting for load.
func (h *Host) Navigate(ctx context.Context, id schemas.TabID, url string) error {
	p, err := h.lookup(id)
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, h.opTimeout())
	defer cancel()

	if err := p.Context(opCtx).Navigate(url); err != nil {
		var navErr *rod.NavigationError
		if errors.As(err, &navErr) {
			return &browser.NavigationError{URL: url, Text: navErr.Reason}
		}
		return fmt.Errorf("navigate command failed: %w", err)
	}
	return nil
}

type loadSubscription struct {
	done   chan struct{}
	cancel context.CancelFunc
}

func (s *loadSubscription) Done() <-chan struct{} { return s.done }
func (s *loadSubscription) Cancel()               { s.cancel() }

// SubscribeLoadComplete registers for the next Page.loadEventFired. The
// listener is attached before this returns.
func (h *Host) SubscribeLoadComplete(ctx context.Context, id schemas.TabID) (schemas.LoadSubscription, error) {
	p, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	sub := &loadSubscription{done: make(chan struct{}), cancel: cancel}

	wait := p.Context(listenCtx).WaitEvent(&proto.PageLoadEventFired{})
	go func() {
		wait()
		// wait also returns on cancellation, which must not count as a load.
		if listenCtx.Err() == nil {
			close(sub.done)
		}
		cancel()
	}()
	return sub, nil
}

// RemoveTab closes the page.
func (h *Host) RemoveTab(ctx context.Context, id schemas.TabID) error {
	h.mu.Lock()
	p, ok := h.pages[id]
	delete(h.pages, id)
	if h.active == id {
		h.active = ""
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown tab %q", id)
	}
	closeCtx, cancel := context.WithTimeout(browser.Detach(ctx), h.opTimeout())
	defer cancel()
	if err := p.Context(closeCtx).Close(); err != nil {
		return fmt.Errorf("failed to close tab %s: %w", id, err)
	}
	h.logger.Debug("Tab closed.", zap.String("tab", string(id)))
	return nil
}

// RunInPage evaluates fn with args and returns the result by value.
func (h *Host) RunInPage(ctx context.Context, id schemas.TabID, fn string, args ...interface{}) (json.RawMessage, error) {
	p, err := h.lookup(id)
	if err != nil {
		return nil, err
	}
	opCtx, cancel := context.WithTimeout(ctx, h.opTimeout())
	defer cancel()

	res, err := p.Context(opCtx).Evaluate(&rod.EvalOptions{
		JS:           strings.TrimSpace(fn),
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("in-page evaluation failed: %w", err)
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	return raw, nil
}

// ActiveURL returns the URL of the most recently created tab that is still
// open, or of the first page the browser reports when there is none. It never
// launches the browser.
func (h *Host) ActiveURL(ctx context.Context) (string, error) {
	h.mu.RLock()
	b := h.browser
	active := h.pages[h.active]
	h.mu.RUnlock()
	if b == nil {
		return "", schemas.ErrNoActivePage
	}
	opCtx, cancel := context.WithTimeout(ctx, h.opTimeout())
	defer cancel()

	p := active
	if p == nil {
		pages, err := b.Context(opCtx).Pages()
		if err != nil {
			return "", fmt.Errorf("failed to list pages: %w", err)
		}
		if len(pages) == 0 {
			return "", schemas.ErrNoActivePage
		}
		p = pages.First()
	}
	info, err := p.Context(opCtx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// Close disconnects and kills the launched process.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	h.pages = make(map[schemas.TabID]*rod.Page)
	h.active = ""
	b, l := h.browser, h.launch
	h.mu.Unlock()
	if b == nil {
		return nil
	}
	err := b.Context(ctx).Close()
	l.Kill()
	if h.cfg.UserDataDir == "" {
		// Removes the temporary profile the launcher created.
		l.Cleanup()
	}
	h.logger.Info("Browser closed.")
	return err
}
