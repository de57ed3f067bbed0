// internal/browser/manager_test.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestCallExpression(t *testing.T) {
	expr, err := callExpression("  (mode, top) => mode + top\n", []interface{}{"by", 120, true, `a"b`})
	require.NoError(t, err)
	assert.Equal(t, `((mode, top) => mode + top)("by", 120, true, "a\"b")`, expr)

	expr, err = callExpression("() => 1", nil)
	require.NoError(t, err)
	assert.Equal(t, "(() => 1)()", expr)

	_, err = callExpression("(x) => x", []interface{}{make(chan int)})
	assert.ErrorContains(t, err, "argument 0")
}

func TestAllocatorFlags(t *testing.T) {
	t.Run("headless defaults", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: true, ViewportW: 1280, ViewportH: 720})
		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, "1280,720", flags["window-size"])
	})

	t.Run("headful", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Headless: false})
		assert.Equal(t, false, flags["headless"])
		assert.NotContains(t, flags, "disable-gpu")
		assert.NotContains(t, flags, "window-size")
	})

	t.Run("custom args", func(t *testing.T) {
		flags := allocatorFlags(config.BrowserConfig{Args: []string{"--lang=de-DE", "--incognito", "--", ""}})
		assert.Equal(t, "de-DE", flags["lang"])
		assert.Equal(t, true, flags["incognito"])
		assert.NotContains(t, flags, "")
	})

	t.Run("options include exec path", func(t *testing.T) {
		base := len(DefaultAllocatorOptions(config.BrowserConfig{}))
		withPath := len(DefaultAllocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium", UserDataDir: "/tmp/p"}))
		assert.Equal(t, base+2, withPath)
	})
}

func TestNavigationError(t *testing.T) {
	var err error = &NavigationError{URL: "http://nowhere.invalid", Text: "net::ERR_NAME_NOT_RESOLVED"}
	var navErr *NavigationError
	require.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &navErr))
	assert.Equal(t, "navigation to http://nowhere.invalid failed: net::ERR_NAME_NOT_RESOLVED", err.Error())
}

func TestManager_UnknownTab(t *testing.T) {
	m := NewManager(config.BrowserConfig{}, zaptest.NewLogger(t))
	ctx := context.Background()

	assert.ErrorContains(t, m.Navigate(ctx, "missing", "https://example.com"), "unknown tab")
	_, err := m.SubscribeLoadComplete(ctx, "missing")
	assert.ErrorContains(t, err, "unknown tab")
	_, err = m.RunInPage(ctx, "missing", "() => 1")
	assert.ErrorContains(t, err, "unknown tab")
	assert.ErrorContains(t, m.RemoveTab(ctx, "missing"), "unknown tab")
	// Closing a manager that never launched is a no-op.
	assert.NoError(t, m.Close(ctx))
}

func TestManager_ActiveURLDoesNotLaunch(t *testing.T) {
	m := NewManager(config.BrowserConfig{ExecPath: "/nonexistent/chrome"}, zaptest.NewLogger(t))

	_, err := m.ActiveURL(context.Background())
	assert.ErrorIs(t, err, schemas.ErrNoActivePage)
	assert.False(t, m.launched.Load(), "reporting the url must not start a browser")
	assert.Nil(t, m.rootCtx)
}

// TestManager_Integration drives a real browser. It needs Chrome and is
// enabled with WEBPILOT_BROWSER_TESTS=1.
func TestManager_Integration(t *testing.T) {
	if os.Getenv("WEBPILOT_BROWSER_TESTS") != "1" {
		t.Skip("set WEBPILOT_BROWSER_TESTS=1 to run browser integration tests")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body style="margin:0"><div style="height:5000px">tall</div></body></html>`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	m := NewManager(config.BrowserConfig{Headless: true, ViewportW: 1024, ViewportH: 768}, zaptest.NewLogger(t))
	defer m.Close(context.Background())

	tab, err := m.CreateTab(ctx)
	require.NoError(t, err)

	sub, err := m.SubscribeLoadComplete(ctx, tab)
	require.NoError(t, err)
	require.NoError(t, m.Navigate(ctx, tab, srv.URL))

	select {
	case <-sub.Done():
	case <-ctx.Done():
		t.Fatal("load event never fired")
	}

	raw, err := m.RunInPage(ctx, tab, "(a, b) => ({ sum: a + b, height: document.documentElement.scrollHeight })", 2, 3)
	require.NoError(t, err)
	var res struct {
		Sum    int `json:"sum"`
		Height int `json:"height"`
	}
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, 5, res.Sum)
	assert.GreaterOrEqual(t, res.Height, 5000)

	url, err := m.ActiveURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", url, "the created tab is the active one")

	err = m.Navigate(ctx, tab, "http://nowhere.invalid/")
	var navErr *NavigationError
	assert.True(t, errors.As(err, &navErr), "DNS failures surface as navigation errors, got %v", err)

	require.NoError(t, m.RemoveTab(ctx, tab))

	// With the tab gone the initial page is reported.
	url, err = m.ActiveURL(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, srv.URL+"/", url)
}
