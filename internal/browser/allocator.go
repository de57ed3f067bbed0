package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// allocatorFlags computes the Chrome command line switches for cfg. Extra
// args are given as "--name" or "--name=value".
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                      cfg.Headless,
		"hide-scrollbars":               cfg.Headless,
		"mute-audio":                    true,
		"no-first-run":                  true,
		"no-default-browser-check":      true,
		"disable-background-networking": true,
		"disable-popup-blocking":        true,
		"disable-sync":                  true,
		"enable-automation":             false,
	}
	if cfg.Headless {
		flags["disable-gpu"] = true
	}
	if cfg.ViewportW > 0 && cfg.ViewportH > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.ViewportW, cfg.ViewportH)
	}
	for _, arg := range cfg.Args {
		name := strings.TrimLeft(arg, "-")
		if name == "" {
			continue
		}
		if key, value, ok := strings.Cut(name, "="); ok {
			flags[key] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for cfg.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoDefaultBrowserCheck,
		chromedp.NoFirstRun,
	}
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	return opts
}
