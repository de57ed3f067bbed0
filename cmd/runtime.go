// File: cmd/runtime.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/browser/rodhost"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/engine"
	"github.com/xkilldash9x/webpilot/internal/store"
)

const componentShutdownTimeout = 30 * time.Second

// Injection points for tests.
var (
	newHost   = defaultHost
	openStore = store.Open
)

func defaultHost(cfg config.BrowserConfig, logger *zap.Logger) schemas.Host {
	if cfg.Driver == config.DriverRod {
		return rodhost.New(cfg, logger)
	}
	return browser.NewManager(cfg, logger)
}

// components is everything a process needs to execute programs.
type components struct {
	Host     schemas.Host
	Store    store.Store
	Executor *engine.Executor
	Registry *prometheus.Registry
	logger   *zap.Logger
}

// initializeComponents opens the store, prepares the browser host and builds
// the executor. The browser itself starts lazily on the first tab.
func initializeComponents(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*components, error) {
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run-state store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	host := newHost(cfg.Browser(), logger)
	exec, err := engine.New(cfg, logger, host, st, engine.WithMetrics(engine.MustNewMetrics(reg)))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	return &components{Host: host, Store: st, Executor: exec, Registry: reg, logger: logger}, nil
}

// Shutdown stops the executor, then the browser, then the store.
func (c *components) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), componentShutdownTimeout)
	defer cancel()

	if err := c.Executor.Shutdown(ctx); err != nil {
		c.logger.Error("Executor shutdown error", zap.Error(err))
	}
	if err := c.Host.Close(ctx); err != nil {
		c.logger.Error("Browser shutdown error", zap.Error(err))
	}
	if err := c.Store.Close(); err != nil {
		c.logger.Error("Store close error", zap.Error(err))
	}
}

// readProgramFile loads a program document, accepting legacy URL lists, and
// validates it.
func readProgramFile(path string) (schemas.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program file: %w", err)
	}
	program, err := schemas.Import(data, schemas.FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := program.Validate(); err != nil {
		return nil, err
	}
	return program, nil
}
