package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// testEnv is an isolated config file plus state directory.
type testEnv struct {
	dir        string
	configPath string
	statePath  string
}

func newTestEnv(t *testing.T, extra string) testEnv {
	t.Helper()
	dir := t.TempDir()
	env := testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		statePath:  filepath.Join(dir, "state.json"),
	}
	content := fmt.Sprintf(`
logger:
  level: error
  log_file: %q
store:
  backend: file
  path: %q
executor:
  post_load_buffer: 0s
  position_settle: 0s
  wheel_settle: 0s
%s`, filepath.Join(dir, "webpilot.log"), env.statePath, extra)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0o644))
	return env
}

// executeCommand runs a fresh command tree with the env's config file.
func (e testEnv) executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeProgram(t *testing.T, dir, name string, program schemas.Program) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := schemas.Encode(program, schemas.FormatFromPath(path))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// stubHost is a browser that opens tabs and nothing else; navigation and
// page scripts fail.
type stubHost struct {
	mu      sync.Mutex
	next    int
	open    map[schemas.TabID]bool
	created int
	closed  bool
}

func newStubHost() *stubHost {
	return &stubHost{open: make(map[schemas.TabID]bool)}
}

func (h *stubHost) CreateTab(ctx context.Context) (schemas.TabID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.created++
	id := schemas.TabID(fmt.Sprintf("tab-%d", h.next))
	h.open[id] = true
	return id, nil
}

func (h *stubHost) Navigate(ctx context.Context, tab schemas.TabID, url string) error {
	return errors.New("net::ERR_NAME_NOT_RESOLVED")
}

func (h *stubHost) SubscribeLoadComplete(ctx context.Context, tab schemas.TabID) (schemas.LoadSubscription, error) {
	return stubSubscription{done: make(chan struct{})}, nil
}

func (h *stubHost) RemoveTab(ctx context.Context, tab schemas.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.open, tab)
	return nil
}

func (h *stubHost) RunInPage(ctx context.Context, tab schemas.TabID, fn string, args ...interface{}) (json.RawMessage, error) {
	return nil, errors.New("no page")
}

func (h *stubHost) ActiveURL(ctx context.Context) (string, error) {
	return "about:blank", nil
}

func (h *stubHost) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *stubHost) openTabs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

type stubSubscription struct{ done chan struct{} }

func (s stubSubscription) Done() <-chan struct{} { return s.done }
func (s stubSubscription) Cancel()               {}

// useStubHost swaps the browser factory for the duration of the test.
func useStubHost(t *testing.T) *stubHost {
	t.Helper()
	host := newStubHost()
	original := newHost
	newHost = func(config.BrowserConfig, *zap.Logger) schemas.Host { return host }
	t.Cleanup(func() { newHost = original })
	return host
}
