// FILE: ./internal/browser/humanoid/mocks_test.go
package humanoid

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptCall records one ExecuteScript invocation.
type scriptCall struct {
	script string
	args   []interface{}
}

// mockExecutor simulates a page of a given height. Scroll scripts move its
// offset the way a browser would, clamped to [0, extent].
type mockExecutor struct {
	t  *testing.T
	mu sync.Mutex

	scrollHeight   int
	viewportHeight int
	scrollY        int

	calls          []scriptCall
	sleepDurations []time.Duration
	returnErr      error
	failOnCall     int
	callCount      int

	// Overrides replace the default behavior. They must not touch the
	// Humanoid's mutex, which is held while the mock runs.
	MockExecuteScript func(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
	MockSleep         func(ctx context.Context, d time.Duration) error
}

func newMockExecutor(t *testing.T, scrollHeight, viewportHeight int) *mockExecutor {
	return &mockExecutor{t: t, scrollHeight: scrollHeight, viewportHeight: viewportHeight}
}

func (m *mockExecutor) Sleep(ctx context.Context, d time.Duration) error {
	if m.MockSleep != nil {
		return m.MockSleep(ctx, d)
	}
	return m.DefaultSleep(ctx, d)
}

// DefaultSleep records the duration without waiting.
func (m *mockExecutor) DefaultSleep(ctx context.Context, d time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sleepDurations = append(m.sleepDurations, d)
	return nil
}

func (m *mockExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	if m.MockExecuteScript != nil {
		return m.MockExecuteScript(ctx, script, args)
	}
	return m.DefaultExecuteScript(ctx, script, args)
}

// DefaultExecuteScript answers the metrics script and applies step scripts.
func (m *mockExecutor) DefaultExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, scriptCall{script: script, args: args})
	m.callCount++
	if m.returnErr != nil && (m.failOnCall == 0 || m.callCount >= m.failOnCall) {
		return nil, m.returnErr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch script {
	case scrollMetricsJS:
		return json.Marshal(scrollMetrics{ScrollHeight: m.scrollHeight, ViewportHeight: m.viewportHeight, ScrollY: m.scrollY})
	case scrollStepJS:
		mode := args[0].(string)
		top := args[1].(int)
		if mode == stepModeTo {
			m.scrollY = top
		} else {
			m.scrollY += top
		}
		m.clamp()
		return json.RawMessage(`{"ok":true}`), nil
	}
	m.t.Errorf("unexpected script: %s", strings.SplitN(script, "\n", 2)[0])
	return json.RawMessage("null"), nil
}

func (m *mockExecutor) clamp() {
	limit := m.scrollHeight - m.viewportHeight
	if limit < 0 {
		limit = 0
	}
	if m.scrollY < 0 {
		m.scrollY = 0
	}
	if m.scrollY > limit {
		m.scrollY = limit
	}
}

// stepCalls returns the arguments of every scroll step script, in order.
func (m *mockExecutor) stepCalls() [][]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [][]interface{}
	for _, c := range m.calls {
		if c.script == scrollStepJS {
			out = append(out, c.args)
		}
	}
	return out
}

func (m *mockExecutor) sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleepDurations...)
}

func (m *mockExecutor) offset() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scrollY
}
