package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// -- Fake Host --

type fakeSub struct {
	host *fakeHost
	tab  schemas.TabID
	done chan struct{}
	once sync.Once
}

func (s *fakeSub) Done() <-chan struct{} { return s.done }

func (s *fakeSub) Cancel() {
	s.host.mu.Lock()
	defer s.host.mu.Unlock()
	s.host.removeSubLocked(s)
}

// fakeHost simulates a browser with one page model per tab. Load events fire
// on Navigate when autoLoad is set, otherwise when the test calls fireLoad.
type fakeHost struct {
	mu sync.Mutex

	calls   []string
	nextTab int
	open    map[schemas.TabID]bool
	subs    []*fakeSub

	autoLoad  bool
	createErr error
	navErr    error
	scriptErr error

	scrollHeight   int
	viewportHeight int
	scrollY        int

	// navigated receives every URL passed to Navigate.
	navigated chan string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		open:           make(map[schemas.TabID]bool),
		autoLoad:       true,
		scrollHeight:   1800,
		viewportHeight: 600,
		navigated:      make(chan string, 32),
	}
}

func (h *fakeHost) record(format string, args ...interface{}) {
	h.calls = append(h.calls, fmt.Sprintf(format, args...))
}

func (h *fakeHost) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

func (h *fakeHost) OpenTabs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.open)
}

func (h *fakeHost) ActiveSubs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *fakeHost) removeSubLocked(s *fakeSub) {
	for i, sub := range h.subs {
		if sub == s {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			return
		}
	}
}

func (h *fakeHost) fireLocked(tab schemas.TabID) {
	remaining := h.subs[:0]
	for _, s := range h.subs {
		if s.tab == tab {
			s.once.Do(func() { close(s.done) })
			continue
		}
		remaining = append(remaining, s)
	}
	h.subs = remaining
}

// fireLoad delivers a load event to every listener on tab.
func (h *fakeHost) fireLoad(tab schemas.TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fireLocked(tab)
}

func (h *fakeHost) CreateTab(ctx context.Context) (schemas.TabID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("CreateTab")
	if h.createErr != nil {
		return "", h.createErr
	}
	h.nextTab++
	id := schemas.TabID(fmt.Sprintf("tab-%d", h.nextTab))
	h.open[id] = true
	h.scrollY = 0
	return id, nil
}

func (h *fakeHost) Navigate(ctx context.Context, tab schemas.TabID, url string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Navigate %s %s", tab, url)
	if !h.open[tab] {
		return fmt.Errorf("unknown tab %q", tab)
	}
	if h.navErr != nil {
		return h.navErr
	}
	select {
	case h.navigated <- url:
	default:
	}
	h.scrollY = 0
	if h.autoLoad {
		h.fireLocked(tab)
	}
	return nil
}

func (h *fakeHost) SubscribeLoadComplete(ctx context.Context, tab schemas.TabID) (schemas.LoadSubscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("Subscribe %s", tab)
	if !h.open[tab] {
		return nil, fmt.Errorf("unknown tab %q", tab)
	}
	s := &fakeSub{host: h, tab: tab, done: make(chan struct{})}
	h.subs = append(h.subs, s)
	return s, nil
}

func (h *fakeHost) RemoveTab(ctx context.Context, tab schemas.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("RemoveTab %s", tab)
	if !h.open[tab] {
		return fmt.Errorf("unknown tab %q", tab)
	}
	delete(h.open, tab)
	return nil
}

func (h *fakeHost) RunInPage(ctx context.Context, tab schemas.TabID, fn string, args ...interface{}) (json.RawMessage, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.scriptErr != nil {
		return nil, h.scriptErr
	}
	if !h.open[tab] {
		return nil, fmt.Errorf("execution context was destroyed")
	}
	if len(args) == 0 {
		h.record("Metrics %s", tab)
		return json.Marshal(map[string]int{
			"scrollHeight":   h.scrollHeight,
			"viewportHeight": h.viewportHeight,
			"scrollY":        h.scrollY,
		})
	}

	mode, _ := args[0].(string)
	top, _ := args[1].(int)
	h.record("Scroll %s %s %d", tab, mode, top)
	if mode == "to" {
		h.scrollY = top
	} else {
		h.scrollY += top
	}
	extent := h.scrollHeight - h.viewportHeight
	if h.scrollY > extent {
		h.scrollY = extent
	}
	if h.scrollY < 0 {
		h.scrollY = 0
	}
	return json.RawMessage("null"), nil
}

func (h *fakeHost) ActiveURL(ctx context.Context) (string, error) { return "about:blank", nil }
func (h *fakeHost) Close(ctx context.Context) error            { return nil }

// -- In-memory Store --

type memStore struct {
	mu      sync.Mutex
	snap    schemas.RunSnapshot
	history []schemas.RunSnapshot
}

func (s *memStore) Load(ctx context.Context) (schemas.RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, nil
}

func (s *memStore) Save(ctx context.Context, snap schemas.RunSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
	s.history = append(s.history, snap)
	return nil
}

func (s *memStore) Snapshot() schemas.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *memStore) History() []schemas.RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]schemas.RunSnapshot(nil), s.history...)
}

// -- Mock Store --

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Load(ctx context.Context) (schemas.RunSnapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.RunSnapshot), args.Error(1)
}

func (m *mockStore) Save(ctx context.Context, snap schemas.RunSnapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

// -- Config --

// testConfig returns a config with every pad set to zero and millisecond
// wheel pauses so runs finish quickly.
func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.ExecutorCfg = config.ExecutorConfig{}
	cfg.HumanoidCfg = config.HumanoidConfig{
		WheelDistanceMin:   100,
		WheelDistanceMax:   200,
		WheelIntervalMinMs: 1,
		WheelIntervalMaxMs: 2,
		SmoothPosition:     true,
	}
	return cfg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
