package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/browser/humanoid"
)

// pageExecutor adapts one host tab to humanoid.Executor so the scroll
// simulator stays independent of the browser driver.
type pageExecutor struct {
	host schemas.Host
	tab  schemas.TabID
}

var _ humanoid.Executor = (*pageExecutor)(nil)

func newPageExecutor(host schemas.Host, tab schemas.TabID) *pageExecutor {
	return &pageExecutor{host: host, tab: tab}
}

func (p *pageExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

func (p *pageExecutor) ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error) {
	return p.host.RunInPage(ctx, p.tab, script, args...)
}
