// internal/browser/humanoid/interface.go
package humanoid

import (
	"context"
	"encoding/json"
	"time"
)

// Executor is the page context the simulator acts on. Scripts are function
// expressions; args are JSON encoded and passed positionally.
type Executor interface {
	Sleep(ctx context.Context, d time.Duration) error
	ExecuteScript(ctx context.Context, script string, args []interface{}) (json.RawMessage, error)
}

// Scroller is implemented by *Humanoid.
type Scroller interface {
	Scroll(ctx context.Context, req ScrollRequest) (ScrollReport, error)
}
