// File: internal/control/types.go
package control

import (
	"context"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Command names accepted by POST /api/v1/command.
const (
	CmdStart      = "start"
	CmdStop       = "stop"
	CmdSave       = "save"
	CmdStatus     = "status"
	CmdCurrentURL = "current-url"
)

// CommandRequest is the body of POST /api/v1/command.
type CommandRequest struct {
	Command string          `json:"command"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// CommandResponse is returned for every command, successful or not.
type CommandResponse struct {
	Success bool        `json:"success"`
	Status  string      `json:"status"` // "success" or "error"
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ProgramParams carries the program for start and save. For start, an
// absent program means the last saved one.
type ProgramParams struct {
	Program json.RawMessage `json:"program,omitempty"`
}

// URLResult answers current-url.
type URLResult struct {
	URL string `json:"url"`
}

// StatusMessage is one frame of the /ws/v1/status stream.
type StatusMessage struct {
	Type      string               `json:"type"` // "snapshot" or "event"
	Snapshot  *schemas.RunSnapshot `json:"snapshot,omitempty"`
	Event     *schemas.RunEvent    `json:"event,omitempty"`
	Timestamp string               `json:"timestamp"`
}

// Controller is the executor as seen by the control surface.
type Controller interface {
	Start(ctx context.Context, program schemas.Program) error
	StartSaved(ctx context.Context) error
	Stop(ctx context.Context) error
	Save(ctx context.Context, program schemas.Program) error
	Status(ctx context.Context) (schemas.RunSnapshot, error)
	Subscribe() (<-chan schemas.RunEvent, func())
}

// URLSource reports the browser's active page.
type URLSource interface {
	ActiveURL(ctx context.Context) (string, error)
}
