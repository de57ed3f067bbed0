package schemas

import (
	"context"
	"encoding/json"
	"time"
)

// -- Host Interfaces --

// TabID is an opaque reference to a browser tab owned by a Host.
type TabID string

// LoadSubscription is a one-shot notification for a tab's next "load complete"
// event. It fires at most once and releases its listener when it fires or when
// Cancel is called, whichever happens first.
type LoadSubscription interface {
	// Done is closed when the load event arrives.
	Done() <-chan struct{}
	// Cancel releases the listener. Safe to call more than once.
	Cancel()
}

// Host is the browser the executor drives. Every operation may fail and may
// block for an unbounded time; callers bound them with the context.
type Host interface {
	// CreateTab opens a blank tab and makes it the active one.
	CreateTab(ctx context.Context) (TabID, error)
	// Navigate issues a navigation command. It returns once the browser has
	// accepted or rejected the request, not when the page has loaded.
	Navigate(ctx context.Context, tab TabID, url string) error
	// SubscribeLoadComplete registers a one-shot listener for the tab's next load event.
	SubscribeLoadComplete(ctx context.Context, tab TabID) (LoadSubscription, error)
	// RemoveTab closes the tab.
	RemoveTab(ctx context.Context, tab TabID) error
	// RunInPage evaluates a function expression in the tab's page context with
	// JSON-encodable arguments and returns the JSON result.
	RunInPage(ctx context.Context, tab TabID, fn string, args ...interface{}) (json.RawMessage, error)
	// ActiveURL reports the URL of the browser's currently active tab.
	ActiveURL(ctx context.Context) (string, error)
	// Close shuts the browser down.
	Close(ctx context.Context) error
}

// -- Run State --

// RunSnapshot is the durable part of the run state. The step cursor is
// deliberately absent: a recovered run always restarts from the first step.
type RunSnapshot struct {
	Program   Program `json:"program"`
	IsRunning bool    `json:"isRunning"`
}

// RunEventType names a run lifecycle transition.
type RunEventType string

const (
	EventRunStarted   RunEventType = "run_started"
	EventStepStarted  RunEventType = "step_started"
	EventStepFinished RunEventType = "step_finished"
	EventRunFinished  RunEventType = "run_finished"
)

// RunEvent is published by the executor on every state transition.
type RunEvent struct {
	Type      RunEventType `json:"type"`
	RunID     string       `json:"runId"`
	StepIndex int          `json:"stepIndex"`
	StepType  StepType     `json:"stepType,omitempty"`
	IsRunning bool         `json:"isRunning"`
	// Outcome is set on run_finished: completed, stopped or failed.
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
