package schemas

// -- Automation Program Schemas --

// StepType identifies the variant carried by a Step.
type StepType string

const (
	StepNewPage    StepType = "newPage"
	StepGotoURL    StepType = "gotoUrl"
	StepWaitTime   StepType = "waitTime"
	StepScrollPage StepType = "scrollPage"
	StepClosePage  StepType = "closePage"
)

// String implements fmt.Stringer.
func (t StepType) String() string { return string(t) }

// Known reports whether t is one of the defined step types.
func (t StepType) Known() bool {
	switch t {
	case StepNewPage, StepGotoURL, StepWaitTime, StepScrollPage, StepClosePage:
		return true
	}
	return false
}

// WaitMode selects how a WaitTime step computes its duration.
type WaitMode string

const (
	WaitFixed  WaitMode = "fixed"
	WaitRandom WaitMode = "random"
)

// ScrollStrategy selects the scroll simulation used by a ScrollPage step.
type ScrollStrategy string

const (
	ScrollPosition ScrollStrategy = "position"
	ScrollWheel    ScrollStrategy = "wheel"
)

// ScrollTarget is the end of the document a scroll heads towards.
type ScrollTarget string

const (
	TargetTop    ScrollTarget = "top"
	TargetBottom ScrollTarget = "bottom"
)

// Range is an inclusive integer bound. It serializes as a two element array.
type Range struct {
	Min int
	Max int
}

// Valid reports whether the bound is usable by the interval generator.
func (r Range) Valid() bool { return r.Min >= 0 && r.Min <= r.Max }

// GotoURLConfig is the payload of a gotoUrl step.
type GotoURLConfig struct {
	URL string `json:"url" yaml:"url"`
	// TimeoutAfterLoadMs is an extra fixed pause applied once the page reports load complete.
	TimeoutAfterLoadMs *int `json:"timeoutAfterLoadMs,omitempty" yaml:"timeoutAfterLoadMs,omitempty"`
}

// WaitTimeConfig is the payload of a waitTime step. Ms is read for the fixed
// mode, MinMs and MaxMs for the random mode.
type WaitTimeConfig struct {
	Mode  WaitMode `json:"mode" yaml:"mode"`
	Ms    int      `json:"ms,omitempty" yaml:"ms,omitempty"`
	MinMs int      `json:"minMs,omitempty" yaml:"minMs,omitempty"`
	MaxMs int      `json:"maxMs,omitempty" yaml:"maxMs,omitempty"`
}

// ScrollPageConfig is the payload of a scrollPage step. The wheel ranges are
// optional; the executor falls back to configured defaults when they are nil.
type ScrollPageConfig struct {
	Strategy           ScrollStrategy `json:"strategy" yaml:"strategy"`
	Target             ScrollTarget   `json:"target" yaml:"target"`
	WheelDistanceRange *Range         `json:"wheelDistanceRange,omitempty" yaml:"wheelDistanceRange,omitempty"`
	WheelIntervalRange *Range         `json:"wheelIntervalRange,omitempty" yaml:"wheelIntervalRange,omitempty"`
}

// Step is one unit of an automation program. Exactly the payload matching
// Type is set; newPage and closePage carry none.
type Step struct {
	Type       StepType
	GotoURL    *GotoURLConfig
	WaitTime   *WaitTimeConfig
	ScrollPage *ScrollPageConfig
}

// Program is an ordered list of steps. Order is execution order.
type Program []Step

// -- Step Constructors --

func NewPage() Step   { return Step{Type: StepNewPage} }
func ClosePage() Step { return Step{Type: StepClosePage} }

// GotoURL builds a navigation step without an extra post-load pause.
func GotoURL(url string) Step {
	return Step{Type: StepGotoURL, GotoURL: &GotoURLConfig{URL: url}}
}

// GotoURLWithPause builds a navigation step that waits ms after load.
func GotoURLWithPause(url string, ms int) Step {
	return Step{Type: StepGotoURL, GotoURL: &GotoURLConfig{URL: url, TimeoutAfterLoadMs: &ms}}
}

func WaitFixedMs(ms int) Step {
	return Step{Type: StepWaitTime, WaitTime: &WaitTimeConfig{Mode: WaitFixed, Ms: ms}}
}

func WaitRandomMs(minMs, maxMs int) Step {
	return Step{Type: StepWaitTime, WaitTime: &WaitTimeConfig{Mode: WaitRandom, MinMs: minMs, MaxMs: maxMs}}
}

func ScrollToPosition(target ScrollTarget) Step {
	return Step{Type: StepScrollPage, ScrollPage: &ScrollPageConfig{Strategy: ScrollPosition, Target: target}}
}

// ScrollByWheel builds a wheel scroll step. Nil ranges defer to executor defaults.
func ScrollByWheel(target ScrollTarget, distance, interval *Range) Step {
	return Step{Type: StepScrollPage, ScrollPage: &ScrollPageConfig{
		Strategy:           ScrollWheel,
		Target:             target,
		WheelDistanceRange: distance,
		WheelIntervalRange: interval,
	}}
}
