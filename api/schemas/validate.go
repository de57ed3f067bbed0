package schemas

import (
	"fmt"
	"net/url"
)

var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
	"about": true,
}

// Validate checks every step of the program and returns the first problem found
// as a *ValidationError. An empty program is valid.
func (p Program) Validate() error {
	for i, s := range p {
		if err := s.validate(); err != nil {
			err.Index = i
			return err
		}
	}
	return nil
}

func (s Step) validate() *ValidationError {
	switch s.Type {
	case StepNewPage, StepClosePage:
		return nil
	case StepGotoURL:
		return s.GotoURL.validate()
	case StepWaitTime:
		return s.WaitTime.validate()
	case StepScrollPage:
		return s.ScrollPage.validate()
	}
	return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown step type %q", s.Type), Err: ErrUnknownStepType}
}

func (c *GotoURLConfig) validate() *ValidationError {
	if c == nil {
		return missingPayload(StepGotoURL)
	}
	if c.URL == "" {
		return &ValidationError{Field: "url", Reason: "url is required"}
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return &ValidationError{Field: "url", Reason: err.Error(), Err: err}
	}
	if !u.IsAbs() || !allowedSchemes[u.Scheme] {
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("%q is not an absolute http(s), file or about URL", c.URL)}
	}
	if c.TimeoutAfterLoadMs != nil && *c.TimeoutAfterLoadMs < 0 {
		return &ValidationError{Field: "timeoutAfterLoadMs", Reason: "must not be negative"}
	}
	return nil
}

func (c *WaitTimeConfig) validate() *ValidationError {
	if c == nil {
		return missingPayload(StepWaitTime)
	}
	switch c.Mode {
	case WaitFixed:
		if c.Ms < 0 {
			return &ValidationError{Field: "ms", Reason: "must not be negative"}
		}
	case WaitRandom:
		if err := validateRange("minMs/maxMs", Range{Min: c.MinMs, Max: c.MaxMs}); err != nil {
			return err
		}
	default:
		return &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown wait mode %q", c.Mode)}
	}
	return nil
}

func (c *ScrollPageConfig) validate() *ValidationError {
	if c == nil {
		return missingPayload(StepScrollPage)
	}
	switch c.Strategy {
	case ScrollPosition, ScrollWheel:
	default:
		return &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown scroll strategy %q", c.Strategy)}
	}
	switch c.Target {
	case TargetTop, TargetBottom:
	default:
		return &ValidationError{Field: "target", Reason: fmt.Sprintf("unknown scroll target %q", c.Target)}
	}
	if r := c.WheelDistanceRange; r != nil {
		if err := validateRange("wheelDistanceRange", *r); err != nil {
			return err
		}
		if r.Min <= 0 {
			return &ValidationError{Field: "wheelDistanceRange", Reason: "minimum distance must be positive"}
		}
	}
	if r := c.WheelIntervalRange; r != nil {
		if err := validateRange("wheelIntervalRange", *r); err != nil {
			return err
		}
	}
	return nil
}

func validateRange(field string, r Range) *ValidationError {
	if r.Min < 0 {
		return &ValidationError{Field: field, Reason: "bounds must not be negative"}
	}
	if r.Min > r.Max {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("min %d is greater than max %d", r.Min, r.Max)}
	}
	return nil
}

func missingPayload(t StepType) *ValidationError {
	return &ValidationError{Field: "config", Reason: fmt.Sprintf("%s step has no config", t)}
}
