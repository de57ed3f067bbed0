package schemas

import (
	"fmt"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// -- Wire Format --
//
// A program travels as an ordered array of {"type": ..., "config": {...}}
// objects. The same shape is used for storage, import and export.

type wireStep struct {
	Type   StepType        `json:"type"`
	Config json.RawMessage `json:"config"`
}

type yamlStep struct {
	Type   StepType    `yaml:"type"`
	Config interface{} `yaml:"config"`
}

// payload returns the config object for the step's variant. Variants without a
// payload encode as an empty object.
func (s Step) payload() interface{} {
	switch s.Type {
	case StepGotoURL:
		if s.GotoURL != nil {
			return s.GotoURL
		}
	case StepWaitTime:
		if s.WaitTime != nil {
			return s.WaitTime
		}
	case StepScrollPage:
		if s.ScrollPage != nil {
			return s.ScrollPage
		}
	}
	return struct{}{}
}

// MarshalJSON implements json.Marshaler.
func (s Step) MarshalJSON() ([]byte, error) {
	cfg, err := json.Marshal(s.payload())
	if err != nil {
		return nil, fmt.Errorf("encoding %s config: %w", s.Type, err)
	}
	return json.Marshal(wireStep{Type: s.Type, Config: cfg})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Step) UnmarshalJSON(data []byte) error {
	var w wireStep
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	cfg := w.Config
	if len(cfg) == 0 || string(cfg) == "null" {
		cfg = json.RawMessage("{}")
	}
	return s.decodePayload(w.Type, func(v interface{}) error {
		return json.Unmarshal(cfg, v)
	})
}

// MarshalYAML implements yaml.Marshaler.
func (s Step) MarshalYAML() (interface{}, error) {
	return yamlStep{Type: s.Type, Config: s.payload()}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Step) UnmarshalYAML(value *yaml.Node) error {
	var w struct {
		Type   StepType  `yaml:"type"`
		Config yaml.Node `yaml:"config"`
	}
	if err := value.Decode(&w); err != nil {
		return err
	}
	return s.decodePayload(w.Type, func(v interface{}) error {
		if w.Config.Kind == 0 {
			return nil
		}
		return w.Config.Decode(v)
	})
}

func (s *Step) decodePayload(t StepType, decode func(v interface{}) error) error {
	step := Step{Type: t}
	var err error
	switch t {
	case StepNewPage, StepClosePage:
	case StepGotoURL:
		step.GotoURL = &GotoURLConfig{}
		err = decode(step.GotoURL)
	case StepWaitTime:
		step.WaitTime = &WaitTimeConfig{}
		err = decode(step.WaitTime)
	case StepScrollPage:
		step.ScrollPage = &ScrollPageConfig{}
		err = decode(step.ScrollPage)
	default:
		return fmt.Errorf("%w %q", ErrUnknownStepType, t)
	}
	if err != nil {
		return fmt.Errorf("decoding %s config: %w", t, err)
	}
	*s = step
	return nil
}

// MarshalJSON encodes the range as [min, max].
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{r.Min, r.Max})
}

// UnmarshalJSON decodes a [min, max] pair.
func (r *Range) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	return r.fromPair(pair)
}

func (r Range) MarshalYAML() (interface{}, error) {
	return []int{r.Min, r.Max}, nil
}

func (r *Range) UnmarshalYAML(value *yaml.Node) error {
	var pair []int
	if err := value.Decode(&pair); err != nil {
		return err
	}
	return r.fromPair(pair)
}

func (r *Range) fromPair(pair []int) error {
	if len(pair) != 2 {
		return fmt.Errorf("range must have exactly two elements, got %d", len(pair))
	}
	r.Min, r.Max = pair[0], pair[1]
	return nil
}

// -- Program Encoding --

// Serialize encodes a program into its wire format.
func Serialize(p Program) ([]byte, error) {
	if p == nil {
		p = Program{}
	}
	return json.MarshalIndent(p, "", "  ")
}

// Deserialize decodes the wire format. Decode failures are reported as
// *ValidationError carrying the index of the offending step.
func Deserialize(data []byte) (Program, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Index: -1, Reason: "expected an array of steps: " + err.Error(), Err: err}
	}
	p := make(Program, 0, len(raw))
	for i, item := range raw {
		// Called directly so that sentinel errors keep their chain; the
		// decoder would flatten them to text.
		var s Step
		if err := s.UnmarshalJSON(item); err != nil {
			return nil, &ValidationError{Index: i, Reason: err.Error(), Err: err}
		}
		p = append(p, s)
	}
	return p, nil
}

// Format is a document encoding accepted for import and export.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Encode writes the program in the requested format.
func Encode(p Program, f Format) ([]byte, error) {
	if f != FormatYAML {
		return Serialize(p)
	}
	if p == nil {
		p = Program{}
	}
	return yaml.Marshal(p)
}

// Decode reads a program in the requested format. Only the wire format is
// accepted; see Import for the legacy URL list.
func Decode(data []byte, f Format) (Program, error) {
	if f != FormatYAML {
		return Deserialize(data)
	}
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, &ValidationError{Index: -1, Reason: "expected a list of steps: " + err.Error(), Err: err}
	}
	p := make(Program, 0, len(nodes))
	for i := range nodes {
		var s Step
		if err := nodes[i].Decode(&s); err != nil {
			return nil, &ValidationError{Index: i, Reason: err.Error(), Err: err}
		}
		p = append(p, s)
	}
	return p, nil
}
