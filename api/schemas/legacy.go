package schemas

import (
	json "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

// LegacyURLConfig is one entry of the URL list saved by earlier releases,
// before programs were expressed as steps.
type LegacyURLConfig struct {
	URL          string              `json:"url" yaml:"url"`
	WaitTimeMin  int                 `json:"waitTimeMin" yaml:"waitTimeMin"`
	WaitTimeMax  int                 `json:"waitTimeMax" yaml:"waitTimeMax"`
	ScrollConfig *LegacyScrollConfig `json:"scrollConfig,omitempty" yaml:"scrollConfig,omitempty"`
}

// LegacyScrollConfig holds the wheel parameters of a legacy entry, in px and ms.
type LegacyScrollConfig struct {
	WheelDistanceMin   int `json:"wheelDistanceMin" yaml:"wheelDistanceMin"`
	WheelDistanceMax   int `json:"wheelDistanceMax" yaml:"wheelDistanceMax"`
	ScrollSleepTimeMin int `json:"scrollSleepTimeMin" yaml:"scrollSleepTimeMin"`
	ScrollSleepTimeMax int `json:"scrollSleepTimeMax" yaml:"scrollSleepTimeMax"`
}

// FromLegacy converts a URL list into the equivalent program: one tab is
// opened, each URL is visited, wheel-scrolled to the bottom and followed by a
// random wait, and the tab is closed at the end.
func FromLegacy(entries []LegacyURLConfig) Program {
	p := Program{NewPage()}
	for _, e := range entries {
		p = append(p, GotoURL(e.URL))
		if sc := e.ScrollConfig; sc != nil {
			p = append(p, ScrollByWheel(TargetBottom,
				&Range{Min: sc.WheelDistanceMin, Max: sc.WheelDistanceMax},
				&Range{Min: sc.ScrollSleepTimeMin, Max: sc.ScrollSleepTimeMax},
			))
		} else {
			p = append(p, ScrollByWheel(TargetBottom, nil, nil))
		}
		p = append(p, WaitRandomMs(e.WaitTimeMin, e.WaitTimeMax))
	}
	return append(p, ClosePage())
}

// legacyHead distinguishes the two document shapes by their first element.
type legacyHead struct {
	Type *string `json:"type" yaml:"type"`
	URL  *string `json:"url" yaml:"url"`
}

func (p legacyHead) isLegacy() bool { return p.Type == nil && p.URL != nil }

// Import decodes either the step wire format or a legacy URL list.
func Import(data []byte, f Format) (Program, error) {
	legacy, err := detectLegacy(data, f)
	if err != nil || !legacy {
		return Decode(data, f)
	}
	var entries []LegacyURLConfig
	if f == FormatYAML {
		err = yaml.Unmarshal(data, &entries)
	} else {
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, &ValidationError{Index: -1, Reason: "malformed URL list: " + err.Error(), Err: err}
	}
	return FromLegacy(entries), nil
}

func detectLegacy(data []byte, f Format) (bool, error) {
	var heads []legacyHead
	var err error
	if f == FormatYAML {
		err = yaml.Unmarshal(data, &heads)
	} else {
		err = json.Unmarshal(data, &heads)
	}
	if err != nil || len(heads) == 0 {
		return false, err
	}
	return heads[0].isLegacy(), nil
}
