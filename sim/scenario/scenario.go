// Package scenario plays scripted user activity against the simulated
// appliance: timed button taps, volume nudges and USB plug events loaded
// from YAML.
package scenario

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a timed script. Duration bounds the whole run; it may be
// zero when every event is a one-shot, in which case the run ends after
// the last event fires.
type Scenario struct {
	Name     string   `yaml:"name"`
	Duration Duration `yaml:"duration,omitempty"`
	Events   []Event  `yaml:"events"`
}

// Event carries exactly one action. Every re-arms the event at that
// interval until the scenario duration runs out.
type Event struct {
	At    Duration `yaml:"at"`
	Every Duration `yaml:"every,omitempty"`

	Press  string `yaml:"press,omitempty"`
	USB    string `yaml:"usb,omitempty"`
	Volume *int   `yaml:"volume,omitempty"`
}

// Load parses and validates a script.
func Load(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads the script at path.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

var buttons = map[string]bool{"up": true, "down": true, "left": true, "right": true}

func (s *Scenario) validate() error {
	if len(s.Events) == 0 {
		return fmt.Errorf("scenario %q: no events", s.Name)
	}
	for i, ev := range s.Events {
		actions := 0
		if ev.Press != "" {
			actions++
			if !buttons[ev.Press] {
				return fmt.Errorf("scenario %q: event %d: unknown button %q", s.Name, i, ev.Press)
			}
		}
		if ev.USB != "" {
			actions++
			if ev.USB != "present" && ev.USB != "absent" {
				return fmt.Errorf("scenario %q: event %d: usb must be present or absent, got %q", s.Name, i, ev.USB)
			}
		}
		if ev.Volume != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("scenario %q: event %d: needs exactly one action, has %d", s.Name, i, actions)
		}
		if ev.Every > 0 && s.Duration == 0 {
			return fmt.Errorf("scenario %q: event %d: recurring events need a scenario duration", s.Name, i)
		}
		if ev.At < 0 || ev.Every < 0 {
			return fmt.Errorf("scenario %q: event %d: negative time", s.Name, i)
		}
	}
	return nil
}

// Duration accepts "250ms"-style strings or bare numbers in seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int", "!!float":
		var f float64
		if err := value.Decode(&f); err != nil {
			return fmt.Errorf("scenario: bad duration: %w", err)
		}
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("scenario: bad duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("scenario: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }
