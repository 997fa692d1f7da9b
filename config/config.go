// Package config provides the board profiles GPIOLive ships with.
//
// A profile describes one board: which GPIO lines to watch, their labels,
// which have an ADC, which are taken by another function, and where each
// sits on the board image. Profiles are YAML documents compiled into the
// binary; [Load] looks one up by name.
//
// Example profile:
//
//	name: xiao-esp32s3
//	vref: 3.3
//	threshold_v: 2.0
//	stream_interval: 500ms
//	image_url: https://example.com/XIAO-ESP32-S3.png
//
//	pins:
//	  - {label: D0, gpio: 1, adc: 0, position: [6.7, 20.7]}
//	  - {label: D6, gpio: 43, reserved: true, position: {x: 6.9, y: 88.3}}
package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultProfile is used when no profile is named.
const DefaultProfile = "xiao-esp32s3"

// ErrUnknownProfile is returned by [Load] for a name with no profile.
var ErrUnknownProfile = errors.New("unknown board profile")

//go:embed profiles/*.yaml
var profileFS embed.FS

// Profile describes a board.
//
// It maps directly to the YAML profile structure. Use [Load] or [Parse]
// to create a Profile.
type Profile struct {
	// Name identifies the profile. Must match the file name.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Title is the viewer page title.
	Title string `yaml:"title"`

	// VRef is the ADC reference voltage. Defaults to 3.3.
	VRef float64 `yaml:"vref"`

	// Threshold is the voltage at or above which a pin reads high.
	// Defaults to 2.0.
	Threshold float64 `yaml:"threshold_v"`

	// StreamInterval is the pause between event stream frames.
	// Accepts duration strings like "500ms". Defaults to 500ms.
	StreamInterval Duration `yaml:"stream_interval"`

	// ImageURL is the board picture used when no local image is present.
	ImageURL string `yaml:"image_url"`

	// IIODevice names the Linux IIO device carrying the ADC channels.
	IIODevice string `yaml:"iio_device"`

	Pins []PinConfig `yaml:"pins"`
}

// PinConfig describes one pin.
type PinConfig struct {
	// Label is the snapshot key and the name shown on the page. Required.
	Label string `yaml:"label"`

	// GPIO is the line number the source reads. Required.
	GPIO int `yaml:"gpio"`

	// ADC is the ADC channel index. Set only for pins with an ADC.
	ADC *int `yaml:"adc"`

	// Digital disables the logic level when false. Defaults to true.
	Digital *bool `yaml:"digital"`

	// Reserved marks a pin taken by another function, shown as unavailable.
	Reserved bool `yaml:"reserved"`

	// Position places the pin on the board image, in percent.
	Position *Position `yaml:"position"`
}

// HasDigital reports whether the pin has a logic level.
func (p PinConfig) HasDigital() bool {
	return p.Digital == nil || *p.Digital
}

// Position is a pin's overlay position in percent of the image.
//
// It supports two formats in YAML:
//
//	position: [6.7, 20.7]
//	position: {x: 6.7, y: 20.7}
type Position struct {
	X float64
	Y float64
}

// UnmarshalYAML implements yaml.Unmarshaler for Position.
func (p *Position) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var xy []float64
		if err := node.Decode(&xy); err != nil {
			return err
		}
		if len(xy) != 2 {
			return fmt.Errorf("position must have exactly two values, got %d", len(xy))
		}
		p.X, p.Y = xy[0], xy[1]
		return nil
	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			X *float64 `yaml:"x"`
			Y *float64 `yaml:"y"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if raw.X == nil || raw.Y == nil {
			return errors.New("position requires both x and y")
		}
		p.X, p.Y = *raw.X, *raw.Y
		return nil
	}
	return fmt.Errorf("position must be a list or object, got %v", node.Kind)
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Names returns the compiled-in profile names, sorted.
func Names() []string {
	entries, err := fs.ReadDir(profileFS, "profiles")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ".yaml"); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Load returns the compiled-in profile called name. An empty name loads
// [DefaultProfile].
//
// Returns an error wrapping [ErrUnknownProfile] if no such profile exists.
func Load(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}

	data, err := profileFS.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownProfile, name, strings.Join(Names(), ", "))
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}
	if p.Name != name {
		return nil, fmt.Errorf("profile %s: name field is %q", name, p.Name)
	}
	return p, nil
}

// Parse parses and validates a YAML profile.
//
// Defaults are applied for VRef (3.3), Threshold (2.0) and StreamInterval
// (500ms).
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if p.VRef == 0 {
		p.VRef = 3.3
	}
	if p.Threshold == 0 {
		p.Threshold = 2.0
	}
	if p.StreamInterval == 0 {
		p.StreamInterval = Duration(500 * time.Millisecond)
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.VRef < 0 || math.IsNaN(p.VRef) || math.IsInf(p.VRef, 0) {
		return fmt.Errorf("vref must be a positive number, got %v", p.VRef)
	}
	if p.Threshold < 0 || math.IsNaN(p.Threshold) || math.IsInf(p.Threshold, 0) {
		return fmt.Errorf("threshold_v must not be negative, got %v", p.Threshold)
	}
	if p.StreamInterval.Duration() < 10*time.Millisecond {
		return fmt.Errorf("stream_interval must be at least 10ms, got %s", p.StreamInterval.Duration())
	}
	if p.ImageURL != "" {
		u, err := url.Parse(p.ImageURL)
		if err != nil {
			return fmt.Errorf("invalid image_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("image_url scheme must be http or https, got %q", u.Scheme)
		}
	}

	if len(p.Pins) == 0 {
		return errors.New("at least one pin must be defined")
	}

	gpios := make(map[int]struct{}, len(p.Pins))
	labels := make(map[string]struct{}, len(p.Pins))
	adcs := make(map[int]string)
	for i, pin := range p.Pins {
		if pin.Label == "" {
			return fmt.Errorf("pins[%d]: label is required", i)
		}
		if strings.ContainsAny(pin.Label, " \t\r\n") {
			return fmt.Errorf("pins[%d] (%s): label must not contain whitespace", i, pin.Label)
		}
		if _, dup := labels[pin.Label]; dup {
			return fmt.Errorf("pins[%d]: duplicate label %q", i, pin.Label)
		}
		labels[pin.Label] = struct{}{}

		if pin.GPIO < 0 {
			return fmt.Errorf("pins[%d] (%s): gpio must not be negative, got %d", i, pin.Label, pin.GPIO)
		}
		if _, dup := gpios[pin.GPIO]; dup {
			return fmt.Errorf("pins[%d] (%s): duplicate gpio %d", i, pin.Label, pin.GPIO)
		}
		gpios[pin.GPIO] = struct{}{}

		if pin.ADC != nil {
			if *pin.ADC < 0 {
				return fmt.Errorf("pins[%d] (%s): adc must not be negative, got %d", i, pin.Label, *pin.ADC)
			}
			if other, dup := adcs[*pin.ADC]; dup {
				return fmt.Errorf("pins[%d] (%s): adc %d already used by %s", i, pin.Label, *pin.ADC, other)
			}
			adcs[*pin.ADC] = pin.Label
		}

		if !pin.HasDigital() && pin.ADC == nil {
			return fmt.Errorf("pins[%d] (%s): pin must be digital, analog, or both", i, pin.Label)
		}

		if pos := pin.Position; pos != nil {
			if pos.X < 0 || pos.X > 100 || pos.Y < 0 || pos.Y > 100 {
				return fmt.Errorf("pins[%d] (%s): position must be within 0-100 percent", i, pin.Label)
			}
		}
	}

	return nil
}
