package gpiolive

import (
	"errors"
	"fmt"
	"strings"
)

// channelConfig holds mutable state during channel construction.
type channelConfig struct {
	label       string
	digital     bool
	analog      bool
	reserved    bool
	position    Position
	hasPosition bool
}

// ChannelOption configures a [Channel] during construction.
// Options return an error if validation fails.
type ChannelOption func(*channelConfig) error

// WithLabel sets the snapshot key for the channel.
//
// Returns an error if the label is empty or contains whitespace.
func WithLabel(label string) ChannelOption {
	return func(cfg *channelConfig) error {
		if label == "" {
			return errors.New("channel label cannot be empty")
		}
		if strings.ContainsAny(label, " \t\r\n") {
			return fmt.Errorf("channel label %q must not contain whitespace", label)
		}
		cfg.label = label
		return nil
	}
}

// WithAnalog marks the channel as having an ADC.
func WithAnalog() ChannelOption {
	return func(cfg *channelConfig) error {
		cfg.analog = true
		return nil
	}
}

// WithoutDigital removes the digital capability, for ADC-only inputs.
func WithoutDigital() ChannelOption {
	return func(cfg *channelConfig) error {
		cfg.digital = false
		return nil
	}
}

// WithReserved marks the pin as reserved for another function. It is still
// sampled but the page shows it as not available.
func WithReserved() ChannelOption {
	return func(cfg *channelConfig) error {
		cfg.reserved = true
		return nil
	}
}

// WithPosition places the channel on the board image, in percent.
//
// Returns an error if either coordinate is outside 0-100.
func WithPosition(x, y float64) ChannelOption {
	return func(cfg *channelConfig) error {
		if x < 0 || x > 100 || y < 0 || y > 100 {
			return fmt.Errorf("position (%v, %v) must be within 0-100 percent", x, y)
		}
		cfg.position = Position{X: x, Y: y}
		cfg.hasPosition = true
		return nil
	}
}
