package gpiolive

import (
	"errors"
	"fmt"

	"github.com/jpalmerr/gpiolive/internal/telemetry"
)

// Position places a channel on the board image, in percent of its width
// (X) and height (Y).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Channel is one monitored input line.
//
// Channel is immutable after creation via [NewChannel]. The ID is what the
// [Source] is asked to read (a GPIO number for hardware sources); the label
// is the key used in snapshots and on the page.
//
// Channels are configured using the functional options pattern with
// [ChannelOption] functions such as [WithLabel], [WithAnalog],
// [WithoutDigital], [WithReserved], and [WithPosition].
type Channel struct {
	id          int
	label       string
	digital     bool
	analog      bool
	reserved    bool
	position    Position
	hasPosition bool
}

// ID returns the channel's stable identifier.
func (c Channel) ID() int {
	return c.id
}

// Label returns the snapshot key, "D<id>" unless set via [WithLabel].
func (c Channel) Label() string {
	return c.label
}

// Digital reports whether the channel has a logic level.
func (c Channel) Digital() bool {
	return c.digital
}

// Analog reports whether the channel has an ADC attached.
func (c Channel) Analog() bool {
	return c.analog
}

// Reserved reports whether the pin is taken by another function (e.g. UART)
// and shown as not available.
func (c Channel) Reserved() bool {
	return c.reserved
}

// Position returns the overlay position and whether one was set.
func (c Channel) Position() (Position, bool) {
	return c.position, c.hasPosition
}

// NewChannel creates a [Channel] with the given id and options.
//
// A channel is digital-only by default. Options are applied in order.
//
// Returns an error if id is negative, an option is invalid, or the channel
// ends up with neither a digital nor an analog capability.
//
// Example:
//
//	ch, err := gpiolive.NewChannel(1,
//	    gpiolive.WithLabel("D0"),
//	    gpiolive.WithAnalog(),
//	    gpiolive.WithPosition(6.7, 20.7),
//	)
func NewChannel(id int, opts ...ChannelOption) (Channel, error) {
	if id < 0 {
		return Channel{}, fmt.Errorf("channel id must not be negative, got %d", id)
	}

	cfg := &channelConfig{
		label:   fmt.Sprintf("D%d", id),
		digital: true,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Channel{}, err
		}
	}

	if !cfg.digital && !cfg.analog {
		return Channel{}, errors.New("channel must be digital, analog, or both")
	}

	return Channel{
		id:          id,
		label:       cfg.label,
		digital:     cfg.digital,
		analog:      cfg.analog,
		reserved:    cfg.reserved,
		position:    cfg.position,
		hasPosition: cfg.hasPosition,
	}, nil
}

// MustChannel is like [NewChannel] but panics on error.
// Use it for channel tables fixed at compile time.
func MustChannel(id int, opts ...ChannelOption) Channel {
	ch, err := NewChannel(id, opts...)
	if err != nil {
		panic("gpiolive: invalid channel: " + err.Error())
	}
	return ch
}

func (c Channel) toTelemetry() telemetry.Channel {
	return telemetry.Channel{
		ID:         c.id,
		Label:      c.label,
		HasDigital: c.digital,
		HasAnalog:  c.analog,
	}
}
