package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultVRef is the ADC reference voltage used when none is configured.
	DefaultVRef = 3.3

	// adcFullScale is the top of the 16-bit ADC scale sources report on.
	adcFullScale = 65535.0
)

// Config holds the inputs of a [Builder].
type Config struct {
	// Channels is the fixed, ordered channel set. Required.
	Channels []Channel

	// Source reads the channels. Required.
	Source Source

	// VRef converts raw ADC counts to volts when a source reports raw only.
	// Defaults to [DefaultVRef].
	VRef float64

	// Memory reports heap statistics. Defaults to [RuntimeMemory].
	Memory MemoryReader

	// OnFault is called once for every channel read that failed.
	// It must not block.
	OnFault func(ch Channel, err error)

	// Logger receives debug output for read faults. Defaults to slog.Default().
	Logger *slog.Logger
}

// Builder samples every configured channel into a [Snapshot].
//
// Builder holds no mutable state after construction and is safe for
// concurrent use by any number of sessions.
type Builder struct {
	channels []Channel
	ids      []int
	source   Source
	vref     float64
	memory   MemoryReader
	onFault  func(ch Channel, err error)
	logger   *slog.Logger
	now      func() time.Time
}

// NewBuilder creates a [Builder] from cfg.
//
// Returns an error if no channels are configured, if channel ids or labels
// repeat, or if the source is nil.
func NewBuilder(cfg Config) (*Builder, error) {
	if err := validateChannels(cfg.Channels); err != nil {
		return nil, err
	}
	if cfg.Source == nil {
		return nil, errors.New("telemetry source is required")
	}
	if cfg.VRef < 0 {
		return nil, fmt.Errorf("vref must not be negative, got %v", cfg.VRef)
	}

	vref := cfg.VRef
	if vref == 0 {
		vref = DefaultVRef
	}
	memory := cfg.Memory
	if memory == nil {
		memory = RuntimeMemory
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	channels := make([]Channel, len(cfg.Channels))
	copy(channels, cfg.Channels)
	ids := make([]int, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}

	return &Builder{
		channels: channels,
		ids:      ids,
		source:   cfg.Source,
		vref:     vref,
		memory:   memory,
		onFault:  cfg.OnFault,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Channels returns a copy of the configured channels in order.
func (b *Builder) Channels() []Channel {
	cp := make([]Channel, len(b.channels))
	copy(cp, b.channels)
	return cp
}

// SystemInfo forwards to the source.
func (b *Builder) SystemInfo(ctx context.Context) (map[string]any, error) {
	return b.source.SystemInfo(ctx)
}

// Build reads every channel and returns a new [Snapshot].
//
// The snapshot always contains every configured channel in configured order.
// A failed channel read yields an absent sample for that channel only.
func (b *Builder) Build(ctx context.Context) Snapshot {
	readings := make([]Reading, len(b.channels))

	if batch, ok := b.source.(BatchSource); ok {
		samples, err := b.safeSampleAll(ctx, batch)
		for i, ch := range b.channels {
			var s Sample
			if err != nil {
				b.fault(ch, err)
			} else {
				s = samples[ch.ID]
			}
			readings[i] = Reading{Channel: ch, Sample: b.normalize(ch, s)}
		}
	} else {
		for i, ch := range b.channels {
			s, err := b.safeSample(ctx, ch.ID)
			if err != nil {
				b.fault(ch, err)
				s = Sample{}
			}
			readings[i] = Reading{Channel: ch, Sample: b.normalize(ch, s)}
		}
	}

	return Snapshot{
		Readings: readings,
		Memory:   b.memory(),
		TakenAt:  b.now(),
	}
}

// normalize masks fields the channel cannot have and derives voltage from
// raw counts when the source reported raw only.
func (b *Builder) normalize(ch Channel, s Sample) Sample {
	var out Sample

	if ch.HasDigital && s.Digital != nil {
		level := 0
		if *s.Digital != 0 {
			level = 1
		}
		out.Digital = &level
	}

	if ch.HasAnalog {
		out.AnalogRaw = s.AnalogRaw
		out.Voltage = s.Voltage
		if out.Voltage == nil && out.AnalogRaw != nil {
			out.Voltage = Float(RawToVoltage(*out.AnalogRaw, b.vref))
		}
	}

	return out
}

func (b *Builder) fault(ch Channel, err error) {
	b.logger.Debug("channel read failed",
		"channel", ch.Label,
		"channel_id", ch.ID,
		"error", err,
	)
	if b.onFault != nil {
		b.onFault(ch, err)
	}
}

// safeSample calls the source with panic recovery so that a misbehaving
// reader is contained to its own channel.
func (b *Builder) safeSample(ctx context.Context, id int) (s Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = b.recovered(r)
		}
	}()
	return b.source.Sample(ctx, id)
}

func (b *Builder) safeSampleAll(ctx context.Context, batch BatchSource) (m map[int]Sample, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = b.recovered(r)
		}
	}()
	return batch.SampleAll(ctx, b.ids)
}

func (b *Builder) recovered(r any) error {
	correlationID := uuid.NewString()
	b.logger.Error("telemetry source panic",
		"correlation_id", correlationID,
		"panic", fmt.Sprintf("%v", r),
		"stack", string(debug.Stack()),
	)
	return fmt.Errorf("%w: source panic (correlation_id: %s)", ErrChannelRead, correlationID)
}

// RawToVoltage converts a 16-bit ADC count to volts against vref.
// Counts outside 0..65535 are clamped.
func RawToVoltage(raw int, vref float64) float64 {
	switch {
	case raw < 0:
		raw = 0
	case raw > int(adcFullScale):
		raw = int(adcFullScale)
	}
	return float64(raw) / adcFullScale * vref
}
