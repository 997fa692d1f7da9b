package config

import (
	"github.com/jpalmerr/gpiolive"
)

// BuildChannels converts a profile's pins into SDK channels, in order.
// Channel ids are GPIO numbers.
func BuildChannels(p *Profile) ([]gpiolive.Channel, error) {
	channels := make([]gpiolive.Channel, 0, len(p.Pins))
	for _, pin := range p.Pins {
		ch, err := buildChannel(pin)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func buildChannel(pin PinConfig) (gpiolive.Channel, error) {
	opts := []gpiolive.ChannelOption{gpiolive.WithLabel(pin.Label)}

	if pin.ADC != nil {
		opts = append(opts, gpiolive.WithAnalog())
	}
	if !pin.HasDigital() {
		opts = append(opts, gpiolive.WithoutDigital())
	}
	if pin.Reserved {
		opts = append(opts, gpiolive.WithReserved())
	}
	if pin.Position != nil {
		opts = append(opts, gpiolive.WithPosition(pin.Position.X, pin.Position.Y))
	}

	return gpiolive.NewChannel(pin.GPIO, opts...)
}

// GPIOs returns the profile's line numbers, in pin order.
func GPIOs(p *Profile) []int {
	gpios := make([]int, len(p.Pins))
	for i, pin := range p.Pins {
		gpios[i] = pin.GPIO
	}
	return gpios
}

// ADCMap maps each analog pin's GPIO number to its ADC channel index.
func ADCMap(p *Profile) map[int]int {
	m := make(map[int]int)
	for _, pin := range p.Pins {
		if pin.ADC != nil {
			m[pin.GPIO] = *pin.ADC
		}
	}
	return m
}

// AppOptions returns the SDK options a profile implies: title, reference
// voltage, classification threshold, stream interval and board image.
func AppOptions(p *Profile) []gpiolive.Option {
	opts := []gpiolive.Option{
		gpiolive.WithVRef(p.VRef),
		gpiolive.WithStreamInterval(p.StreamInterval.Duration()),
		gpiolive.WithClassification(gpiolive.ClassificationPolicy{
			VoltagePriority: true,
			ThresholdVolts:  p.Threshold,
		}),
	}
	if p.Title != "" {
		opts = append(opts, gpiolive.WithTitle(p.Title))
	}
	if p.ImageURL != "" {
		opts = append(opts, gpiolive.WithBoardImage(p.ImageURL))
	}
	return opts
}
