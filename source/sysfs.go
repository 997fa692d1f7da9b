package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/jpalmerr/gpiolive"
)

const (
	// DefaultSysfsRoot is where the kernel mounts sysfs.
	DefaultSysfsRoot = "/sys"

	// DefaultIIODevice is the IIO device holding the ADC channels.
	DefaultIIODevice = "iio:device0"
)

// ErrNoGPIO is returned by [NewSysfs] when the GPIO class directory is
// missing, typically on a kernel without the sysfs GPIO interface.
var ErrNoGPIO = errors.New("sysfs gpio interface not available")

// SysfsConfig configures a [Sysfs].
type SysfsConfig struct {
	// Root is the sysfs mount point. Defaults to [DefaultSysfsRoot].
	Root string

	// GPIOs lists the line numbers to read. Channel ids are GPIO numbers.
	GPIOs []int

	// ADC maps a GPIO number to its IIO voltage channel index.
	ADC map[int]int

	// IIODevice names the device under bus/iio/devices.
	// Defaults to [DefaultIIODevice].
	IIODevice string

	// Export writes each missing line to class/gpio/export and sets it as
	// an input before reading.
	Export bool
}

type sysfsLine struct {
	value   string
	rawPath string
}

// Sysfs is a [gpiolive.Source] reading the Linux sysfs GPIO and IIO
// interfaces. Each line's file paths are resolved once by [NewSysfs];
// reads open and close the files every time so values are always fresh.
type Sysfs struct {
	root      string
	iioDir    string
	scalePath string
	lines     map[int]sysfsLine
}

// NewSysfs resolves the files for every configured line.
//
// Returns [ErrNoGPIO] if the GPIO class directory is missing, and an error
// if an ADC mapping names a GPIO that is not configured or exporting a line
// fails.
func NewSysfs(cfg SysfsConfig) (*Sysfs, error) {
	root := cfg.Root
	if root == "" {
		root = DefaultSysfsRoot
	}
	device := cfg.IIODevice
	if device == "" {
		device = DefaultIIODevice
	}

	gpioDir := filepath.Join(root, "class", "gpio")
	if _, err := os.Stat(gpioDir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoGPIO, err)
	}

	iioDir := filepath.Join(root, "bus", "iio", "devices", device)
	s := &Sysfs{
		root:      root,
		iioDir:    iioDir,
		scalePath: filepath.Join(iioDir, "in_voltage_scale"),
		lines:     make(map[int]sysfsLine, len(cfg.GPIOs)),
	}

	for _, gpio := range cfg.GPIOs {
		if gpio < 0 {
			return nil, fmt.Errorf("gpio number must not be negative, got %d", gpio)
		}
		lineDir := filepath.Join(gpioDir, "gpio"+strconv.Itoa(gpio))
		if cfg.Export {
			if err := exportLine(gpioDir, lineDir, gpio); err != nil {
				return nil, err
			}
		}
		line := sysfsLine{value: filepath.Join(lineDir, "value")}
		if idx, ok := cfg.ADC[gpio]; ok {
			line.rawPath = filepath.Join(iioDir, fmt.Sprintf("in_voltage%d_raw", idx))
		}
		s.lines[gpio] = line
	}

	for gpio := range cfg.ADC {
		if _, ok := s.lines[gpio]; !ok {
			return nil, fmt.Errorf("adc mapping for gpio %d, which is not configured", gpio)
		}
	}

	return s, nil
}

func exportLine(gpioDir, lineDir string, gpio int) error {
	if _, err := os.Stat(lineDir); err == nil {
		return nil
	}
	if err := os.WriteFile(filepath.Join(gpioDir, "export"), []byte(strconv.Itoa(gpio)), 0o200); err != nil {
		return fmt.Errorf("failed to export gpio %d: %w", gpio, err)
	}
	if err := os.WriteFile(filepath.Join(lineDir, "direction"), []byte("in"), 0o200); err != nil {
		return fmt.Errorf("failed to set gpio %d as input: %w", gpio, err)
	}
	return nil
}

// Sample implements [gpiolive.Source].
//
// The digital level and the ADC are read independently: a failed ADC read
// still returns the level, and vice versa. Only when both fail is an error
// returned.
func (s *Sysfs) Sample(ctx context.Context, id int) (gpiolive.Sample, error) {
	if err := ctx.Err(); err != nil {
		return gpiolive.Sample{}, err
	}

	line, ok := s.lines[id]
	if !ok {
		return gpiolive.Sample{}, fmt.Errorf("%w: gpio %d is not configured", gpiolive.ErrChannelRead, id)
	}

	var out gpiolive.Sample
	level, levelErr := readInt(line.value)
	if levelErr == nil {
		if level != 0 {
			level = 1
		}
		out.Digital = gpiolive.Int(level)
	}

	if line.rawPath == "" {
		if levelErr != nil {
			return gpiolive.Sample{}, fmt.Errorf("%w: gpio %d: %w", gpiolive.ErrChannelRead, id, levelErr)
		}
		return out, nil
	}

	volts, adcErr := s.readVoltage(line.rawPath)
	if adcErr == nil {
		out.Voltage = gpiolive.Float(volts)
	}
	if levelErr != nil && adcErr != nil {
		return gpiolive.Sample{}, fmt.Errorf("%w: gpio %d: %w", gpiolive.ErrChannelRead, id, errors.Join(levelErr, adcErr))
	}
	return out, nil
}

// readVoltage reads a raw IIO count and applies the device scale, which
// the kernel reports in millivolts per count.
func (s *Sysfs) readVoltage(rawPath string) (float64, error) {
	raw, err := readInt(rawPath)
	if err != nil {
		return 0, err
	}
	scale, err := readFloat(s.scalePath)
	if err != nil {
		return 0, err
	}
	return float64(raw) * scale / 1000, nil
}

// SystemInfo implements [gpiolive.Source].
func (s *Sysfs) SystemInfo(context.Context) (map[string]any, error) {
	host, _ := os.Hostname()
	info := map[string]any{
		"board":    "linux-sysfs",
		"hostname": host,
		"goos":     runtime.GOOS,
		"goarch":   runtime.GOARCH,
		"gpios":    len(s.lines),
		"sysfs":    s.root,
	}
	if name, err := readString(filepath.Join(s.iioDir, "name")); err == nil {
		info["adc"] = name
	}
	return info, nil
}

func readString(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func readInt(path string) (int, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

func readFloat(path string) (float64, error) {
	s, err := readString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}
