package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jpalmerr/gpiolive"
	"github.com/jpalmerr/gpiolive/config"
	"github.com/jpalmerr/gpiolive/source"
)

const envPrefix = "GPIOLIVE"

// log file rotation limits
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 28
)

// Flag names shared by serve and probe.
const (
	flagProfile     = "profile"
	flagSource      = "source"
	flagRemoteURL   = "remote-url"
	flagRemoteWait  = "remote-timeout"
	flagSysfsRoot   = "sysfs-root"
	flagSysfsExport = "sysfs-export"
	flagVRef        = "vref"
	flagThreshold   = "threshold"
	flagDigitalPrio = "digital-priority"
)

// newSettings binds the command's flags to a fresh viper instance. Flags
// take precedence over GPIOLIVE_* environment variables, which take
// precedence over flag defaults.
func newSettings(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}
	return v, nil
}

// addSourceFlags registers the flags selecting and configuring a source.
func addSourceFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String(flagProfile, config.DefaultProfile, "board profile (see 'gpiolive profiles')")
	f.String(flagSource, "sim", "telemetry source: sim, sysfs or remote")
	f.String(flagRemoteURL, "", "base URL of the remote board (source remote)")
	f.Duration(flagRemoteWait, 0, "timeout of one remote fetch (source remote, default 2s)")
	f.String(flagSysfsRoot, source.DefaultSysfsRoot, "sysfs mount point (source sysfs)")
	f.Bool(flagSysfsExport, false, "export missing GPIO lines before reading (source sysfs)")
	f.Float64(flagVRef, 0, "ADC reference voltage (default from profile)")
	f.Float64(flagThreshold, 0, "voltage at or above which a pin reads high (default from profile)")
	f.Bool(flagDigitalPrio, false, "classify by the digital level even when a voltage is available")
}

// newLogger builds the CLI logger. The returned closer releases the log
// file, if any.
func newLogger(v *viper.Viper, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", v.GetString("log-level"), err)
	}

	var out io.Writer = stderr
	var closer io.Closer = nopCloser{}
	if path := v.GetString("log-file"); path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
		out, closer = rotating, rotating
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch format := v.GetString("log-format"); format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("invalid log format %q (expected 'json' or 'text')", format)
	}
	return slog.New(handler), closer, nil
}

// board is a loaded profile with the SDK values built from it.
type board struct {
	profile  *config.Profile
	channels []gpiolive.Channel
	source   gpiolive.Source
	close    func()
}

// loadBoard resolves the profile and opens the configured source.
func loadBoard(v *viper.Viper) (*board, error) {
	profile, err := config.Load(v.GetString(flagProfile))
	if err != nil {
		return nil, err
	}
	channels, err := config.BuildChannels(profile)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", profile.Name, err)
	}

	b := &board{profile: profile, channels: channels, close: func() {}}

	switch kind := v.GetString(flagSource); kind {
	case "sim":
		b.source = source.NewSim(source.SimConfig{Board: profile.Name})
	case "sysfs":
		src, err := source.NewSysfs(source.SysfsConfig{
			Root:      v.GetString(flagSysfsRoot),
			GPIOs:     config.GPIOs(profile),
			ADC:       config.ADCMap(profile),
			IIODevice: profile.IIODevice,
			Export:    v.GetBool(flagSysfsExport),
		})
		if err != nil {
			return nil, err
		}
		b.source = src
	case "remote":
		remoteURL := v.GetString(flagRemoteURL)
		if remoteURL == "" {
			return nil, errors.New("source remote requires --remote-url")
		}
		src, err := source.NewRemote(source.RemoteConfig{
			BaseURL:  remoteURL,
			Channels: channels,
			Timeout:  v.GetDuration(flagRemoteWait),
		})
		if err != nil {
			return nil, err
		}
		b.source = src
		b.close = src.Close
	default:
		return nil, fmt.Errorf("unknown source %q (expected 'sim', 'sysfs' or 'remote')", kind)
	}

	return b, nil
}

// appOptions returns the profile's options followed by overrides from
// explicitly set flags or environment variables.
func (b *board) appOptions(v *viper.Viper) []gpiolive.Option {
	opts := config.AppOptions(b.profile)
	opts = append(opts,
		gpiolive.WithChannels(b.channels...),
		gpiolive.WithSource(b.source),
	)

	if v.IsSet(flagVRef) {
		opts = append(opts, gpiolive.WithVRef(v.GetFloat64(flagVRef)))
	}
	if v.IsSet(flagThreshold) || v.IsSet(flagDigitalPrio) {
		threshold := b.profile.Threshold
		if v.IsSet(flagThreshold) {
			threshold = v.GetFloat64(flagThreshold)
		}
		opts = append(opts, gpiolive.WithClassification(gpiolive.ClassificationPolicy{
			VoltagePriority: !v.GetBool(flagDigitalPrio),
			ThresholdVolts:  threshold,
		}))
	}
	return opts
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
