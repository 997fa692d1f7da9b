package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/gpiolive"
)

const (
	shutdownTimeout = 10 * time.Second
)

// newServeCmd starts the viewer server.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the viewer server",
		Long: `Start the GPIOLive viewer server.

The server will:
  - Load the selected board profile
  - Sample every pin from the selected source on each request and stream frame
  - Serve the viewer page, /data, /info and /events on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  gpiolive serve --source sim
  gpiolive serve --profile rpi-header --source sysfs --port 9000
  GPIOLIVE_SOURCE=remote GPIOLIVE_REMOTE_URL=http://192.168.4.1 gpiolive serve`,
		RunE: runServe,
	}

	addSourceFlags(cmd)
	f := cmd.Flags()
	f.String("host", "", "interface to bind (default all interfaces)")
	f.Int("port", 8081, "HTTP port")
	f.Duration("interval", 0, "pause between event stream frames (default from profile)")
	f.Duration("write-timeout", 0, "drop clients that stop reading for this long (0 disables)")
	f.String("title", "", "page title (default from profile)")
	f.String("asset-dir", "", "directory holding board.png to serve instead of the profile image URL")
	f.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	v, err := newSettings(cmd)
	if err != nil {
		return err
	}

	logger, closer, err := newLogger(v, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	b, err := loadBoard(v)
	if err != nil {
		return fmt.Errorf("failed to load board: %w", err)
	}
	defer b.close()

	logger.Info("profile loaded",
		"profile", b.profile.Name,
		"pins", len(b.channels),
		"source", v.GetString(flagSource),
	)

	opts := b.appOptions(v)
	opts = append(opts,
		gpiolive.WithHost(v.GetString("host")),
		gpiolive.WithPort(v.GetInt("port")),
		gpiolive.WithWriteTimeout(v.GetDuration("write-timeout")),
		gpiolive.WithFirmware(version),
		gpiolive.WithLogger(logger),
	)
	if v.IsSet("interval") {
		opts = append(opts, gpiolive.WithStreamInterval(v.GetDuration("interval")))
	}
	if title := v.GetString("title"); title != "" {
		opts = append(opts, gpiolive.WithTitle(title))
	}
	if dir := v.GetString("asset-dir"); dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("invalid asset dir: %w", err)
		}
		opts = append(opts, gpiolive.WithAssets(os.DirFS(dir)))
	}
	if port := v.GetInt("metrics-port"); port != 0 {
		opts = append(opts, gpiolive.WithMetrics(port))
	}

	app, err := gpiolive.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create gpiolive: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
