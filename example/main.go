// Command example embeds GPIOLive in a program of its own.
//
// It watches three pins of a simulated board, logs every viewer that
// connects and serves Prometheus metrics next to the viewer.
//
// Usage:
//
//	go run ./example
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/gpiolive"
	"github.com/jpalmerr/gpiolive/source"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// a slow square wave so the page visibly toggles
	sim := source.NewSim(source.SimConfig{Period: 6 * time.Second, Board: "example"})

	app, err := gpiolive.New(
		gpiolive.WithSource(sim),
		gpiolive.WithChannels(
			gpiolive.MustChannel(1, gpiolive.WithLabel("BUTTON"), gpiolive.WithPosition(20, 30)),
			gpiolive.MustChannel(2, gpiolive.WithLabel("POT"), gpiolive.WithAnalog(), gpiolive.WithPosition(50, 30)),
			gpiolive.MustChannel(3, gpiolive.WithLabel("UART_TX"), gpiolive.WithReserved(), gpiolive.WithPosition(80, 30)),
		),
		gpiolive.WithTitle("GPIOLive Example"),
		gpiolive.WithStreamInterval(250*time.Millisecond),
		gpiolive.WithClassification(gpiolive.ClassificationPolicy{
			VoltagePriority: true,
			ThresholdVolts:  1.65,
		}),
		gpiolive.WithMetrics(9091),
		gpiolive.WithLogger(logger),
		gpiolive.WithSessionCallback(func(e gpiolive.SessionEvent) {
			logger.Info("viewer event", "type", e.Type, "session", e.ID, "remote", e.Remote)
		}),
	)
	if err != nil {
		logger.Error("failed to create gpiolive", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  GPIOLive example")
	fmt.Println()
	fmt.Println("  Viewer:  http://localhost:8081")
	fmt.Println("  Metrics: http://localhost:9091/metrics")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Start(ctx); err != nil {
		logger.Error("gpiolive error", "error", err)
		os.Exit(1)
	}
}
