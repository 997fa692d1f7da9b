// Package main is the entry point for the gpiolive CLI.
//
// GPIOLive can be embedded as a library (SDK) or run as a standalone binary
// against one of the compiled-in board profiles. This CLI provides the
// standalone binary.
//
// Usage:
//
//	gpiolive serve --profile xiao-esp32s3 --source sysfs   # Start the viewer
//	gpiolive probe --source remote --remote-url http://board # Read pins once
//	gpiolive profiles                                       # List board profiles
//	gpiolive version                                        # Show version info
//
// Every flag can also be set from the environment with the GPIOLIVE_
// prefix, e.g. GPIOLIVE_PORT=9000 or GPIOLIVE_REMOTE_URL=http://board.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// newRootCmd builds the command tree. Without a subcommand it shows help.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gpiolive",
		Short: "Live GPIO and ADC viewer for development boards",
		Long: `GPIOLive serves a live view of a board's GPIO levels and ADC voltages.

It samples every pin of a board profile and serves a page that shows them
over the board picture, a JSON snapshot at /data and a Server-Sent Events
stream at /events.

Quick start:
  1. Pick a profile:      gpiolive profiles
  2. Try the simulator:   gpiolive serve --source sim
  3. Open http://localhost:8081 in your browser

On a Linux board, read real pins with --source sysfs. To relay another
board running GPIOLive (or compatible firmware) use
--source remote --remote-url http://<board>:8081.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("log-format", "json", "log format: json or text")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().String("log-file", "", "write logs to this file, rotated by size, instead of stderr")

	root.AddCommand(newServeCmd(), newProbeCmd(), newProfilesCmd(), newVersionCmd())
	return root
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this gpiolive binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gpiolive %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
